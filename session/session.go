// Package session keeps ephemeral, in-memory conversation state.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/maastricht-university/empath-pipeline/emotion"
)

// Turn is one completed pipeline run.
type Turn struct {
	ID           string        `json:"id"`
	At           time.Time     `json:"at"`
	Input        string        `json:"input"`
	Fused        emotion.Fused `json:"fused"`
	TechniqueIDs []string      `json:"technique_ids"`
	Reply        string        `json:"reply"`
}

type State int

const (
	Empty State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "empty"
}

// Context is the rolling history of one session. Appends for the same
// session are serialized by Store.Acquire; the mutex only guards readers
// such as metrics or the HTTP layer.
type Context struct {
	id string

	mu       sync.RWMutex
	turns    []Turn
	lastUsed time.Time
}

func NewContext(id string) *Context {
	return &Context{id: id, lastUsed: time.Now()}
}

func (c *Context) ID() string { return c.id }

func (c *Context) Append(t Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, t)
	c.lastUsed = time.Now()
}

// History returns a chronological copy of all turns.
func (c *Context) History() []Turn {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Last returns the fused emotion of the most recent turn.
func (c *Context) Last() (emotion.Fused, bool) {
	if c == nil {
		return emotion.Fused{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.turns) == 0 {
		return emotion.Fused{}, false
	}
	return c.turns[len(c.turns)-1].Fused, true
}

func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.turns) == 0 {
		return Empty
	}
	return Active
}

func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

func (c *Context) idleSince() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUsed
}

// ErrSessionBusy is returned when a turn for the same session is in flight.
var ErrSessionBusy = errors.New("session has a turn in progress")

// Store maps session ids to contexts. Concurrent turns for different ids
// need no coordination; a second concurrent turn for the same id is rejected.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Context
	busy     map[string]bool
}

func NewStore() *Store {
	return &Store{sessions: map[string]*Context{}, busy: map[string]bool{}}
}

// Acquire returns the context for id, creating it on first use, and marks it
// busy until release is called. release is idempotent.
func (s *Store) Acquire(id string) (*Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[id] {
		return nil, nil, ErrSessionBusy
	}
	c, ok := s.sessions[id]
	if !ok {
		c = NewContext(id)
		s.sessions[id] = c
	}
	s.busy[id] = true
	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.busy, id)
			s.mu.Unlock()
		})
	}
	return c, release, nil
}

// Get returns an existing context without acquiring it.
func (s *Store) Get(id string) (*Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sessions[id]
	return c, ok
}

// Discard drops the session. It reports whether the session existed.
func (s *Store) Discard(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Sweep discards sessions idle for longer than ttl that have no turn in
// flight and returns their ids.
func (s *Store) Sweep(ttl time.Duration) []string {
	cutoff := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	var gone []string
	for id, c := range s.sessions {
		if s.busy[id] || !c.idleSince().Before(cutoff) {
			continue
		}
		delete(s.sessions, id)
		gone = append(gone, id)
	}
	sort.Strings(gone)
	return gone
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
