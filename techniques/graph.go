// Package techniques holds the static emotion × technique knowledge graph.
package techniques

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/maastricht-university/empath-pipeline/emotion"
)

// Technique is a therapeutic intervention with ordered steps and weighted
// applicability edges to emotion labels.
type Technique struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description" json:"description"`
	Steps       []string           `yaml:"steps" json:"steps"`
	Applies     map[string]float64 `yaml:"applies_to" json:"applies_to"`
}

// Weight returns the edge weight between t and label, 0 when there is none.
func (t Technique) Weight(label string) float64 {
	return t.Applies[emotion.Canonical(label)]
}

// GraphConfigurationError reports malformed graph data. It is only raised
// while building a graph, never per request.
type GraphConfigurationError struct {
	Technique string
	Reason    string
}

func (e *GraphConfigurationError) Error() string {
	if e.Technique == "" {
		return "technique graph: " + e.Reason
	}
	return fmt.Sprintf("technique graph: %s: %s", e.Technique, e.Reason)
}

// Graph is immutable after New and safe for concurrent reads.
type Graph struct {
	byID    map[string]Technique
	order   []string
	byLabel map[string][]string
}

// New validates the catalog and builds the bipartite index.
func New(catalog []Technique) (*Graph, error) {
	g := &Graph{
		byID:    make(map[string]Technique, len(catalog)),
		byLabel: map[string][]string{},
	}
	for _, t := range catalog {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, &GraphConfigurationError{Reason: "technique with empty id"}
		}
		if _, dup := g.byID[t.ID]; dup {
			return nil, &GraphConfigurationError{Technique: t.ID, Reason: "duplicate id"}
		}
		if strings.TrimSpace(t.Name) == "" {
			return nil, &GraphConfigurationError{Technique: t.ID, Reason: "empty name"}
		}
		if len(t.Steps) == 0 {
			return nil, &GraphConfigurationError{Technique: t.ID, Reason: "no steps"}
		}
		applies := make(map[string]float64, len(t.Applies))
		for label, w := range t.Applies {
			l := emotion.Canonical(label)
			if l == "" {
				return nil, &GraphConfigurationError{Technique: t.ID, Reason: "edge with empty label"}
			}
			if !(w > 0 && w <= 1) || math.IsNaN(w) {
				return nil, &GraphConfigurationError{Technique: t.ID, Reason: fmt.Sprintf("weight %v for %q outside (0,1]", w, label)}
			}
			if _, dup := applies[l]; dup {
				return nil, &GraphConfigurationError{Technique: t.ID, Reason: fmt.Sprintf("duplicate edge for %q", l)}
			}
			applies[l] = w
			g.byLabel[l] = append(g.byLabel[l], t.ID)
		}
		t.Steps = append([]string(nil), t.Steps...)
		t.Applies = applies
		g.byID[t.ID] = t
		g.order = append(g.order, t.ID)
	}
	sort.Strings(g.order)
	for l := range g.byLabel {
		sort.Strings(g.byLabel[l])
	}
	return g, nil
}

// MustDefault builds the built-in catalog; it panics only if the catalog in
// this package is malformed.
func MustDefault() *Graph {
	g, err := New(Default())
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Graph) Len() int { return len(g.order) }

// Get returns a copy of the technique with id.
func (g *Graph) Get(id string) (Technique, bool) {
	t, ok := g.byID[id]
	if !ok {
		return Technique{}, false
	}
	return clone(t), true
}

// All returns every technique ordered by id.
func (g *Graph) All() []Technique {
	out := make([]Technique, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, clone(g.byID[id]))
	}
	return out
}

// Labels returns all emotion labels with at least one edge, sorted.
func (g *Graph) Labels() []string {
	out := make([]string, 0, len(g.byLabel))
	for l := range g.byLabel {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Scored is a query hit.
type Scored struct {
	Technique
	Score float64 `json:"score"`
}

// Query returns the top-k techniques for d. Candidate score is
// Σ d[e]·weight(e,T) over labels shared by d and T; ties are broken by id.
// Labels unknown to the graph contribute nothing. An empty graph, no overlap
// or k ≤ 0 yields an empty list.
func (g *Graph) Query(d emotion.Distribution, k int) []Technique {
	scored := g.Rank(d, k)
	out := make([]Technique, len(scored))
	for i, s := range scored {
		out[i] = s.Technique
	}
	return out
}

// Rank is Query with the candidate scores attached.
func (g *Graph) Rank(d emotion.Distribution, k int) []Scored {
	if g == nil || k <= 0 || len(g.order) == 0 {
		return []Scored{}
	}
	scores := map[string]float64{}
	for _, l := range d.Labels() {
		p := d.Score(l)
		for _, id := range g.byLabel[l] {
			scores[id] += p * g.byID[id].Applies[l]
		}
	}
	hits := make([]Scored, 0, len(scores))
	for id, s := range scores {
		if s > 0 {
			hits = append(hits, Scored{Technique: g.byID[id], Score: s})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Technique = clone(hits[i].Technique)
	}
	return hits
}

func clone(t Technique) Technique {
	t.Steps = append([]string(nil), t.Steps...)
	applies := make(map[string]float64, len(t.Applies))
	for l, w := range t.Applies {
		applies[l] = w
	}
	t.Applies = applies
	return t
}

// IDs extracts technique ids in order.
func IDs(ts []Technique) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}
