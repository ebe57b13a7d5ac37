package responder

import "fmt"

type Kind int

const (
	Trying Kind = iota
	Fallback
	Done
)

func (k Kind) String() string {
	switch k {
	case Trying:
		return "trying"
	case Fallback:
		return "fallback"
	case Done:
		return "done"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// State is a position in the provider walk. Index is the provider being
// tried, or the one that answered once Done; it is -1 when the template
// produced the reply.
type State struct {
	Kind  Kind
	Index int
}

func (s State) String() string {
	if s.Kind == Trying {
		return fmt.Sprintf("trying(%d)", s.Index)
	}
	return s.Kind.String()
}

type Outcome int

const (
	Failed Outcome = iota
	Succeeded
)

// Start is the initial state for n configured providers.
func Start(n int) State {
	if n <= 0 {
		return State{Kind: Fallback, Index: -1}
	}
	return State{Kind: Trying, Index: 0}
}

// Next is the transition function. Each provider is visited at most once
// and Fallback always reaches Done.
func Next(s State, o Outcome, n int) State {
	switch s.Kind {
	case Trying:
		if o == Succeeded {
			return State{Kind: Done, Index: s.Index}
		}
		if s.Index+1 < n {
			return State{Kind: Trying, Index: s.Index + 1}
		}
		return State{Kind: Fallback, Index: -1}
	case Fallback:
		return State{Kind: Done, Index: -1}
	}
	return s
}
