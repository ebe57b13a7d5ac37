package emotion

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
)

// Core labels. Any other lower-case label is an extension label.
const (
	Neutral  = "neutral"
	Happy    = "happy"
	Sad      = "sad"
	Angry    = "angry"
	Fear     = "fear"
	Disgust  = "disgust"
	Surprise = "surprise"
	Calm     = "calm"
)

// Tolerance is the allowed deviation of a distribution's total from 1.
const Tolerance = 1e-6

var aliases = map[string]string{
	"joy":       Happy,
	"joyful":    Happy,
	"happiness": Happy,
	"sadness":   Sad,
	"anger":     Angry,
	"mad":       Angry,
	"fearful":   Fear,
	"scared":    Fear,
	"afraid":    Fear,
	"disgusted": Disgust,
	"surprised": Surprise,
	"calmness":  Calm,
}

// CoreLabels lists the closed label set in a stable order.
func CoreLabels() []string {
	return []string{Neutral, Happy, Sad, Angry, Fear, Disgust, Surprise}
}

// Canonical lower-cases a label and folds known aliases onto core labels.
func Canonical(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if c, ok := aliases[l]; ok {
		return c
	}
	return l
}

// Distribution maps emotion labels to non-negative scores summing to 1.
// The zero value is not valid; build one with New or Default.
type Distribution struct {
	scores map[string]float64
}

// Default returns the canonical distribution used when there is no evidence.
func Default() Distribution {
	return Distribution{scores: map[string]float64{Neutral: 0.9, Calm: 0.1}}
}

// New canonicalizes labels, drops non-positive or non-finite scores and
// renormalizes. Empty input yields Default.
func New(raw map[string]float64) Distribution {
	scores := make(map[string]float64, len(raw))
	for label, s := range raw {
		l := Canonical(label)
		if l == "" || s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		scores[l] += s
	}
	total := sum(scores)
	if total <= 0 {
		return Default()
	}
	if math.Abs(total-1) > 1e-12 {
		for l := range scores {
			scores[l] /= total
		}
	}
	return Distribution{scores: scores}
}

func sum(m map[string]float64) float64 {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	t := 0.0
	for _, k := range keys {
		t += m[k]
	}
	return t
}

// Score returns the score of label, 0 when absent.
func (d Distribution) Score(label string) float64 {
	if d.scores == nil {
		return Default().scores[Canonical(label)]
	}
	return d.scores[Canonical(label)]
}

// Labels returns the labels present, sorted.
func (d Distribution) Labels() []string {
	m := d.scores
	if m == nil {
		m = Default().scores
	}
	out := make([]string, 0, len(m))
	for l := range m {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Map returns a copy of the scores.
func (d Distribution) Map() map[string]float64 {
	m := d.scores
	if m == nil {
		m = Default().scores
	}
	out := make(map[string]float64, len(m))
	for l, s := range m {
		out[l] = s
	}
	return out
}

// Total returns the sum of all scores.
func (d Distribution) Total() float64 {
	if d.scores == nil {
		return 1
	}
	return sum(d.scores)
}

// Dominant returns the label with the highest score. Exact ties resolve
// lexically; callers with more context (fusion) apply their own tie-break.
func (d Distribution) Dominant() string {
	best, bestScore := "", -1.0
	for _, l := range d.Labels() {
		if s := d.Score(l); s > bestScore {
			best, bestScore = l, s
		}
	}
	return best
}

// Equal reports whether both distributions hold the same labels with scores
// within tol of each other.
func (d Distribution) Equal(o Distribution, tol float64) bool {
	a, b := d.Map(), o.Map()
	if len(a) != len(b) {
		return false
	}
	for l, s := range a {
		t, ok := b[l]
		if !ok || math.Abs(s-t) > tol {
			return false
		}
	}
	return true
}

func (d Distribution) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

func (d *Distribution) UnmarshalJSON(b []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = New(raw)
	return nil
}
