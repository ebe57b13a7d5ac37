// Package fusion merges per-modality emotion readings into one fused estimate.
package fusion

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/maastricht-university/empath-pipeline/emotion"
)

// History supplies the previous turn's fused emotion, if any.
type History interface {
	Last() (emotion.Fused, bool)
}

type Options struct {
	// HistoryReliability weights the previous turn when it is injected as a reading.
	HistoryReliability float64
	// MaxModalities is the number of sensor modalities a full reading set has.
	MaxModalities int
	// MaxVariance is the weighted variance of the dominant score at which
	// agreement reaches zero. 0.25 is the largest variance of values in [0,1].
	MaxVariance float64
}

func DefaultOptions() Options {
	return Options{HistoryReliability: 0.3, MaxModalities: 3, MaxVariance: 0.25}
}

type Engine struct {
	opts Options
}

func New(opts Options) *Engine {
	d := DefaultOptions()
	if opts.HistoryReliability < 0 {
		opts.HistoryReliability = 0
	}
	if opts.HistoryReliability > 1 {
		opts.HistoryReliability = 1
	}
	if opts.MaxModalities <= 0 {
		opts.MaxModalities = d.MaxModalities
	}
	if opts.MaxVariance <= 0 {
		opts.MaxVariance = d.MaxVariance
	}
	return &Engine{opts: opts}
}

func (e *Engine) Options() Options { return e.opts }

// Fuse computes the reliability-weighted average of all present readings.
// Readings with zero reliability carry no evidence and are skipped. With no
// usable reading and no history the canonical default with confidence 0 is
// returned.
func (e *Engine) Fuse(readings []emotion.Reading, history History) emotion.Fused {
	usable := make([]emotion.Reading, 0, len(readings)+1)
	for _, r := range readings {
		if r.Reliability > 0 && r.Modality != emotion.History {
			usable = append(usable, r)
		}
	}
	if history != nil && e.opts.HistoryReliability > 0 {
		if last, ok := history.Last(); ok {
			usable = append(usable, emotion.Reading{
				Modality:     emotion.History,
				Distribution: last.Distribution,
				Reliability:  e.opts.HistoryReliability,
			})
		}
	}
	if len(usable) == 0 {
		return emotion.DefaultFused()
	}
	sortCanonical(usable)

	mass := map[string]float64{}
	weight := 0.0
	for _, r := range usable {
		for _, l := range r.Distribution.Labels() {
			mass[l] += r.Reliability * r.Distribution.Score(l)
		}
		weight += r.Reliability
	}
	scores := make(map[string]float64, len(mass))
	for l, m := range mass {
		scores[l] = m / weight
	}
	dist := emotion.New(scores)
	dominant := pickDominant(dist, mass)

	var modalities []emotion.Modality
	seen := map[emotion.Modality]bool{}
	for _, r := range usable {
		if r.Modality == emotion.History || seen[r.Modality] {
			continue
		}
		seen[r.Modality] = true
		modalities = append(modalities, r.Modality)
	}
	sort.Slice(modalities, func(i, j int) bool { return modalities[i] < modalities[j] })

	return emotion.Fused{
		Distribution: dist,
		Confidence:   e.confidence(usable, dominant, len(modalities)),
		Dominant:     dominant,
		Modalities:   modalities,
	}
}

// confidence is agreement on the dominant label scaled by modality coverage.
func (e *Engine) confidence(usable []emotion.Reading, dominant string, n int) float64 {
	if n == 0 {
		return 0
	}
	w, mean := 0.0, 0.0
	for _, r := range usable {
		w += r.Reliability
		mean += r.Reliability * r.Distribution.Score(dominant)
	}
	mean /= w
	variance := 0.0
	for _, r := range usable {
		d := r.Distribution.Score(dominant) - mean
		variance += r.Reliability * d * d
	}
	variance /= w

	agreement := 1 - math.Min(1, variance/e.opts.MaxVariance)
	coverage := math.Min(1, float64(n)/float64(e.opts.MaxModalities))
	c := agreement * coverage
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

const tieEpsilon = 1e-12

// pickDominant takes the argmax; equal scores go to the label with more
// reliability-weighted mass, then to lexical order.
func pickDominant(d emotion.Distribution, mass map[string]float64) string {
	best := ""
	for _, l := range d.Labels() {
		if best == "" {
			best = l
			continue
		}
		s, bs := d.Score(l), d.Score(best)
		switch {
		case s > bs+tieEpsilon:
			best = l
		case math.Abs(s-bs) <= tieEpsilon && mass[l] > mass[best]+tieEpsilon:
			best = l
		}
	}
	return best
}

func sortCanonical(rs []emotion.Reading) {
	keys := make([]string, len(rs))
	for i, r := range rs {
		keys[i] = fingerprint(r)
	}
	sort.Sort(byKey{rs: rs, keys: keys})
}

func fingerprint(r emotion.Reading) string {
	var b strings.Builder
	b.WriteString(string(r.Modality))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(r.Reliability, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(r.Timestamp.UnixNano(), 10))
	for _, l := range r.Distribution.Labels() {
		b.WriteByte('|')
		b.WriteString(l)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(r.Distribution.Score(l), 'g', -1, 64))
	}
	return b.String()
}

type byKey struct {
	rs   []emotion.Reading
	keys []string
}

func (s byKey) Len() int           { return len(s.rs) }
func (s byKey) Less(i, j int) bool { return s.keys[i] < s.keys[j] }
func (s byKey) Swap(i, j int) {
	s.rs[i], s.rs[j] = s.rs[j], s.rs[i]
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
}
