package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/empath-pipeline/emotion"
)

type lastOnly struct {
	f  emotion.Fused
	ok bool
}

func (l lastOnly) Last() (emotion.Fused, bool) { return l.f, l.ok }

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func reading(m emotion.Modality, rel float64, raw map[string]float64) emotion.Reading {
	return emotion.NewReading(m, emotion.New(raw), rel, t0)
}

func TestFuseEmptyReturnsDefault(t *testing.T) {
	e := New(DefaultOptions())
	got := e.Fuse(nil, nil)
	assert.True(t, got.Distribution.Equal(emotion.Default(), 0))
	assert.Equal(t, 0.0, got.Confidence)
	assert.Equal(t, emotion.Neutral, got.Dominant)
	assert.Empty(t, got.Modalities)

	got = e.Fuse(nil, lastOnly{})
	assert.True(t, got.Distribution.Equal(emotion.Default(), 0))
	assert.Equal(t, 0.0, got.Confidence)
}

func TestFuseZeroReliabilityIsAbsent(t *testing.T) {
	e := New(DefaultOptions())
	got := e.Fuse([]emotion.Reading{reading(emotion.Text, 0, map[string]float64{"angry": 1})}, nil)
	assert.True(t, got.Distribution.Equal(emotion.Default(), 0))
	assert.Equal(t, 0.0, got.Confidence)
}

func TestFuseIdentity(t *testing.T) {
	e := New(DefaultOptions())
	r := reading(emotion.Audio, 1.0, map[string]float64{"sad": 0.3, "angry": 0.45, "fear": 0.25})
	got := e.Fuse([]emotion.Reading{r}, nil)
	assert.Equal(t, r.Distribution.Map(), got.Distribution.Map())
	assert.Equal(t, emotion.Angry, got.Dominant)
	assert.Equal(t, []emotion.Modality{emotion.Audio}, got.Modalities)
}

func TestFuseWeightedAverage(t *testing.T) {
	e := New(DefaultOptions())
	got := e.Fuse([]emotion.Reading{
		reading(emotion.Text, 0.9, map[string]float64{"sad": 0.8, "neutral": 0.2}),
		reading(emotion.Audio, 0.7, map[string]float64{"sad": 0.6, "angry": 0.4}),
	}, nil)

	assert.Equal(t, emotion.Sad, got.Dominant)
	assert.InDelta(t, (0.9*0.8+0.7*0.6)/1.6, got.Distribution.Score(emotion.Sad), 1e-9)
	assert.InDelta(t, 0.9*0.2/1.6, got.Distribution.Score(emotion.Neutral), 1e-9)
	assert.InDelta(t, 0.7*0.4/1.6, got.Distribution.Score(emotion.Angry), 1e-9)
	assert.InDelta(t, 1.0, got.Distribution.Total(), emotion.Tolerance)
	assert.Equal(t, []emotion.Modality{emotion.Audio, emotion.Text}, got.Modalities)
	assert.Greater(t, got.Confidence, 0.0)
	assert.Less(t, got.Confidence, 1.0)
}

func TestFuseOrderIndependent(t *testing.T) {
	e := New(DefaultOptions())
	rs := []emotion.Reading{
		reading(emotion.Text, 0.9, map[string]float64{"sad": 0.1, "happy": 0.7, "surprise": 0.2}),
		reading(emotion.Audio, 0.7, map[string]float64{"angry": 0.3, "calm": 0.3, "happy": 0.4}),
		reading(emotion.Visual, 0.55, map[string]float64{"fear": 0.33, "happy": 0.33, "neutral": 0.34}),
	}
	want := e.Fuse(rs, nil)
	perms := [][]int{{0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		got := e.Fuse([]emotion.Reading{rs[p[0]], rs[p[1]], rs[p[2]]}, nil)
		assert.Equal(t, want.Distribution.Map(), got.Distribution.Map(), "perm=%v", p)
		assert.Equal(t, want.Confidence, got.Confidence, "perm=%v", p)
		assert.Equal(t, want.Dominant, got.Dominant, "perm=%v", p)
		assert.Equal(t, want.Modalities, got.Modalities, "perm=%v", p)
	}
}

func TestAgreementRaisesConfidence(t *testing.T) {
	e := New(DefaultOptions())
	same := map[string]float64{"happy": 0.7, "neutral": 0.3}
	agree := e.Fuse([]emotion.Reading{
		reading(emotion.Text, 0.9, same),
		reading(emotion.Audio, 0.7, same),
		reading(emotion.Visual, 0.6, same),
	}, nil)
	disagree := e.Fuse([]emotion.Reading{
		reading(emotion.Text, 0.9, same),
		reading(emotion.Audio, 0.7, map[string]float64{"happy": 0.4, "sad": 0.6}),
		reading(emotion.Visual, 0.6, map[string]float64{"happy": 0.5, "angry": 0.5}),
	}, nil)
	assert.InDelta(t, 1.0, agree.Confidence, 1e-9)
	assert.Greater(t, agree.Confidence, disagree.Confidence)
}

func TestFewerModalitiesLowerConfidence(t *testing.T) {
	e := New(DefaultOptions())
	same := map[string]float64{"sad": 1}
	one := e.Fuse([]emotion.Reading{reading(emotion.Text, 0.9, same)}, nil)
	two := e.Fuse([]emotion.Reading{reading(emotion.Text, 0.9, same), reading(emotion.Audio, 0.7, same)}, nil)
	assert.InDelta(t, 1.0/3.0, one.Confidence, 1e-9)
	assert.InDelta(t, 2.0/3.0, two.Confidence, 1e-9)
}

func TestDominantTieBreakUsesMass(t *testing.T) {
	e := New(DefaultOptions())
	// sad and angry end up with equal fused score; only the tie-break decides.
	got := e.Fuse([]emotion.Reading{
		reading(emotion.Text, 0.5, map[string]float64{"sad": 0.5, "angry": 0.5}),
	}, nil)
	// Equal mass too: lexical order makes it deterministic.
	assert.Equal(t, emotion.Angry, got.Dominant)

	d := emotion.New(map[string]float64{"sad": 0.5, "angry": 0.5})
	assert.Equal(t, emotion.Sad, pickDominant(d, map[string]float64{"sad": 0.6, "angry": 0.4}))
	assert.Equal(t, emotion.Angry, pickDominant(d, map[string]float64{"sad": 0.4, "angry": 0.6}))
}

func TestHistoryBiasesUnreliableTurn(t *testing.T) {
	e := New(DefaultOptions())
	prev := e.Fuse([]emotion.Reading{reading(emotion.Text, 0.9, map[string]float64{"sad": 0.9, "fear": 0.1})}, nil)
	require.Equal(t, emotion.Sad, prev.Dominant)

	got := e.Fuse([]emotion.Reading{reading(emotion.Audio, 0, map[string]float64{"happy": 1})}, lastOnly{f: prev, ok: true})
	assert.Equal(t, emotion.Sad, got.Dominant)
	assert.False(t, got.Distribution.Equal(emotion.Default(), 1e-9))
	assert.Equal(t, 0.0, got.Confidence)

	// With a real reading the history only smooths.
	got = e.Fuse([]emotion.Reading{reading(emotion.Text, 0.9, map[string]float64{"happy": 1})}, lastOnly{f: prev, ok: true})
	assert.Equal(t, emotion.Happy, got.Dominant)
	assert.InDelta(t, 0.3*0.9/1.2, got.Distribution.Score(emotion.Sad), 1e-9)
}

func TestHistoryDisabled(t *testing.T) {
	e := New(Options{HistoryReliability: 0})
	prev := emotion.Fused{Distribution: emotion.New(map[string]float64{"sad": 1}), Dominant: emotion.Sad}
	got := e.Fuse(nil, lastOnly{f: prev, ok: true})
	assert.True(t, got.Distribution.Equal(emotion.Default(), 0))
}

func TestCallerSuppliedHistoryReadingIgnored(t *testing.T) {
	e := New(DefaultOptions())
	got := e.Fuse([]emotion.Reading{reading(emotion.History, 1, map[string]float64{"sad": 1})}, nil)
	assert.True(t, got.Distribution.Equal(emotion.Default(), 0))
}
