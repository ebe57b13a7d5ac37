package modality

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/empath-pipeline/clients"
	"github.com/maastricht-university/empath-pipeline/emotion"
)

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func TestKeywordClassifier(t *testing.T) {
	d, err := NewText(nil, "", 0.9, quietLogger()).Analyze(context.Background(), "I feel great today!")
	require.NoError(t, err)
	assert.Equal(t, emotion.Happy, d.Dominant())
	assert.InDelta(t, 1.0, d.Score(emotion.Happy), 1e-12)

	scores, matched := KeywordScores("So sad and so ANGRY, really sad")
	assert.True(t, matched)
	assert.Equal(t, 2.0, scores[emotion.Sad])
	assert.Equal(t, 1.0, scores[emotion.Angry])

	scores, matched = KeywordScores("the train leaves at nine")
	assert.False(t, matched)
	assert.Equal(t, map[string]float64{emotion.Neutral: 1}, scores)

	// whole words only
	_, matched = KeywordScores("madness gladiator")
	assert.False(t, matched)
}

func TestTextBlankIsDefaultAndAbsent(t *testing.T) {
	a := NewText(nil, "", 0.9, quietLogger())
	d, err := a.Analyze(context.Background(), "   ")
	require.NoError(t, err)
	assert.True(t, d.Equal(emotion.Default(), emotion.Tolerance))

	r := a.Read(context.Background(), "", time.Now())
	assert.Equal(t, 0.0, r.Reliability)
	assert.Equal(t, emotion.Text, r.Modality)
}

func TestTextReliability(t *testing.T) {
	a := NewText(nil, "", 0.9, quietLogger())
	assert.InDelta(t, 0.9, a.Read(context.Background(), "I am happy", time.Now()).Reliability, 1e-12)
	assert.InDelta(t, 0.45, a.Read(context.Background(), "nothing to see", time.Now()).Reliability, 1e-12)
}

func TestTextRemoteAndFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"emotions":[{"label":"fear","score":0.6},{"label":"sadness","score":0.4}]}`))
	}))
	defer srv.Close()

	a := NewText(clients.NewHTTP(time.Second), srv.URL, 0.9, quietLogger())
	d, err := a.Analyze(context.Background(), "I feel great")
	require.NoError(t, err)
	assert.Equal(t, emotion.Fear, d.Dominant())
	assert.InDelta(t, 0.4, d.Score(emotion.Sad), 1e-12)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	log, hook := test.NewNullLogger()
	a = NewText(clients.NewHTTP(time.Second), down.URL, 0.9, log)
	d, err = a.Analyze(context.Background(), "I feel great")
	require.NoError(t, err)
	assert.Equal(t, emotion.Happy, d.Dominant())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func sine(freq float64, amp float64, rate int, seconds float64) Waveform {
	n := int(float64(rate) * seconds)
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return Waveform{Samples: s, SampleRate: rate}
}

func TestWAVRoundTrip(t *testing.T) {
	w := sine(200, 0.5, 8000, 0.25)
	got, err := DecodeWAV(EncodeWAV(w))
	require.NoError(t, err)
	assert.Equal(t, 8000, got.SampleRate)
	require.Len(t, got.Samples, len(w.Samples))
	for i := range w.Samples {
		assert.InDelta(t, w.Samples[i], got.Samples[i], 1e-3)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"not riff":  []byte("hello world, definitely not audio"),
		"short":     []byte("RIFF"),
		"no fmt":    append([]byte("RIFF\x04\x00\x00\x00WAVE"), []byte("data\x00\x00\x00\x00")...),
		"no frames": EncodeWAV(Waveform{SampleRate: 8000}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeWAV(data)
			assert.Error(t, err)
		})
	}
}

func TestImplausibleSampleRate(t *testing.T) {
	s := make([]float64, 40000)
	for i := range s {
		s[i] = 0.5 * math.Sin(float64(i)/7)
	}
	a := NewAudio(0.7)
	for _, rate := range []int{4_000_000, 1000} {
		_, err := a.AnalyzeWAV(context.Background(), EncodeWAV(Waveform{Samples: s, SampleRate: rate}))
		assert.ErrorIs(t, err, emotion.ErrModalityUnavailable, "rate %d", rate)
	}

	// the frame stays bounded even when the waveform skips the decoder
	start := time.Now()
	f := ExtractFeatures(Waveform{Samples: s, SampleRate: 4_000_000})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Greater(t, f.RMS, 0.0)
}

func TestFeatures(t *testing.T) {
	f := ExtractFeatures(sine(200, 0.5, 8000, 0.5))
	assert.InDelta(t, 0.5/math.Sqrt2, f.RMS, 0.01)
	assert.InDelta(t, 200, f.Pitch, 10)
	assert.InDelta(t, 200, f.Centroid, 60)
	assert.Zero(t, f.Tempo)
}

func TestAudioScoring(t *testing.T) {
	a := NewAudio(0.7)
	loud, err := a.Analyze(context.Background(), sine(200, 0.8, 8000, 0.5))
	require.NoError(t, err)
	assert.Greater(t, loud.Score(emotion.Happy), loud.Score(emotion.Sad))
	assert.Greater(t, loud.Score(emotion.Angry), loud.Score(emotion.Calm))

	quiet, err := a.Analyze(context.Background(), sine(100, 0.05, 8000, 0.5))
	require.NoError(t, err)
	assert.Greater(t, quiet.Score(emotion.Sad), quiet.Score(emotion.Happy))
	assert.InDelta(t, 1.0, quiet.Total(), emotion.Tolerance)

	d := ScoreFeatures(Features{Energy: 0.2, Tempo: 150})
	assert.Equal(t, emotion.Happy, d.Dominant())
	d = ScoreFeatures(Features{Energy: 0.01, Tempo: 60})
	assert.InDelta(t, d.Score(emotion.Sad), d.Score(emotion.Calm), 1e-12)
}

func TestAudioUnavailable(t *testing.T) {
	a := NewAudio(0.7)
	_, err := a.AnalyzeWAV(context.Background(), nil)
	assert.ErrorIs(t, err, emotion.ErrModalityUnavailable)
	_, err = a.Read(context.Background(), []byte("not a wav"), time.Now())
	assert.ErrorIs(t, err, emotion.ErrModalityUnavailable)

	r, err := a.Read(context.Background(), EncodeWAV(sine(200, 0.3, 8000, 0.2)), time.Now())
	require.NoError(t, err)
	assert.Equal(t, emotion.Audio, r.Modality)
	assert.Equal(t, 0.7, r.Reliability)
}

type fakeDetector struct {
	faces []clients.Face
	err   error
}

func (f fakeDetector) Detect(context.Context, []byte) ([]clients.Face, error) { return f.faces, f.err }

func pngFrame(t *testing.T) []byte {
	var b bytes.Buffer
	require.NoError(t, png.Encode(&b, image.NewGray(image.Rect(0, 0, 4, 4))))
	return b.Bytes()
}

func TestScoreActionUnits(t *testing.T) {
	d := ScoreActionUnits(map[string]float64{"au6": 0.9, "AU12_r": 0.9})
	assert.Equal(t, emotion.Happy, d.Dominant())

	d = ScoreActionUnits(nil)
	assert.InDelta(t, 1.0, d.Score(emotion.Neutral), 1e-12)

	d = ScoreActionUnits(map[string]float64{"smile": 1, "AU0": 1})
	assert.Equal(t, emotion.Neutral, d.Dominant())
}

func TestVisualAdapter(t *testing.T) {
	frame := pngFrame(t)
	small := clients.Face{Box: clients.Box{W: 10, H: 10}, ActionUnits: map[string]float64{"AU04": 1, "AU05": 1, "AU07": 1, "AU23": 1}}
	big := clients.Face{Box: clients.Box{W: 50, H: 50}, ActionUnits: map[string]float64{"AU06": 1, "AU12": 1}}

	a := NewVisual(fakeDetector{faces: []clients.Face{small, big}}, 0.6)
	r, err := a.Read(context.Background(), frame, time.Now())
	require.NoError(t, err)
	assert.Equal(t, emotion.Happy, r.Distribution.Dominant())
	assert.Equal(t, 0.6, r.Reliability)

	cases := map[string]struct {
		a     *VisualAdapter
		frame []byte
	}{
		"no detector":  {NewVisual(nil, 0.6), frame},
		"empty":        {a, nil},
		"undecodable":  {a, []byte("GIF89a-nope")},
		"no faces":     {NewVisual(fakeDetector{}, 0.6), frame},
		"detector err": {NewVisual(fakeDetector{err: errors.New("down")}, 0.6), frame},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.a.Analyze(context.Background(), c.frame)
			assert.ErrorIs(t, err, emotion.ErrModalityUnavailable)
		})
	}
}
