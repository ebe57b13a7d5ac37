package modality

import (
	"context"
	"math"
	"time"

	"github.com/maastricht-university/empath-pipeline/emotion"
)

// Waveform is mono audio in [-1,1].
type Waveform struct {
	Samples    []float64
	SampleRate int
}

func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / float64(w.SampleRate) * float64(time.Second))
}

// Features are the prosodic measurements the audio scorer works on.
// Pitch and Tempo are zero when they could not be estimated.
type Features struct {
	Energy   float64 `json:"energy"`
	RMS      float64 `json:"rms"`
	ZCR      float64 `json:"zcr"`
	Pitch    float64 `json:"pitch_hz"`
	Centroid float64 `json:"spectral_centroid_hz"`
	Tempo    float64 `json:"tempo_bpm"`
	Seconds  float64 `json:"seconds"`
}

const (
	energyThreshold = 0.1
	fastTempo       = 120
	slowTempo       = 80
	highPitch       = 250
	lowPitch        = 120
	harshZCR        = 0.15
	minTempoSeconds = 1.0

	// maxFrameLen bounds the quadratic pitch and centroid passes whatever
	// rate the header claims.
	maxFrameLen = 2048
)

// Sample rates DecodeWAV accepts.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
)

// ExtractFeatures measures energy, zero-crossing rate, pitch, spectral
// centroid and onset tempo. The waveform must be non-empty.
func ExtractFeatures(w Waveform) Features {
	x := w.Samples
	f := Features{Seconds: w.Duration().Seconds()}
	var abs, sq float64
	crossings := 0
	for i, s := range x {
		abs += math.Abs(s)
		sq += s * s
		if i > 0 && (s >= 0) != (x[i-1] >= 0) {
			crossings++
		}
	}
	n := float64(len(x))
	f.Energy = abs / n
	f.RMS = math.Sqrt(sq / n)
	if len(x) > 1 {
		f.ZCR = float64(crossings) / (n - 1)
	}

	frameLen := w.SampleRate / 40
	if frameLen < 64 {
		frameLen = 64
	}
	if frameLen > maxFrameLen {
		frameLen = maxFrameLen
	}
	if frameLen > len(x) {
		frameLen = len(x)
	}
	hop := frameLen / 2
	if hop == 0 {
		hop = 1
	}
	var env []float64
	loudest, loudestRMS := 0, -1.0
	for start := 0; start+frameLen <= len(x); start += hop {
		r := rms(x[start : start+frameLen])
		if r > loudestRMS {
			loudest, loudestRMS = start, r
		}
		env = append(env, r)
	}
	frame := x[loudest : loudest+frameLen]
	f.Pitch = pitch(frame, w.SampleRate)
	f.Centroid = centroid(frame, w.SampleRate)
	if f.Seconds >= minTempoSeconds {
		f.Tempo = float64(onsets(env)) / f.Seconds * 60
	}
	return f
}

func rms(x []float64) float64 {
	var sq float64
	for _, s := range x {
		sq += s * s
	}
	return math.Sqrt(sq / float64(len(x)))
}

// pitch estimates the fundamental in the 60-400 Hz speech range by
// normalized autocorrelation.
func pitch(x []float64, rate int) float64 {
	minLag, maxLag := rate/400, rate/60
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(x) {
		maxLag = len(x) - 1
	}
	var e0 float64
	for _, s := range x {
		e0 += s * s
	}
	if e0 == 0 || maxLag <= minLag {
		return 0
	}
	best, bestCorr := 0, 0.3
	for lag := minLag; lag <= maxLag; lag++ {
		var c float64
		for i := 0; i+lag < len(x); i++ {
			c += x[i] * x[i+lag]
		}
		c /= e0
		if c > bestCorr {
			best, bestCorr = lag, c
		}
	}
	if best == 0 {
		return 0
	}
	return float64(rate) / float64(best)
}

func centroid(x []float64, rate int) float64 {
	n := len(x)
	var num, den float64
	for k := 1; k <= n/2; k++ {
		var re, im float64
		for t, s := range x {
			a := 2 * math.Pi * float64(k*t) / float64(n)
			re += s * math.Cos(a)
			im -= s * math.Sin(a)
		}
		mag := math.Hypot(re, im)
		num += mag * float64(k) * float64(rate) / float64(n)
		den += mag
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// onsets counts rising edges of the RMS envelope above its mean.
func onsets(env []float64) int {
	if len(env) < 2 {
		return 0
	}
	var mean float64
	for _, e := range env {
		mean += e
	}
	mean /= float64(len(env))
	count := 0
	above := env[0] > mean*1.2
	for _, e := range env[1:] {
		now := e > mean*1.2
		if now && !above {
			count++
		}
		above = now
	}
	return count
}

// ScoreFeatures maps prosodic features onto the core labels. Every label
// keeps a small floor so a single cue never yields certainty.
func ScoreFeatures(f Features) emotion.Distribution {
	s := map[string]float64{}
	for _, l := range append(emotion.CoreLabels(), emotion.Calm) {
		s[l] = 0.1
	}
	if f.Energy > energyThreshold {
		s[emotion.Angry] += 0.3
		s[emotion.Happy] += 0.3
	} else {
		s[emotion.Sad] += 0.3
		s[emotion.Calm] += 0.3
	}
	switch {
	case f.Tempo > fastTempo:
		s[emotion.Happy] += 0.2
		s[emotion.Surprise] += 0.2
	case f.Tempo > 0 && f.Tempo < slowTempo:
		s[emotion.Sad] += 0.2
		s[emotion.Calm] += 0.2
	}
	switch {
	case f.Pitch > highPitch:
		s[emotion.Fear] += 0.15
		s[emotion.Surprise] += 0.15
	case f.Pitch > 0 && f.Pitch < lowPitch:
		s[emotion.Sad] += 0.1
	}
	if f.ZCR > harshZCR && f.Energy > energyThreshold {
		s[emotion.Angry] += 0.1
	}
	return emotion.New(s)
}

// AudioAdapter scores speech prosody from WAV buffers.
type AudioAdapter struct {
	reliability float64
}

func NewAudio(reliability float64) *AudioAdapter {
	return &AudioAdapter{reliability: reliability}
}

func (a *AudioAdapter) Analyze(ctx context.Context, w Waveform) (emotion.Distribution, error) {
	if len(w.Samples) == 0 || w.SampleRate <= 0 {
		return emotion.Distribution{}, emotion.Unavailable(emotion.Audio, "empty waveform")
	}
	if err := ctx.Err(); err != nil {
		return emotion.Distribution{}, err
	}
	return ScoreFeatures(ExtractFeatures(w)), nil
}

// AnalyzeWAV decodes and scores a WAV buffer. Decode failures are reported
// as an unavailable modality, never as a turn failure.
func (a *AudioAdapter) AnalyzeWAV(ctx context.Context, data []byte) (emotion.Distribution, error) {
	if len(data) == 0 {
		return emotion.Distribution{}, emotion.Unavailable(emotion.Audio, "empty audio buffer")
	}
	w, err := DecodeWAV(data)
	if err != nil {
		return emotion.Distribution{}, emotion.Unavailable(emotion.Audio, err.Error())
	}
	return a.Analyze(ctx, w)
}

func (a *AudioAdapter) Read(ctx context.Context, data []byte, at time.Time) (emotion.Reading, error) {
	d, err := a.AnalyzeWAV(ctx, data)
	if err != nil {
		return emotion.Reading{}, err
	}
	return emotion.NewReading(emotion.Audio, d, a.reliability, at), nil
}
