package modality

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"
	"time"

	"github.com/maastricht-university/empath-pipeline/clients"
	"github.com/maastricht-university/empath-pipeline/emotion"
)

// FaceDetector finds faces and their action-unit intensities in an encoded
// image.
type FaceDetector interface {
	Detect(ctx context.Context, image []byte) ([]clients.Face, error)
}

// RemoteFaces is a FaceDetector backed by the face analysis service.
type RemoteFaces struct {
	HTTP *clients.HTTP
	URL  string
}

func (r RemoteFaces) Detect(ctx context.Context, img []byte) ([]clients.Face, error) {
	resp, err := r.HTTP.Faces(ctx, r.URL, img)
	if err != nil {
		return nil, err
	}
	return resp.Faces, nil
}

// Prototype action units per label, after EMFACS.
var prototypes = map[string][]string{
	emotion.Happy:    {"AU06", "AU12"},
	emotion.Sad:      {"AU01", "AU04", "AU15"},
	emotion.Surprise: {"AU01", "AU02", "AU05", "AU26"},
	emotion.Fear:     {"AU01", "AU02", "AU04", "AU05", "AU07", "AU20", "AU26"},
	emotion.Angry:    {"AU04", "AU05", "AU07", "AU23"},
	emotion.Disgust:  {"AU09", "AU15", "AU16"},
}

// normalizeAU maps "au1", "AU01_r" and "AU1" to "AU01".
func normalizeAU(key string) (string, bool) {
	k := strings.ToUpper(strings.TrimSpace(key))
	k = strings.TrimSuffix(strings.TrimSuffix(k, "_R"), "_C")
	if !strings.HasPrefix(k, "AU") {
		return "", false
	}
	n, err := strconv.Atoi(k[2:])
	if err != nil || n <= 0 {
		return "", false
	}
	return fmt.Sprintf("AU%02d", n), true
}

// ScoreActionUnits averages prototype intensities per label. Whatever the
// strongest prototype leaves unexplained goes to neutral.
func ScoreActionUnits(aus map[string]float64) emotion.Distribution {
	in := map[string]float64{}
	for k, v := range aus {
		if key, ok := normalizeAU(k); ok && v > 0 {
			if v > 1 {
				v = 1
			}
			in[key] = max(in[key], v)
		}
	}
	s := map[string]float64{}
	strongest := 0.0
	for label, units := range prototypes {
		var sum float64
		for _, u := range units {
			sum += in[u]
		}
		score := sum / float64(len(units))
		s[label] = score
		strongest = max(strongest, score)
	}
	s[emotion.Neutral] = 1 - strongest
	return emotion.New(s)
}

// largest picks the face with the biggest box; ties keep the first.
func largest(faces []clients.Face) clients.Face {
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Box.W*f.Box.H > best.Box.W*best.Box.H {
			best = f
		}
	}
	return best
}

// VisualAdapter scores facial expression on the largest detected face.
type VisualAdapter struct {
	detector    FaceDetector
	reliability float64
}

// NewVisual accepts a nil detector; every frame is then unavailable.
func NewVisual(d FaceDetector, reliability float64) *VisualAdapter {
	return &VisualAdapter{detector: d, reliability: reliability}
}

func (a *VisualAdapter) Analyze(ctx context.Context, frame []byte) (emotion.Distribution, error) {
	if len(frame) == 0 {
		return emotion.Distribution{}, emotion.Unavailable(emotion.Visual, "empty image")
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(frame)); err != nil {
		return emotion.Distribution{}, emotion.Unavailable(emotion.Visual, "undecodable image: "+err.Error())
	}
	if a.detector == nil {
		return emotion.Distribution{}, emotion.Unavailable(emotion.Visual, "no face detector configured")
	}
	faces, err := a.detector.Detect(ctx, frame)
	if err != nil {
		return emotion.Distribution{}, emotion.Unavailable(emotion.Visual, "face detector: "+err.Error())
	}
	if len(faces) == 0 {
		return emotion.Distribution{}, emotion.Unavailable(emotion.Visual, "no face detected")
	}
	return ScoreActionUnits(largest(faces).ActionUnits), nil
}

func (a *VisualAdapter) Read(ctx context.Context, frame []byte, at time.Time) (emotion.Reading, error) {
	d, err := a.Analyze(ctx, frame)
	if err != nil {
		return emotion.Reading{}, err
	}
	return emotion.NewReading(emotion.Visual, d, a.reliability, at), nil
}
