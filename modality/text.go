// Package modality turns raw text, audio and image input into emotion
// distributions. Adapters are stateless apart from immutable configuration
// and safe for concurrent use.
package modality

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/empath-pipeline/clients"
	"github.com/maastricht-university/empath-pipeline/emotion"
)

var lexicon = map[string][]string{
	emotion.Angry:    {"angry", "mad", "furious", "annoyed", "irritated", "enraged", "frustrated", "hate", "livid"},
	emotion.Disgust:  {"disgusted", "gross", "revolting", "repulsed", "sickened", "appalled", "disgusting"},
	emotion.Fear:     {"afraid", "scared", "terrified", "anxious", "worried", "frightened", "nervous", "panicking"},
	emotion.Happy:    {"happy", "joyful", "delighted", "pleased", "glad", "excited", "thrilled", "content", "great", "wonderful", "amazing", "awesome", "good", "love"},
	emotion.Sad:      {"sad", "depressed", "unhappy", "miserable", "gloomy", "heartbroken", "upset", "lonely", "hopeless", "down"},
	emotion.Surprise: {"surprised", "shocked", "astonished", "amazed", "stunned", "speechless"},
	emotion.Neutral:  {"okay", "ok", "fine", "neutral", "indifferent", "balanced", "stable"},
}

var wordLabel = func() map[string]string {
	m := map[string]string{}
	for label, words := range lexicon {
		for _, w := range words {
			m[w] = label
		}
	}
	return m
}()

// KeywordScores counts whole-word lexicon hits. Text with no hit scores as
// plain neutral; matched reports whether any keyword was found.
func KeywordScores(text string) (scores map[string]float64, matched bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	scores = map[string]float64{}
	for _, w := range words {
		if label, ok := wordLabel[strings.Trim(w, "'")]; ok {
			scores[label]++
		}
	}
	if len(scores) == 0 {
		return map[string]float64{emotion.Neutral: 1}, false
	}
	return scores, true
}

// TextAdapter scores text with the remote classifier when one is configured
// and with the keyword classifier otherwise or on remote failure.
type TextAdapter struct {
	http        *clients.HTTP
	url         string
	reliability float64
	log         logrus.FieldLogger
}

func NewText(h *clients.HTTP, url string, reliability float64, log logrus.FieldLogger) *TextAdapter {
	return &TextAdapter{http: h, url: url, reliability: reliability, log: log.WithField("modality", emotion.Text)}
}

// Analyze never invokes a classifier on blank text: it returns the canonical
// default distribution.
func (a *TextAdapter) Analyze(ctx context.Context, text string) (emotion.Distribution, error) {
	d, _ := a.analyze(ctx, text)
	return d, nil
}

// analyze also reports how much evidence the distribution carries in [0,1].
func (a *TextAdapter) analyze(ctx context.Context, text string) (emotion.Distribution, float64) {
	if strings.TrimSpace(text) == "" {
		return emotion.Default(), 0
	}
	if a.http != nil && a.url != "" {
		resp, err := a.http.Emotion(ctx, a.url, text)
		if err == nil {
			return emotion.New(resp.Scores()), 1
		}
		a.log.WithError(err).Warn("remote text classifier failed, using keyword classifier")
	}
	scores, matched := KeywordScores(text)
	if !matched {
		return emotion.New(scores), 0.5
	}
	return emotion.New(scores), 1
}

// Read produces the text reading for one turn. Blank text yields a reading
// with zero reliability, which fusion treats as absent.
func (a *TextAdapter) Read(ctx context.Context, text string, at time.Time) emotion.Reading {
	d, evidence := a.analyze(ctx, text)
	return emotion.NewReading(emotion.Text, d, a.reliability*evidence, at)
}
