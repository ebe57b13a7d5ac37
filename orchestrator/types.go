package orchestrator

import (
	"time"

	"github.com/maastricht-university/empath-pipeline/emotion"
	"github.com/maastricht-university/empath-pipeline/responder"
	"github.com/maastricht-university/empath-pipeline/techniques"
)

// Media is an uploaded audio clip or image frame.
type Media struct {
	Name string
	Data []byte
}

// Input is one user turn. Text counts as supplied when non-blank or when
// TextSet is true; a supplied blank text scores as the default distribution.
type Input struct {
	SessionID string
	Text      string
	TextSet   bool
	Audio     *Media
	Image     *Media
}

// Result is everything a turn produced.
type Result struct {
	TurnID     string                 `json:"turn_id"`
	SessionID  string                 `json:"session_id,omitempty"`
	At         time.Time              `json:"at"`
	Transcript string                 `json:"transcript,omitempty"`
	Readings   []emotion.Reading      `json:"readings"`
	Skipped    map[string]string      `json:"skipped,omitempty"`
	Fused      emotion.Fused          `json:"fused"`
	Techniques []techniques.Technique `json:"techniques"`
	Reply      responder.Reply        `json:"reply"`
	Took       time.Duration          `json:"took"`
}

// Observer receives per-turn measurements. *metrics.Metrics satisfies it.
type Observer interface {
	ModalityResult(modality, outcome string)
	TurnDone(took time.Duration, confidence float64, sessions int)
	TurnRejected(reason string)
}

type nopObserver struct{}

func (nopObserver) ModalityResult(string, string)        {}
func (nopObserver) TurnDone(time.Duration, float64, int) {}
func (nopObserver) TurnRejected(string)                  {}
