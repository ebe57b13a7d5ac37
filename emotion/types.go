package emotion

import (
	"errors"
	"fmt"
	"time"
)

type Modality string

const (
	Text    Modality = "text"
	Audio   Modality = "audio"
	Visual  Modality = "visual"
	History Modality = "history"
)

// Reading is one adapter's output for one turn.
type Reading struct {
	Modality     Modality     `json:"modality"`
	Distribution Distribution `json:"distribution"`
	Reliability  float64      `json:"reliability"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NewReading clamps reliability into [0,1].
func NewReading(m Modality, d Distribution, reliability float64, at time.Time) Reading {
	if reliability < 0 || reliability != reliability {
		reliability = 0
	}
	if reliability > 1 {
		reliability = 1
	}
	return Reading{Modality: m, Distribution: d, Reliability: reliability, Timestamp: at}
}

// Fused is the single authoritative emotion estimate for a turn.
type Fused struct {
	Distribution Distribution `json:"distribution"`
	Confidence   float64      `json:"confidence"`
	Dominant     string       `json:"dominant"`
	Modalities   []Modality   `json:"modalities"`
}

// DefaultFused is the no-evidence result.
func DefaultFused() Fused {
	d := Default()
	return Fused{Distribution: d, Confidence: 0, Dominant: d.Dominant()}
}

var (
	// ErrModalityUnavailable marks a modality that contributes no reading.
	ErrModalityUnavailable = errors.New("modality unavailable")
	// ErrInvalidInput marks a malformed caller request.
	ErrInvalidInput = errors.New("invalid input")
)

// Unavailable wraps ErrModalityUnavailable with the modality and a reason.
func Unavailable(m Modality, reason string) error {
	return fmt.Errorf("%s: %s: %w", m, reason, ErrModalityUnavailable)
}

// InvalidInput wraps ErrInvalidInput with a formatted reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}
