package orchestrator

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxSummaryText = 200

// summarize keeps a short, human-readable trace of a turn's input for the
// session history. Raw media never enters the session.
func summarize(in Input) string {
	var parts []string
	if in.hasText() {
		t := strings.TrimSpace(in.Text)
		if utf8.RuneCountInString(t) > maxSummaryText {
			t = string([]rune(t)[:maxSummaryText]) + "…"
		}
		parts = append(parts, t)
	}
	if in.Audio != nil {
		parts = append(parts, fmt.Sprintf("[audio %s]", mediaLabel(in.Audio)))
	}
	if in.Image != nil {
		parts = append(parts, fmt.Sprintf("[image %s]", mediaLabel(in.Image)))
	}
	return strings.Join(parts, " ")
}

func mediaLabel(m *Media) string {
	size := humanBytes(len(m.Data))
	if m.Name == "" {
		return size
	}
	return m.Name + ", " + size
}

func humanBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
