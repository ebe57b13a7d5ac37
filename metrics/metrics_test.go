package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ProviderAttempt("openai", "timeout", 2*time.Second)
	m.ProviderAttempt("openai", "ok", time.Second)
	m.ProviderAttempt("openai", "ok", time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("openai", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("openai", "timeout")))

	m.ReplyServed(true)
	m.ReplyServed(false)
	m.ReplyServed(true)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Replies.WithLabelValues("template")))

	m.ModalityResult("audio", "unavailable")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Modalities.WithLabelValues("audio", "unavailable")))

	m.TurnDone(50*time.Millisecond, 0.8, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveSessions))
	m.SessionsHeld(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	m.TurnRejected("busy")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsRejected.WithLabelValues("busy")))
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
