package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewTo(&buf, "debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	Component(l, "fusion").WithField("n", 2).Info("fused")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fused", entry["msg"])
	assert.Equal(t, "fusion", entry["component"])
	assert.Equal(t, float64(2), entry["n"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewTo(&buf, "warn", "text")
	require.NoError(t, err)
	l.Info("hidden")
	assert.Empty(t, buf.String())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestBadSettings(t *testing.T) {
	_, err := NewTo(&bytes.Buffer{}, "loud", "text")
	assert.Error(t, err)
	_, err = NewTo(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
