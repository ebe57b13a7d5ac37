package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maastricht-university/empath-pipeline/emotion"
	"github.com/maastricht-university/empath-pipeline/session"
)

// Transcript is what Persist writes for a session.
type Transcript struct {
	SessionID   string         `json:"session_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Last        *Result        `json:"last"`
	Turns       []session.Turn `json:"turns"`
}

func mkSessionDir(outputsRoot, sessionID string) (string, string, error) {
	sid := sessionID
	if sid == "" {
		sid = "session_" + time.Now().Format("20060102-150405")
	}
	// the id becomes one directory name directly under outputsRoot
	if strings.ContainsAny(sid, `/\`) || sid == "." || sid == ".." || !filepath.IsLocal(sid) {
		return "", "", emotion.InvalidInput("session id %q cannot be used as a directory name", sid)
	}
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Persist writes the latest result and the session's turns to
// <outputsRoot>/<session>/turn.json and returns the file path.
func Persist(outputsRoot string, last *Result, turns []session.Turn) (string, error) {
	sid, dir, err := mkSessionDir(outputsRoot, last.SessionID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "turn.json")
	t := Transcript{
		SessionID:   sid,
		GeneratedAt: time.Now(),
		Last:        last,
		Turns:       turns,
	}
	if err := writeJSON(path, t); err != nil {
		return "", err
	}
	return path, nil
}
