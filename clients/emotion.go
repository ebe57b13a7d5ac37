package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// TextClassification is the remote text classifier's answer for one
// utterance. Labels use the classifier's vocabulary (joy, sadness, ...);
// callers canonicalize them.
type TextClassification struct {
	Emotions []LabelScore `json:"emotions"`
	Dominant string       `json:"dominant_emotion"`
}

type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

var errNoEmotions = errors.New("emotion: classifier returned no labels")

// Scores flattens the classification into label -> score, summing repeated labels.
func (c *TextClassification) Scores() map[string]float64 {
	out := make(map[string]float64, len(c.Emotions))
	for _, e := range c.Emotions {
		out[e.Label] += e.Score
	}
	return out
}

// Emotion posts text to <url>/detect.
func (h *HTTP) Emotion(ctx context.Context, url, text string) (*TextClassification, error) {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("emotion %s: %s", resp.Status, errBody(resp.Body))
	}

	var out TextClassification
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("emotion decode: %w", err)
	}
	if len(out.Emotions) == 0 {
		return nil, errNoEmotions
	}
	return &out, nil
}
