package responder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// Gemini uses the Google GenAI SDK. The client is created on first use so
// that a provider without a key never touches the network.
type Gemini struct {
	base

	once   sync.Once
	client *genai.Client
	err    error
}

func (p *Gemini) genClient(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:     p.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: p.http,
		}
		if p.url != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.url}
		}
		p.client, p.err = genai.NewClient(ctx, cfg)
	})
	return p.client, p.err
}

func (p *Gemini) Attempt(ctx context.Context, pr Prompt) (string, error) {
	if err := p.needKey(); err != nil {
		return "", err
	}
	c, err := p.genClient(ctx)
	if err != nil {
		return "", failure(p.id, FailTransport, err)
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(pr.System, genai.RoleUser),
	}
	res, err := c.Models.GenerateContent(ctx, p.model, genai.Text(pr.User), config)
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "", failure(p.id, FailTimeout, err)
	case err != nil:
		return "", failure(p.id, FailStatus, err)
	}
	// blocked prompts come back without candidates
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", failure(p.id, FailMalformed, fmt.Errorf("no candidates"))
	}
	return nonEmpty(p.id, res.Candidates[0].Content.Parts[0].Text)
}
