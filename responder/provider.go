// Package responder produces the reply text for a turn. It walks an ordered
// list of LLM providers and falls back to deterministic templates when none
// of them answers.
package responder

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Prompt is what a provider is asked to complete.
type Prompt struct {
	System string
	User   string
}

// Provider is one external text-generation service. Attempt makes exactly
// one call; every failure it returns is a *ProviderError.
type Provider interface {
	ID() string
	Model() string
	Attempt(ctx context.Context, p Prompt) (string, error)
}

// Failure kinds.
const (
	FailCredentials = "credentials"
	FailTimeout     = "timeout"
	FailStatus      = "status"
	FailMalformed   = "malformed"
	FailEmpty       = "empty"
	FailTransport   = "transport"
	FailUnsupported = "unsupported"
)

type ProviderError struct {
	Provider string
	Kind     string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func failure(provider, kind string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// asProviderError classifies an arbitrary attempt error. ctx is the
// attempt's own context; an expired deadline turns transport and status
// failures into timeouts.
func asProviderError(ctx context.Context, provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if (pe.Kind == FailTransport || pe.Kind == FailStatus) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			pe.Kind = FailTimeout
		}
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failure(provider, FailTimeout, err)
	}
	return failure(provider, FailTransport, err)
}

// Info describes a supported provider.
type Info struct {
	ID           string `json:"id"`
	Description  string `json:"description"`
	DefaultModel string `json:"default_model"`
	DefaultURL   string `json:"default_url,omitempty"`
	NeedsKey     bool   `json:"needs_key"`
}

var catalog = map[string]Info{
	"openai":      {ID: "openai", Description: "OpenAI API (requires key)", DefaultModel: "gpt-3.5-turbo", DefaultURL: "https://api.openai.com/v1/chat/completions", NeedsKey: true},
	"huggingface": {ID: "huggingface", Description: "HuggingFace Inference API (free tier available)", DefaultModel: "mistralai/Mistral-7B-Instruct-v0.2", DefaultURL: "https://api-inference.huggingface.co/models", NeedsKey: true},
	"ollama":      {ID: "ollama", Description: "Ollama (local deployment)", DefaultModel: "llama2", DefaultURL: "http://localhost:11434/api/generate"},
	"together_ai": {ID: "together_ai", Description: "Together.ai (free tier available)", DefaultModel: "mistralai/Mistral-7B-Instruct-v0.2", DefaultURL: "https://api.together.xyz/v1/chat/completions", NeedsKey: true},
	"google":      {ID: "google", Description: "Google Gemini API (free tier available)", DefaultModel: "gemini-2.5-flash", NeedsKey: true},
	"anthropic":   {ID: "anthropic", Description: "Anthropic Claude (requires key)", DefaultModel: "claude-3-sonnet-20240229", DefaultURL: "https://api.anthropic.com", NeedsKey: true},
	"deepseek":    {ID: "deepseek", Description: "Deepseek API (requires key)", DefaultModel: "deepseek-chat", DefaultURL: "https://api.deepseek.com/v1/chat/completions", NeedsKey: true},
	"openrouter":  {ID: "openrouter", Description: "OpenRouter API (access to multiple models)", DefaultModel: "deepseek/deepseek-chat:free", DefaultURL: "https://openrouter.ai/api/v1/chat/completions", NeedsKey: true},
	"groq":        {ID: "groq", Description: "Groq API (requires key)", DefaultModel: "llama-3.1-8b-instant", DefaultURL: "https://api.groq.com/openai/v1/chat/completions", NeedsKey: true},
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Info, bool) {
	i, ok := catalog[id]
	return i, ok
}

// Available lists supported providers sorted by ID.
func Available() []Info {
	out := make([]Info, 0, len(catalog))
	for _, i := range catalog {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}
