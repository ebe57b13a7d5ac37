package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	maxTokens   = 300
	temperature = 0.7
	maxErrBody  = 2048
)

type base struct {
	id     string
	model  string
	apiKey string
	url    string
	http   *http.Client
}

func (b base) ID() string    { return b.id }
func (b base) Model() string { return b.model }

func (b base) needKey() error {
	if strings.TrimSpace(b.apiKey) == "" {
		return failure(b.id, FailCredentials, fmt.Errorf("%s_API_KEY not set", strings.ToUpper(b.id)))
	}
	return nil
}

// post sends a JSON body and decodes a JSON response into out.
func (b base) post(ctx context.Context, url string, body any, headers map[string]string, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return failure(b.id, FailMalformed, fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return failure(b.id, FailTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return failure(b.id, FailTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return failure(b.id, FailStatus, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return failure(b.id, FailTransport, ctx.Err())
		}
		return failure(b.id, FailMalformed, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func nonEmpty(id, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", failure(id, FailEmpty, nil)
	}
	return text, nil
}

// ChatCompletions speaks the OpenAI chat completions protocol, which
// openai, deepseek, openrouter, together_ai and groq all accept.
type ChatCompletions struct{ base }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *ChatCompletions) Attempt(ctx context.Context, pr Prompt) (string, error) {
	if err := p.needKey(); err != nil {
		return "", err
	}
	req := chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "system", Content: pr.System}, {Role: "user", Content: pr.User}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if p.id == "openrouter" {
		headers["X-Title"] = "empath-pipeline"
	}
	var out chatResponse
	if err := p.post(ctx, p.url, req, headers, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", failure(p.id, FailMalformed, fmt.Errorf("no choices"))
	}
	return nonEmpty(p.id, out.Choices[0].Message.Content)
}

// Anthropic calls the messages API.
type Anthropic struct{ base }

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *Anthropic) Attempt(ctx context.Context, pr Prompt) (string, error) {
	if err := p.needKey(); err != nil {
		return "", err
	}
	req := anthropicRequest{
		Model:       p.model,
		System:      pr.System,
		Messages:    []chatMessage{{Role: "user", Content: pr.User}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	headers := map[string]string{"x-api-key": p.apiKey, "anthropic-version": "2023-06-01"}
	var out anthropicResponse
	if err := p.post(ctx, strings.TrimSuffix(p.url, "/")+"/v1/messages", req, headers, &out); err != nil {
		return "", err
	}
	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return nonEmpty(p.id, text.String())
}

// Ollama calls a local generate endpoint and needs no key.
type Ollama struct{ base }

type ollamaRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (p *Ollama) Attempt(ctx context.Context, pr Prompt) (string, error) {
	req := ollamaRequest{
		Model:   p.model,
		System:  pr.System,
		Prompt:  pr.User,
		Options: map[string]any{"temperature": temperature, "num_predict": maxTokens},
	}
	var out ollamaResponse
	if err := p.post(ctx, p.url, req, nil, &out); err != nil {
		return "", err
	}
	return nonEmpty(p.id, out.Response)
}

// HuggingFace calls the hosted inference API for one model.
type HuggingFace struct{ base }

type hfRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters"`
}

func (p *HuggingFace) Attempt(ctx context.Context, pr Prompt) (string, error) {
	if err := p.needKey(); err != nil {
		return "", err
	}
	req := hfRequest{
		Inputs: fmt.Sprintf("<s>[INST] %s\n\n%s [/INST]", pr.System, pr.User),
		Parameters: map[string]any{
			"max_new_tokens":   maxTokens,
			"temperature":      temperature,
			"return_full_text": false,
		},
	}
	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	url := strings.TrimSuffix(p.url, "/") + "/" + p.model
	if err := p.post(ctx, url, req, map[string]string{"Authorization": "Bearer " + p.apiKey}, &out); err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", failure(p.id, FailMalformed, fmt.Errorf("no generations"))
	}
	return nonEmpty(p.id, out[0].GeneratedText)
}

// unsupported stands in for an unknown provider id so that a typo in the
// provider list degrades the reply instead of failing startup.
type unsupported struct{ base }

func (p *unsupported) Attempt(context.Context, Prompt) (string, error) {
	return "", failure(p.id, FailUnsupported, fmt.Errorf("unknown provider %q", p.id))
}
