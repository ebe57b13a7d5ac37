package responder

import (
	"net/http"
	"strings"

	"github.com/maastricht-university/empath-pipeline/config"
)

// Build turns the configured provider list into providers, in order. Empty
// models and URLs take the catalog defaults.
func Build(list []config.Provider, client *http.Client) []Provider {
	if client == nil {
		client = &http.Client{}
	}
	out := make([]Provider, 0, len(list))
	for _, c := range list {
		id := strings.ToLower(strings.TrimSpace(c.ID))
		info, _ := Lookup(id)
		b := base{id: id, model: c.Model, apiKey: c.APIKey, url: c.URL, http: client}
		if b.model == "" {
			b.model = info.DefaultModel
		}
		if b.url == "" {
			b.url = info.DefaultURL
		}
		switch id {
		case "openai", "deepseek", "openrouter", "together_ai", "groq":
			out = append(out, &ChatCompletions{base: b})
		case "anthropic":
			out = append(out, &Anthropic{base: b})
		case "ollama":
			out = append(out, &Ollama{base: b})
		case "huggingface":
			out = append(out, &HuggingFace{base: b})
		case "google", "gemini":
			b.id = "google"
			if b.model == "" {
				b.model = catalog["google"].DefaultModel
			}
			out = append(out, &Gemini{base: b})
		default:
			out = append(out, &unsupported{base: b})
		}
	}
	return out
}
