// Package config loads the process configuration once at startup. Values
// come from an optional .env file, an optional YAML file and the
// environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Service struct {
	URL string `json:"url,omitempty"`
}

type Services struct {
	Emotion Service       `json:"emotion"`
	ASR     Service       `json:"asr"`
	Face    Service       `json:"face"`
	Timeout time.Duration `json:"timeout"`
}

// Provider is one entry of the ordered LLM provider list.
type Provider struct {
	ID     string `json:"id"`
	Model  string `json:"model,omitempty"`
	APIKey string `json:"-"`
	URL    string `json:"api_url,omitempty"`
}

// HasKey reports whether credentials were supplied.
func (p Provider) HasKey() bool { return strings.TrimSpace(p.APIKey) != "" }

type LLM struct {
	Providers []Provider
	Timeout   time.Duration
	// Templates is always true; a configured false is recorded in Notes.
	Templates bool
}

type Reliability struct {
	Text    float64
	Audio   float64
	Visual  float64
	History float64
}

// Root is immutable after Load; callers must not modify it.
type Root struct {
	LLM        LLM
	Services   Services
	Techniques struct {
		K     int
		Graph string
	}
	Server struct {
		Addr string
	}
	Log struct {
		Level  string
		Format string
	}
	Reliability Reliability
	Session     struct {
		IdleTTL time.Duration
	}
	Paths struct {
		Outputs string
	}
	// Notes are non-fatal remarks for the caller to log.
	Notes []string
	// File is the config file that was read, if any.
	File string
}

// Providers returns a copy of the ordered provider list.
func (r *Root) Providers() []Provider {
	return append([]Provider(nil), r.LLM.Providers...)
}

var envKeys = map[string][]string{
	"llm.providers":          {"LLM_PROVIDERS", "LLM_PROVIDER"},
	"llm.model":              {"LLM_MODEL"},
	"llm.timeout":            {"LLM_TIMEOUT"},
	"llm.fallback_templates": {"FALLBACK_TEMPLATES"},
	"techniques.k":           {"TECHNIQUES_K"},
	"techniques.graph":       {"TECHNIQUE_GRAPH"},
	"services.emotion.url":   {"EMOTION_URL"},
	"services.asr.url":       {"ASR_URL"},
	"services.face.url":      {"FACE_URL"},
	"services.timeout":       {"SERVICE_TIMEOUT"},
	"server.addr":            {"SERVER_ADDR"},
	"log.level":              {"LOG_LEVEL"},
	"log.format":             {"LOG_FORMAT"},
	"reliability.text":       {"RELIABILITY_TEXT"},
	"reliability.audio":      {"RELIABILITY_AUDIO"},
	"reliability.visual":     {"RELIABILITY_VISUAL"},
	"reliability.history":    {"RELIABILITY_HISTORY"},
	"session.idle_ttl":       {"SESSION_IDLE_TTL"},
	"paths.outputs":          {"OUTPUTS_DIR"},
}

func defaults(v *viper.Viper) {
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.fallback_templates", true)
	v.SetDefault("techniques.k", 3)
	v.SetDefault("services.timeout", "60s")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("reliability.text", 0.9)
	v.SetDefault("reliability.audio", 0.7)
	v.SetDefault("reliability.visual", 0.6)
	v.SetDefault("reliability.history", 0.3)
	v.SetDefault("session.idle_ttl", "30m")
	v.SetDefault("paths.outputs", "outputs")
}

// guess lists candidate config files when none is given explicitly.
func guess() []string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return []string{
		filepath.Join("config", env, "config.yaml"),
		"config.yaml",
	}
}

// Load reads .env (if present), then file (or the first guessed config
// file that exists), then the environment.
func Load(file string) (*Root, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	defaults(v)
	for key, names := range envKeys {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, err
		}
	}

	if file == "" {
		for _, p := range guess() {
			if _, err := os.Stat(p); err == nil {
				file = p
				break
			}
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return decode(v, file)
}

func decode(v *viper.Viper, file string) (*Root, error) {
	var r Root
	r.File = file

	var err error
	if r.LLM.Timeout, err = duration(v.GetString("llm.timeout")); err != nil {
		return nil, fmt.Errorf("LLM_TIMEOUT: %w", err)
	}
	if r.Services.Timeout, err = duration(v.GetString("services.timeout")); err != nil {
		return nil, fmt.Errorf("SERVICE_TIMEOUT: %w", err)
	}
	if r.Session.IdleTTL, err = duration(v.GetString("session.idle_ttl")); err != nil {
		return nil, fmt.Errorf("SESSION_IDLE_TTL: %w", err)
	}

	r.LLM.Templates = true
	if !v.GetBool("llm.fallback_templates") {
		r.Notes = append(r.Notes, "FALLBACK_TEMPLATES=false ignored: template fallback cannot be disabled")
	}

	ids := providerIDs(v.GetStringSlice("llm.providers"))
	for i, id := range ids {
		p, err := provider(v, id)
		if err != nil {
			return nil, err
		}
		if i == 0 && p.Model == "" {
			p.Model = v.GetString("llm.model")
		}
		r.LLM.Providers = append(r.LLM.Providers, p)
	}

	r.Techniques.K = v.GetInt("techniques.k")
	r.Techniques.Graph = v.GetString("techniques.graph")
	r.Services.Emotion.URL = strings.TrimSuffix(v.GetString("services.emotion.url"), "/")
	r.Services.ASR.URL = strings.TrimSuffix(v.GetString("services.asr.url"), "/")
	r.Services.Face.URL = strings.TrimSuffix(v.GetString("services.face.url"), "/")
	r.Server.Addr = v.GetString("server.addr")
	r.Log.Level = v.GetString("log.level")
	r.Log.Format = v.GetString("log.format")
	r.Reliability = Reliability{
		Text:    v.GetFloat64("reliability.text"),
		Audio:   v.GetFloat64("reliability.audio"),
		Visual:  v.GetFloat64("reliability.visual"),
		History: v.GetFloat64("reliability.history"),
	}
	r.Paths.Outputs = v.GetString("paths.outputs")

	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// provider reads llm.<id>.* from the file and <ID>_* from the environment.
func provider(v *viper.Viper, id string) (Provider, error) {
	prefix := "llm." + id + "."
	env := strings.ToUpper(id)
	urlEnv := []string{env + "_API_URL"}
	if id == "ollama" {
		urlEnv = append(urlEnv, "OLLAMA_API_URL")
	}
	binds := map[string][]string{
		prefix + "api_key": {env + "_API_KEY"},
		prefix + "model":   {env + "_MODEL"},
		prefix + "api_url": urlEnv,
	}
	for key, names := range binds {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Provider{}, err
		}
	}
	return Provider{
		ID:     id,
		APIKey: v.GetString(prefix + "api_key"),
		Model:  v.GetString(prefix + "model"),
		URL:    v.GetString(prefix + "api_url"),
	}, nil
}

// providerIDs splits on commas and whitespace, lower-cases and drops
// repeats so each provider is tried at most once.
func providerIDs(raw []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range raw {
		for _, id := range strings.FieldsFunc(r, func(c rune) bool { return c == ',' || c == ' ' || c == '\t' }) {
			id = strings.ToLower(strings.TrimSpace(id))
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (r *Root) validate() error {
	var errs []error
	for name, w := range map[string]float64{
		"RELIABILITY_TEXT":    r.Reliability.Text,
		"RELIABILITY_AUDIO":   r.Reliability.Audio,
		"RELIABILITY_VISUAL":  r.Reliability.Visual,
		"RELIABILITY_HISTORY": r.Reliability.History,
	} {
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, w))
		}
	}
	if r.Techniques.K < 1 {
		errs = append(errs, fmt.Errorf("TECHNIQUES_K must be at least 1, got %d", r.Techniques.K))
	}
	if r.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	switch r.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", r.Log.Format))
	}
	return errors.Join(errs...)
}

// duration accepts Go durations ("1m30s") and bare numbers of seconds.
func duration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
