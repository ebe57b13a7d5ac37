package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/empath-pipeline/emotion"
	"github.com/maastricht-university/empath-pipeline/logging"
	"github.com/maastricht-university/empath-pipeline/session"
	"github.com/maastricht-university/empath-pipeline/techniques"
)

const DefaultTimeout = 30 * time.Second

// historyTurns bounds how much of the conversation goes into a prompt.
const historyTurns = 4

type Request struct {
	Fused      emotion.Fused
	Techniques []techniques.Technique
	History    []session.Turn
	UserText   string
}

// Attempt records one provider call.
type Attempt struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Error    string        `json:"error,omitempty"`
	Kind     string        `json:"kind,omitempty"`
	Took     time.Duration `json:"took"`
}

type Reply struct {
	Text     string    `json:"text"`
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model,omitempty"`
	Fallback bool      `json:"fallback"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Observer receives one call per provider attempt and one per reply.
type Observer interface {
	ProviderAttempt(provider, outcome string, took time.Duration)
	ReplyServed(fallback bool)
}

type nopObserver struct{}

func (nopObserver) ProviderAttempt(string, string, time.Duration) {}
func (nopObserver) ReplyServed(bool)                              {}

type Generator struct {
	providers []Provider
	timeout   time.Duration
	log       logrus.FieldLogger
	obs       Observer
}

// NewGenerator takes the providers in priority order. A non-positive
// timeout means DefaultTimeout; obs may be nil.
func NewGenerator(providers []Provider, timeout time.Duration, log logrus.FieldLogger, obs Observer) *Generator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Generator{
		providers: append([]Provider(nil), providers...),
		timeout:   timeout,
		log:       logging.Component(log, "responder"),
		obs:       obs,
	}
}

func (g *Generator) Providers() []Provider {
	return append([]Provider(nil), g.providers...)
}

// Generate always returns a reply with non-empty text. Provider failures
// only move the walk forward and are reported in Reply.Attempts.
func (g *Generator) Generate(ctx context.Context, req Request) Reply {
	prompt := BuildPrompt(req)
	n := len(g.providers)
	var attempts []Attempt

	for st := Start(n); ; {
		switch st.Kind {
		case Trying:
			p := g.providers[st.Index]
			text, a := g.attempt(ctx, p, prompt)
			attempts = append(attempts, a)
			outcome := Failed
			if a.Kind == "" {
				outcome = Succeeded
			}
			st = Next(st, outcome, n)
			if st.Kind == Done {
				g.obs.ReplyServed(false)
				return Reply{Text: text, Provider: p.ID(), Model: p.Model(), Attempts: attempts}
			}
		case Fallback:
			text := Template(req)
			g.log.WithFields(logrus.Fields{
				"attempts": len(attempts),
				"dominant": req.Fused.Dominant,
			}).Info("serving template reply")
			g.obs.ReplyServed(true)
			return Reply{Text: text, Fallback: true, Attempts: attempts}
		default:
			// unreachable: Done is returned from the Trying branch
			g.log.WithField("state", st.String()).Error("provider walk ended without a reply")
			return Reply{Text: Template(req), Fallback: true, Attempts: attempts}
		}
	}
}

func (g *Generator) attempt(ctx context.Context, p Provider, prompt Prompt) (string, Attempt) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := p.Attempt(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = failure(p.ID(), FailEmpty, nil)
	}
	a := Attempt{Provider: p.ID(), Model: p.Model(), Took: time.Since(start)}
	if err != nil {
		pe := asProviderError(ctx, p.ID(), err)
		a.Error, a.Kind = pe.Error(), pe.Kind
		g.log.WithFields(logrus.Fields{
			"provider": p.ID(),
			"model":    p.Model(),
			"kind":     pe.Kind,
		}).WithError(pe.Err).Warn("provider attempt failed")
		g.obs.ProviderAttempt(p.ID(), pe.Kind, a.Took)
		return "", a
	}
	g.obs.ProviderAttempt(p.ID(), "ok", a.Took)
	return strings.TrimSpace(text), a
}

// BuildPrompt renders the system instruction and the user turn.
func BuildPrompt(req Request) Prompt {
	var emo []string
	for _, l := range req.Fused.Distribution.Labels() {
		emo = append(emo, fmt.Sprintf("%s: %.2f", l, req.Fused.Distribution.Score(l)))
	}
	var techs []string
	for _, t := range req.Techniques {
		techs = append(techs, t.Name)
	}

	var b strings.Builder
	b.WriteString("You are an empathetic AI therapeutic assistant.\n")
	b.WriteString("Respond to the user's message with empathy, validation, and helpful suggestions.\n")
	fmt.Fprintf(&b, "The user's primary emotions have been detected as: %s\n", strings.Join(emo, ", "))
	fmt.Fprintf(&b, "Dominant emotion: %s (confidence %.2f)\n", req.Fused.Dominant, req.Fused.Confidence)
	if len(techs) > 0 {
		fmt.Fprintf(&b, "Recommended therapeutic techniques: %s\n", strings.Join(techs, ", "))
	}
	if h := req.History; len(h) > 0 {
		if len(h) > historyTurns {
			h = h[len(h)-historyTurns:]
		}
		b.WriteString("\nEarlier in this conversation:\n")
		for _, t := range h {
			fmt.Fprintf(&b, "- user (%s): %s\n  assistant: %s\n", t.Fused.Dominant, t.Input, t.Reply)
		}
	}
	b.WriteString("\nYour response should:\n")
	b.WriteString("1. Acknowledge and validate the user's emotions\n")
	b.WriteString("2. Offer 1-2 suggested techniques or approaches that might help\n")
	b.WriteString("3. End with a thoughtful question to continue the conversation\n\n")
	b.WriteString("Be warm, supportive, and professional. Avoid being overly cheerful for negative emotions.\n")
	b.WriteString("Keep your response concise (100-200 words).")

	user := strings.TrimSpace(req.UserText)
	if user == "" {
		user = "(The user did not say anything; respond to how they appear to feel.)"
	}
	return Prompt{System: b.String(), User: user}
}
