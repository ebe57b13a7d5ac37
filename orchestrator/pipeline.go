// Package orchestrator runs one user turn end to end: modality adapters,
// fusion, technique lookup, reply generation and the session append.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/empath-pipeline/clients"
	cfg "github.com/maastricht-university/empath-pipeline/config"
	"github.com/maastricht-university/empath-pipeline/emotion"
	"github.com/maastricht-university/empath-pipeline/fusion"
	"github.com/maastricht-university/empath-pipeline/logging"
	"github.com/maastricht-university/empath-pipeline/modality"
	"github.com/maastricht-university/empath-pipeline/responder"
	"github.com/maastricht-university/empath-pipeline/session"
	"github.com/maastricht-university/empath-pipeline/techniques"
)

// Components are the immutable collaborators of a Pipeline.
type Components struct {
	Text      *modality.TextAdapter
	Audio     *modality.AudioAdapter
	Visual    *modality.VisualAdapter
	Fusion    *fusion.Engine
	Graph     *techniques.Graph
	K         int
	Generator *responder.Generator
	Sessions  *session.Store

	// Optional: transcribes audio when no text is supplied.
	HTTP   *clients.HTTP
	ASRURL string

	Log      logrus.FieldLogger
	Observer Observer
}

type Pipeline struct {
	c   Components
	log logrus.FieldLogger
	obs Observer
}

func New(c Components) *Pipeline {
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Sessions == nil {
		c.Sessions = session.NewStore()
	}
	if c.Log == nil {
		c.Log = logrus.New()
	}
	return &Pipeline{c: c, log: logging.Component(c.Log, "orchestrator"), obs: c.Observer}
}

// NewPipeline wires every component from configuration. A malformed
// technique graph fails here, never per request.
func NewPipeline(conf *cfg.Root, log logrus.FieldLogger, obs interface {
	Observer
	responder.Observer
}) (*Pipeline, error) {
	graph := techniques.MustDefault()
	if conf.Techniques.Graph != "" {
		g, err := techniques.Load(conf.Techniques.Graph)
		if err != nil {
			return nil, err
		}
		graph = g
	}

	h := clients.NewHTTP(conf.Services.Timeout)
	var detector modality.FaceDetector
	if conf.Services.Face.URL != "" {
		detector = modality.RemoteFaces{HTTP: h, URL: conf.Services.Face.URL}
	}
	opts := fusion.DefaultOptions()
	opts.HistoryReliability = conf.Reliability.History

	var robs responder.Observer
	var pobs Observer
	if obs != nil {
		robs, pobs = obs, obs
	}
	gen := responder.NewGenerator(
		responder.Build(conf.Providers(), &http.Client{}),
		conf.LLM.Timeout, log, robs,
	)
	return New(Components{
		Text:      modality.NewText(h, conf.Services.Emotion.URL, conf.Reliability.Text, log),
		Audio:     modality.NewAudio(conf.Reliability.Audio),
		Visual:    modality.NewVisual(detector, conf.Reliability.Visual),
		Fusion:    fusion.New(opts),
		Graph:     graph,
		K:         conf.Techniques.K,
		Generator: gen,
		Sessions:  session.NewStore(),
		HTTP:      h,
		ASRURL:    conf.Services.ASR.URL,
		Log:       log,
		Observer:  pobs,
	}), nil
}

func (p *Pipeline) Sessions() *session.Store       { return p.c.Sessions }
func (p *Pipeline) Graph() *techniques.Graph        { return p.c.Graph }
func (p *Pipeline) Generator() *responder.Generator { return p.c.Generator }

// Validate rejects a turn that carries no input at all.
func (in Input) Validate() error {
	if !in.TextSet && strings.TrimSpace(in.Text) == "" && in.Audio == nil && in.Image == nil {
		return emotion.InvalidInput("at least one of text, audio or image is required")
	}
	return nil
}

func (in Input) hasText() bool {
	return in.TextSet || strings.TrimSpace(in.Text) != ""
}

// Turn runs one user turn. It only fails with emotion.ErrInvalidInput or
// session.ErrSessionBusy, both before any adapter runs; every later failure
// degrades the result instead.
func (p *Pipeline) Turn(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	if err := in.Validate(); err != nil {
		p.obs.TurnRejected("invalid")
		return nil, err
	}

	var sc *session.Context
	if in.SessionID != "" {
		c, release, err := p.c.Sessions.Acquire(in.SessionID)
		if err != nil {
			p.obs.TurnRejected("busy")
			return nil, fmt.Errorf("session %s: %w", in.SessionID, err)
		}
		defer release()
		sc = c
	}

	log := p.log.WithField("session", in.SessionID)
	res := &Result{TurnID: uuid.NewString(), SessionID: in.SessionID, At: start, Skipped: map[string]string{}}

	if !in.hasText() && in.Audio != nil {
		if t := p.transcribe(ctx, in.Audio, log); t != "" {
			res.Transcript = t
			in.Text, in.TextSet = t, true
		}
	}

	res.Readings = p.read(ctx, in, res.Skipped, log)

	var hist fusion.History
	if sc != nil {
		hist = sc
	}
	res.Fused = p.c.Fusion.Fuse(res.Readings, hist)
	res.Techniques = p.c.Graph.Query(res.Fused.Distribution, p.c.K)

	history := sc.History()
	res.Reply = p.c.Generator.Generate(ctx, responder.Request{
		Fused:      res.Fused,
		Techniques: res.Techniques,
		History:    history,
		UserText:   in.Text,
	})

	if sc != nil {
		sc.Append(session.Turn{
			ID:           res.TurnID,
			At:           start,
			Input:        summarize(in),
			Fused:        res.Fused,
			TechniqueIDs: techniques.IDs(res.Techniques),
			Reply:        res.Reply.Text,
		})
	}

	res.Took = time.Since(start)
	p.obs.TurnDone(res.Took, res.Fused.Confidence, p.c.Sessions.Len())
	log.WithFields(logrus.Fields{
		"turn":       res.TurnID,
		"dominant":   res.Fused.Dominant,
		"confidence": fmt.Sprintf("%.2f", res.Fused.Confidence),
		"modalities": res.Fused.Modalities,
		"provider":   res.Reply.Provider,
		"fallback":   res.Reply.Fallback,
		"took":       res.Took,
	}).Info("turn complete")
	return res, nil
}

// read runs every adapter the input calls for and waits for all of them.
// Adapter failures are recorded in skipped and never cancel siblings.
func (p *Pipeline) read(ctx context.Context, in Input, skipped map[string]string, log logrus.FieldLogger) []emotion.Reading {
	var (
		slots [3]*emotion.Reading
		errs  [3]error
		g     errgroup.Group
	)
	at := time.Now()
	if in.hasText() {
		g.Go(func() error {
			r := p.c.Text.Read(ctx, in.Text, at)
			slots[0] = &r
			return nil
		})
	}
	if in.Audio != nil {
		g.Go(func() error {
			r, err := p.c.Audio.Read(ctx, in.Audio.Data, at)
			if err != nil {
				errs[1] = err
				return nil
			}
			slots[1] = &r
			return nil
		})
	}
	if in.Image != nil {
		g.Go(func() error {
			r, err := p.c.Visual.Read(ctx, in.Image.Data, at)
			if err != nil {
				errs[2] = err
				return nil
			}
			slots[2] = &r
			return nil
		})
	}
	_ = g.Wait()

	names := [3]emotion.Modality{emotion.Text, emotion.Audio, emotion.Visual}
	var out []emotion.Reading
	for i, r := range slots {
		m := string(names[i])
		switch {
		case errs[i] != nil:
			skipped[m] = errs[i].Error()
			outcome := "unavailable"
			if !errors.Is(errs[i], emotion.ErrModalityUnavailable) {
				outcome = "error"
			}
			p.obs.ModalityResult(m, outcome)
			log.WithField("modality", m).WithError(errs[i]).Info("modality skipped")
		case r != nil:
			if r.Reliability == 0 {
				skipped[m] = "no evidence"
				p.obs.ModalityResult(m, "empty")
			} else {
				p.obs.ModalityResult(m, "ok")
			}
			out = append(out, *r)
		}
	}
	return out
}

func (p *Pipeline) transcribe(ctx context.Context, audio *Media, log logrus.FieldLogger) string {
	if p.c.HTTP == nil || p.c.ASRURL == "" || len(audio.Data) == 0 {
		return ""
	}
	name := audio.Name
	if name == "" {
		name = "audio.wav"
	}
	resp, err := p.c.HTTP.ASR(ctx, p.c.ASRURL, name, audio.Data)
	if err != nil {
		log.WithError(err).Warn("transcription failed")
		return ""
	}
	return resp.Transcript()
}

// Emotions fuses text alone, outside any session.
func (p *Pipeline) Emotions(ctx context.Context, text string) emotion.Fused {
	r := p.c.Text.Read(ctx, text, time.Now())
	return p.c.Fusion.Fuse([]emotion.Reading{r}, nil)
}
