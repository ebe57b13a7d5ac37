// Package server is the HTTP boundary of the pipeline.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/empath-pipeline/config"
	"github.com/maastricht-university/empath-pipeline/emotion"
	"github.com/maastricht-university/empath-pipeline/logging"
	"github.com/maastricht-university/empath-pipeline/metrics"
	"github.com/maastricht-university/empath-pipeline/orchestrator"
	"github.com/maastricht-university/empath-pipeline/responder"
	"github.com/maastricht-university/empath-pipeline/session"
	"github.com/maastricht-university/empath-pipeline/techniques"
)

const maxUpload = 25 << 20

type Server struct {
	echo     *echo.Echo
	pipe     *orchestrator.Pipeline
	conf     *config.Root
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// NewServer builds the router. m and g may be nil, which disables request
// metrics and the /metrics endpoint.
func NewServer(p *orchestrator.Pipeline, conf *config.Root, log logrus.FieldLogger, m *metrics.Metrics, g prometheus.Gatherer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		pipe:     p,
		conf:     conf,
		log:      logging.Component(log, "server"),
		metrics:  m,
		gatherer: g,
	}
	e.Use(s.requestLogger(), middleware.Recover(), middleware.CORS(), middleware.BodyLimit("25M"))
	if m != nil {
		e.Use(s.instrument)
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("listening")
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// SweepSessions discards idle sessions every interval until ctx is done.
func (s *Server) SweepSessions(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			store := s.pipe.Sessions()
			if gone := store.Sweep(ttl); len(gone) > 0 {
				s.log.WithField("sessions", gone).Info("discarded idle sessions")
			}
			if s.metrics != nil {
				s.metrics.SessionsHeld(store.Len())
			}
		}
	}
}

func (s *Server) setupRoutes() {
	s.echo.GET("/", s.health)
	s.echo.GET("/llm/config", s.llmConfig)
	s.echo.GET("/techniques", s.listTechniques)
	s.echo.DELETE("/sessions/:id", s.discardSession)

	analyze := s.echo.Group("/analyze")
	analyze.POST("/text", s.analyzeText)
	analyze.POST("/text/emotions", s.textEmotions)
	analyze.POST("/audio", s.analyzeAudio)
	analyze.POST("/multimodal", s.analyzeMultimodal)

	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := s.log.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}

func (s *Server) instrument(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		status := c.Response().Status
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		}
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		s.metrics.RequestCount.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
		s.metrics.RequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
		return err
	}
}

type TechniqueSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

type AnalysisResponse struct {
	DetectedEmotions map[string]float64 `json:"detected_emotions"`
	DominantEmotion  string             `json:"dominant_emotion"`
	Confidence       float64            `json:"confidence"`
	Modalities       []emotion.Modality `json:"modalities"`
	ResponseText     string             `json:"response_text"`
	TechniqueIDs     []string           `json:"technique_ids"`
	Techniques       []TechniqueSummary `json:"techniques"`
	Provider         string             `json:"provider,omitempty"`
	Model            string             `json:"model,omitempty"`
	Fallback         bool               `json:"fallback"`
	SessionID        string             `json:"session_id,omitempty"`
	TurnID           string             `json:"turn_id"`
	Transcript       string             `json:"transcript,omitempty"`
	Skipped          map[string]string  `json:"skipped_modalities,omitempty"`
}

func toResponse(r *orchestrator.Result) AnalysisResponse {
	ts := make([]TechniqueSummary, 0, len(r.Techniques))
	for _, t := range r.Techniques {
		ts = append(ts, TechniqueSummary{ID: t.ID, Name: t.Name, Description: t.Description, Steps: t.Steps})
	}
	mods := r.Fused.Modalities
	if mods == nil {
		mods = []emotion.Modality{}
	}
	return AnalysisResponse{
		DetectedEmotions: r.Fused.Distribution.Map(),
		DominantEmotion:  r.Fused.Dominant,
		Confidence:       r.Fused.Confidence,
		Modalities:       mods,
		ResponseText:     r.Reply.Text,
		TechniqueIDs:     techniques.IDs(r.Techniques),
		Techniques:       ts,
		Provider:         r.Reply.Provider,
		Model:            r.Reply.Model,
		Fallback:         r.Reply.Fallback,
		SessionID:        r.SessionID,
		TurnID:           r.TurnID,
		Transcript:       r.Transcript,
		Skipped:          r.Skipped,
	}
}

// turnError maps pipeline errors onto HTTP status codes.
func turnError(err error) error {
	switch {
	case errors.Is(err, emotion.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (s *Server) turn(c echo.Context, in orchestrator.Input) error {
	res, err := s.pipe.Turn(c.Request().Context(), in)
	if err != nil {
		return turnError(err)
	}
	return c.JSON(http.StatusOK, toResponse(res))
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "ok",
		"service":    "empath-pipeline",
		"techniques": s.pipe.Graph().Len(),
		"sessions":   s.pipe.Sessions().Len(),
	})
}

type providerView struct {
	ID     string `json:"id"`
	Model  string `json:"model"`
	HasKey bool   `json:"has_key"`
	URL    string `json:"api_url,omitempty"`
}

func (s *Server) llmConfig(c echo.Context) error {
	var views []providerView
	configured := false
	for _, p := range s.conf.Providers() {
		id := p.ID
		if id == "gemini" {
			id = "google"
		}
		info, known := responder.Lookup(id)
		model := p.Model
		if model == "" {
			model = info.DefaultModel
		}
		usable := known && (p.HasKey() || !info.NeedsKey)
		configured = configured || usable
		views = append(views, providerView{ID: p.ID, Model: model, HasKey: p.HasKey(), URL: p.URL})
	}
	if views == nil {
		views = []providerView{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"providers":          views,
		"available":          responder.Available(),
		"llm_configured":     configured,
		"fallback_templates": s.conf.LLM.Templates,
		"timeout_seconds":    s.conf.LLM.Timeout.Seconds(),
	})
}

type textRequest struct {
	Text      *string `json:"text"`
	SessionID string  `json:"session_id"`
}

func (s *Server) bindText(c echo.Context) (textRequest, error) {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Text == nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	return req, nil
}

func (s *Server) analyzeText(c echo.Context) error {
	req, err := s.bindText(c)
	if err != nil {
		return err
	}
	return s.turn(c, orchestrator.Input{SessionID: req.SessionID, Text: *req.Text, TextSet: true})
}

func (s *Server) textEmotions(c echo.Context) error {
	req, err := s.bindText(c)
	if err != nil {
		return err
	}
	f := s.pipe.Emotions(c.Request().Context(), *req.Text)
	return c.JSON(http.StatusOK, map[string]any{
		"detected_emotions": f.Distribution.Map(),
		"dominant_emotion":  f.Dominant,
		"confidence":        f.Confidence,
	})
}

func (s *Server) analyzeAudio(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	audio, err := formMedia(form, "audio_file")
	if err != nil {
		return err
	}
	if audio == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "audio_file is required")
	}
	text, textSet := formValue(form, "text")
	sid, _ := formValue(form, "session_id")
	return s.turn(c, orchestrator.Input{SessionID: sid, Text: text, TextSet: textSet, Audio: audio})
}

func (s *Server) analyzeMultimodal(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	audio, err := formMedia(form, "audio_file")
	if err != nil {
		return err
	}
	image, err := formMedia(form, "image_file")
	if err != nil {
		return err
	}
	text, _ := formValue(form, "text")
	sid, _ := formValue(form, "session_id")
	return s.turn(c, orchestrator.Input{SessionID: sid, Text: text, Audio: audio, Image: image})
}

func formValue(form *multipart.Form, key string) (string, bool) {
	v, ok := form.Value[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// formMedia reads an uploaded file; nil means the part was not sent.
func formMedia(form *multipart.Form, key string) (*orchestrator.Media, error) {
	files := form.File[key]
	if len(files) == 0 {
		return nil, nil
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s: %v", key, err))
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUpload+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s: %v", key, err))
	}
	if len(data) > maxUpload {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, key+" too large")
	}
	return &orchestrator.Media{Name: files[0].Filename, Data: data}, nil
}

// listTechniques returns the catalog, or a ranking when ?emotions= is given
// as "label:score,label:score".
func (s *Server) listTechniques(c echo.Context) error {
	g := s.pipe.Graph()
	raw := strings.TrimSpace(c.QueryParam("emotions"))
	if raw == "" {
		return c.JSON(http.StatusOK, map[string]any{"techniques": g.All(), "labels": g.Labels()})
	}
	scores := map[string]float64{}
	for _, pair := range strings.Split(raw, ",") {
		label, val, found := strings.Cut(pair, ":")
		score := 1.0
		if found {
			v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("bad score for %q", label))
			}
			score = v
		}
		scores[strings.TrimSpace(label)] += score
	}
	k := s.conf.Techniques.K
	if q := c.QueryParam("k"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a non-negative integer")
		}
		k = n
	}
	return c.JSON(http.StatusOK, map[string]any{"ranked": g.Rank(emotion.New(scores), k)})
}

func (s *Server) discardSession(c echo.Context) error {
	if !s.pipe.Sessions().Discard(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "no such session")
	}
	if s.metrics != nil {
		s.metrics.SessionsHeld(s.pipe.Sessions().Len())
	}
	return c.NoContent(http.StatusNoContent)
}
