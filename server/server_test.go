package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maastricht-university/empath-pipeline/config"
	"github.com/maastricht-university/empath-pipeline/emotion"
	"github.com/maastricht-university/empath-pipeline/fusion"
	"github.com/maastricht-university/empath-pipeline/metrics"
	"github.com/maastricht-university/empath-pipeline/modality"
	"github.com/maastricht-university/empath-pipeline/orchestrator"
	"github.com/maastricht-university/empath-pipeline/responder"
	"github.com/maastricht-university/empath-pipeline/session"
	"github.com/maastricht-university/empath-pipeline/techniques"
)

func newTestServer(t *testing.T) (*Server, *orchestrator.Pipeline) {
	t.Helper()
	log, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	conf := &config.Root{}
	conf.LLM.Providers = []config.Provider{{ID: "openai", APIKey: "k"}, {ID: "ollama"}}
	conf.LLM.Timeout = time.Second
	conf.LLM.Templates = true
	conf.Techniques.K = 3

	p := orchestrator.New(orchestrator.Components{
		Text:      modality.NewText(nil, "", 0.9, log),
		Audio:     modality.NewAudio(0.7),
		Visual:    modality.NewVisual(nil, 0.6),
		Fusion:    fusion.New(fusion.DefaultOptions()),
		Graph:     techniques.MustDefault(),
		K:         3,
		Generator: responder.NewGenerator(nil, time.Second, log, m),
		Sessions:  session.NewStore(),
		Log:       log,
		Observer:  m,
	})
	return NewServer(p, conf, log, m, reg), p
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for k, data := range files {
		fw, err := w.CreateFormFile(k, k+".bin")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, &b)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) AnalysisResponse {
	t.Helper()
	var out AnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAnalyzeText(t *testing.T) {
	s, p := newTestServer(t)
	rec := do(t, s, jsonRequest(http.MethodPost, "/analyze/text", `{"text":"I feel great today!","session_id":"abc"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, emotion.Happy, out.DominantEmotion)
	assert.NotEmpty(t, out.ResponseText)
	assert.True(t, out.Fallback)
	assert.Equal(t, "abc", out.SessionID)
	assert.Len(t, out.TechniqueIDs, len(out.Techniques))
	assert.InDelta(t, 1.0, sumOf(out.DetectedEmotions), 1e-6)

	c, ok := p.Sessions().Get("abc")
	require.True(t, ok)
	assert.Len(t, c.History(), 1)
}

func sumOf(m map[string]float64) float64 {
	var s float64
	for _, v := range m {
		s += v
	}
	return s
}

func TestAnalyzeTextRequiresText(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, jsonRequest(http.MethodPost, "/analyze/text", `{"session_id":"abc"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, jsonRequest(http.MethodPost, "/analyze/text", `{"text":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlankTextIsDefault(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, jsonRequest(http.MethodPost, "/analyze/text", `{"text":""}`))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, emotion.Neutral, out.DominantEmotion)
	assert.Equal(t, 0.0, out.Confidence)
	assert.Empty(t, out.Modalities)
}

func TestTextEmotions(t *testing.T) {
	s, p := newTestServer(t)
	rec := do(t, s, jsonRequest(http.MethodPost, "/analyze/text/emotions", `{"text":"I am so angry"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dominant_emotion":"angry"`)
	assert.Equal(t, 0, p.Sessions().Len())
}

func TestAnalyzeAudio(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, multipartRequest(t, "/analyze/audio", map[string]string{"text": ""}, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, multipartRequest(t, "/analyze/audio",
		map[string]string{"text": ""},
		map[string][]byte{"audio_file": []byte("not audio")}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, emotion.Neutral, out.DominantEmotion)
	assert.Equal(t, 0.0, out.Confidence)
	assert.Contains(t, out.Skipped, "audio")
	assert.True(t, strings.HasPrefix(out.ResponseText, "I hear what you're saying."))
}

func TestAnalyzeMultimodal(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, multipartRequest(t, "/analyze/multimodal", nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, multipartRequest(t, "/analyze/multimodal",
		map[string]string{"text": "I am terrified", "session_id": "m1"},
		map[string][]byte{"image_file": []byte("junk")}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, emotion.Fear, out.DominantEmotion)
	assert.Equal(t, []emotion.Modality{emotion.Text}, out.Modalities)
	assert.Contains(t, out.Skipped, "visual")
}

func TestSessionBusy(t *testing.T) {
	s, p := newTestServer(t)
	_, release, err := p.Sessions().Acquire("busy")
	require.NoError(t, err)
	defer release()

	rec := do(t, s, jsonRequest(http.MethodPost, "/analyze/text", `{"text":"hi","session_id":"busy"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDiscardSession(t *testing.T) {
	s, p := newTestServer(t)
	rec := do(t, s, jsonRequest(http.MethodPost, "/analyze/text", `{"text":"hello","session_id":"gone"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodDelete, "/sessions/gone", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, p.Sessions().Len())

	rec = do(t, s, httptest.NewRequest(http.MethodDelete, "/sessions/gone", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLLMConfigHidesKeys(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/llm/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Providers  []providerView `json:"providers"`
		Configured bool           `json:"llm_configured"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Providers, 2)
	assert.Equal(t, "openai", out.Providers[0].ID)
	assert.Equal(t, "gpt-3.5-turbo", out.Providers[0].Model)
	assert.True(t, out.Providers[0].HasKey)
	assert.False(t, out.Providers[1].HasKey)
	assert.True(t, out.Configured)
	assert.NotContains(t, rec.Body.String(), `"k"`)
}

func TestTechniques(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/techniques", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deep_breathing"`)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/techniques?emotions=fear:0.8,sad:0.2&k=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Ranked []techniques.Scored `json:"ranked"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Ranked, 1)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/techniques?emotions=fear:x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, jsonRequest(http.MethodPost, "/analyze/text", `{"text":"hello"}`))
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "empath_http_requests_total")
	assert.Contains(t, body, `endpoint="/analyze/text"`)
	assert.Contains(t, body, "empath_replies_total")
}
