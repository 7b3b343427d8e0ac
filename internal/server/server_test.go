package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keagan/vidcontrast/internal/config"
	"github.com/keagan/vidcontrast/internal/source"
	"github.com/keagan/vidcontrast/internal/version"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	cfg             *config.Config
	video, subtitle string
}

func newTestServer(t *testing.T, result error) (*Server, *[]call) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.ConfigPath = filepath.Join(t.TempDir(), "vidcontrast.yaml")

	var calls []call
	s := New(zerolog.Nop(), cfg, func(ctx context.Context, cfg *config.Config, video, subtitle string) error {
		calls = append(calls, call{cfg, video, subtitle})
		return result
	})
	return s, &calls
}

func do(s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestVersion(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec, body := do(s, http.MethodGet, "/api/py", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, version.Version, body["version"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestAnalyse(t *testing.T) {
	s, calls := newTestServer(t, nil)

	rec, body := do(s, http.MethodPost, "/api/py/analyse/clip.mp4/clip.srt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["video_analysed"])

	require.Len(t, *calls, 1)
	assert.Equal(t, "clip.mp4", (*calls)[0].video)
	assert.Equal(t, "clip.srt", (*calls)[0].subtitle)
	assert.Same(t, s.Config(), (*calls)[0].cfg)
}

func TestRequestLogCarriesCallerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("component", "server").Logger()
	s := New(logger, config.Default(), func(ctx context.Context, cfg *config.Config, video, subtitle string) error {
		return nil
	})

	do(s, http.MethodGet, "/api/py", "")

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, `"component"`), line)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "request handled", entry["message"])
}

func TestAnalyseErrors(t *testing.T) {
	openErr := &source.OpenError{Path: "bad.mp4", Backend: "ffmpeg", Err: errors.New("moov atom not found")}

	s, _ := newTestServer(t, openErr)
	rec, body := do(s, http.MethodPost, "/api/py/analyse/bad.mp4/out.srt", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["error"], "moov atom")

	s, _ = newTestServer(t, errors.New("disk full"))
	rec, _ = do(s, http.MethodPost, "/api/py/analyse/a.mp4/out.srt", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAnalyseWrongMethod(t *testing.T) {
	s, calls := newTestServer(t, nil)

	rec, _ := do(s, http.MethodGet, "/api/py/analyse/clip.mp4/clip.srt", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, *calls)
}

func TestSetConfig(t *testing.T) {
	s, calls := newTestServer(t, nil)
	before := s.Config()

	rec, body := do(s, http.MethodPost, "/api/py/set_config", "metrics:\n  contrast: local\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, before.Server.ConfigPath, body["config_written_to"])

	after := s.Config()
	assert.Equal(t, "local", after.Metrics.Contrast)
	assert.Equal(t, "stddev", before.Metrics.Contrast, "previous snapshot must not change")

	saved, err := os.ReadFile(before.Server.ConfigPath)
	require.NoError(t, err)
	parsed, err := config.Parse(saved)
	require.NoError(t, err)
	assert.Equal(t, "local", parsed.Metrics.Contrast)

	// later analyses see the new snapshot
	do(s, http.MethodPost, "/api/py/analyse/a.mp4/a.srt", "")
	require.Len(t, *calls, 1)
	assert.Equal(t, "local", (*calls)[0].cfg.Metrics.Contrast)
}

func TestSetConfigRejectsInvalid(t *testing.T) {
	s, _ := newTestServer(t, nil)
	before := s.Config()

	rec, _ := do(s, http.MethodPost, "/api/py/set_config", "decoder:\n  backend: vlc\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(s, http.MethodPost, "/api/py/set_config", "decoder: [")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Same(t, before, s.Config())
	_, err := os.Stat(before.Server.ConfigPath)
	assert.True(t, os.IsNotExist(err))
}

func TestListenAndServeShutdown(t *testing.T) {
	s, _ := newTestServer(t, nil)
	cfg := s.Config().Clone()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	s.cfg.Store(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
