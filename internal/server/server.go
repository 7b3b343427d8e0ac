// Package server exposes the analyzer over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/keagan/vidcontrast/internal/config"
	"github.com/keagan/vidcontrast/internal/source"
	"github.com/keagan/vidcontrast/internal/version"
	"github.com/rs/zerolog"
)

// maxConfigBytes bounds the body accepted by set_config
const maxConfigBytes = 1 << 20

// AnalyzeFunc runs one analysis with an explicit configuration
type AnalyzeFunc func(ctx context.Context, cfg *config.Config, video, subtitle string) error

// Server serves the REST API. The active configuration is swapped
// atomically; each request works on the snapshot it loaded.
type Server struct {
	logger  zerolog.Logger
	cfg     atomic.Pointer[config.Config]
	analyze AnalyzeFunc
	mux     *http.ServeMux
}

// New creates a server with an initial configuration
func New(logger zerolog.Logger, cfg *config.Config, analyze AnalyzeFunc) *Server {
	s := &Server{
		logger:  logger,
		analyze: analyze,
		mux:     http.NewServeMux(),
	}
	s.cfg.Store(cfg)

	s.mux.HandleFunc("GET /api/py", s.handleVersion)
	s.mux.HandleFunc("POST /api/py/set_config", s.handleSetConfig)
	s.mux.HandleFunc("POST /api/py/analyse/{video_file}/{subtitle_file}", s.handleAnalyse)

	return s
}

// Config returns the current configuration snapshot
func (s *Server) Config() *config.Config {
	return s.cfg.Load()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	s.logger.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Dur("elapsed", time.Since(start)).
		Msg("request handled")
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	cfg := s.Config()
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))

	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(data) > maxConfigBytes {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("config too large"))
		return
	}

	current := s.Config()
	next, err := config.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid config: %w", err))
		return
	}
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// the destination of the file is not configurable through itself
	next.Server.ConfigPath = current.Server.ConfigPath
	path := next.Server.ConfigPath

	if err := next.Save(path); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("failed to save config")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.cfg.Store(next)
	s.logger.Info().Str("path", path).Msg("config updated")

	writeJSON(w, http.StatusOK, map[string]string{"config_written_to": path})
}

func (s *Server) handleAnalyse(w http.ResponseWriter, r *http.Request) {
	video := r.PathValue("video_file")
	subtitle := r.PathValue("subtitle_file")

	if err := s.analyze(r.Context(), s.Config(), video, subtitle); err != nil {
		status := http.StatusInternalServerError
		if source.IsOpenError(err) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Error().Err(err).Str("video", video).Msg("analysis failed")
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"video_analysed": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
