// Package server exposes the sanitization pipeline over HTTP: upload a CSV,
// get the sanitized CSV back. Both phases run in-process with an in-memory
// handoff; the run is still recorded in the artifact store when one is
// configured.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/veil/internal/artifact"
	"github.com/dativo-io/veil/internal/noise"
	"github.com/dativo-io/veil/internal/pipeline"
	"github.com/dativo-io/veil/internal/table"
)

const maxUploadBytes = 32 << 20 // 32 MiB

// Server handles CSV sanitization over HTTP.
type Server struct {
	router       *chi.Mux
	orchestrator *pipeline.Orchestrator
	runs         *artifact.Store // optional
	startTime    time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithRunStore records each HTTP-triggered run in the artifact store.
func WithRunStore(s *artifact.Store) Option {
	return func(srv *Server) { srv.runs = s }
}

// New builds the server and its routes.
func New(orch *pipeline.Orchestrator, opts ...Option) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		orchestrator: orch,
		startTime:    time.Now(),
	}
	for _, o := range opts {
		o(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/v1/anonymize", s.handleAnonymize)
	s.router.Get("/v1/runs", s.handleRuns)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

// handleAnonymize accepts a multipart upload (field "file"), runs both
// phases, and streams the sanitized CSV back. The optional "epsilon" form
// field sets the privacy budget; absent or invalid values use the default.
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected multipart form with a file field"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file field"})
		return
	}
	defer file.Close()

	epsilon := noise.DefaultEpsilon
	if raw := r.FormValue("epsilon"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			epsilon = noise.Epsilon(v)
		} else {
			log.Warn().Str("epsilon", raw).Msg("non-numeric epsilon, using default")
		}
	}

	t, err := table.ReadCSV(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not parse CSV: " + err.Error()})
		return
	}

	res, err := s.orchestrator.Anonymize(ctx, t)
	if err != nil {
		log.Error().Err(err).Msg("anonymize failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "anonymization failed"})
		return
	}

	final, err := s.orchestrator.ApplyNoise(ctx, res.Table, res.Deferred, epsilon)
	if err != nil {
		log.Error().Err(err).Msg("noise application failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "noise application failed"})
		return
	}

	if s.runs != nil {
		run := artifact.NewRun(header.Filename, "", res)
		now := time.Now().UTC()
		run.Epsilon = &epsilon
		run.NoisedAt = &now
		if err := s.runs.Save(ctx, run); err != nil {
			log.Warn().Err(err).Msg("recording run artifact failed")
		}
	}

	var buf bytes.Buffer
	if err := table.WriteCSV(final, &buf); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "rendering output failed"})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="sanitized.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run store not configured"})
		return
	}
	runs, err := s.runs.List(r.Context(), 50)
	if err != nil && !errors.Is(err, artifact.ErrIntermediateMissing) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing runs failed"})
		return
	}
	if runs == nil {
		runs = []*artifact.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}
