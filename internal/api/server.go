// Package api exposes the operator HTTP interface: health probes, Prometheus
// metrics, manual crawl triggers, job status and source administration.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sonhaber/newswatch/internal/pipeline"
)

// Enqueuer accepts jobs for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, item pipeline.QueueItem) error
}

// Server wires HTTP handlers to the queue and the store.
type Server struct {
	router   chi.Router
	store    pipeline.Store
	enqueuer Enqueuer
	ids      pipeline.IDGenerator
	clock    pipeline.Clock
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store pipeline.Store,
	enqueuer Enqueuer,
	ids pipeline.IDGenerator,
	clock pipeline.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		enqueuer: enqueuer,
		ids:      ids,
		clock:    clock,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sources/{source_id}", func(r chi.Router) {
			r.Get("/", s.getSource)
			r.Post("/crawl", s.triggerCrawl)
			r.Post("/pause", s.pauseSource)
			r.Post("/activate", s.activateSource)
			r.Post("/reset", s.resetSource)
		})
		r.Get("/jobs/{job_id}", s.getJob)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	src, ok := s.loadSource(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": src})
}

// triggerCrawl handles POST /v1/sources/{source_id}/crawl: a manual run that
// bypasses the refresh interval but not a PAUSED status.
func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	src, ok := s.loadSource(w, r)
	if !ok {
		return
	}
	if src.Status == pipeline.SourceStatusPaused {
		writeError(w, http.StatusConflict, "source is paused")
		return
	}

	jobID, err := s.ids.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate job id failed")
		return
	}
	now := s.clock.Now()
	job := pipeline.CrawlJob{
		ID:          jobID,
		SourceID:    src.ID,
		Status:      pipeline.JobStatusPending,
		TriggeredBy: pipeline.TriggerManual,
		CreatedAt:   now,
	}
	if err := s.store.CreateCrawlJob(r.Context(), job); err != nil {
		s.logger.Error("create crawl job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create job failed")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item := pipeline.QueueItem{
		JobID:     jobID,
		Payload:   pipeline.NewJobPayload(src, pipeline.TriggerManual),
		Submitted: now.Unix(),
	}
	if err := s.enqueuer.Enqueue(queueCtx, item); err != nil {
		s.logger.Error("enqueue job failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.store.GetCrawlJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pipeline.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) pauseSource(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, pipeline.SourceStatusPaused)
}

func (s *Server) activateSource(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, pipeline.SourceStatusActive)
}

// resetSource zeroes the failure streak and reactivates an ERROR source.
func (s *Server) resetSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	if err := s.store.ResetSourceHealth(r.Context(), sourceID); err != nil {
		if errors.Is(err, pipeline.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		s.logger.Error("reset source failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"source_id": sourceID,
		"status":    string(pipeline.SourceStatusActive),
	})
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request, status pipeline.SourceStatus) {
	sourceID := chi.URLParam(r, "source_id")
	if err := s.store.SetSourceStatus(r.Context(), sourceID, status); err != nil {
		if errors.Is(err, pipeline.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		s.logger.Error("set source status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "status update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"source_id": sourceID,
		"status":    string(status),
	})
}

func (s *Server) loadSource(w http.ResponseWriter, r *http.Request) (pipeline.Source, bool) {
	sourceID := chi.URLParam(r, "source_id")
	src, err := s.store.GetSource(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, pipeline.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return pipeline.Source{}, false
		}
		s.logger.Error("get source failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load source")
		return pipeline.Source{}, false
	}
	return src, true
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
