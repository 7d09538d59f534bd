// Package apiv1 serves /api/v1: job inspection and retry.
package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/infra/logging"
	"veritheo-bot/internal/infra/metrics"
)

// JobStore is the part of the job repository the API uses.
type JobStore interface {
	FindByID(ctx context.Context, id int64) (*model.LLMJob, error)
	CountByStatus(ctx context.Context) (map[model.LLMJobStatus]int, error)
	Retry(ctx context.Context, id int64) error
}

// Waker is satisfied by the queue worker.
type Waker interface {
	Notify()
}

type Server struct {
	jobs  JobStore
	waker Waker
	log   *zerolog.Logger
}

// NewServer builds the v1 handlers. waker may be nil.
func NewServer(jobs JobStore, waker Waker, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "AdminAPIv1").Logger()
	return &Server{jobs: jobs, waker: waker, log: &l}
}

func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Get("/stats", s.jobStats)
		r.Get("/{id}", s.getJob)
		r.Post("/{id}/retry", s.retryJob)
	})
}

type Job struct {
	ID               int64               `json:"id"`
	Kind             string              `json:"kind"`
	Status           string              `json:"status"`
	ChatID           int64               `json:"chat_id"`
	RequestMessageID int                 `json:"request_message_id"`
	Payload          model.LLMJobPayload `json:"payload"`
	Attempts         int                 `json:"attempts"`
	LastError        string              `json:"last_error,omitempty"`
	Finished         bool                `json:"finished"`
	CreatedAt        time.Time           `json:"created_at"`
	AvailableAt      time.Time           `json:"available_at"`
}

// ToJob maps a job to its JSON representation.
func ToJob(j *model.LLMJob) Job {
	return Job{
		ID:               j.ID,
		Kind:             string(j.Kind),
		Status:           string(j.Status),
		ChatID:           j.ChatID,
		RequestMessageID: j.RequestMessageID,
		Payload:          j.Payload,
		Attempts:         j.Attempts,
		LastError:        j.LastError,
		Finished:         j.Status.Terminal(),
		CreatedAt:        j.CreatedAt.UTC(),
		AvailableAt:      j.AvailableAt.UTC(),
	}
}

type JobStats struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

func (s *Server) jobStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobs.CountByStatus(r.Context())
	if err != nil {
		s.fail(w, r, "stats", err)
		return
	}
	out := JobStats{Counts: map[string]int{}}
	for _, st := range []model.LLMJobStatus{model.LLMJobStatusPending, model.LLMJobStatusProcessing, model.LLMJobStatusDone, model.LLMJobStatusFailed} {
		out.Counts[string(st)] = counts[st]
		out.Total += counts[st]
	}
	metrics.IncAdminRequest("stats", "ok")
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r, "show")
	if !ok {
		return
	}
	job, err := s.jobs.FindByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, "show", err)
		return
	}
	metrics.IncAdminRequest("show", "ok")
	writeJSON(w, http.StatusOK, ToJob(job))
}

func (s *Server) retryJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r, "retry")
	if !ok {
		return
	}
	if err := s.jobs.Retry(r.Context(), id); err != nil {
		s.fail(w, r, "retry", err)
		return
	}
	if s.waker != nil {
		s.waker.Notify()
	}
	logging.With(r.Context(), s.log).Info().Int64("job_id", id).Msg("job retried from the admin api")

	job, err := s.jobs.FindByID(r.Context(), id)
	if err != nil {
		s.fail(w, r, "retry", err)
		return
	}
	metrics.IncAdminRequest("retry", "ok")
	writeJSON(w, http.StatusOK, ToJob(job))
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request, action string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		metrics.IncAdminRequest(action, "error")
		writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	metrics.IncAdminRequest(action, "error")
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("action", action).Msg("admin request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
