// Package api is the admin HTTP surface: health, metrics and job inspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"veritheo-bot/internal/config"
	"veritheo-bot/internal/infra/api/apiv1"
)

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

type Server struct {
	handler http.Handler
	server  *http.Server
	log     *zerolog.Logger
}

func NewServer(cfg config.AdminConfig, v1 *apiv1.Server, health HealthFunc, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "AdminAPI").Logger()
	auth := NewAuthManager(cfg.JWTSecret)

	r := chi.NewRouter()
	r.Use(TraceID, RequestLog(&l), Recover(&l), middleware.Timeout(15*time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		apiv1.RegisterAPIV1(r, v1)
	})

	return &Server{
		handler: r,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: &l,
	}
}

func (s *Server) Handler() http.Handler { return s.handler }

// Start blocks serving requests. A graceful Shutdown makes it return nil.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("admin api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
