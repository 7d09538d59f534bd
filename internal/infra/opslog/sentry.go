package opslog

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/infra/logging"
)

var _ adapter.ErrorNotifier = (*SentryNotifier)(nil)

// SentryNotifier captures errors on its own hub.
type SentryNotifier struct {
	hub *sentry.Hub
}

func NewSentryNotifier(opts sentry.ClientOptions) (*SentryNotifier, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &SentryNotifier{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (s *SentryNotifier) Notify(ctx context.Context, summary string, err error) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("summary", summary)
		for k, v := range logging.Fields(ctx) {
			scope.SetTag(k, v)
		}
		s.hub.CaptureException(err)
	})
}

func (s *SentryNotifier) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}
