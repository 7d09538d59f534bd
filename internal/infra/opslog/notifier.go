package opslog

import (
	"context"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/infra/logging"
)

var (
	_ adapter.ErrorNotifier = (*LogNotifier)(nil)
	_ adapter.ErrorNotifier = (Multi)(nil)
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "OpsLog").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) Notify(ctx context.Context, summary string, err error) {
	l := logging.With(ctx, n.log)
	l.Error().Err(err).Msg(summary)
}

// Multi fans a notification out to every sink. A panicking sink is skipped.
type Multi []adapter.ErrorNotifier

func (m Multi) Notify(ctx context.Context, summary string, err error) {
	for _, n := range m {
		if n == nil {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			n.Notify(ctx, summary, err)
		}()
	}
}
