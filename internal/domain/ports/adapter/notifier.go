package adapter

import "context"

// ErrorNotifier is the operational logger. Implementations are best-effort:
// they never return errors and must not block job processing for long.
type ErrorNotifier interface {
	Notify(ctx context.Context, summary string, err error)
}
