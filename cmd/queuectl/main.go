// Command queuectl inspects and operates the LLM job queue directly on the
// database, without going through the bot or the admin API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"veritheo-bot/internal/infra/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(db.Open).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
