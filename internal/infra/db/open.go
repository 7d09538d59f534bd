// Package db selects and opens the storage backend.
package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/config"
	"veritheo-bot/internal/domain/ports/repository"
	"veritheo-bot/internal/infra/db/postgres"
	"veritheo-bot/internal/infra/db/sqlite"
)

// PoolStats is a snapshot of the connection pool.
type PoolStats struct {
	Total, Idle, InUse int
}

// Stores bundles the repositories of one backend.
type Stores struct {
	Driver   string
	Jobs     repository.LLMJobRepository
	Messages repository.MessageRepository
	Heresy   repository.HeresyRepository

	Stats func() PoolStats
	Ping  func(ctx context.Context) error
	Close func()
}

// Open connects to the configured backend. SQLite creates its schema on
// open; Postgres expects deploy/postgres/init.sql to be applied.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverPostgres, "":
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{
			DSN:      cfg.URL,
			MaxConns: cfg.MaxConns,
			MaxWait:  cfg.MaxWait,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Driver:   config.DriverPostgres,
			Jobs:     postgres.NewLLMJobRepo(pool, postgres.NewTxManager(pool)),
			Messages: postgres.NewMessageRepo(pool),
			Heresy:   postgres.NewHeresyRepo(pool),
			Stats: func() PoolStats {
				s := pool.Stat()
				return PoolStats{Total: int(s.TotalConns()), Idle: int(s.IdleConns()), InUse: int(s.AcquiredConns())}
			},
			Ping:  pool.Ping,
			Close: pool.Close,
		}, nil

	case config.DriverSQLite:
		sdb, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Driver:   config.DriverSQLite,
			Jobs:     sqlite.NewLLMJobRepo(sdb, sqlite.NewTxManager(sdb)),
			Messages: sqlite.NewMessageRepo(sdb),
			Heresy:   sqlite.NewHeresyRepo(sdb),
			Stats: func() PoolStats {
				s := sdb.Stats()
				return PoolStats{Total: s.OpenConnections, Idle: s.Idle, InUse: s.InUse}
			},
			Ping:  sdb.PingContext,
			Close: func() { _ = sdb.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
