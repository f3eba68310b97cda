// Package relstore is the relational store (C13's "ambient" home for
// spec §6's persisted-state list): configuration, the end-user row
// (cached memory_insight/personality/core_values/one_sentence_summary
// plus their *_updated_at columns), short-term memory rows,
// task-execution rows, and workflow-execution rows.
//
// Grounded on internal/persistence/databases: pool.go/factory.go's
// newPgPool for connection setup, and user_preferences_store.go's
// single-pgxpool-per-store, upsert-by-primary-key shape for every table
// here.
package relstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool creates a Postgres connection pool with the teacher's
// conservative defaults (bounded max conns, idle/lifetime caps) and
// verifies connectivity with a bounded ping before returning.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
