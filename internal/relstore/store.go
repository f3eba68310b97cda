package relstore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps one pgxpool.Pool and provides every relational table spec
// §6 names. Individual concerns (end users, short-term memory, task
// executions, workflow executions, configuration) live in their own
// files but share this one struct and its pool, mirroring the teacher's
// one-struct-per-table-family shape (pgUserPreferencesStore,
// pgChatStore, ...) collapsed into a single store since this module has
// one relational schema rather than several swappable backends.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-open pool. Callers obtain the pool via OpenPool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates every table this store uses, if missing. Safe to call on
// every startup (CREATE TABLE IF NOT EXISTS, CREATE INDEX IF NOT EXISTS).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		schemaEndUsers,
		schemaShortTermMemory,
		schemaTaskExecutions,
		schemaWorkflowExecutions,
		schemaConfiguration,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
