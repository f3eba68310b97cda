package relstore

import (
	"context"
	"fmt"
)

const schemaConfiguration = `
CREATE TABLE IF NOT EXISTS configuration (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// GetConfig reads one configuration value, returning ("", false, nil) if
// unset — runtime-tunable settings (forgetting thresholds, job
// intervals) read through here so operators can change them without a
// redeploy, falling back to the static config loader otherwise.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM configuration WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return "", false, nil
	}
	return value, true, nil
}

// SetConfig upserts one configuration value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO configuration (key, value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
`, key, value)
	if err != nil {
		return fmt.Errorf("relstore: set config %s: %w", key, err)
	}
	return nil
}
