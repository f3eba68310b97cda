package relstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ShortTermTurn is one recorded message/answer pair.
type ShortTermTurn struct {
	Message   string
	Answer    string
	CreatedAt time.Time
}

const schemaShortTermMemory = `
CREATE TABLE IF NOT EXISTS short_term_memory (
    id               BIGSERIAL PRIMARY KEY,
    end_user_id      TEXT NOT NULL,
    message          TEXT NOT NULL,
    answer           TEXT NOT NULL,
    retrieved_content JSONB,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_short_term_memory_end_user_created
    ON short_term_memory (end_user_id, created_at DESC);
`

// Save implements internal/readpath's ShortTermStore: it records one
// turn's message/answer/retrieved-content so the read orchestrator (C8)
// can seed short-term context on the next call.
func (s *Store) Save(ctx context.Context, endUserID, message, answer string, retrievedContent any) error {
	payload, err := json.Marshal(retrievedContent)
	if err != nil {
		return fmt.Errorf("relstore: marshal retrieved content: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO short_term_memory (end_user_id, message, answer, retrieved_content)
VALUES ($1, $2, $3, $4)
`, endUserID, message, answer, payload)
	if err != nil {
		return fmt.Errorf("relstore: save short-term memory for %s: %w", endUserID, err)
	}
	return nil
}

// RecentTurns returns the limit most recent turns for endUserID, newest
// first — the read side of short-term context (§4.8's "history").
func (s *Store) RecentTurns(ctx context.Context, endUserID string, limit int) ([]ShortTermTurn, error) {
	rows, err := s.pool.Query(ctx, `
SELECT message, answer, created_at FROM short_term_memory
WHERE end_user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, endUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("relstore: recent turns for %s: %w", endUserID, err)
	}
	defer rows.Close()

	var turns []ShortTermTurn
	for rows.Next() {
		var t ShortTermTurn
		if err := rows.Scan(&t.Message, &t.Answer, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("relstore: scan short-term turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
