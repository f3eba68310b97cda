package relstore

import (
	"context"
	"fmt"
	"time"

	"github.com/memorybear/memoryengine/internal/insight"
)

const schemaEndUsers = `
CREATE TABLE IF NOT EXISTS end_users (
    end_user_id            TEXT PRIMARY KEY,
    first_seen_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_activity_at        TIMESTAMPTZ,
    memory_insight          TEXT,
    memory_insight_updated_at TIMESTAMPTZ,
    intro                   TEXT,
    personality             TEXT,
    personality_updated_at  TIMESTAMPTZ,
    core_values             TEXT,
    core_values_updated_at  TIMESTAMPTZ,
    one_sentence_summary    TEXT,
    one_sentence_summary_updated_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_end_users_last_activity ON end_users (last_activity_at);
`

// Touch upserts a bare end_users row with a fresh last_activity_at,
// called from the ingestion path (C6) so every active end user is
// discoverable by ListEndUserIDs even before an insight has ever run.
func (s *Store) Touch(ctx context.Context, endUserID string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO end_users (end_user_id, last_activity_at)
VALUES ($1, NOW())
ON CONFLICT (end_user_id) DO UPDATE SET last_activity_at = EXCLUDED.last_activity_at
`, endUserID)
	if err != nil {
		return fmt.Errorf("relstore: touch end user: %w", err)
	}
	return nil
}

// ListEndUserIDs implements periodic.EndUserLister: every end user with
// activity at or after since, plus every end user with no recorded
// activity (last_activity_at NULL).
func (s *Store) ListEndUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT end_user_id FROM end_users
WHERE last_activity_at IS NULL OR last_activity_at >= $1
ORDER BY end_user_id
`, since)
	if err != nil {
		return nil, fmt.Errorf("relstore: list end users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("relstore: scan end user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveSummary implements insight.Store: it persists the four-part
// summary and the memory insight paragraph. memory_insight, personality,
// core_values and one_sentence_summary each get their own *_updated_at
// stamp; intro has no timestamp column.
func (s *Store) SaveSummary(ctx context.Context, endUserID string, summary insight.Summary) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO end_users (
    end_user_id, memory_insight, memory_insight_updated_at,
    intro, personality, personality_updated_at,
    core_values, core_values_updated_at,
    one_sentence_summary, one_sentence_summary_updated_at
) VALUES ($1,$2,$3,$4,$5,$3,$6,$3,$7,$3)
ON CONFLICT (end_user_id) DO UPDATE SET
    memory_insight = EXCLUDED.memory_insight,
    memory_insight_updated_at = EXCLUDED.memory_insight_updated_at,
    intro = EXCLUDED.intro,
    personality = EXCLUDED.personality,
    personality_updated_at = EXCLUDED.personality_updated_at,
    core_values = EXCLUDED.core_values,
    core_values_updated_at = EXCLUDED.core_values_updated_at,
    one_sentence_summary = EXCLUDED.one_sentence_summary,
    one_sentence_summary_updated_at = EXCLUDED.one_sentence_summary_updated_at
`, endUserID, summary.MemoryInsight, summary.GeneratedAt, summary.Intro, summary.Personality, summary.CoreValues, summary.OneSentence)
	if err != nil {
		return fmt.Errorf("relstore: save summary for %s: %w", endUserID, err)
	}
	return nil
}
