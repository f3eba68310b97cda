package graphstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// postgresStore is the production GraphStore backend: one `graph_nodes`
// table (labels + JSONB props + activation bookkeeping columns) and one
// `graph_edges` table, plus a tsvector column for keyword search and a pgvector column
// for embedding search. Schema bring-up follows the teacher's
// "ensure, don't recreate" idiom (internal/sefii/engine.go EnsureTable,
// internal/persistence/databases/postgres_graph.go NewPostgresGraph).
type postgresStore struct {
	pool          *pgxpool.Pool
	embeddingDims int
}

// NewPostgres builds a GraphStore over an existing pgx pool, creating the
// schema idempotently. embeddingDims fixes the pgvector column width;
// mixing embedding models within one deployment is forbidden by §3
// invariant 6, so the dimension is pinned once at construction time.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, embeddingDims int) (GraphStore, error) {
	s := &postgresStore{pool: pool, embeddingDims: embeddingDims}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("graphstore: ensure schema: %w", err)
	}
	return s, nil
}

func (s *postgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS graph_nodes (
			id TEXT PRIMARY KEY,
			end_user_id TEXT NOT NULL,
			labels TEXT[] NOT NULL DEFAULT '{}',
			props JSONB NOT NULL DEFAULT '{}'::jsonb,
			content TEXT NOT NULL DEFAULT '',
			content_tsv TSVECTOR,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			is_active BOOLEAN NOT NULL DEFAULT true,
			version BIGINT NOT NULL DEFAULT 0,
			activation_value DOUBLE PRECISION,
			access_history TIMESTAMPTZ[] NOT NULL DEFAULT '{}',
			importance_score DOUBLE PRECISION
		)`, s.embeddingDims),
		`CREATE INDEX IF NOT EXISTS graph_nodes_user_idx ON graph_nodes(end_user_id)`,
		`CREATE INDEX IF NOT EXISTS graph_nodes_tsv_idx ON graph_nodes USING gin(content_tsv)`,
		`CREATE INDEX IF NOT EXISTS graph_nodes_created_idx ON graph_nodes(end_user_id, created_at)`,
		// Invariant 3: case-insensitive uniqueness of entity names per
		// end_user_id. Partial index so non-entity nodes (which lack a
		// "name" prop) are unaffected.
		`CREATE UNIQUE INDEX IF NOT EXISTS graph_nodes_entity_name_uidx
			ON graph_nodes(end_user_id, lower(props->>'name'))
			WHERE 'entities' = ANY(labels) AND is_active`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			rel TEXT NOT NULL,
			target TEXT NOT NULL,
			props JSONB NOT NULL DEFAULT '{}'::jsonb,
			UNIQUE(source, rel, target)
		)`,
		`CREATE INDEX IF NOT EXISTS graph_edges_src_rel_idx ON graph_edges(source, rel)`,
		`CREATE INDEX IF NOT EXISTS graph_edges_dst_rel_idx ON graph_edges(target, rel)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// execWithRetry mirrors internal/sefii/engine.go's retry helper: linear
// backoff, bounded attempts, for transient connection errors during
// schema/write operations.
func (s *postgresStore) execWithRetry(ctx context.Context, sql string, args ...any) error {
	const maxRetries = 3
	var err error
	for i := 0; i < maxRetries; i++ {
		_, err = s.pool.Exec(ctx, sql, args...)
		if err == nil {
			return nil
		}
		log.Ctx(ctx).Warn().Err(err).Int("attempt", i+1).Msg("graphstore: exec failed, retrying")
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return err
}

func labelOf(c Category) string { return string(c) }

func (s *postgresStore) KeywordSearch(ctx context.Context, endUserID string, category Category, query string, limit int) ([]NodeHit, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, props, ts_rank_cd(content_tsv, plainto_tsquery('english', $3)) AS score
		FROM graph_nodes
		WHERE end_user_id = $1 AND $2 = ANY(labels) AND is_active
		  AND content_tsv @@ plainto_tsquery('english', $3)
		ORDER BY score DESC
		LIMIT $4
	`, endUserID, labelOf(category), query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []NodeHit
	for rows.Next() {
		var h NodeHit
		if err := rows.Scan(&h.ID, &h.Props, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *postgresStore) EmbeddingSearch(ctx context.Context, endUserID string, category Category, vector []float32, limit int) ([]NodeHit, error) {
	if limit <= 0 {
		limit = 10
	}
	vecLit := toVectorLiteral(vector)
	rows, err := s.pool.Query(ctx, `
		SELECT id, props, 1 - (embedding <=> $3::vector) AS score
		FROM graph_nodes
		WHERE end_user_id = $1 AND $2 = ANY(labels) AND is_active AND embedding IS NOT NULL
		ORDER BY embedding <=> $3::vector
		LIMIT $4
	`, endUserID, labelOf(category), vecLit, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []NodeHit
	for rows.Next() {
		var h NodeHit
		if err := rows.Scan(&h.ID, &h.Props, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *postgresStore) TemporalSearch(ctx context.Context, endUserID string, category Category, r TemporalRange, limit int) ([]NodeHit, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, props, 1.0
		FROM graph_nodes
		WHERE end_user_id = $1 AND $2 = ANY(labels) AND is_active
		  AND created_at BETWEEN $3 AND $4
		ORDER BY created_at DESC
		LIMIT $5
	`, endUserID, labelOf(category), r.From, r.To, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hits []NodeHit
	for rows.Next() {
		var h NodeHit
		if err := rows.Scan(&h.ID, &h.Props, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *postgresStore) scanNode(row interface {
	Scan(dest ...any) error
}) (Node, error) {
	var n Node
	var activation *float64
	var importance *float64
	var history []time.Time
	if err := row.Scan(&n.ID, &n.EndUserID, &n.Labels, &n.Props, &n.CreatedAt, &n.IsActive, &n.Version, &activation, &history, &importance); err != nil {
		return Node{}, err
	}
	n.ActivationValue = activation
	n.ImportanceScore = importance
	n.AccessHistory = history
	return n, nil
}

const nodeColumns = `id, end_user_id, labels, props, created_at, is_active, version, activation_value, access_history, importance_score`

func (s *postgresStore) GetNode(ctx context.Context, endUserID, nodeID string) (Node, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+nodeColumns+` FROM graph_nodes WHERE id=$1 AND end_user_id=$2 AND is_active`, nodeID, endUserID)
	n, err := s.scanNode(row)
	if err != nil {
		return Node{}, false, nil
	}
	return n, true, nil
}

func (s *postgresStore) GetByChunkID(ctx context.Context, endUserID, chunkID string) (Node, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+nodeColumns+` FROM graph_nodes n
		JOIN graph_edges e ON e.source = n.id AND e.rel = 'HAS_CHUNK' AND e.target = $1
		WHERE n.end_user_id = $2 AND n.is_active
	`, chunkID, endUserID)
	n, err := s.scanNode(row)
	if err != nil {
		return Node{}, false, nil
	}
	return n, true, nil
}

func (s *postgresStore) GetByDialogueID(ctx context.Context, endUserID, dialogueID string) (Node, bool, error) {
	return s.GetNode(ctx, endUserID, dialogueID)
}

func (s *postgresStore) UpsertIngestedBatch(ctx context.Context, batch IngestBatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	insertNode := func(n Node) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO graph_nodes(id, end_user_id, labels, props, content, content_tsv, embedding, created_at, is_active, version, activation_value, access_history, importance_score)
			VALUES ($1,$2,$3,$4,$5, to_tsvector('english',$5), $6, $7, true, 0, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET labels=EXCLUDED.labels, props=EXCLUDED.props, content=EXCLUDED.content, content_tsv=EXCLUDED.content_tsv
		`, n.ID, batch.EndUserID, n.Labels, n.Props, contentOf(n), embeddingLiteralOrNil(n), nowOrCreated(n), n.ActivationValue, n.AccessHistory, n.ImportanceScore)
		return err
	}

	if err := insertNode(batch.Dialogue); err != nil {
		return fmt.Errorf("persist dialogue: %w", err)
	}
	for _, c := range batch.Chunks {
		if err := insertNode(c); err != nil {
			return fmt.Errorf("persist chunk: %w", err)
		}
	}
	for _, n := range batch.Statements {
		if err := insertNode(n); err != nil {
			return fmt.Errorf("persist statement: %w", err)
		}
	}
	for _, n := range batch.Entities {
		if err := insertNode(n); err != nil {
			return fmt.Errorf("persist entity: %w", err)
		}
	}
	for _, n := range batch.Summaries {
		if err := insertNode(n); err != nil {
			return fmt.Errorf("persist summary: %w", err)
		}
	}
	for _, e := range batch.Edges {
		if _, err := tx.Exec(ctx, `
			INSERT INTO graph_edges(source, rel, target, props) VALUES ($1,$2,$3,$4)
			ON CONFLICT (source, rel, target) DO NOTHING
		`, e.SourceID, e.Rel, e.TargetID, e.Props); err != nil {
			return fmt.Errorf("persist edge: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *postgresStore) BatchUpdateActivation(ctx context.Context, endUserID string, updates []ActivationUpdate) ([]Node, error) {
	var out []Node
	for _, u := range updates {
		historyCap := u.HistoryCap
		if historyCap <= 0 {
			historyCap = 50
		}
		tag, err := s.pool.Exec(ctx, `
			UPDATE graph_nodes
			SET activation_value = $1,
			    access_history = (array_append(access_history, $2::timestamptz))[
			        greatest(1, array_length(array_append(access_history, $2::timestamptz), 1) - ($6::int - 1)):
			    ],
			    version = version + 1
			WHERE id = $3 AND end_user_id = $4 AND version = $5
		`, u.NewValue, u.NewHistoryTail, u.NodeID, endUserID, u.ExpectedVersion, historyCap)
		if err != nil {
			return out, err
		}
		if tag.RowsAffected() == 0 {
			return out, ErrVersionConflict
		}
		n, ok, err := s.GetNode(ctx, endUserID, u.NodeID)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *postgresStore) MergeEntities(ctx context.Context, endUserID, survivingID, absorbedID string) (Node, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Node{}, err
	}
	defer tx.Rollback(ctx)

	surv, ok, err := s.GetNode(ctx, endUserID, survivingID)
	if err != nil || !ok {
		return Node{}, ErrVersionConflict
	}
	abs, ok, err := s.GetNode(ctx, endUserID, absorbedID)
	if err != nil || !ok {
		return surv, nil
	}

	survAliases, _ := surv.Props["aliases"].([]string)
	absAliases, _ := abs.Props["aliases"].([]string)
	merged := unionStrings(survAliases, absAliases)
	if name, ok := abs.Props["name"].(string); ok {
		merged = unionStrings(merged, []string{name})
	}
	if surv.Props == nil {
		surv.Props = map[string]any{}
	}
	surv.Props["aliases"] = merged

	history := capHistory(dedupHistory(append(append([]time.Time{}, surv.AccessHistory...), abs.AccessHistory...)), 50)

	activation := surv.ActivationValue
	if abs.ActivationValue != nil && (activation == nil || *abs.ActivationValue > *activation) {
		activation = abs.ActivationValue
	}

	if _, err := tx.Exec(ctx, `
		UPDATE graph_nodes SET props = $1, access_history = $2, activation_value = $3, version = version + 1
		WHERE id = $4 AND end_user_id = $5
	`, surv.Props, history, activation, survivingID, endUserID); err != nil {
		return Node{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE graph_edges SET source=$1 WHERE source=$2`, survivingID, absorbedID); err != nil {
		return Node{}, err
	}
	// Rewriting target first deleting any edge that would collide with an
	// existing surviving-entity edge, since UPDATE has no ON CONFLICT clause.
	if _, err := tx.Exec(ctx, `
		DELETE FROM graph_edges a USING graph_edges b
		WHERE a.target=$1 AND b.target=$2 AND a.source=b.source AND a.rel=b.rel
	`, absorbedID, survivingID); err != nil {
		return Node{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE graph_edges SET target=$1 WHERE target=$2`, survivingID, absorbedID); err != nil {
		return Node{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE graph_nodes SET is_active=false WHERE id=$1 AND end_user_id=$2`, absorbedID, endUserID); err != nil {
		return Node{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Node{}, err
	}
	surv.Props["aliases"] = merged
	surv.AccessHistory = history
	surv.ActivationValue = activation
	return surv, nil
}

func (s *postgresStore) FindEntityByName(ctx context.Context, endUserID, name string) (Node, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+nodeColumns+` FROM graph_nodes
		WHERE end_user_id=$1 AND 'entities' = ANY(labels) AND is_active AND lower(props->>'name') = lower($2)
	`, endUserID, name)
	n, err := s.scanNode(row)
	if err != nil {
		return Node{}, false, nil
	}
	return n, true, nil
}

func contentOf(n Node) string {
	if n.Props == nil {
		return ""
	}
	for _, k := range []string{"content", "statement", "name"} {
		if v, ok := n.Props[k].(string); ok {
			return v
		}
	}
	return ""
}

func embeddingLiteralOrNil(n Node) any {
	vec := embeddingOf(n)
	if vec == nil {
		return nil
	}
	return toVectorLiteral(vec)
}

func nowOrCreated(n Node) time.Time {
	if n.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return n.CreatedAt
}

// toVectorLiteral renders a float32 vector as the textual literal pgvector
// accepts in a `$n::vector` cast, the same approach as the teacher's
// internal/persistence/databases/postgres_vector.go toVectorLiteral.
func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}
