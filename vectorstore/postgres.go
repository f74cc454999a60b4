package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// DBPool is the slice of the pgxpool API the store uses, so tests can
// substitute a mock.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PGStore is a PostgreSQL Store using the pgvector extension. Similarity
// search runs server-side over the cosine distance operator; the table is
// created on first connect with an HNSW index.
type PGStore struct {
	pool DBPool
}

var _ Store = (*PGStore)(nil)

// NewPGStore connects to PostgreSQL, registers the pgvector types on every
// connection, and ensures the schema exists. dimension must match the
// embedding model; changing it later needs a manual migration.
func NewPGStore(ctx context.Context, dsn string, dimension int) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, kg.NewValidation("dsn", "invalid connection string: "+err.Error())
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, kg.NewTransient("vector store: create pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, kg.NewTransient("vector store: ping", err)
	}
	if err := migrate(ctx, pool, dimension); err != nil {
		pool.Close()
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

// NewPGStoreWithPool wraps an existing pool, used by tests.
func NewPGStoreWithPool(pool DBPool) *PGStore {
	return &PGStore{pool: pool}
}

func migrate(ctx context.Context, pool DBPool, dimension int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
			id        TEXT PRIMARY KEY,
			kind      TEXT NOT NULL,
			content   TEXT NOT NULL DEFAULT '',
			metadata  JSONB NOT NULL DEFAULT '{}',
			embedding VECTOR(%d) NOT NULL
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS documents_kind_idx ON documents (kind)`,
		`CREATE INDEX IF NOT EXISTS documents_embedding_idx
			ON documents USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return kg.NewTransient("vector store: migrate", err)
		}
	}
	return nil
}

// Upsert implements Store.
func (s *PGStore) Upsert(ctx context.Context, docs ...Document) error {
	const q = `
		INSERT INTO documents (id, kind, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			kind      = EXCLUDED.kind,
			content   = EXCLUDED.content,
			metadata  = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`

	for _, d := range docs {
		if d.ID == "" {
			return kg.NewValidation("id", "document id is required")
		}
		if len(d.Embedding) == 0 {
			return kg.NewValidation("embedding", "document embedding is required")
		}
		meta := d.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return kg.NewFatal("encode document metadata", err)
		}
		if _, err := s.pool.Exec(ctx, q,
			d.ID, d.Kind, d.Content, metaJSON, pgvector.NewVector(d.Embedding),
		); err != nil {
			return classifyPGError("upsert document", err)
		}
	}
	return nil
}

// Search implements Store. The cosine distance operator returns 1 - cosine
// similarity, so the score is recovered as 1 - distance.
func (s *PGStore) Search(ctx context.Context, embedding []float32, k int, filter Filter) ([]SearchResult, error) {
	if err := validateSearch(embedding, k); err != nil {
		return nil, err
	}

	args := []any{pgvector.NewVector(embedding)}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.Kind != "" {
		conditions = append(conditions, "kind = "+next(filter.Kind))
	}
	if len(filter.Metadata) > 0 {
		metaJSON, err := json.Marshal(filter.Metadata)
		if err != nil {
			return nil, kg.NewFatal("encode search filter", err)
		}
		conditions = append(conditions, "metadata @> "+next(metaJSON))
	}
	if filter.MinScore > 0 {
		// distance = 1 - similarity, so the floor becomes a distance ceiling.
		conditions = append(conditions, "embedding <=> $1 <= "+next(1-filter.MinScore))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}
	limitArg := next(k)

	q := fmt.Sprintf(`
		SELECT id, kind, content, metadata, embedding <=> $1 AS distance
		FROM documents
		%s
		ORDER BY distance
		LIMIT %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classifyPGError("search documents", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SearchResult, error) {
		var (
			sr       SearchResult
			metaJSON []byte
			distance float64
		)
		if err := row.Scan(&sr.Document.ID, &sr.Document.Kind, &sr.Document.Content, &metaJSON, &distance); err != nil {
			return SearchResult{}, err
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &sr.Document.Metadata); err != nil {
				return SearchResult{}, err
			}
		}
		sr.Score = 1 - distance
		return sr, nil
	})
	if err != nil {
		return nil, classifyPGError("scan search results", err)
	}
	return results, nil
}

// Delete implements Store.
func (s *PGStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = ANY($1)`, ids); err != nil {
		return classifyPGError("delete documents", err)
	}
	return nil
}

// AllDocuments implements Lister, embeddings included.
func (s *PGStore) AllDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, content, metadata, embedding
		FROM documents
		ORDER BY id`)
	if err != nil {
		return nil, classifyPGError("list documents", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		var (
			d        Document
			metaJSON []byte
			vec      pgvector.Vector
		)
		if err := row.Scan(&d.ID, &d.Kind, &d.Content, &metaJSON, &vec); err != nil {
			return Document{}, err
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &d.Metadata); err != nil {
				return Document{}, err
			}
		}
		d.Embedding = vec.Slice()
		return d, nil
	})
	if err != nil {
		return nil, classifyPGError("scan documents", err)
	}
	return docs, nil
}

// VectorStats implements Store.
func (s *PGStore) VectorStats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	row := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       coalesce(max(vector_dims(embedding)), 0)
		FROM documents`)
	if err := row.Scan(&st.Documents, &st.Dimension); err != nil {
		return nil, classifyPGError("vector stats", err)
	}
	return st, nil
}

// Close implements Store.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// classifyPGError maps pgx failures onto the error kinds: constraint
// violations are conflicts, everything else at the wire level is transient.
func classifyPGError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return kg.NewTimeout(op, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return kg.NewNotFound("document", op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 23 is integrity constraint violation.
		if strings.HasPrefix(pgErr.Code, "23") {
			return kg.NewConflict(op + ": " + pgErr.Message)
		}
		return kg.NewTransient(op, err)
	}
	return kg.NewTransient(op, err)
}
