package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Postgres is a pgvector-backed index. Cosine similarity is computed in
// the database via the <=> operator; ordering ties are broken by id so
// results stay deterministic.
type Postgres struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

var _ Index = (*Postgres)(nil)

// NewPostgresPool creates a connection pool with pgvector types
// registered on every connection.
func NewPostgresPool(ctx context.Context, connURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

// NewPostgres creates a pgvector index with the given fixed
// dimensionality and ensures its schema exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, dim int, logger *slog.Logger) (*Postgres, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, dim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Postgres{pool: pool, dim: dim, logger: logger}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("creating vector extension: %w", err)
	}
	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS knowledge_vectors (id TEXT PRIMARY KEY, embedding vector(%d) NOT NULL)",
		p.dim)
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating knowledge_vectors table: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the vector for id.
// The row-level write lock serializes concurrent upserts of the same id.
func (p *Postgres) Upsert(ctx context.Context, id string, vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	if len(vec) != p.dim {
		return fmt.Errorf("%w: index dimension %d, got %d", ErrDimensionMismatch, p.dim, len(vec))
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO knowledge_vectors (id, embedding) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding`,
		id, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("upserting vector %q: %w", id, err)
	}
	return nil
}

// Remove deletes the entry for id. Idempotent.
func (p *Postgres) Remove(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM knowledge_vectors WHERE id = $1", id); err != nil {
		return fmt.Errorf("removing vector %q: %w", id, err)
	}
	return nil
}

// Query returns the top-k entries by cosine similarity.
func (p *Postgres) Query(ctx context.Context, vec []float32, k int) ([]Entry, error) {
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	if len(vec) != p.dim {
		return nil, fmt.Errorf("%w: index dimension %d, query has %d", ErrDimensionMismatch, p.dim, len(vec))
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, 1 - (embedding <=> $1) AS score
		 FROM knowledge_vectors
		 ORDER BY embedding <=> $1, id
		 LIMIT $2`,
		pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Score); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading vector rows: %w", err)
	}
	return entries, nil
}

// Len reports the number of indexed vectors.
func (p *Postgres) Len(ctx context.Context) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM knowledge_vectors").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting vectors: %w", err)
	}
	return count, nil
}
