package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seanblong/docsearch/pkg/models"
)

// Postgres stores chunks in a plain table; embeddings are kept as REAL[] so
// the chunk store does not depend on the vector extension.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the given database URL and verifies it is reachable.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable("connect", err)
	}
	s := &Postgres{pool: p}
	if err := s.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// Pool exposes the connection pool so the vector index can share it.
func (s *Postgres) Pool() *pgxpool.Pool { return s.pool }

func (s *Postgres) Close() { s.pool.Close() }

// Migrate creates the chunks table.
func (s *Postgres) Migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS chunks (
  seq          BIGSERIAL,
  chunk_id     TEXT PRIMARY KEY,
  filename     TEXT NOT NULL,
  page_number  INT NOT NULL CHECK (page_number > 0),
  content      TEXT NOT NULL,
  embedding    REAL[] NOT NULL,
  created_at   TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS chunks_seq_uidx ON chunks (seq);
CREATE INDEX IF NOT EXISTS chunks_filename_idx ON chunks (filename, page_number);
`
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

// Put inserts or overwrites a chunk. The original seq and created_at survive
// an overwrite so enumeration order stays stable across re-ingestion.
func (s *Postgres) Put(ctx context.Context, c models.Chunk) error {
	if err := Validate(c); err != nil {
		return err
	}
	const q = `
		INSERT INTO chunks (chunk_id, filename, page_number, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (chunk_id) DO UPDATE SET
			filename    = EXCLUDED.filename,
			page_number = EXCLUDED.page_number,
			content     = EXCLUDED.content,
			embedding   = EXCLUDED.embedding;`
	if _, err := s.pool.Exec(ctx, q, c.ID, c.Filename, c.PageNumber, c.Content, c.Embedding); err != nil {
		return unavailable("put "+c.ID, err)
	}
	return nil
}

// Get retrieves a chunk by id.
func (s *Postgres) Get(ctx context.Context, id string) (models.Chunk, bool, error) {
	const q = `
		SELECT chunk_id, filename, page_number, content, embedding, created_at
		FROM chunks WHERE chunk_id = $1`
	c, err := scanChunk(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Chunk{}, false, nil
		}
		return models.Chunk{}, false, unavailable("get "+id, err)
	}
	return c, true, nil
}

// All enumerates every chunk in insertion order.
func (s *Postgres) All(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, filename, page_number, content, embedding, created_at
		FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, unavailable("enumerate", err)
	}
	defer rows.Close()

	out := []models.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, unavailable("enumerate", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("enumerate", err)
	}
	return out, nil
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Ping checks the database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func scanChunk(row pgx.Row) (models.Chunk, error) {
	var c models.Chunk
	err := row.Scan(&c.ID, &c.Filename, &c.PageNumber, &c.Content, &c.Embedding, &c.CreatedAt)
	return c, err
}
