package index

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
)

const undefinedTable = "42P01"

// PGVector keeps each index in its own table with a pgvector column. A
// catalog table records the schema every index was created with.
type PGVector struct {
	pool   *pgxpool.Pool
	schema Schema
}

// NewPGVector returns an index handle; nothing is created until Create.
func NewPGVector(pool *pgxpool.Pool, schema Schema) *PGVector {
	return &PGVector{pool: pool, schema: schema}
}

func (p *PGVector) Schema() Schema { return p.schema }

var nonIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// tableName maps an index name onto its backing table.
func tableName(name string) string {
	return "vidx_" + nonIdent.ReplaceAllString(strings.ToLower(name), "_")
}

func opClass(m Metric) string {
	switch m {
	case L2:
		return "vector_l2_ops"
	case InnerProduct:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

func operator(m Metric) string {
	switch m {
	case L2:
		return "<->"
	case InnerProduct:
		return "<#>"
	default:
		return "<=>"
	}
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrStoreUnavailable, err)
}

const catalogDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS vector_indexes (
  name        TEXT PRIMARY KEY,
  table_name  TEXT NOT NULL,
  dimension   INT NOT NULL,
  metric      TEXT NOT NULL,
  layout      TEXT NOT NULL,
  created_at  TIMESTAMP WITH TIME ZONE DEFAULT now()
);`

// Create declares the index table, its field indexes and the vector index.
func (p *PGVector) Create(ctx context.Context, schema Schema, force bool) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return unavailable("create index "+schema.Name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, catalogDDL); err != nil {
		return unavailable("create index catalog", err)
	}

	existing, found, err := lookup(ctx, tx, schema.Name)
	if err != nil {
		return unavailable("create index "+schema.Name, err)
	}
	if found && !force {
		if !existing.sameShape(schema) {
			return fmt.Errorf("%w: %s (dim %d, %s, %s)", ErrIndexExists, existing.Name, existing.Dimension, existing.Metric, existing.Layout)
		}
		if err := tx.Commit(ctx); err != nil {
			return unavailable("create index "+schema.Name, err)
		}
		p.schema = schema
		return nil
	}

	table := pgx.Identifier{tableName(schema.Name)}.Sanitize()
	if found {
		if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return unavailable("drop index "+schema.Name, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM vector_indexes WHERE name = $1`, schema.Name); err != nil {
			return unavailable("drop index "+schema.Name, err)
		}
	}

	ddl := []string{
		fmt.Sprintf(`CREATE TABLE %s (
  chunk_id     TEXT PRIMARY KEY,
  filename     TEXT NOT NULL,
  page_number  INT NOT NULL,
  content      TEXT NOT NULL,
  content_tsv  tsvector GENERATED ALWAYS AS (to_tsvector('english', coalesce(content, ''))) STORED,
  embedding    vector(%d) NOT NULL,
  loaded_at    TIMESTAMP WITH TIME ZONE DEFAULT now()
)`, table, schema.Dimension),
		fmt.Sprintf(`CREATE INDEX ON %s (filename)`, table),
		fmt.Sprintf(`CREATE INDEX ON %s (page_number)`, table),
		fmt.Sprintf(`CREATE INDEX ON %s USING GIN (content_tsv)`, table),
	}
	switch schema.Layout {
	case HNSW:
		ddl = append(ddl, fmt.Sprintf(`CREATE INDEX ON %s USING hnsw (embedding %s)`, table, opClass(schema.Metric)))
	case IVFFlat:
		ddl = append(ddl, fmt.Sprintf(`CREATE INDEX ON %s USING ivfflat (embedding %s) WITH (lists = 100)`, table, opClass(schema.Metric)))
	}
	for _, q := range ddl {
		if _, err := tx.Exec(ctx, q); err != nil {
			return unavailable("create index "+schema.Name, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO vector_indexes (name, table_name, dimension, metric, layout) VALUES ($1, $2, $3, $4, $5)`,
		schema.Name, tableName(schema.Name), schema.Dimension, string(schema.Metric), string(schema.Layout),
	); err != nil {
		return unavailable("create index "+schema.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("create index "+schema.Name, err)
	}
	p.schema = schema
	return nil
}

// Load upserts one chunk into the index table.
func (p *PGVector) Load(ctx context.Context, c models.Chunk) error {
	if err := store.Validate(c); err != nil {
		return err
	}
	if err := checkDim(p.schema, c.ID, c.Embedding); err != nil {
		return err
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (chunk_id, filename, page_number, content, embedding)
		VALUES ($1, $2, $3, $4, $5::vector)
		ON CONFLICT (chunk_id) DO UPDATE SET
			filename    = EXCLUDED.filename,
			page_number = EXCLUDED.page_number,
			content     = EXCLUDED.content,
			embedding   = EXCLUDED.embedding,
			loaded_at   = now();`, pgx.Identifier{tableName(p.schema.Name)}.Sanitize())

	_, err := p.pool.Exec(ctx, q, c.ID, c.Filename, c.PageNumber, c.Content, pgvector.NewVector(c.Embedding))
	if err != nil {
		if isUndefinedTable(err) {
			return errNotCreated(p.schema.Name)
		}
		return unavailable("load "+c.ID, err)
	}
	return nil
}

// Search issues a k-nearest-neighbour query against the vector field and
// returns content, filename, page_number and chunk_id per hit.
func (p *PGVector) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, unavailable("search "+p.schema.Name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	schema, found, err := lookup(ctx, tx, p.schema.Name)
	if err != nil {
		return nil, unavailable("search "+p.schema.Name, err)
	}
	if !found {
		return []Hit{}, nil
	}
	if err := checkDim(schema, "query", vec); err != nil {
		return nil, err
	}

	if schema.Layout == HNSW && p.schema.EfSearch > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('hnsw.ef_search', $1, true)`, strconv.Itoa(p.schema.EfSearch)); err != nil {
			return nil, unavailable("search "+p.schema.Name, err)
		}
	}

	op := operator(schema.Metric)
	q := fmt.Sprintf(`
		SELECT chunk_id, filename, page_number, content, embedding %s $1::vector AS distance
		FROM %s
		ORDER BY embedding %s $1::vector
		LIMIT $2`, op, pgx.Identifier{tableName(schema.Name)}.Sanitize(), op)

	rows, err := tx.Query(ctx, q, pgvector.NewVector(vec), k)
	if err != nil {
		if isUndefinedTable(err) {
			return []Hit{}, nil
		}
		return nil, unavailable("search "+p.schema.Name, err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, k)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Chunk.ID, &h.Chunk.Filename, &h.Chunk.PageNumber, &h.Chunk.Content, &h.Distance); err != nil {
			return nil, unavailable("search "+p.schema.Name, err)
		}
		h.Score = ScoreFromDistance(schema.Metric, h.Distance)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("search "+p.schema.Name, err)
	}
	return hits, nil
}

// Exists reports whether the index has been created.
func (p *PGVector) Exists(ctx context.Context) (bool, error) {
	_, found, err := lookup(ctx, p.pool, p.schema.Name)
	if err != nil {
		return false, unavailable("index exists "+p.schema.Name, err)
	}
	return found, nil
}

// Drop removes the index table and its catalog entry.
func (p *PGVector) Drop(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return unavailable("drop index "+p.schema.Name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, catalogDDL); err != nil {
		return unavailable("drop index "+p.schema.Name, err)
	}
	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS `+pgx.Identifier{tableName(p.schema.Name)}.Sanitize()); err != nil {
		return unavailable("drop index "+p.schema.Name, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM vector_indexes WHERE name = $1`, p.schema.Name); err != nil {
		return unavailable("drop index "+p.schema.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable("drop index "+p.schema.Name, err)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// lookup reads an index schema from the catalog. A missing catalog table is
// the same as a missing index.
func lookup(ctx context.Context, q querier, name string) (Schema, bool, error) {
	var (
		s              Schema
		metric, layout string
	)
	err := q.QueryRow(ctx,
		`SELECT name, dimension, metric, layout FROM vector_indexes WHERE name = $1`, name,
	).Scan(&s.Name, &s.Dimension, &metric, &layout)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return Schema{}, false, nil
		}
		return Schema{}, false, err
	}
	s.Metric, s.Layout = Metric(metric), Layout(layout)
	return s, true, nil
}
