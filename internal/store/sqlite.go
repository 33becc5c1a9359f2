package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/seanblong/docsearch/pkg/models"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLite is a single-file ChunkStore. Embeddings are stored as little-endian
// float32 blobs.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// WAL lets queries run while ingestion writes
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, unavailable("open", err)
	}
	s := &SQLite{db: db, path: path}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() { _ = s.db.Close() }

func (s *SQLite) Migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS chunks (
  seq          INTEGER PRIMARY KEY AUTOINCREMENT,
  chunk_id     TEXT NOT NULL UNIQUE,
  filename     TEXT NOT NULL,
  page_number  INTEGER NOT NULL,
  content      TEXT NOT NULL,
  embedding    BLOB NOT NULL,
  created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_filename_idx ON chunks (filename, page_number);
`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

func (s *SQLite) Put(ctx context.Context, c models.Chunk) error {
	if err := Validate(c); err != nil {
		return err
	}
	const q = `
		INSERT INTO chunks (chunk_id, filename, page_number, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (chunk_id) DO UPDATE SET
			filename    = excluded.filename,
			page_number = excluded.page_number,
			content     = excluded.content,
			embedding   = excluded.embedding`
	_, err := s.db.ExecContext(ctx, q,
		c.ID, c.Filename, c.PageNumber, c.Content,
		float32SliceToBytes(c.Embedding), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return unavailable("put "+c.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (models.Chunk, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chunk_id, filename, page_number, content, embedding, created_at
		FROM chunks WHERE chunk_id = ?`, id)
	c, err := scanSQLiteChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Chunk{}, false, nil
		}
		return models.Chunk{}, false, unavailable("get "+id, err)
	}
	return c, true, nil
}

func (s *SQLite) All(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, filename, page_number, content, embedding, created_at
		FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, unavailable("enumerate", err)
	}
	defer rows.Close()

	out := []models.Chunk{}
	for rows.Next() {
		c, err := scanSQLiteChunk(rows)
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

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteChunk(row rowScanner) (models.Chunk, error) {
	var (
		c       models.Chunk
		blob    []byte
		created string
	)
	if err := row.Scan(&c.ID, &c.Filename, &c.PageNumber, &c.Content, &blob, &created); err != nil {
		return models.Chunk{}, err
	}
	c.Embedding = bytesToFloat32Slice(blob)
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		c.CreatedAt = t
	}
	return c, nil
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
