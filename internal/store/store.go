package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seanblong/docsearch/pkg/models"
)

var (
	// ErrStoreUnavailable wraps failures to reach the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrMalformedChunk marks a chunk missing a required field. Ingestion
	// skips such chunks and keeps going.
	ErrMalformedChunk = errors.New("malformed chunk")
)

// ChunkStore defines the methods that every chunk store backend implements.
// All returns chunks in a stable order: first insertion first, unaffected by
// later overwrites of the same chunk id.
type ChunkStore interface {
	Migrate(ctx context.Context) error
	Put(ctx context.Context, c models.Chunk) error
	Get(ctx context.Context, id string) (models.Chunk, bool, error)
	All(ctx context.Context) ([]models.Chunk, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close()
}

// Validate checks the fields every stored chunk must carry.
func Validate(c models.Chunk) error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return fmt.Errorf("%w: missing chunk id", ErrMalformedChunk)
	case strings.TrimSpace(c.Filename) == "":
		return fmt.Errorf("%w: %s: missing filename", ErrMalformedChunk, c.ID)
	case c.PageNumber < 1:
		return fmt.Errorf("%w: %s: page number %d is not positive", ErrMalformedChunk, c.ID, c.PageNumber)
	case strings.TrimSpace(c.Content) == "":
		return fmt.Errorf("%w: %s: empty content", ErrMalformedChunk, c.ID)
	case len(c.Embedding) == 0:
		return fmt.Errorf("%w: %s: missing embedding", ErrMalformedChunk, c.ID)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func cloneChunk(c models.Chunk) models.Chunk {
	if c.Embedding != nil {
		c.Embedding = append([]float32(nil), c.Embedding...)
	}
	return c
}
