// Package index builds named vector search structures over stored chunks so
// that similarity queries do not need to enumerate the whole corpus.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
)

var (
	// ErrIndexExists is returned by Create when an index of the same name but
	// a different schema already exists and force was not requested.
	ErrIndexExists = errors.New("index already exists with a different schema")

	// ErrDimensionMismatch is returned when a vector does not match the
	// index dimension. It is also a store.ErrMalformedChunk.
	ErrDimensionMismatch = fmt.Errorf("%w: embedding dimension mismatch", store.ErrMalformedChunk)

	// ErrIndexMissing is returned by Load when the index was never created.
	ErrIndexMissing = errors.New("index does not exist")
)

// Metric is the distance function of the vector field.
type Metric string

const (
	Cosine       Metric = "cosine"
	L2           Metric = "l2"
	InnerProduct Metric = "ip"
)

// Layout is the storage layout of the vector field. Flat is exact; HNSW and
// IVFFlat are approximate.
type Layout string

const (
	Flat    Layout = "flat"
	HNSW    Layout = "hnsw"
	IVFFlat Layout = "ivfflat"
)

// Schema declares an index. Every index carries the fields chunk_id (tag),
// filename (tag), page_number (sortable numeric), content (text) and
// embedding (vector of Dimension under Metric, stored as Layout).
type Schema struct {
	Name      string
	Dimension int
	Metric    Metric
	Layout    Layout
	// EfSearch tunes HNSW recall at query time; 0 keeps the server default.
	EfSearch int
}

func (s Schema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("index name is required")
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("index %s: dimension must be positive, got %d", s.Name, s.Dimension)
	}
	switch s.Metric {
	case Cosine, L2, InnerProduct:
	default:
		return fmt.Errorf("index %s: unsupported metric %q", s.Name, s.Metric)
	}
	switch s.Layout {
	case Flat:
	case HNSW, IVFFlat:
		if s.Dimension > MaxANNDimension {
			return fmt.Errorf("index %s: %s layout supports at most %d dimensions, got %d (use the flat layout)", s.Name, s.Layout, MaxANNDimension, s.Dimension)
		}
	default:
		return fmt.Errorf("index %s: unsupported layout %q", s.Name, s.Layout)
	}
	return nil
}

// MaxANNDimension is the widest vector pgvector can build an hnsw or ivfflat
// index over.
const MaxANNDimension = 2000

// sameShape reports whether two schemas describe the same stored structure.
// EfSearch is a query-time knob and does not count.
func (s Schema) sameShape(o Schema) bool {
	return s.Name == o.Name && s.Dimension == o.Dimension && s.Metric == o.Metric && s.Layout == o.Layout
}

// Hit is one nearest-neighbour match in native index order. Distance is the
// backend's raw distance; Score is the higher-is-better similarity derived
// from it.
type Hit struct {
	Chunk    models.Chunk
	Distance float64
	Score    float64
}

// Index is a named, schema-bound vector search structure.
type Index interface {
	Schema() Schema
	// Create declares the index. An identical existing index is kept; a
	// different one is replaced only when force is set.
	Create(ctx context.Context, schema Schema, force bool) error
	// Load upserts one chunk by id (last write wins).
	Load(ctx context.Context, c models.Chunk) error
	// Search returns up to k hits nearest first. A missing or empty index
	// yields an empty slice and no error.
	Search(ctx context.Context, vec []float32, k int) ([]Hit, error)
	Exists(ctx context.Context) (bool, error)
	Drop(ctx context.Context) error
}

// ScoreFromDistance turns a backend distance into a similarity.
func ScoreFromDistance(m Metric, d float64) float64 {
	switch m {
	case Cosine:
		return 1 - d
	case InnerProduct:
		// pgvector's <#> yields the negated inner product
		return -d
	default:
		return 1 / (1 + d)
	}
}

// Distance computes the metric distance between two equal-length vectors
// with the same conventions as pgvector. A zero vector has cosine distance 1.
func Distance(m Metric, a, b []float32) float64 {
	var dot, na, nb, sq float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		sq += (x - y) * (x - y)
	}
	switch m {
	case Cosine:
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	case InnerProduct:
		return -dot
	default:
		return math.Sqrt(sq)
	}
}

func errNotCreated(name string) error {
	return fmt.Errorf("index %s: %w", name, ErrIndexMissing)
}

func checkDim(schema Schema, id string, vec []float32) error {
	if len(vec) != schema.Dimension {
		return fmt.Errorf("%w: %s has %d values, index %s expects %d", ErrDimensionMismatch, id, len(vec), schema.Name, schema.Dimension)
	}
	return nil
}
