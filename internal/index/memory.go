package index

import (
	"context"
	"slices"
	"sync"

	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
)

// Memory is an exact in-process index. It is what the pgvector flat layout
// computes, without a database.
type Memory struct {
	mu      sync.RWMutex
	schema  Schema
	created bool
	order   []string
	entries map[string]models.Chunk
}

func NewMemory(schema Schema) *Memory {
	return &Memory{schema: schema, entries: make(map[string]models.Chunk)}
}

func (m *Memory) Schema() Schema {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schema
}

func (m *Memory) Create(ctx context.Context, schema Schema, force bool) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created && !force {
		if m.schema.sameShape(schema) {
			m.schema.EfSearch = schema.EfSearch
			return nil
		}
		return ErrIndexExists
	}
	m.schema = schema
	m.created = true
	m.order = nil
	m.entries = make(map[string]models.Chunk)
	return nil
}

func (m *Memory) Load(ctx context.Context, c models.Chunk) error {
	if err := store.Validate(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.created {
		return errNotCreated(m.schema.Name)
	}
	if err := checkDim(m.schema, c.ID, c.Embedding); err != nil {
		return err
	}
	if _, ok := m.entries[c.ID]; !ok {
		m.order = append(m.order, c.ID)
	}
	c.Embedding = append([]float32(nil), c.Embedding...)
	m.entries[c.ID] = c
	return nil
}

func (m *Memory) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.created || k <= 0 {
		return []Hit{}, nil
	}
	if err := checkDim(m.schema, "query", vec); err != nil {
		return nil, err
	}
	if len(m.order) == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(m.order))
	for _, id := range m.order {
		c := m.entries[id]
		d := Distance(m.schema.Metric, vec, c.Embedding)
		c.Embedding = nil
		hits = append(hits, Hit{Chunk: c, Distance: d, Score: ScoreFromDistance(m.schema.Metric, d)})
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *Memory) Exists(ctx context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.created, nil
}

func (m *Memory) Drop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = false
	m.order = nil
	m.entries = make(map[string]models.Chunk)
	return nil
}
