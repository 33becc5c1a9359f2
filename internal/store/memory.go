package store

import (
	"context"
	"sync"
	"time"

	"github.com/seanblong/docsearch/pkg/models"
)

// Memory is an in-process ChunkStore. Records are copied on the way in and
// on the way out, so readers never observe a half-written chunk.
type Memory struct {
	mu     sync.RWMutex
	order  []string
	chunks map[string]models.Chunk
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{chunks: make(map[string]models.Chunk), now: time.Now}
}

func (m *Memory) Migrate(ctx context.Context) error { return nil }

func (m *Memory) Put(ctx context.Context, c models.Chunk) error {
	if err := Validate(c); err != nil {
		return err
	}
	c = cloneChunk(c)

	m.mu.Lock()
	defer m.mu.Unlock()
	prev, exists := m.chunks[c.ID]
	if exists {
		c.CreatedAt = prev.CreatedAt
	} else {
		m.order = append(m.order, c.ID)
		if c.CreatedAt.IsZero() {
			c.CreatedAt = m.now().UTC()
		}
	}
	m.chunks[c.ID] = c
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (models.Chunk, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[id]
	if !ok {
		return models.Chunk{}, false, nil
	}
	return cloneChunk(c), true, nil
}

func (m *Memory) All(ctx context.Context) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Chunk, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneChunk(m.chunks[id]))
	}
	return out, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order), nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() {}
