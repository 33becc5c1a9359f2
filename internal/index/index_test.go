package index

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
)

func testSchema() Schema {
	return Schema{Name: "docsearch_test_index", Dimension: 3, Metric: Cosine, Layout: Flat}
}

func vecChunk(ordinal int, vec ...float32) models.Chunk {
	return models.Chunk{
		ID:         models.ChunkID("doc.pdf", ordinal),
		Filename:   "doc.pdf",
		PageNumber: ordinal + 1,
		Content:    "content of chunk " + models.ChunkID("doc.pdf", ordinal),
		Embedding:  vec,
	}
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Chunk.ID
	}
	return ids
}

// runIndexSuite exercises the Index contract against any backend.
func runIndexSuite(t *testing.T, newIndex func(t *testing.T) Index) {
	ctx := context.Background()
	query := []float32{1, 0, 0}

	t.Run("search before create is empty", func(t *testing.T) {
		idx := newIndex(t)
		hits, err := idx.Search(ctx, query, 5)
		require.NoError(t, err)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)

		exists, err := idx.Exists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("load before create fails", func(t *testing.T) {
		idx := newIndex(t)
		err := idx.Load(ctx, vecChunk(0, 1, 0, 0))
		assert.ErrorIs(t, err, ErrIndexMissing)
	})

	t.Run("nearest first with true scores", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Create(ctx, testSchema(), false))
		require.NoError(t, idx.Load(ctx, vecChunk(0, 1, 0, 0)))
		require.NoError(t, idx.Load(ctx, vecChunk(1, 0, 1, 0)))
		require.NoError(t, idx.Load(ctx, vecChunk(2, 0.9, 0.1, 0)))

		hits, err := idx.Search(ctx, query, 5)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []string{"doc.pdf_chunk_0", "doc.pdf_chunk_2", "doc.pdf_chunk_1"}, hitIDs(hits))
		assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
		assert.InDelta(t, 0.0, hits[0].Distance, 1e-5)
		assert.InDelta(t, 0.0, hits[2].Score, 1e-5)
		assert.Greater(t, hits[1].Score, hits[2].Score)

		assert.Equal(t, "doc.pdf", hits[0].Chunk.Filename)
		assert.Equal(t, 1, hits[0].Chunk.PageNumber)
		assert.Equal(t, "content of chunk doc.pdf_chunk_0", hits[0].Chunk.Content)
	})

	t.Run("k limits and non-positive k", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Create(ctx, testSchema(), false))
		for i := 0; i < 4; i++ {
			require.NoError(t, idx.Load(ctx, vecChunk(i, 1, float32(i), 0)))
		}
		hits, err := idx.Search(ctx, query, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"doc.pdf_chunk_0", "doc.pdf_chunk_1"}, hitIDs(hits))

		hits, err = idx.Search(ctx, query, 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("last write wins", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Create(ctx, testSchema(), false))
		require.NoError(t, idx.Load(ctx, vecChunk(0, 0, 1, 0)))
		require.NoError(t, idx.Load(ctx, vecChunk(1, 0, 0, 1)))
		require.NoError(t, idx.Load(ctx, vecChunk(0, 1, 0, 0)))

		hits, err := idx.Search(ctx, query, 5)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "doc.pdf_chunk_0", hits[0].Chunk.ID)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	})

	t.Run("dimension mismatch is malformed", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Create(ctx, testSchema(), false))
		err := idx.Load(ctx, vecChunk(0, 1, 0))
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.ErrorIs(t, err, store.ErrMalformedChunk)

		err = idx.Load(ctx, models.Chunk{ID: "x", Filename: "doc.pdf", PageNumber: 1, Embedding: []float32{1, 0, 0}})
		assert.ErrorIs(t, err, store.ErrMalformedChunk)

		_, err = idx.Search(ctx, []float32{1, 0}, 3)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("empty index still checks query dimension", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Create(ctx, testSchema(), false))
		_, err := idx.Search(ctx, []float32{1, 0}, 3)
		assert.ErrorIs(t, err, ErrDimensionMismatch)

		hits, err := idx.Search(ctx, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("create semantics", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Create(ctx, testSchema(), false))
		require.NoError(t, idx.Load(ctx, vecChunk(0, 1, 0, 0)))

		// identical schema keeps the data
		require.NoError(t, idx.Create(ctx, testSchema(), false))
		hits, err := idx.Search(ctx, query, 5)
		require.NoError(t, err)
		assert.Len(t, hits, 1)

		other := testSchema()
		other.Metric = L2
		assert.ErrorIs(t, idx.Create(ctx, other, false), ErrIndexExists)

		require.NoError(t, idx.Create(ctx, other, true))
		hits, err = idx.Search(ctx, query, 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
		assert.Equal(t, L2, idx.Schema().Metric)
	})

	t.Run("drop", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Create(ctx, testSchema(), false))
		require.NoError(t, idx.Load(ctx, vecChunk(0, 1, 0, 0)))
		require.NoError(t, idx.Drop(ctx))

		exists, err := idx.Exists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)
		hits, err := idx.Search(ctx, query, 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestMemoryIndex(t *testing.T) {
	runIndexSuite(t, func(t *testing.T) Index { return NewMemory(testSchema()) })
}

func TestMemoryIndex_TiesKeepLoadOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(testSchema())
	require.NoError(t, idx.Create(ctx, testSchema(), false))
	for _, i := range []int{3, 1, 2} {
		require.NoError(t, idx.Load(ctx, vecChunk(i, 0, 1, 0)))
	}
	hits, err := idx.Search(ctx, []float32{0, 1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.pdf_chunk_3", "doc.pdf_chunk_1", "doc.pdf_chunk_2"}, hitIDs(hits))
}

func TestPGVectorIndex(t *testing.T) {
	url := os.Getenv("DOCSEARCH_TEST_DB_URL")
	if url == "" {
		t.Skip("DOCSEARCH_TEST_DB_URL not set")
	}
	runIndexSuite(t, func(t *testing.T) Index {
		t.Helper()
		ctx := context.Background()
		s, err := store.NewPostgres(ctx, url)
		require.NoError(t, err)
		t.Cleanup(s.Close)

		idx := NewPGVector(s.Pool(), testSchema())
		require.NoError(t, idx.Drop(ctx))
		t.Cleanup(func() { _ = idx.Drop(ctx) })
		return idx
	})
}

func TestScoreFromDistance(t *testing.T) {
	tests := []struct {
		metric Metric
		d      float64
		want   float64
	}{
		{Cosine, 0, 1},
		{Cosine, 0.25, 0.75},
		{Cosine, 2, -1},
		{InnerProduct, -3, 3},
		{L2, 0, 1},
		{L2, 1, 0.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ScoreFromDistance(tt.metric, tt.d), 1e-9, "%s %v", tt.metric, tt.d)
	}
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 0, Distance(Cosine, []float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 1, Distance(Cosine, []float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, Distance(Cosine, []float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, Distance(Cosine, []float32{0, 0}, []float32{1, 0}))
	assert.InDelta(t, 5, Distance(L2, []float32{0, 0}, []float32{3, 4}), 1e-9)
	assert.InDelta(t, -11, Distance(InnerProduct, []float32{1, 2}, []float32{3, 4}), 1e-9)
}

func TestSchemaValidate(t *testing.T) {
	require.NoError(t, testSchema().Validate())

	bad := []Schema{
		{Name: " ", Dimension: 3, Metric: Cosine, Layout: Flat},
		{Name: "x", Dimension: 0, Metric: Cosine, Layout: Flat},
		{Name: "x", Dimension: 3, Metric: "hamming", Layout: Flat},
		{Name: "x", Dimension: 3, Metric: Cosine, Layout: "btree"},
		{Name: "x", Dimension: 3072, Metric: Cosine, Layout: HNSW},
		{Name: "x", Dimension: 2001, Metric: L2, Layout: IVFFlat},
	}
	for _, s := range bad {
		assert.Error(t, s.Validate(), "%+v", s)
	}

	assert.NoError(t, Schema{Name: "x", Dimension: 2000, Metric: Cosine, Layout: HNSW}.Validate())
	assert.NoError(t, Schema{Name: "x", Dimension: 3072, Metric: Cosine, Layout: Flat}.Validate())
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "vidx_docsearch_chunks", tableName("docsearch_chunks"))
	assert.Equal(t, "vidx_index2z", tableName("index2Z"))
	assert.Equal(t, "vidx_my_index_v2", tableName("my-index v2"))
}
