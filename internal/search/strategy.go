package search

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/docsearch/internal/index"
	"github.com/seanblong/docsearch/pkg/models"
)

// Strategy ranks the corpus against a query vector. Results are ordered by
// descending score and hold at most k entries.
type Strategy interface {
	Name() string
	Search(ctx context.Context, vec []float32, k int) ([]models.RankedResult, error)
}

// Corpus enumerates every stored chunk in a stable order.
type Corpus interface {
	All(ctx context.Context) ([]models.Chunk, error)
}

// Cosine returns the cosine similarity of a and b. Vectors with zero norm or
// different lengths score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

// ScanStrategy scores every chunk of the corpus by exact cosine similarity.
// Cost is linear in corpus size, so it suits small corpora or a missing index.
type ScanStrategy struct {
	Corpus Corpus
}

func NewScanStrategy(corpus Corpus) *ScanStrategy {
	return &ScanStrategy{Corpus: corpus}
}

func (s *ScanStrategy) Name() string { return "scan" }

func (s *ScanStrategy) Search(ctx context.Context, vec []float32, k int) ([]models.RankedResult, error) {
	if k <= 0 {
		return []models.RankedResult{}, nil
	}
	chunks, err := s.Corpus.All(ctx)
	if err != nil {
		return nil, err
	}

	top := make(candidates, 0, min(k, len(chunks)))
	skipped := 0
	for ord, c := range chunks {
		if len(c.Embedding) != len(vec) {
			skipped++
			continue
		}
		cand := candidate{chunk: c, score: Cosine(vec, c.Embedding), ord: ord}
		if len(top) < k {
			heap.Push(&top, cand)
		} else if worse(top[0], cand) {
			top[0] = cand
			heap.Fix(&top, 0)
		}
	}
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Int("dim", len(vec)).Msg("chunks with a different embedding dimension were not scored")
	}

	results := make([]models.RankedResult, len(top))
	for i := len(top) - 1; i >= 0; i-- {
		c := heap.Pop(&top).(candidate)
		results[i] = models.RankedResult{Chunk: c.chunk, Score: c.score}
	}
	return results, nil
}

type candidate struct {
	chunk models.Chunk
	score float64
	ord   int
}

// worse orders candidates by score and, for equal scores, puts the later
// enumerated chunk behind the earlier one. The outcome matches a stable sort.
func worse(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.ord > b.ord
}

// candidates is a min-heap whose root is the weakest kept candidate.
type candidates []candidate

func (h candidates) Len() int           { return len(h) }
func (h candidates) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h candidates) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidates) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidates) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// IndexStrategy delegates ranking to a vector index and reports the index's
// own similarity for every hit.
type IndexStrategy struct {
	Index index.Index
}

func NewIndexStrategy(idx index.Index) *IndexStrategy {
	return &IndexStrategy{Index: idx}
}

func (s *IndexStrategy) Name() string { return "index" }

func (s *IndexStrategy) Search(ctx context.Context, vec []float32, k int) ([]models.RankedResult, error) {
	if k <= 0 {
		return []models.RankedResult{}, nil
	}
	hits, err := s.Index.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	results := make([]models.RankedResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, models.RankedResult{Chunk: h.Chunk, Score: h.Score, Distance: h.Distance})
	}
	return results, nil
}

// AutoStrategy uses the index once it exists and scans the corpus otherwise.
type AutoStrategy struct {
	Index *IndexStrategy
	Scan  *ScanStrategy
}

func NewAutoStrategy(idx index.Index, corpus Corpus) *AutoStrategy {
	return &AutoStrategy{Index: NewIndexStrategy(idx), Scan: NewScanStrategy(corpus)}
}

func (s *AutoStrategy) Name() string { return "auto" }

func (s *AutoStrategy) Search(ctx context.Context, vec []float32, k int) ([]models.RankedResult, error) {
	exists, err := s.Index.Index.Exists(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("index lookup failed, scanning the corpus")
	}
	if exists {
		return s.Index.Search(ctx, vec, k)
	}
	return s.Scan.Search(ctx, vec, k)
}

// New builds the named strategy.
func New(name string, idx index.Index, corpus Corpus) (Strategy, error) {
	switch name {
	case "index":
		return NewIndexStrategy(idx), nil
	case "scan":
		return NewScanStrategy(corpus), nil
	case "auto", "":
		return NewAutoStrategy(idx, corpus), nil
	default:
		return nil, fmt.Errorf("unknown search strategy %q", name)
	}
}
