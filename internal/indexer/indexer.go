package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/seanblong/docsearch/internal/ai"
	"github.com/seanblong/docsearch/internal/index"
	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Options tunes an ingestion run.
type Options struct {
	Root     string
	Workers  int
	EmbedRPS float64
}

// Indexer ingests every supported document under Root into the chunk store
// and the vector index.
type Indexer struct {
	Store   store.ChunkStore
	Index   index.Index
	Client  ai.Client
	Root    string
	Walker  FileSystemWalker
	Reader  PageReader
	Workers int
	Limiter *rate.Limiter
}

// New creates a new Indexer reading plain text documents from disk.
func New(s store.ChunkStore, idx index.Index, client ai.Client, opts Options) *Indexer {
	ix := NewWithDependencies(s, idx, client, opts.Root, &DefaultFileSystemWalker{}, &TextPageReader{Files: &DefaultFileReader{}})
	ix.Workers = opts.Workers
	ix.Limiter = newLimiter(opts.EmbedRPS)
	return ix
}

// NewWithDependencies creates a new Indexer instance with custom dependencies for testing
func NewWithDependencies(s store.ChunkStore, idx index.Index, client ai.Client, root string, walker FileSystemWalker, reader PageReader) *Indexer {
	return &Indexer{
		Store:   s,
		Index:   idx,
		Client:  client,
		Root:    root,
		Walker:  walker,
		Reader:  reader,
		Workers: 1,
		Limiter: newLimiter(0),
	}
}

// newLimiter throttles embedding calls to rps per second; 0 is unlimited.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}

// EnsureIndex prepares the chunk store and declares the vector index. With
// force an existing index is dropped and rebuilt.
func (ix *Indexer) EnsureIndex(ctx context.Context, force bool) error {
	if err := ix.Store.Migrate(ctx); err != nil {
		return err
	}
	schema := ix.Index.Schema()
	if err := ix.Index.Create(ctx, schema, force); err != nil {
		return err
	}
	log.Info().Str("index", schema.Name).
		Int("dim", schema.Dimension).
		Str("metric", string(schema.Metric)).
		Str("layout", string(schema.Layout)).
		Bool("force", force).
		Msg("index ready")
	return nil
}

// workItem represents a document to be processed
type workItem struct {
	filename string
	pages    []Page
}

type counters struct {
	documents, chunks, succeeded, failed, reused atomic.Int64
}

// processWorkItem chunks one document and writes every chunk. Per-chunk
// failures are counted; only an unreachable store stops the run.
func (ix *Indexer) processWorkItem(ctx context.Context, item workItem, n *counters) error {
	drafts := chunkPages(item.filename, item.pages)
	n.chunks.Add(int64(len(drafts)))
	for _, c := range drafts {
		if err := ctx.Err(); err != nil {
			return err
		}
		reused, err := ix.processChunk(ctx, c)
		if err != nil {
			n.failed.Add(1)
			if errors.Is(err, store.ErrStoreUnavailable) {
				return err
			}
			log.Warn().Err(err).Str("chunk_id", c.ID).Msg("chunk skipped")
			continue
		}
		n.succeeded.Add(1)
		if reused {
			n.reused.Add(1)
		}
		log.Debug().Str("chunk_id", c.ID).
			Int("page", c.PageNumber).
			Bool("reused", reused).
			Msg("indexed chunk")
	}
	return nil
}

// processChunk embeds c unless the store already holds it with the same
// content and a usable embedding, then writes it to the store and the index.
func (ix *Indexer) processChunk(ctx context.Context, c models.Chunk) (bool, error) {
	reused := false
	dim := ix.Index.Schema().Dimension
	existing, found, err := ix.Store.Get(ctx, c.ID)
	if err != nil {
		log.Warn().Err(err).Str("chunk_id", c.ID).Msg("stored chunk lookup failed, embedding again")
	}
	if found && existing.Content == c.Content && len(existing.Embedding) == dim {
		c.Embedding = existing.Embedding
		reused = true
	} else {
		if err := ix.Limiter.Wait(ctx); err != nil {
			return false, err
		}
		vec, err := ix.Client.Embed(ctx, c.Content)
		if err != nil {
			return false, err
		}
		c.Embedding = vec
	}
	if len(c.Embedding) != dim {
		return false, fmt.Errorf("%w: %s has %d values, index expects %d", index.ErrDimensionMismatch, c.ID, len(c.Embedding), dim)
	}

	if err := ix.Store.Put(ctx, c); err != nil {
		return false, fmt.Errorf("store %s: %w", c.ID, err)
	}
	if err := ix.Index.Load(ctx, c); err != nil {
		return false, fmt.Errorf("index %s: %w", c.ID, err)
	}
	return reused, nil
}

// Run walks Root and ingests every supported document. The report is
// returned even when the run stops early.
func (ix *Indexer) Run(ctx context.Context) (models.IngestReport, error) {
	report := models.IngestReport{RunID: uuid.NewString()}
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := max(ix.Workers, 1)
	log.Info().Str("run_id", report.RunID).Str("root", ix.Root).Int("workers", numWorkers).Msg("starting concurrent indexing")

	// Create channels for work distribution
	workChan := make(chan workItem, numWorkers*2)
	errorChan := make(chan error, 1)
	var n counters

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Debug().Int("worker", workerID).Msg("worker started")

			for item := range workChan {
				if err := ix.processWorkItem(ctx, item, &n); err != nil {
					select {
					case errorChan <- err:
						cancel()
					default:
						log.Error().Err(err).Str("filename", item.filename).Msg("worker processing error")
					}
				}
			}

			log.Debug().Int("worker", workerID).Msg("worker finished")
		}(i)
	}

	walkErr := ix.Walker.Walk(ix.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			// de is nil for walkers that only hand over file paths
			if de != nil && de.IsDir() {
				if path != ix.Root && shouldSkip(path+"/") {
					return godirwalk.SkipThis
				}
				return nil
			}
			if shouldSkip(path) || !ix.Reader.Supports(path) {
				return nil
			}

			pages, err := ix.Reader.ReadPages(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read document")
				return nil
			}
			if len(pages) == 0 {
				log.Warn().Str("path", path).Msg("no text in document")
				return nil
			}

			n.documents.Add(1)
			select {
			case workChan <- workItem{filename: documentName(ix.Root, path), pages: pages}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})

	close(workChan)
	wg.Wait()

	report.Documents = int(n.documents.Load())
	report.Chunks = int(n.chunks.Load())
	report.Succeeded = int(n.succeeded.Load())
	report.Failed = int(n.failed.Load())
	report.Reused = int(n.reused.Load())
	report.Duration = time.Since(start)

	select {
	case err := <-errorChan:
		return report, err
	default:
	}
	if walkErr != nil {
		return report, walkErr
	}

	log.Info().Str("run_id", report.RunID).
		Int("documents", report.Documents).
		Int("chunks", report.Chunks).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("reused", report.Reused).
		Dur("duration", report.Duration).
		Msg("ingestion finished")
	return report, nil
}

// shouldSkip returns true if the file at path should be skipped.
func shouldSkip(path string) bool {
	p := strings.ToLower(filepath.ToSlash(path))
	for _, dir := range []string{"/.git/", "/node_modules/", "/vendor/", "/.venv/", "/venv/", "/__pycache__/", "/.cache/", "/.idea/"} {
		if strings.Contains(p, dir) {
			return true
		}
	}
	return strings.HasPrefix(filepath.Base(p), "~$")
}

// documentName is the slash-separated path of a document relative to root.
func documentName(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}
