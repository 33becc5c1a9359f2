// Package app wires configuration into the provider client, chunk store,
// vector index and search service shared by every binary.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/docsearch/internal/ai"
	"github.com/seanblong/docsearch/internal/config"
	"github.com/seanblong/docsearch/internal/index"
	"github.com/seanblong/docsearch/internal/search"
	"github.com/seanblong/docsearch/internal/store"
)

// App owns the connections of one process. Close releases them.
type App struct {
	Config config.Specification
	Client ai.Client
	Store  store.ChunkStore
	Index  index.Index
	Search *search.Service
}

// NewLogger builds the process logger and installs it as the global one.
func NewLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}

// ClientConfig maps the provider settings onto an ai.ClientConfig.
func ClientConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	provider, err := ai.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return &ai.ClientConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		EmbedModel:  cfg.EmbedModel,
		AnswerModel: cfg.AnswerModel,
		Dim:         cfg.Dim,
		ProjectID:   cfg.ProjectID,
		Provider:    provider,
		Location:    cfg.Location,
		Timeout:     cfg.ProviderTimeout,
	}, nil
}

// Open connects everything cfg describes. An unreachable store is fatal.
func Open(ctx context.Context, cfg config.Specification) (*App, error) {
	clientConfig, err := ClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create provider client: %w", err)
	}
	if client.Dim() <= 0 {
		return nil, errors.New("embedding dimension must be set")
	}
	log.Info().Str("provider", string(clientConfig.Provider)).Int("embedding_dim", client.Dim()).Msg("provider client initialized")

	schema := index.Schema{
		Name:      cfg.Index.Name,
		Dimension: client.Dim(),
		Metric:    index.Metric(cfg.Index.Metric),
		Layout:    index.Layout(cfg.Index.Layout),
		EfSearch:  cfg.Index.EfSearch,
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	var (
		st  store.ChunkStore
		idx index.Index
	)
	switch cfg.StoreBackend {
	case "postgres":
		pg, err := store.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		st, idx = pg, index.NewPGVector(pg.Pool(), schema)
	case "sqlite":
		lite, err := store.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st = lite
		idx = newStoreIndex(lite, schema)
	case "memory":
		mem := store.NewMemory()
		st, idx = mem, newStoreIndex(mem, schema)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	strategy, err := search.New(cfg.Strategy, idx, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	log.Info().Str("backend", cfg.StoreBackend).Str("index", schema.Name).Str("strategy", strategy.Name()).Msg("store ready")

	return &App{
		Config: cfg,
		Client: client,
		Store:  st,
		Index:  idx,
		Search: search.NewService(client, strategy),
	}, nil
}

// Rebuild creates an in-process index and loads every stored chunk into it.
// An empty store leaves the index uncreated.
func Rebuild(ctx context.Context, st store.ChunkStore, idx *index.Memory) error {
	chunks, err := st.All(ctx)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := idx.Create(ctx, idx.Schema(), false); err != nil {
		return err
	}
	skipped := 0
	for _, c := range chunks {
		if err := idx.Load(ctx, c); err != nil {
			skipped++
			log.Warn().Err(err).Str("chunk_id", c.ID).Msg("chunk left out of index")
		}
	}
	log.Debug().Int("chunks", len(chunks)-skipped).Int("skipped", skipped).Msg("in-process index rebuilt")
	return nil
}

// storeIndex is the in-process index of the sqlite and memory backends. The
// chunk store is its source of truth: every search reads a fresh snapshot so
// chunks committed by another process are visible to the next query.
type storeIndex struct {
	*index.Memory
	store store.ChunkStore
}

func newStoreIndex(st store.ChunkStore, schema index.Schema) *storeIndex {
	return &storeIndex{Memory: index.NewMemory(schema), store: st}
}

// Exists reports whether the index was created in this process or the store
// already holds chunks for it.
func (s *storeIndex) Exists(ctx context.Context) (bool, error) {
	if ok, _ := s.Memory.Exists(ctx); ok {
		return true, nil
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *storeIndex) Search(ctx context.Context, vec []float32, k int) ([]index.Hit, error) {
	snap := index.NewMemory(s.Schema())
	if err := Rebuild(ctx, s.store, snap); err != nil {
		return nil, err
	}
	return snap.Search(ctx, vec, k)
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}
