// Package server exposes search, answers and chunk lookup over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/seanblong/docsearch/internal/auth"
	"github.com/seanblong/docsearch/internal/search"
	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
)

const (
	maxK          = 50
	searchTimeout = 10 * time.Second
	lookupTimeout = 5 * time.Second
)

// Searcher is the query side of search.Service.
type Searcher interface {
	Search(ctx context.Context, q string, k int) ([]models.RankedResult, error)
	Query(ctx context.Context, q string, k int) (models.Answer, error)
}

// Store is the part of the chunk store the API reads.
type Store interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, id string) (models.Chunk, bool, error)
}

type Server struct {
	Search Searcher
	Store  Store
	Auth   *auth.Authenticator
	TopK   int
	Logger zerolog.Logger
}

// Handler returns the routed API wrapped in request logging.
func (s *Server) Handler() http.Handler {
	protect := s.Auth.Middleware

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /auth/status", s.handleAuthStatus)
	mux.Handle("GET /search", protect(http.HandlerFunc(s.handleSearch)))
	mux.Handle("GET /query", protect(http.HandlerFunc(s.handleQuery)))
	mux.Handle("GET /chunks/{id}", protect(http.HandlerFunc(s.handleChunk)))

	logger := s.Logger
	return hlog.NewHandler(logger)(
		hlog.RequestIDHandler("req_id", "Request-Id")(
			hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
				hlog.FromRequest(r).Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
			})(mux),
		),
	)
}

// ListenAndServe serves until ctx is done, then drains open requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      searchTimeout + 5*time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info().Str("addr", addr).Msg("api server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("health check failed")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"enabled": s.Auth.Enabled()})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, k, ok := s.queryParams(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()

	res, err := s.Search.Search(ctx, q, k)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res == nil {
		res = []models.RankedResult{}
	}
	for i := range res {
		res[i].Score = finite(res[i].Score)
		res[i].Distance = finite(res[i].Distance)
	}
	writeJSON(w, r, http.StatusOK, res)
	hlog.FromRequest(r).Debug().Str("q", q).Int("k", k).Int("results", len(res)).Msg("served search")
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, k, ok := s.queryParams(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()

	ans, err := s.Search.Query(ctx, q, k)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	for i := range ans.Citations {
		ans.Citations[i].Score = finite(ans.Citations[i].Score)
	}
	writeJSON(w, r, http.StatusOK, ans)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()

	c, found, err := s.Store.Get(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !found {
		http.Error(w, "chunk not found", http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// queryParams reads q and k; an unparsable k falls back to the default and
// k is capped at maxK.
func (s *Server) queryParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "missing query parameter q", http.StatusBadRequest)
		return "", 0, false
	}
	k := s.TopK
	if k <= 0 {
		k = 5
	}
	if v := r.URL.Query().Get("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			k = n
		}
	}
	return q, min(k, maxK), true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		status = http.StatusBadRequest
	case errors.Is(err, search.ErrEmbeddingUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, store.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to encode response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
