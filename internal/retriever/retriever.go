// Package retriever answers natural-language queries against the current store.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/embedding"
	"github.com/TylerDurden17/support-agent/internal/models"
	"github.com/TylerDurden17/support-agent/internal/vector"
)

var (
	// ErrInvalidQuery is returned for an empty query or a k below 1.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrProvider wraps failures of the embedding provider while embedding a query.
	ErrProvider = errors.New("embedding provider failed")
)

// StoreSource yields the store to search. Implementations that swap stores must
// return a complete store on every call.
type StoreSource interface {
	Current(ctx context.Context) (*vector.Store, error)
}

// StaticSource always returns the same store.
type StaticSource struct {
	Store *vector.Store
}

// Current returns the wrapped store.
func (s StaticSource) Current(context.Context) (*vector.Store, error) {
	if s.Store == nil {
		return nil, errors.New("no store")
	}
	return s.Store, nil
}

// Retriever embeds queries and searches the store for the nearest chunks.
type Retriever struct {
	embedder embedding.Embedder
	source   StoreSource
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a retriever that embeds with e and searches the store from source.
func New(e embedding.Embedder, source StoreSource, opts ...Option) *Retriever {
	r := &Retriever{embedder: e, source: source, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k chunks ranked by similarity to query. It never filters
// by score; callers apply a relevance threshold with QueryResult.Relevant.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (*models.QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", ErrInvalidQuery, k)
	}
	start := time.Now()
	store, err := r.source.Current(ctx)
	if err != nil {
		return nil, err
	}
	// An empty store cannot answer, so skip the embedding call.
	if store.Size() == 0 {
		return nil, vector.ErrEmptyStore
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	result, err := store.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("retrieve",
		zap.String("query", query),
		zap.Int("k", k),
		zap.Int("hits", result.Len()),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}
