// Package lifecycle owns the process-wide embedder and store: each is loaded at
// most once, and rebuilds replace the store atomically.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/config"
	"github.com/TylerDurden17/support-agent/internal/embedding"
	"github.com/TylerDurden17/support-agent/internal/indexer"
	"github.com/TylerDurden17/support-agent/internal/models"
	"github.com/TylerDurden17/support-agent/internal/retriever"
	"github.com/TylerDurden17/support-agent/internal/storage"
	"github.com/TylerDurden17/support-agent/internal/vector"
	"github.com/TylerDurden17/support-agent/internal/vector/qdrant"
)

// ErrClosed is returned by a Manager after Close.
var ErrClosed = errors.New("lifecycle manager is closed")

// EmbedderFactory constructs the embedding provider.
type EmbedderFactory func(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error)

// IndexFactory constructs the candidate index for one store generation, named by
// the store's build ID. It returns nil when no index is configured.
type IndexFactory func(cfg config.ANNConfig, generation string) (vector.CandidateIndex, error)

// Manager hands out the shared embedder, store, and retriever.
type Manager struct {
	cfg         *config.Config
	logger      *zap.Logger
	newEmbedder EmbedderFactory
	newIndex    IndexFactory

	embMu sync.Mutex
	emb   embedding.Embedder

	storeMu    sync.Mutex
	store      atomic.Pointer[vector.Store]
	lastReport atomic.Pointer[indexer.Report]

	rebuildMu sync.Mutex
	closed    atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithEmbedderFactory replaces embedding.New.
func WithEmbedderFactory(f EmbedderFactory) Option {
	return func(m *Manager) { m.newEmbedder = f }
}

// WithIndexFactory replaces the default Qdrant candidate index factory.
func WithIndexFactory(f IndexFactory) Option {
	return func(m *Manager) { m.newIndex = f }
}

// New returns a manager for cfg. Nothing is loaded until first use.
func New(cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:         cfg,
		logger:      zap.NewNop(),
		newEmbedder: embedding.New,
		newIndex:    defaultIndex,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func defaultIndex(cfg config.ANNConfig, generation string) (vector.CandidateIndex, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "qdrant":
		return qdrant.New(cfg.Address, qdrant.CollectionName(cfg.Collection, generation))
	default:
		return nil, fmt.Errorf("unknown ann backend %q", cfg.Backend)
	}
}

// Embedder returns the embedding provider, loading it on first use. Concurrent
// first callers wait for a single load and share its result. A failed load is
// not remembered, so the next call tries again.
func (m *Manager) Embedder(ctx context.Context) (embedding.Embedder, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	m.embMu.Lock()
	defer m.embMu.Unlock()
	if m.emb != nil {
		return m.emb, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.newEmbedder(m.cfg.Embedding, m.logger)
	if err != nil {
		return nil, err
	}
	m.emb = e
	return e, nil
}

// Store returns the current store, building or loading it on first use.
func (m *Manager) Store(ctx context.Context) (*vector.Store, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if s := m.store.Load(); s != nil {
		return s, nil
	}
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if s := m.store.Load(); s != nil {
		return s, nil
	}
	b, err := m.builder(ctx)
	if err != nil {
		return nil, err
	}
	var (
		s      *vector.Store
		report *indexer.Report
	)
	if m.cfg.Store.Rebuild {
		s, report, err = b.Rebuild(ctx, m.cfg.Corpus.Directory, m.cfg.Store.Path)
	} else {
		s, report, err = b.BuildOrLoad(ctx, m.cfg.Corpus.Directory, m.cfg.Store.Path)
	}
	if err != nil {
		return nil, err
	}
	m.attachIndex(ctx, s)
	m.lastReport.Store(report)
	m.store.Store(s)
	return s, nil
}

// Current implements retriever.StoreSource.
func (m *Manager) Current(ctx context.Context) (*vector.Store, error) {
	return m.Store(ctx)
}

// Rebuild builds a new store from the corpus, persists it, and then swaps it in.
// Searches in flight keep using the store they started with. Rebuilds are
// serialized; the current store and its candidate index are untouched if the
// rebuild fails. The new store gets its own index generation, and the replaced
// store's generation is dropped after the swap.
func (m *Manager) Rebuild(ctx context.Context) (*indexer.Report, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	b, err := m.builder(ctx)
	if err != nil {
		return nil, err
	}
	s, report, err := b.Rebuild(ctx, m.cfg.Corpus.Directory, m.cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	m.attachIndex(ctx, s)

	m.storeMu.Lock()
	old := m.store.Swap(s)
	m.storeMu.Unlock()
	m.lastReport.Store(report)
	if old != nil {
		if err := m.retireIndex(old); err != nil {
			m.logger.Warn("failed to drop replaced candidate index", zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("build_id", report.BuildID),
		zap.Int("chunks", report.Chunks),
	}
	if old != nil {
		fields = append(fields, zap.String("replaced_build_id", old.Manifest().BuildID))
	}
	m.logger.Info("knowledge base swapped", fields...)
	return report, nil
}

func (m *Manager) builder(ctx context.Context) (*indexer.Builder, error) {
	e, err := m.Embedder(ctx)
	if err != nil {
		return nil, err
	}
	opts := []indexer.Option{
		indexer.WithLogger(m.logger),
		indexer.WithChunking(m.cfg.Chunking.Size, m.cfg.Chunking.Overlap),
		indexer.WithRecursive(m.cfg.Corpus.RecursiveOrDefault()),
		indexer.WithBatchSize(m.cfg.Embedding.BatchSize),
	}
	if len(m.cfg.Corpus.Extensions) > 0 {
		opts = append(opts, indexer.WithExtensions(m.cfg.Corpus.Extensions))
	}
	return indexer.NewBuilder(e, opts...), nil
}

// attachIndex gives an unpublished store its own candidate index generation. The
// store answers by exact scan when the index cannot be created or synced.
func (m *Manager) attachIndex(ctx context.Context, s *vector.Store) {
	gen := s.Manifest().BuildID
	idx, err := m.newIndex(m.cfg.Store.ANN, gen)
	if err != nil {
		m.logger.Warn("candidate index unavailable, using exact scan", zap.String("build_id", gen), zap.Error(err))
		return
	}
	if idx == nil {
		return
	}
	if err := s.AttachIndex(ctx, idx, m.cfg.Store.ANN.Candidates); err != nil {
		m.logger.Warn("candidate index sync failed, using exact scan", zap.String("build_id", gen), zap.Error(err))
		if err := dropIndex(idx); err != nil {
			m.logger.Warn("failed to drop candidate index", zap.String("build_id", gen), zap.Error(err))
		}
	}
}

// retireIndex detaches the store's candidate index and deletes it.
func (m *Manager) retireIndex(s *vector.Store) error {
	idx := s.DetachIndex()
	if idx == nil {
		return nil
	}
	return dropIndex(idx)
}

func dropIndex(idx vector.CandidateIndex) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return errors.Join(idx.Drop(ctx), idx.Close())
}

// Retriever returns a retriever bound to the manager's current store, so it
// follows rebuilds.
func (m *Manager) Retriever(ctx context.Context) (*retriever.Retriever, error) {
	e, err := m.Embedder(ctx)
	if err != nil {
		return nil, err
	}
	return retriever.New(e, m, retriever.WithLogger(m.logger)), nil
}

// Retrieve is shorthand for Retriever followed by Retrieve.
func (m *Manager) Retrieve(ctx context.Context, query string, k int) (*models.QueryResult, error) {
	r, err := m.Retriever(ctx)
	if err != nil {
		return nil, err
	}
	return r.Retrieve(ctx, query, k)
}

// Status describes the knowledge base. It never builds or loads a store; without a
// loaded store it reads only the persisted manifest.
type Status struct {
	Ready       bool      `json:"ready"`
	CorpusDir   string    `json:"corpus_dir"`
	StorePath   string    `json:"store_path"`
	StoreBytes  int64     `json:"store_bytes"`
	Leftovers   int       `json:"leftover_temp_files,omitempty"` // from interrupted persists
	Entries     int       `json:"entries"`
	Dimensions  int       `json:"dimensions,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	BuildID     string    `json:"build_id,omitempty"`
	BuiltAt     time.Time `json:"built_at,omitempty"`
	Stale       bool      `json:"stale"` // corpus changed since the build
	StaleError  string    `json:"stale_error,omitempty"`
	Warnings    int       `json:"warnings"` // skipped documents in the last build by this process
	LastBuildMs int64     `json:"last_build_ms,omitempty"`
}

// Status reports on the current store. When no store is loaded yet it reads the
// persisted manifest, if any, instead.
func (m *Manager) Status(ctx context.Context) Status {
	st := Status{CorpusDir: m.cfg.Corpus.Directory, StorePath: m.cfg.Store.Path}
	if u, err := storage.SnapshotUsage(m.cfg.Store.Path); err == nil {
		st.StoreBytes = u.Bytes
		st.Leftovers = u.Leftovers
	}

	var manifest models.Manifest
	if s := m.store.Load(); s != nil {
		st.Ready = true
		manifest = s.Manifest()
	} else if mf, err := storage.ReadManifest(ctx, m.cfg.Store.Path); err == nil {
		manifest = mf
	} else {
		return st
	}
	st.Entries = manifest.Entries
	st.Dimensions = manifest.Dimensions
	st.Provider = manifest.Provider
	st.BuildID = manifest.BuildID
	st.BuiltAt = manifest.BuiltAt

	files, err := indexer.ScanCorpus(m.cfg.Corpus.Directory, m.extensions(), m.cfg.Corpus.RecursiveOrDefault())
	if err != nil {
		st.StaleError = err.Error()
	} else {
		st.Stale = indexer.Fingerprint(files) != manifest.Fingerprint
	}
	if r := m.lastReport.Load(); r != nil {
		st.Warnings = len(r.Warnings)
		if !r.Loaded {
			st.LastBuildMs = r.Took.Milliseconds()
		}
	}
	return st
}

// LastReport returns the report of the most recent build or load, or nil.
func (m *Manager) LastReport() *indexer.Report {
	return m.lastReport.Load()
}

func (m *Manager) extensions() []string {
	if len(m.cfg.Corpus.Extensions) > 0 {
		return m.cfg.Corpus.Extensions
	}
	return []string{".txt", ".md"}
}

// Close persists a store with unsaved changes, drops the current store's
// candidate index, and releases the embedder. The manager cannot be used
// afterwards; Store, Retrieve and Rebuild return ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	var errs []error
	if s := m.store.Load(); s != nil && s.Dirty() {
		if err := s.Persist(ctx, m.cfg.Store.Path); err != nil {
			errs = append(errs, err)
		}
	}
	if s := m.store.Load(); s != nil {
		if err := m.retireIndex(s); err != nil {
			errs = append(errs, fmt.Errorf("drop candidate index: %w", err))
		}
	}
	m.embMu.Lock()
	if m.emb != nil {
		if err := m.emb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedder: %w", err))
		}
	}
	m.embMu.Unlock()
	return errors.Join(errs...)
}
