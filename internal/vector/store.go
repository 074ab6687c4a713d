package vector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/models"
	"github.com/TylerDurden17/support-agent/internal/storage"
)

// Store holds (chunk, vector) entries in insertion order and answers exact
// cosine-similarity queries by brute force. Searches may run concurrently; Put
// and Persist take the write lock.
type Store struct {
	mu       sync.RWMutex
	manifest models.Manifest
	entries  []models.Entry
	norms    []float64
	pos      map[string]int
	dirty    bool

	logger     *zap.Logger
	index      CandidateIndex
	candidates int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns an empty store for vectors of the given dimension produced by provider.
func New(dimensions int, provider string, opts ...Option) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	s := &Store{
		manifest: models.Manifest{Dimensions: dimensions, Provider: provider},
		pos:      make(map[string]int),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put inserts an entry or replaces the one with the same chunk ID. A replaced entry
// keeps its original position in insertion order. The vector is copied.
func (s *Store) Put(chunk models.DocumentChunk, vec []float32) error {
	if chunk.ID == "" || chunk.Text == "" {
		return ErrInvalidChunk
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(vec) != s.manifest.Dimensions {
		return fmt.Errorf("%w: chunk %s has %d dimensions, store has %d", ErrDimensionMismatch, chunk.ID, len(vec), s.manifest.Dimensions)
	}
	v := make([]float32, len(vec))
	copy(v, vec)
	e := models.Entry{Chunk: chunk, Vector: v}
	if i, ok := s.pos[chunk.ID]; ok {
		s.entries[i] = e
		s.norms[i] = L2Norm(v)
	} else {
		s.pos[chunk.ID] = len(s.entries)
		s.entries = append(s.entries, e)
		s.norms = append(s.norms, L2Norm(v))
	}
	s.manifest.Entries = len(s.entries)
	s.dirty = true
	return nil
}

// All returns every entry in insertion order. Entries share vector memory with the
// store and must not be modified.
func (s *Store) All() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry with the given chunk ID.
func (s *Store) Get(id string) (models.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.pos[id]
	if !ok {
		return models.Entry{}, false
	}
	return s.entries[i], true
}

// Search returns the min(k, Size()) entries most similar to query by cosine
// similarity, best first. Equal scores keep insertion order.
func (s *Store) Search(ctx context.Context, query []float32, k int) (*models.QueryResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidK, k)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, ErrEmptyStore
	}
	if len(query) != s.manifest.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, store has %d", ErrDimensionMismatch, len(query), s.manifest.Dimensions)
	}

	positions := s.candidatePositions(ctx, query, k)
	qn := L2Norm(query)
	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(positions))
	for i, p := range positions {
		scores[i] = scored{pos: p, score: cosineWithNorms(query, s.entries[p].Vector, qn, s.norms[p])}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	hits := make([]models.Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = models.Hit{
			Chunk: s.entries[scores[i].pos].Chunk,
			Score: scores[i].score,
			Rank:  i + 1,
		}
	}
	return &models.QueryResult{Hits: hits}, nil
}

// candidatePositions returns the positions to score, in ascending insertion order.
// Without an index, or when the index fails or cannot supply enough known entries,
// every position is scored.
func (s *Store) candidatePositions(ctx context.Context, query []float32, k int) []int {
	all := func() []int {
		out := make([]int, len(s.entries))
		for i := range out {
			out[i] = i
		}
		return out
	}
	if s.index == nil {
		return all()
	}
	n := s.candidates
	if n < k {
		n = k
	}
	ids, err := s.index.Candidates(ctx, query, n)
	if err != nil {
		s.logger.Warn("candidate index failed, scanning all entries", zap.Error(err))
		return all()
	}
	positions := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if p, ok := s.pos[id]; ok && !seen[p] {
			seen[p] = true
			positions = append(positions, p)
		}
	}
	want := k
	if want > len(s.entries) {
		want = len(s.entries)
	}
	if len(positions) < want {
		s.logger.Debug("candidate index returned too few known entries, scanning all entries",
			zap.Int("candidates", len(positions)),
			zap.Int("k", k),
		)
		return all()
	}
	sort.Ints(positions)
	return positions
}

// AttachIndex loads the store's entries into idx and then uses it to narrow
// searches, asking for max(n, k) candidates each time. When the sync fails the
// store keeps its previous index, if any, and idx is not attached.
func (s *Store) AttachIndex(ctx context.Context, idx CandidateIndex, n int) error {
	s.mu.RLock()
	entries := make([]models.Entry, len(s.entries))
	copy(entries, s.entries)
	dims := s.manifest.Dimensions
	s.mu.RUnlock()
	if err := idx.Sync(ctx, dims, entries); err != nil {
		return fmt.Errorf("sync candidate index: %w", err)
	}
	s.mu.Lock()
	s.index = idx
	s.candidates = n
	s.mu.Unlock()
	return nil
}

// DetachIndex stops using the candidate index and returns it, or nil if there
// was none. It waits for searches in flight; later searches scan every entry.
func (s *Store) DetachIndex() CandidateIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.index
	s.index = nil
	return idx
}

// Size returns the number of entries.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimensions returns the vector dimension.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest.Dimensions
}

// Provider returns the name of the embedding provider that produced the vectors.
func (s *Store) Provider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest.Provider
}

// Manifest returns a copy of the store's manifest.
func (s *Store) Manifest() models.Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest
}

// SetBuildInfo records build metadata that is persisted with the store.
func (s *Store) SetBuildInfo(m models.Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.BuildID = m.BuildID
	s.manifest.BuiltAt = m.BuiltAt
	s.manifest.Fingerprint = m.Fingerprint
	s.dirty = true
}

// Dirty reports whether the store has changes that were not persisted.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Persist writes the store to path. The write is atomic: a concurrent or later
// Load sees either the previous file or the complete new one, never a mix.
func (s *Store) Persist(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := storage.WriteSnapshot(ctx, path, s.manifest, s.entries); err != nil {
		return fmt.Errorf("persist store: %w", err)
	}
	s.dirty = false
	s.logger.Debug("store persisted",
		zap.String("path", path),
		zap.Int("entries", len(s.entries)),
	)
	return nil
}

// Load reads a store persisted by Persist. It returns ErrNotFound when path does
// not exist and ErrCorruptStore when the file cannot be decoded.
func Load(ctx context.Context, path string, opts ...Option) (*Store, error) {
	m, entries, err := storage.ReadSnapshot(ctx, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case errors.Is(err, storage.ErrCorruptSnapshot):
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, path, err)
	case err != nil:
		return nil, fmt.Errorf("load store %s: %w", path, err)
	}
	s, err := New(m.Dimensions, m.Provider, opts...)
	if err != nil {
		return nil, err
	}
	s.manifest = m
	s.entries = entries
	s.norms = make([]float64, len(entries))
	for i, e := range entries {
		s.pos[e.Chunk.ID] = i
		s.norms[i] = L2Norm(e.Vector)
	}
	s.logger.Debug("store loaded",
		zap.String("path", path),
		zap.Int("entries", len(entries)),
		zap.String("provider", m.Provider),
	)
	return s, nil
}
