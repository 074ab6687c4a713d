// Package indexer builds vector stores from a corpus of documents, or loads the
// store a previous build persisted.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/embedding"
	"github.com/TylerDurden17/support-agent/internal/extract"
	"github.com/TylerDurden17/support-agent/internal/fileid"
	"github.com/TylerDurden17/support-agent/internal/models"
	"github.com/TylerDurden17/support-agent/internal/vector"
)

// ErrProviderMismatch is returned when a persisted store was built by a different
// embedding provider than the one currently configured.
var ErrProviderMismatch = errors.New("store was built with a different embedding provider")

// IngestionWarning records a document that was skipped during a build.
type IngestionWarning struct {
	Path string
	Err  error
}

func (w *IngestionWarning) Error() string {
	return fmt.Sprintf("skipped %s: %v", w.Path, w.Err)
}

func (w *IngestionWarning) Unwrap() error {
	return w.Err
}

// Report describes the outcome of BuildOrLoad or Rebuild.
type Report struct {
	Loaded    bool // true when an existing store was loaded instead of built
	BuildID   string
	Documents int // documents ingested
	Chunks    int
	Embedded  int // texts sent to the embedding provider
	Warnings  []*IngestionWarning
	Took      time.Duration
}

// Builder turns a corpus directory into a vector store.
type Builder struct {
	embedder   embedding.Embedder
	extractor  *extract.Extractor
	chunker    *Chunker
	extensions []string
	recursive  bool
	batchSize  int
	storeOpts  []vector.Option
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger. Skipped documents are logged at warn level.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithChunking sets the chunk size and overlap in runes.
func WithChunking(size, overlap int) Option {
	return func(b *Builder) { b.chunker = NewChunker(size, overlap) }
}

// WithExtensions restricts the corpus to files with these extensions.
func WithExtensions(exts []string) Option {
	return func(b *Builder) { b.extensions = exts }
}

// WithRecursive makes the corpus scan descend into subdirectories.
func WithRecursive(recursive bool) Option {
	return func(b *Builder) { b.recursive = recursive }
}

// WithBatchSize sets how many chunks are sent to the embedder per call.
func WithBatchSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithStoreOptions passes options to every store the builder creates or loads.
func WithStoreOptions(opts ...vector.Option) Option {
	return func(b *Builder) { b.storeOpts = append(b.storeOpts, opts...) }
}

// NewBuilder returns a builder that embeds with e. By default it reads .txt and .md
// files from the top level of the corpus and chunks at 800 runes with 100 overlap.
func NewBuilder(e embedding.Embedder, opts ...Option) *Builder {
	b := &Builder{
		embedder:   e,
		extractor:  extract.NewExtractor(),
		chunker:    NewChunker(800, 100),
		extensions: []string{".txt", ".md"},
		batchSize:  32,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildOrLoad returns the store persisted at storePath if there is one. Otherwise it
// builds a store from corpusDir, persists it to storePath, and returns it. Loading
// never calls the embedding provider.
func (b *Builder) BuildOrLoad(ctx context.Context, corpusDir, storePath string) (*vector.Store, *Report, error) {
	start := time.Now()
	s, err := vector.Load(ctx, storePath, b.storeOptions()...)
	if err == nil {
		if err := b.checkCompatible(s); err != nil {
			return nil, nil, err
		}
		report := &Report{Loaded: true, BuildID: s.Manifest().BuildID, Chunks: s.Size(), Took: time.Since(start)}
		b.logger.Info("knowledge base loaded",
			zap.String("path", storePath),
			zap.Int("chunks", report.Chunks),
			zap.String("build_id", report.BuildID),
		)
		return s, report, nil
	}
	if !errors.Is(err, vector.ErrNotFound) {
		return nil, nil, err
	}
	b.logger.Info("no persisted knowledge base, building", zap.String("path", storePath))
	return b.Rebuild(ctx, corpusDir, storePath)
}

// Rebuild builds a fresh store from corpusDir and persists it over storePath,
// ignoring any existing store.
func (b *Builder) Rebuild(ctx context.Context, corpusDir, storePath string) (*vector.Store, *Report, error) {
	s, report, err := b.Build(ctx, corpusDir)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Persist(ctx, storePath); err != nil {
		return nil, nil, err
	}
	b.logger.Info("knowledge base built",
		zap.String("path", storePath),
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("warnings", len(report.Warnings)),
		zap.Duration("took", report.Took),
	)
	return s, report, nil
}

// Build ingests corpusDir into a new in-memory store without persisting it.
// Documents that cannot be read or parsed are skipped and reported as warnings;
// an embedding failure aborts the build.
func (b *Builder) Build(ctx context.Context, corpusDir string) (*vector.Store, *Report, error) {
	start := time.Now()
	files, err := ScanCorpus(corpusDir, b.extensions, b.recursive)
	if err != nil {
		return nil, nil, err
	}
	s, err := vector.New(b.embedder.Dimensions(), b.embedder.Name(), b.storeOptions()...)
	if err != nil {
		return nil, nil, err
	}
	report := &Report{BuildID: uuid.NewString()}

	var pending []models.DocumentChunk
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := b.embedAndPut(ctx, s, pending)
		report.Embedded += n
		pending = pending[:0]
		return err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		chunks, err := b.chunkFile(f)
		if err != nil {
			w := &IngestionWarning{Path: f.Rel, Err: err}
			report.Warnings = append(report.Warnings, w)
			b.logger.Warn("skipping document", zap.String("path", f.Rel), zap.Error(err))
			continue
		}
		report.Documents++
		report.Chunks += len(chunks)
		for _, c := range chunks {
			pending = append(pending, c)
			if len(pending) >= b.batchSize {
				if err := flush(); err != nil {
					return nil, nil, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return nil, nil, err
	}

	s.SetBuildInfo(models.Manifest{
		BuildID:     report.BuildID,
		BuiltAt:     b.now().UTC(),
		Fingerprint: Fingerprint(files),
	})
	report.Took = time.Since(start)
	return s, report, nil
}

func (b *Builder) chunkFile(f CorpusFile) ([]models.DocumentChunk, error) {
	text, err := b.extractor.Extract(f.Path)
	if err != nil {
		return nil, err
	}
	pieces := b.chunker.Chunk(Preprocess(text))
	if len(pieces) == 0 {
		b.logger.Debug("document has no text", zap.String("path", f.Rel))
	}
	chunks := make([]models.DocumentChunk, len(pieces))
	for i, p := range pieces {
		meta := map[string]string{
			models.MetaSource:     f.Rel,
			models.MetaSourcePath: f.Path,
			models.MetaChunkIndex: strconv.Itoa(i),
		}
		if p.Offset >= 0 {
			meta[models.MetaOffset] = strconv.Itoa(p.Offset)
		}
		chunks[i] = models.DocumentChunk{
			ID:       fileid.ChunkID(f.Rel, i),
			Text:     p.Text,
			Metadata: meta,
		}
	}
	return chunks, nil
}

func (b *Builder) embedAndPut(ctx context.Context, s *vector.Store, chunks []models.DocumentChunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return len(texts), fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return len(texts), fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vecs), len(chunks))
	}
	for i, c := range chunks {
		if err := s.Put(c, vecs[i]); err != nil {
			return len(texts), err
		}
	}
	return len(texts), nil
}

func (b *Builder) checkCompatible(s *vector.Store) error {
	if got, want := s.Dimensions(), b.embedder.Dimensions(); got != want {
		return fmt.Errorf("%w: store has %d dimensions, embedder produces %d; rebuild the knowledge base",
			vector.ErrDimensionMismatch, got, want)
	}
	if got, want := s.Provider(), b.embedder.Name(); got != want {
		return fmt.Errorf("%w: store was built with %q, embedder is %q; rebuild the knowledge base",
			ErrProviderMismatch, got, want)
	}
	return nil
}

func (b *Builder) storeOptions() []vector.Option {
	return append([]vector.Option{vector.WithLogger(b.logger)}, b.storeOpts...)
}
