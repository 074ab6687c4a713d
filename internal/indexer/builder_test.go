package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/TylerDurden17/support-agent/internal/embedding"
	"github.com/TylerDurden17/support-agent/internal/models"
	"github.com/TylerDurden17/support-agent/internal/vector"
)

// countingEmbedder counts the texts sent to the wrapped embedder.
type countingEmbedder struct {
	embedding.Embedder
	mu    sync.Mutex
	texts int
	fail  error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.texts += len(texts)
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return c.Embedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.texts
}

func newCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "billing_faq.txt"), "Q: How do I cancel my subscription? A: Go to Settings > Billing.")
	writeFile(t, filepath.Join(dir, "login_help.md"), "# Login\n\nIf you forgot your password, use the reset link on the sign-in page.\n\nAccounts lock after five failed attempts.")
	return dir
}

func entryIDs(entries []models.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Chunk.ID
	}
	return out
}

func TestBuildOrLoad_Idempotent(t *testing.T) {
	corpus := newCorpus(t)
	storePath := filepath.Join(t.TempDir(), "data", "knowledge.db")
	ctx := context.Background()
	emb := &countingEmbedder{Embedder: embedding.NewMockEmbedder(16)}

	s1, r1, err := NewBuilder(emb).BuildOrLoad(ctx, corpus, storePath)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Loaded || r1.Documents != 2 || r1.Chunks == 0 || r1.Embedded != r1.Chunks || s1.Size() != r1.Chunks {
		t.Fatalf("first build report = %+v, size %d", r1, s1.Size())
	}
	if emb.count() != r1.Chunks {
		t.Errorf("embedded %d texts for %d chunks", emb.count(), r1.Chunks)
	}
	if _, err := os.Stat(storePath); err != nil {
		t.Fatalf("store not persisted: %v", err)
	}
	embeddedAfterBuild := emb.count()

	s2, r2, err := NewBuilder(emb).BuildOrLoad(ctx, corpus, storePath)
	if err != nil {
		t.Fatal(err)
	}
	if !r2.Loaded || r2.BuildID != r1.BuildID {
		t.Errorf("second call report = %+v", r2)
	}
	if emb.count() != embeddedAfterBuild {
		t.Errorf("second call embedded %d more texts", emb.count()-embeddedAfterBuild)
	}
	a, b := s1.All(), s2.All()
	if len(a) != len(b) {
		t.Fatalf("sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Chunk.ID != b[i].Chunk.ID || a[i].Chunk.Text != b[i].Chunk.Text {
			t.Errorf("entry %d differs: %v vs %v", i, a[i].Chunk, b[i].Chunk)
		}
		for j := range a[i].Vector {
			if a[i].Vector[j] != b[i].Vector[j] {
				t.Fatalf("entry %d vector differs", i)
			}
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	corpus := newCorpus(t)
	ctx := context.Background()
	b := NewBuilder(embedding.NewMockEmbedder(8), WithChunking(40, 10))
	s1, _, err := b.Build(ctx, corpus)
	if err != nil {
		t.Fatal(err)
	}
	s2, _, err := b.Build(ctx, corpus)
	if err != nil {
		t.Fatal(err)
	}
	ids1, ids2 := entryIDs(s1.All()), entryIDs(s2.All())
	if len(ids1) < 3 {
		t.Fatalf("expected several chunks at size 40, got %d", len(ids1))
	}
	for i := range ids1 {
		if ids1[i] != ids2[i] {
			t.Errorf("chunk %d id %s vs %s", i, ids1[i], ids2[i])
		}
	}
}

func TestBuild_ChunkMetadata(t *testing.T) {
	corpus := newCorpus(t)
	s, _, err := NewBuilder(embedding.NewMockEmbedder(8)).Build(context.Background(), corpus)
	if err != nil {
		t.Fatal(err)
	}
	first := s.All()[0]
	if first.Chunk.Source() != "billing_faq.txt" {
		t.Errorf("source = %q", first.Chunk.Source())
	}
	if first.Chunk.Metadata[models.MetaChunkIndex] != "0" || first.Chunk.Metadata[models.MetaOffset] != "0" {
		t.Errorf("metadata = %v", first.Chunk.Metadata)
	}
	if !filepath.IsAbs(first.Chunk.Metadata[models.MetaSourcePath]) {
		t.Errorf("source_path should be absolute: %q", first.Chunk.Metadata[models.MetaSourcePath])
	}
	if first.Chunk.Text != "Q: How do I cancel my subscription? A: Go to Settings > Billing." {
		t.Errorf("text = %q", first.Chunk.Text)
	}
	m := s.Manifest()
	if m.BuildID == "" || m.BuiltAt.IsZero() || m.Fingerprint == "" || m.Provider != "mock" {
		t.Errorf("manifest = %+v", m)
	}
}

func TestBuildOrLoad_EmptyCorpus(t *testing.T) {
	corpus := t.TempDir()
	storePath := filepath.Join(t.TempDir(), "knowledge.db")
	ctx := context.Background()
	emb := &countingEmbedder{Embedder: embedding.NewMockEmbedder(8)}

	s, r, err := NewBuilder(emb).BuildOrLoad(ctx, corpus, storePath)
	if err != nil {
		t.Fatal(err)
	}
	if s.Size() != 0 || r.Documents != 0 || emb.count() != 0 {
		t.Errorf("size=%d report=%+v embedded=%d", s.Size(), r, emb.count())
	}
	if _, err := s.Search(ctx, make([]float32, 8), 1); !errors.Is(err, vector.ErrEmptyStore) {
		t.Errorf("err = %v, want ErrEmptyStore", err)
	}
	_, r2, err := NewBuilder(emb).BuildOrLoad(ctx, corpus, storePath)
	if err != nil {
		t.Fatal(err)
	}
	if !r2.Loaded {
		t.Error("empty store should have been persisted and loaded")
	}
}

func TestBuild_SkipsBadDocuments(t *testing.T) {
	corpus := newCorpus(t)
	writeFile(t, filepath.Join(corpus, "broken.docx"), "this is not a zip archive")
	b := NewBuilder(embedding.NewMockEmbedder(8), WithExtensions([]string{".txt", ".md", ".docx"}))

	s, r, err := b.Build(context.Background(), corpus)
	if err != nil {
		t.Fatal(err)
	}
	if r.Documents != 2 || len(r.Warnings) != 1 {
		t.Fatalf("report = %+v", r)
	}
	w := r.Warnings[0]
	if w.Path != "broken.docx" {
		t.Errorf("warning path = %q", w.Path)
	}
	var iw *IngestionWarning
	if !errors.As(error(w), &iw) || iw.Err == nil {
		t.Errorf("warning should be an IngestionWarning with a cause: %v", w)
	}
	for _, e := range s.All() {
		if e.Chunk.Source() == "broken.docx" {
			t.Error("broken document should not be in the store")
		}
	}
}

func TestRebuild_ReplacesStore(t *testing.T) {
	corpus := newCorpus(t)
	storePath := filepath.Join(t.TempDir(), "knowledge.db")
	ctx := context.Background()
	emb := &countingEmbedder{Embedder: embedding.NewMockEmbedder(8)}
	b := NewBuilder(emb)

	_, r1, err := b.BuildOrLoad(ctx, corpus, storePath)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(corpus, "refunds.txt"), "Refunds are issued within five business days.")

	_, r2, err := b.BuildOrLoad(ctx, corpus, storePath)
	if err != nil {
		t.Fatal(err)
	}
	if !r2.Loaded || r2.Chunks != r1.Chunks {
		t.Errorf("without a forced rebuild the old store is kept: %+v", r2)
	}

	before := emb.count()
	s3, r3, err := b.Rebuild(ctx, corpus, storePath)
	if err != nil {
		t.Fatal(err)
	}
	if r3.Loaded || r3.Documents != 3 || r3.BuildID == r1.BuildID {
		t.Errorf("rebuild report = %+v", r3)
	}
	if emb.count()-before != r3.Chunks {
		t.Errorf("rebuild embedded %d texts for %d chunks", emb.count()-before, r3.Chunks)
	}

	loaded, err := vector.Load(ctx, storePath)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != s3.Size() || loaded.Manifest().BuildID != r3.BuildID {
		t.Errorf("persisted store not replaced: size %d build %s", loaded.Size(), loaded.Manifest().BuildID)
	}
}

func TestBuildOrLoad_IncompatibleStore(t *testing.T) {
	corpus := newCorpus(t)
	storePath := filepath.Join(t.TempDir(), "knowledge.db")
	ctx := context.Background()
	if _, _, err := NewBuilder(embedding.NewMockEmbedder(8)).BuildOrLoad(ctx, corpus, storePath); err != nil {
		t.Fatal(err)
	}

	hashing, err := embedding.NewHashingEmbedder(8)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewBuilder(hashing).BuildOrLoad(ctx, corpus, storePath); !errors.Is(err, ErrProviderMismatch) {
		t.Errorf("other provider: err = %v, want ErrProviderMismatch", err)
	}
	if _, _, err := NewBuilder(embedding.NewMockEmbedder(16)).BuildOrLoad(ctx, corpus, storePath); !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("other dimension: err = %v, want ErrDimensionMismatch", err)
	}
	if _, r, err := NewBuilder(hashing).Rebuild(ctx, corpus, storePath); err != nil || r.Loaded {
		t.Errorf("forced rebuild should replace an incompatible store: %v", err)
	}
}

func TestBuild_EmbeddingFailureAborts(t *testing.T) {
	corpus := newCorpus(t)
	storePath := filepath.Join(t.TempDir(), "knowledge.db")
	boom := errors.New("provider unavailable")
	emb := &countingEmbedder{Embedder: embedding.NewMockEmbedder(8), fail: boom}

	_, _, err := NewBuilder(emb).BuildOrLoad(context.Background(), corpus, storePath)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want provider error", err)
	}
	if _, err := os.Stat(storePath); !os.IsNotExist(err) {
		t.Errorf("failed build must not persist a store: %v", err)
	}
}

func TestBuild_BatchesAndRecursion(t *testing.T) {
	corpus := newCorpus(t)
	writeFile(t, filepath.Join(corpus, "guides", "api.txt"), "Use an API key from the developer settings page.")
	ctx := context.Background()

	_, flat, err := NewBuilder(embedding.NewMockEmbedder(8)).Build(ctx, corpus)
	if err != nil {
		t.Fatal(err)
	}
	_, deep, err := NewBuilder(embedding.NewMockEmbedder(8), WithRecursive(true), WithBatchSize(1)).Build(ctx, corpus)
	if err != nil {
		t.Fatal(err)
	}
	if flat.Documents != 2 || deep.Documents != 3 {
		t.Errorf("documents: flat=%d deep=%d", flat.Documents, deep.Documents)
	}
	if deep.Embedded != deep.Chunks {
		t.Errorf("batch size 1 embedded %d texts for %d chunks", deep.Embedded, deep.Chunks)
	}
}

func TestBuild_MissingCorpus(t *testing.T) {
	_, _, err := NewBuilder(embedding.NewMockEmbedder(8)).Build(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Error("expected error for missing corpus directory")
	}
}
