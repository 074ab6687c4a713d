// Package integration exercises the knowledge base end to end over real storage.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/config"
	"github.com/TylerDurden17/support-agent/internal/embedding"
	"github.com/TylerDurden17/support-agent/internal/embedding/embeddingtest"
	"github.com/TylerDurden17/support-agent/internal/lifecycle"
	"github.com/TylerDurden17/support-agent/internal/models"
	"github.com/TylerDurden17/support-agent/internal/server"
	"github.com/TylerDurden17/support-agent/internal/storage"
)

var supportDocs = map[string]string{
	"billing_faq.md":  "# Billing\n\nTo cancel your subscription, go to Settings > Billing and click Cancel plan.",
	"password_faq.md": "# Passwords\n\nIf your login is locked, reset your password from the sign in page.",
	"shipping_faq.md": "# Shipping\n\nTrack your package from the delivery page once it ships.",
}

func setup(t *testing.T, provider string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	corpus := filepath.Join(dir, "support_docs")
	if err := os.Mkdir(corpus, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range supportDocs {
		if err := os.WriteFile(filepath.Join(corpus, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := &config.Config{
		Corpus:    config.CorpusConfig{Directory: corpus},
		Store:     config.StoreConfig{Path: filepath.Join(dir, "data", "knowledge.db")},
		Embedding: config.EmbeddingConfig{Provider: provider},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func conceptManager(cfg *config.Config) *lifecycle.Manager {
	return lifecycle.New(cfg, lifecycle.WithEmbedderFactory(
		func(config.EmbeddingConfig, *zap.Logger) (embedding.Embedder, error) {
			return embeddingtest.NewConceptEmbedder(), nil
		}))
}

func TestIntegration_CancelSubscription(t *testing.T) {
	cfg := setup(t, config.ProviderMock)
	kb := conceptManager(cfg)
	ctx := context.Background()
	defer kb.Close(ctx)

	res, err := kb.Retrieve(ctx, "How do I cancel my subscription?", 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Len() != 3 {
		t.Fatalf("got %d hits, want 3", res.Len())
	}
	top := res.Hits[0]
	if top.Chunk.Source() != "billing_faq.md" {
		t.Errorf("top source = %q, want billing_faq.md", top.Chunk.Source())
	}
	if top.Score <= config.DefaultMinScore {
		t.Errorf("top score %.3f not above %.2f", top.Score, config.DefaultMinScore)
	}
	if rel := res.Relevant(config.DefaultMinScore); len(rel) != 1 {
		t.Errorf("relevant = %d, want 1", len(rel))
	}

	// The snapshot on disk carries every chunk and the provider identity.
	manifest, entries, err := storage.ReadSnapshot(ctx, cfg.Store.Path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if manifest.Provider != "concept" || len(entries) != len(supportDocs) {
		t.Errorf("snapshot manifest=%+v entries=%d", manifest, len(entries))
	}
}

func TestIntegration_ConcurrentReadersDuringRebuild(t *testing.T) {
	cfg := setup(t, config.ProviderMock)
	kb := conceptManager(cfg)
	ctx := context.Background()
	defer kb.Close(ctx)
	if _, err := kb.Store(ctx); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				res, err := kb.Retrieve(ctx, "reset my password", 1)
				if err != nil {
					errs <- err
					return
				}
				if src := res.Hits[0].Chunk.Source(); src != "password_faq.md" {
					t.Errorf("top source = %q", src)
					return
				}
			}
		}()
	}
	for i := 0; i < 3; i++ {
		if _, err := kb.Rebuild(ctx); err != nil {
			t.Fatalf("rebuild: %v", err)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestIntegration_HTTPRetrieve(t *testing.T) {
	cfg := setup(t, config.ProviderHashing)
	kb := lifecycle.New(cfg)
	ctx := context.Background()
	defer kb.Close(ctx)

	srv := server.NewServer(kb, &cfg.Server, &cfg.Retrieval, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(models.RetrieveRequest{Query: "cancel subscription billing", K: 2})
	resp, err := http.Post(ts.URL+"/api/v1/retrieve", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out models.RetrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(out.Hits))
	}
	if src := out.Hits[0].Chunk.Source(); src != "billing_faq.md" {
		t.Errorf("top source = %q, want billing_faq.md", src)
	}
	if out.Hits[0].Score < out.Hits[1].Score {
		t.Errorf("hits not sorted: %.3f < %.3f", out.Hits[0].Score, out.Hits[1].Score)
	}

	st, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Body.Close()
	var status lifecycle.Status
	if err := json.NewDecoder(st.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if !status.Ready || status.Provider != "hashing" || status.Entries != len(supportDocs) {
		t.Errorf("status = %+v", status)
	}
}
