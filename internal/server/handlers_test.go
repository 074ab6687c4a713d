package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/config"
	"github.com/TylerDurden17/support-agent/internal/embedding"
	"github.com/TylerDurden17/support-agent/internal/embedding/embeddingtest"
	"github.com/TylerDurden17/support-agent/internal/indexer"
	"github.com/TylerDurden17/support-agent/internal/lifecycle"
	"github.com/TylerDurden17/support-agent/internal/models"
	"github.com/TylerDurden17/support-agent/internal/retriever"
	"github.com/TylerDurden17/support-agent/internal/vector"
)

func newTestServer(t *testing.T) (*Server, *lifecycle.Manager, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus")
	if err := os.Mkdir(corpus, 0755); err != nil {
		t.Fatal(err)
	}
	docs := map[string]string{
		"billing_faq.md":  "To cancel your subscription, open the billing page and choose cancel plan.",
		"password_faq.md": "If your login fails, reset your password from the sign in page.",
	}
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(corpus, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := &config.Config{
		Corpus: config.CorpusConfig{Directory: corpus},
		Store:  config.StoreConfig{Path: filepath.Join(dir, "kb.sqlite")},
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
	}
	config.ApplyDefaults(cfg)
	mgr := lifecycle.New(cfg, lifecycle.WithEmbedderFactory(
		func(config.EmbeddingConfig, *zap.Logger) (embedding.Embedder, error) {
			return embeddingtest.NewConceptEmbedder(), nil
		}))
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	return NewServer(mgr, &cfg.Server, &cfg.Retrieval, zap.NewNop()), mgr, cfg
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleRetrieve(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := post(t, srv.Handler(), "/api/v1/retrieve", `{"query":"How do I cancel my subscription?","k":2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out models.RetrieveResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.K != 2 || len(out.Hits) != 2 {
		t.Fatalf("k=%d hits=%d, want 2 and 2", out.K, len(out.Hits))
	}
	top := out.Hits[0]
	if top.Chunk.Source() != "billing_faq.md" || top.Rank != 1 {
		t.Errorf("top hit = %+v", top)
	}
	if top.Score <= config.DefaultMinScore {
		t.Errorf("top score = %v", top.Score)
	}
	if out.Relevant != 1 || out.MinScore != config.DefaultMinScore {
		t.Errorf("relevant=%d min_score=%v", out.Relevant, out.MinScore)
	}
	if len(out.Sources) != 2 || out.Sources[0] != "billing_faq.md" {
		t.Errorf("sources = %v", out.Sources)
	}
}

func TestHandleRetrieve_Defaults(t *testing.T) {
	srv, _, cfg := newTestServer(t)
	h := srv.Handler()

	w := post(t, h, "/api/v1/retrieve", `{"query":"reset password"}`)
	var out models.RetrieveResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.K != cfg.Retrieval.DefaultK {
		t.Errorf("k = %d, want default %d", out.K, cfg.Retrieval.DefaultK)
	}
	if len(out.Hits) != 2 {
		t.Errorf("hits = %d, want all 2 entries", len(out.Hits))
	}

	w = post(t, h, "/api/v1/retrieve", `{"query":"reset password","k":1,"min_score":1}`)
	out = models.RetrieveResponse{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.MinScore != 1 || out.Relevant != 0 || len(out.Hits) != 1 {
		t.Errorf("override: %+v", out)
	}
}

func TestHandleRetrieve_BadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()
	for _, body := range []string{`not json`, `{"query":"   "}`, `{"query":"x","k":-1}`} {
		w := post(t, h, "/api/v1/retrieve", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", body, w.Code)
		}
		var e errorBody
		if err := json.NewDecoder(w.Body).Decode(&e); err != nil || e.Error == "" {
			t.Errorf("%s: error body missing (%v)", body, err)
		}
	}
}

func TestHandleRebuildAndStatus(t *testing.T) {
	srv, _, cfg := newTestServer(t)
	h := srv.Handler()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	var st lifecycle.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Ready {
		t.Error("ready before first use")
	}

	if err := os.WriteFile(filepath.Join(cfg.Corpus.Directory, "refund.md"), []byte("refund money"), 0644); err != nil {
		t.Fatal(err)
	}
	w = post(t, h, "/api/v1/rebuild", "")
	if w.Code != http.StatusOK {
		t.Fatalf("rebuild status %d: %s", w.Code, w.Body.String())
	}
	var rb rebuildResponse
	if err := json.NewDecoder(w.Body).Decode(&rb); err != nil {
		t.Fatal(err)
	}
	if rb.Documents != 3 || rb.Chunks != 3 || rb.BuildID == "" {
		t.Errorf("rebuild = %+v", rb)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	st = lifecycle.Status{}
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st.Ready || st.Entries != 3 || st.BuildID != rb.BuildID || st.Stale {
		t.Errorf("status after rebuild = %+v", st)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}
}

type failingKB struct {
	err error
}

func (f failingKB) Retrieve(context.Context, string, int) (*models.QueryResult, error) {
	return nil, f.err
}

func (f failingKB) Rebuild(context.Context) (*indexer.Report, error) {
	return nil, f.err
}

func (f failingKB) Status(context.Context) lifecycle.Status {
	return lifecycle.Status{}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: k", retriever.ErrInvalidQuery), http.StatusBadRequest},
		{vector.ErrEmptyStore, http.StatusConflict},
		{fmt.Errorf("%w: boom", retriever.ErrProvider), http.StatusBadGateway},
		{fmt.Errorf("query: %w", vector.ErrDimensionMismatch), http.StatusInternalServerError},
		{lifecycle.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	retrieval := &config.RetrievalConfig{DefaultK: 3, MaxK: 10}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			srv := NewServer(failingKB{err: tt.err}, &config.ServerConfig{}, retrieval, nil)
			h := srv.Handler()
			if w := post(t, h, "/api/v1/retrieve", `{"query":"cancel"}`); w.Code != tt.want {
				t.Errorf("retrieve: got %d, want %d", w.Code, tt.want)
			}
			if w := post(t, h, "/api/v1/rebuild", ""); w.Code != tt.want {
				t.Errorf("rebuild: got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	srv := NewServer(failingKB{}, &config.ServerConfig{RateLimit: 0.001, RateBurst: 2},
		&config.RetrievalConfig{}, nil)
	h := srv.Handler()
	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

type blockingKB struct {
	failingKB
	started    chan struct{}
	release    chan struct{}
	rebuildCtx chan context.Context
	deadline   chan bool
}

func newBlockingKB() *blockingKB {
	return &blockingKB{
		started:    make(chan struct{}),
		release:    make(chan struct{}),
		rebuildCtx: make(chan context.Context, 1),
		deadline:   make(chan bool, 1),
	}
}

func (b *blockingKB) Retrieve(ctx context.Context, q string, k int) (*models.QueryResult, error) {
	_, ok := ctx.Deadline()
	b.deadline <- ok
	return &models.QueryResult{}, nil
}

func (b *blockingKB) Rebuild(ctx context.Context) (*indexer.Report, error) {
	close(b.started)
	<-b.release
	b.rebuildCtx <- ctx
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &indexer.Report{BuildID: "b-2", Documents: 2, Chunks: 2}, nil
}

func TestHandleRebuild_SurvivesClientCancel(t *testing.T) {
	kb := newBlockingKB()
	srv := NewServer(kb, &config.ServerConfig{TimeoutSeconds: 30}, &config.RetrievalConfig{DefaultK: 3, MaxK: 10}, nil)
	h := srv.Handler()

	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodPost, "/api/v1/rebuild", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(w, r)
	}()

	<-kb.started
	cancel()
	close(kb.release)
	<-done

	got := <-kb.rebuildCtx
	if got.Err() != nil {
		t.Errorf("rebuild context err = %v, want nil", got.Err())
	}
	if _, ok := got.Deadline(); ok {
		t.Error("rebuild context carries the request timeout")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out rebuildResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.BuildID != "b-2" {
		t.Errorf("build id = %q", out.BuildID)
	}

	// Retrieval stays under the request timeout.
	post(t, h, "/api/v1/retrieve", `{"query":"cancel"}`)
	if !<-kb.deadline {
		t.Error("retrieve context has no deadline")
	}
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv := NewServer(failingKB{}, &config.ServerConfig{Host: "127.0.0.1", Port: 0}, &config.RetrievalConfig{}, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Start after Stop = %v, want http.ErrServerClosed", err)
	}
}
