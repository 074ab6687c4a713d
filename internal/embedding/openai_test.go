package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type embeddingsRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

func newEmbeddingsServer(t *testing.T, dims int) (*httptest.Server, *[]embeddingsRequest) {
	t.Helper()
	var seen []embeddingsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		seen = append(seen, req)
		data := make([]map[string]any, len(req.Input))
		// Answer in reverse order to check that results are placed by index.
		for i := range req.Input {
			idx := len(req.Input) - 1 - i
			vec := make([]float32, dims)
			vec[idx%dims] = 1
			data[i] = map[string]any{"object": "embedding", "embedding": vec, "index": idx}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv, seen := newEmbeddingsServer(t, 4)
	e, err := NewOpenAIEmbedder(OpenAIOptions{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		Dimensions: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("len = %d", len(out))
	}
	for i, v := range out {
		if v[i] != 1 {
			t.Errorf("vector %d not in input order: %v", i, v)
		}
	}
	if len(*seen) != 1 {
		t.Fatalf("requests = %d, want 1", len(*seen))
	}
	req := (*seen)[0]
	if req.Model != "text-embedding-3-small" || req.Dimensions != 4 {
		t.Errorf("request model=%q dimensions=%d", req.Model, req.Dimensions)
	}
	if e.Name() != "openai:text-embedding-3-small" {
		t.Errorf("Name = %q", e.Name())
	}
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	srv, _ := newEmbeddingsServer(t, 3)
	e, err := NewOpenAIEmbedder(OpenAIOptions{APIKey: "test-key", BaseURL: srv.URL + "/v1", Dimensions: 8})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Embed(context.Background(), "billing")
	if err == nil || !strings.Contains(err.Error(), "dimensions") {
		t.Errorf("err = %v, want dimension error", err)
	}
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	if _, err := NewOpenAIEmbedder(OpenAIOptions{Dimensions: 8}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := NewOpenAIEmbedder(OpenAIOptions{APIKey: "k"}); err == nil {
		t.Error("expected error without dimensions")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()
	e, err := NewOpenAIEmbedder(OpenAIOptions{APIKey: "test-key", BaseURL: srv.URL + "/v1", Dimensions: 4})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(context.Background(), "billing"); err == nil {
		t.Error("expected provider failure to surface")
	}
	if _, err := e.Embed(context.Background(), " "); err == nil {
		t.Error("expected error for blank text")
	}
}
