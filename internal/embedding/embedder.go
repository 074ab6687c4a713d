// Package embedding provides text embedding providers (hashing, ONNX, OpenAI) and caching.
package embedding

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyInput is returned when asked to embed empty or whitespace-only text.
var ErrEmptyInput = errors.New("embedding: empty input text")

// Embedder produces fixed-length vector embeddings for text. Dimensions never change
// for the lifetime of an Embedder, and identical input yields identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Name identifies the provider and model; it is recorded with every persisted store.
	Name() string
	Close() error
}

func checkInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	return nil
}

// embedEach embeds texts one at a time, stopping at the first error or cancellation.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
