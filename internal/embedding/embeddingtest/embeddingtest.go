// Package embeddingtest provides embedders for tests that need real semantic
// behaviour without loading a model.
package embeddingtest

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/TylerDurden17/support-agent/internal/embedding"
	"github.com/TylerDurden17/support-agent/pkg/utils"
)

// Concepts groups words by meaning. Every group is one dimension of a
// ConceptEmbedder, so synonyms land on the same axis.
var Concepts = [][]string{
	{"cancel", "cancellation", "stop", "end", "terminate", "quit"},
	{"subscription", "plan", "membership", "account"},
	{"billing", "payment", "invoice", "charge", "card"},
	{"password", "login", "sign", "reset", "locked"},
	{"refund", "money", "reimburse"},
	{"shipping", "delivery", "package", "track"},
}

// ConceptEmbedder maps each known word to its concept dimension and returns the
// normalized concept counts. Unknown words are ignored.
type ConceptEmbedder struct {
	index map[string]int
	dims  int
}

// NewConceptEmbedder returns an embedder over Concepts.
func NewConceptEmbedder() *ConceptEmbedder {
	e := &ConceptEmbedder{index: make(map[string]int), dims: len(Concepts)}
	for dim, words := range Concepts {
		for _, w := range words {
			e.index[w] = dim
		}
	}
	return e
}

// Embed returns the concept vector for text.
func (e *ConceptEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, embedding.ErrEmptyInput
	}
	vec := make([]float32, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if dim, ok := e.index[w]; ok {
			vec[dim]++
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *ConceptEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the number of concepts.
func (e *ConceptEmbedder) Dimensions() int { return e.dims }

// Name returns "concept".
func (e *ConceptEmbedder) Name() string { return "concept" }

// Close is a no-op.
func (e *ConceptEmbedder) Close() error { return nil }

// Counting wraps an embedder and counts the texts it embeds.
type Counting struct {
	embedding.Embedder
	mu    sync.Mutex
	texts int
	err   error
}

// NewCounting wraps e.
func NewCounting(e embedding.Embedder) *Counting {
	return &Counting{Embedder: e}
}

// Embed counts one text.
func (c *Counting) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.add(1); err != nil {
		return nil, err
	}
	return c.Embedder.Embed(ctx, text)
}

// EmbedBatch counts len(texts) texts.
func (c *Counting) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.add(len(texts)); err != nil {
		return nil, err
	}
	return c.Embedder.EmbedBatch(ctx, texts)
}

// Count returns the number of texts embedded so far.
func (c *Counting) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.texts
}

// FailWith makes later calls return err; nil restores normal behaviour.
func (c *Counting) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *Counting) add(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts += n
	return c.err
}
