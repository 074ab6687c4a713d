package embedding

import (
	"context"
	"fmt"

	"github.com/TylerDurden17/support-agent/pkg/utils"
)

const bigramWeight = 0.5

// HashingEmbedder is an in-process embedder that feature-hashes analyzed terms and
// adjacent-term bigrams into a fixed number of buckets. It needs no model files and
// is fully deterministic, but only captures lexical overlap: synonyms do not match.
type HashingEmbedder struct {
	dimensions int
	analyzer   *Analyzer
}

// NewHashingEmbedder creates a hashing embedder with the given number of buckets.
func NewHashingEmbedder(dimensions int) (*HashingEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	analyzer, err := NewAnalyzer()
	if err != nil {
		return nil, err
	}
	return &HashingEmbedder{dimensions: dimensions, analyzer: analyzer}, nil
}

// Embed returns the L2-normalized hashed term vector for text. Text consisting only
// of stop words yields a zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkInput(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := e.analyzer.Terms(text)
	vec := make([]float32, e.dimensions)
	for i, term := range terms {
		e.add(vec, term, 1)
		if i > 0 {
			e.add(vec, terms[i-1]+" "+term, bigramWeight)
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// add places weight in the feature's bucket; the top hash bit picks the sign so
// collisions cancel out on average.
func (e *HashingEmbedder) add(vec []float32, feature string, weight float32) {
	h := hashTerm(feature)
	idx := h % uint64(e.dimensions)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the number of hash buckets.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns "hashing".
func (e *HashingEmbedder) Name() string {
	return "hashing"
}

// Close is a no-op.
func (e *HashingEmbedder) Close() error {
	return nil
}
