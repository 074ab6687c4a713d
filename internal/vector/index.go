// Package vector provides the in-memory vector store with exact cosine search,
// persistence, and an optional approximate candidate index.
package vector

import (
	"context"

	"github.com/TylerDurden17/support-agent/internal/models"
)

// CandidateIndex is an approximate nearest-neighbour index that proposes chunk IDs
// for a query. The store re-scores every candidate exactly, so an index only
// narrows the scan and never decides the final ranking.
//
// An index describes exactly one store. It is attached with Store.AttachIndex
// and must not be shared between stores.
type CandidateIndex interface {
	// Sync makes the index contain exactly the given entries' vectors.
	Sync(ctx context.Context, dimensions int, entries []models.Entry) error
	// Candidates returns up to n chunk IDs near query, best first.
	Candidates(ctx context.Context, query []float32, n int) ([]string, error)
	// Drop deletes the data the index holds. The index is unusable afterwards.
	Drop(ctx context.Context) error
	Close() error
}
