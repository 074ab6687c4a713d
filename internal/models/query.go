package models

import (
	"fmt"
	"strings"
)

// RetrieveRequest is the wire form of a retrieval call (HTTP body, MCP arguments).
type RetrieveRequest struct {
	Query    string   `json:"query"`
	K        int      `json:"k,omitempty"`
	MinScore *float64 `json:"min_score,omitempty"` // overrides the configured relevance threshold
}

// Normalize trims the query and applies k defaults. A zero k becomes defaultK and
// k is capped at maxK. Negative k is rejected.
func (q *RetrieveRequest) Normalize(defaultK, maxK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.K < 0 {
		return fmt.Errorf("k must be positive, got %d", q.K)
	}
	if q.K == 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
	return nil
}

// RetrieveResponse is returned by the HTTP and MCP surfaces.
type RetrieveResponse struct {
	Query     string   `json:"query"`
	K         int      `json:"k"`
	Hits      []Hit    `json:"hits"`
	Relevant  int      `json:"relevant"`
	MinScore  float64  `json:"min_score"`
	Sources   []string `json:"sources,omitempty"`
	QueryTime int64    `json:"query_time_ms"`
}
