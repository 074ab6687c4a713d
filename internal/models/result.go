package models

// Hit is a single retrieved chunk with its cosine similarity to the query.
type Hit struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"`
	Rank  int           `json:"rank"`
}

// QueryResult holds hits ordered by descending score. Equal scores keep the
// store's insertion order.
type QueryResult struct {
	Hits []Hit `json:"hits"`
}

// Len returns the number of hits.
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Hits)
}

// Relevant returns the hits whose score is strictly above minScore, preserving order.
func (r *QueryResult) Relevant(minScore float64) []Hit {
	if r == nil {
		return nil
	}
	out := make([]Hit, 0, len(r.Hits))
	for _, h := range r.Hits {
		if h.Score > minScore {
			out = append(out, h)
		}
	}
	return out
}

// Texts returns the chunk texts in rank order, ready to be concatenated into a prompt.
func (r *QueryResult) Texts() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.Chunk.Text
	}
	return out
}

// Sources returns the distinct source paths of the hits in first-seen order.
func (r *QueryResult) Sources() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, h := range r.Hits {
		src := h.Chunk.Source()
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}
