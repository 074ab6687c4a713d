// Package models defines core data structures for chunks, stored entries, and retrieval results.
package models

// Metadata keys recorded on every chunk produced by the indexer.
const (
	MetaSource     = "source"      // path relative to the corpus root
	MetaSourcePath = "source_path" // absolute path at build time
	MetaChunkIndex = "chunk_index"
	MetaOffset     = "offset" // rune offset of the chunk within the extracted document text
)

// DocumentChunk is a retrievable unit of text. It is created once during ingestion
// and never modified afterwards.
type DocumentChunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Source returns the chunk's corpus-relative source path, if recorded.
func (c DocumentChunk) Source() string {
	return c.Metadata[MetaSource]
}

// Entry pairs a chunk with its embedding.
type Entry struct {
	Chunk  DocumentChunk `json:"chunk"`
	Vector []float32     `json:"-"`
}
