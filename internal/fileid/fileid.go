// Package fileid derives deterministic document and chunk IDs from corpus paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
)

const prefix = "file:"

// FileDocID returns a stable document ID for a corpus-relative path. The path is
// cleaned and slash-separated first, so the same document gets the same ID on
// every platform and from every working directory.
func FileDocID(relPath string) string {
	normalized := filepath.ToSlash(filepath.Clean(relPath))
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:16])
}

// ChunkID returns the ID of the index-th chunk of the document at relPath.
func ChunkID(relPath string, index int) string {
	return FileDocID(relPath) + ":" + strconv.Itoa(index)
}
