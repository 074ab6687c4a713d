package indexer

import (
	"strings"
	"unicode/utf8"
)

// Chunk is one piece of a document produced by Chunker.
type Chunk struct {
	Text   string
	Offset int // rune offset of Text within the chunked text, -1 if unknown
}

// Separators are tried in order: paragraphs, then lines, then words, then runes.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text into pieces of at most chunkSize runes. It prefers to cut at
// paragraph breaks, then line breaks, then spaces, and only splits inside a word
// when a single word is longer than chunkSize. Consecutive chunks share up to
// chunkOverlap runes of trailing context.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker creates a chunker with the given size and overlap (in runes). An
// overlap outside [0, chunkSize) is treated as zero.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Chunk splits text into non-empty, whitespace-trimmed chunks in document order.
func (c *Chunker) Chunk(text string) []Chunk {
	pieces := c.split(text, c.separators)
	if len(pieces) == 0 {
		return nil
	}
	chunks := make([]Chunk, 0, len(pieces))
	searchFrom := 0
	for _, p := range pieces {
		offset := -1
		if i := strings.Index(text[searchFrom:], p); i >= 0 {
			b := searchFrom + i
			offset = utf8.RuneCountInString(text[:b])
			_, w := utf8.DecodeRuneInString(p)
			searchFrom = b + w
		}
		chunks = append(chunks, Chunk{Text: p, Offset: offset})
	}
	return chunks
}

func (c *Chunker) split(text string, separators []string) []string {
	sep, rest := "", []string(nil)
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, separators[i+1:]
			break
		}
	}

	var out, small []string
	for _, s := range strings.Split(text, sep) {
		if strings.TrimSpace(s) == "" && sep != "" {
			continue
		}
		if utf8.RuneCountInString(s) <= c.chunkSize {
			small = append(small, s)
			continue
		}
		if len(small) > 0 {
			out = append(out, c.merge(small, sep)...)
			small = nil
		}
		if len(rest) == 0 {
			out = append(out, s)
		} else {
			out = append(out, c.split(s, rest)...)
		}
	}
	if len(small) > 0 {
		out = append(out, c.merge(small, sep)...)
	}
	return out
}

// merge packs consecutive splits into chunks no longer than chunkSize, carrying the
// tail of each chunk into the next one up to chunkOverlap runes.
func (c *Chunker) merge(splits []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	joinCost := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var (
		docs    []string
		current []string
		total   int
	)
	emit := func() {
		if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
			docs = append(docs, doc)
		}
	}
	for _, s := range splits {
		n := utf8.RuneCountInString(s)
		if len(current) > 0 && total+n+joinCost(len(current)) > c.chunkSize {
			emit()
			for total > c.chunkOverlap || (total > 0 && total+n+joinCost(len(current)) > c.chunkSize) {
				total -= utf8.RuneCountInString(current[0]) + joinCost(len(current)-1)
				current = current[1:]
			}
		}
		current = append(current, s)
		total += n + joinCost(len(current)-1)
	}
	emit()
	return docs
}
