package indexer

import "strings"

// Preprocess normalizes extracted text before chunking. Runs of whitespace inside a
// line collapse to one space, lines are trimmed, and consecutive blank lines
// collapse to one so paragraph breaks survive as "\n\n".
func Preprocess(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var b strings.Builder
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = b.Len() > 0
			continue
		}
		if b.Len() > 0 {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
		blank = false
	}
	return b.String()
}
