// Package cli provides output helpers for the supportkb commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/TylerDurden17/support-agent/internal/indexer"
	"github.com/TylerDurden17/support-agent/internal/lifecycle"
	"github.com/TylerDurden17/support-agent/internal/models"
	"github.com/TylerDurden17/support-agent/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteResults writes retrieval results to w in the given format. Text output
// shows at most previewLen runes of each passage; 0 shows everything.
func WriteResults(w io.Writer, response *models.RetrieveResponse, format OutputFormat, previewLen int) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d passages in %dms (%d above %.2f)\n\n",
		len(response.Hits), response.QueryTime, response.Relevant, response.MinScore)
	for _, hit := range response.Hits {
		marker := ""
		if hit.Score > response.MinScore {
			marker = " *"
		}
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f%s\n", hit.Rank, hit.Score, marker)
		if src := hit.Chunk.Source(); src != "" {
			fmt.Fprintf(w, "Source: %s\n", src)
		}
		fmt.Fprintf(w, "ID: %s\n", hit.Chunk.ID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(hit.Chunk.Text, previewLen))
	}
	return nil
}

// WriteReport writes the outcome of a build or load.
func WriteReport(w io.Writer, report *indexer.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	if report.Loaded {
		fmt.Fprintf(w, "Loaded knowledge base %s (%d chunks)\n", report.BuildID, report.Chunks)
		return nil
	}
	fmt.Fprintf(w, "Built knowledge base %s: %d documents, %d chunks in %s\n",
		report.BuildID, report.Documents, report.Chunks, report.Took.Round(time.Millisecond))
	for _, warn := range report.Warnings {
		fmt.Fprintf(w, "  warning: %v\n", warn)
	}
	return nil
}

// WriteStatus writes a knowledge base status.
func WriteStatus(w io.Writer, st lifecycle.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Corpus:     %s\n", st.CorpusDir)
	fmt.Fprintf(w, "Store:      %s (%s)\n", st.StorePath, formatBytes(st.StoreBytes))
	if st.Leftovers > 0 {
		fmt.Fprintf(w, "            %d leftover temp files from interrupted writes\n", st.Leftovers)
	}
	if st.BuildID == "" {
		fmt.Fprintln(w, "Build:      none")
		return nil
	}
	fmt.Fprintf(w, "Build:      %s at %s\n", st.BuildID, st.BuiltAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Entries:    %d\n", st.Entries)
	fmt.Fprintf(w, "Embedding:  %s (%d dims)\n", st.Provider, st.Dimensions)
	switch {
	case st.StaleError != "":
		fmt.Fprintf(w, "Stale:      unknown (%s)\n", st.StaleError)
	case st.Stale:
		fmt.Fprintln(w, "Stale:      yes, run index --rebuild")
	default:
		fmt.Fprintln(w, "Stale:      no")
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
