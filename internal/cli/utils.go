// Package cli formats command output for the qpindex CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/hyperjump/qpindex/internal/models"
	"github.com/hyperjump/qpindex/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

var (
	rankLabel = color.New(color.FgCyan, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed).SprintFunc()
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteRetrieveResults writes retrieval results for query to w, nearest first.
func WriteRetrieveResults(w io.Writer, query string, results []string, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if results == nil {
			results = []string{}
		}
		return writeJSON(w, results)
	case OutputCompact:
		for i, r := range results {
			fmt.Fprintf(w, "%d\t%s\n", i+1, utils.Truncate(singleLine(r), 160))
		}
		return nil
	default:
		fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(results), query)
		for i, r := range results {
			fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "%s\n\n%s\n\n", rankLabel(fmt.Sprintf("Rank: %d", i+1)), utils.Truncate(r, 600))
		}
		return nil
	}
}

// WriteIndexResult writes a batch summary to w.
func WriteIndexResult(w io.Writer, res *models.IndexResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Indexed %d question(s), %d failed\n", res.IndexedCount, len(res.Errors))
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", failLabel(e))
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
