package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// OutputFormat represents the progress output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// ProgressReporter prints batch-run progress and the final summary to a
// terminal or, in JSON mode, as one event per line for machine consumers
type ProgressReporter struct {
	format OutputFormat
	out    io.Writer
}

// NewProgressReporter creates a new progress reporter
func NewProgressReporter(format OutputFormat, out io.Writer) *ProgressReporter {
	return &ProgressReporter{
		format: format,
		out:    out,
	}
}

// ReportRow reports one processed row
func (pr *ProgressReporter) ReportRow(event RowEvent) {
	switch pr.format {
	case FormatJSON:
		data, _ := json.Marshal(map[string]interface{}{
			"event":     "row",
			"row":       event,
			"timestamp": time.Now(),
		})
		fmt.Fprintln(pr.out, string(data))
	default:
		line := fmt.Sprintf("[%d/%d] %s: %s", event.Processed, event.Total, event.Address, event.Status)
		if event.Source != "" {
			line += " (" + event.Source + ")"
		}
		fmt.Fprintln(pr.out, line)
	}
}

// ReportRunCompleted prints the final run summary
func (pr *ProgressReporter) ReportRunCompleted(summary *RunSummary) {
	switch pr.format {
	case FormatJSON:
		data, _ := json.Marshal(map[string]interface{}{
			"event":     "run_completed",
			"summary":   summary,
			"timestamp": time.Now(),
		})
		fmt.Fprintln(pr.out, string(data))
	default:
		pr.printTextSummary(summary)
	}
}

// printTextSummary prints a run summary in plain text format
func (pr *ProgressReporter) printTextSummary(summary *RunSummary) {
	w := pr.out

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "   RUN SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Total:        %d\n", summary.Total)
	fmt.Fprintf(w, "Found:        %d\n", summary.Found)
	fmt.Fprintf(w, "Partial:      %d\n", summary.Partial)
	fmt.Fprintf(w, "Cached:       %d\n", summary.Cached)
	fmt.Fprintf(w, "Not Found:    %d\n", summary.NotFound)
	fmt.Fprintf(w, "Errors:       %d\n", summary.Errors)
	fmt.Fprintf(w, "Success Rate: %.1f%%\n", summary.SuccessRate)
	fmt.Fprintf(w, "Duration:     %s\n", summary.Duration)

	if len(summary.SourceCounts) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Results by source:")
		for _, name := range sortedKeys(summary.SourceCounts) {
			fmt.Fprintf(w, "  %-14s %d\n", name, summary.SourceCounts[name])
		}
	}

	if len(summary.SourceStats) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Requests by source:")
		names := make([]string, 0, len(summary.SourceStats))
		for name := range summary.SourceStats {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			st := summary.SourceStats[name]
			fmt.Fprintf(w, "  %-14s %d requests, %d ok, %d blocked\n",
				name, st.Requests, st.Successes, st.Blocks)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
