// Package cli holds terminal helpers shared by the relay commands.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fpang/channel-video-relay/internal/pipeline"
)

const rule = "============================================"

// PrintRunSummary writes a human-readable report of one run.
func PrintRunSummary(w io.Writer, stats pipeline.RunStatistics, runErr error) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Relay run")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Run ID:       %s\n", stats.RunID)
	fmt.Fprintf(w, "Cursor:       %d -> %d\n", stats.StartCursor.LastMessageID, stats.EndCursor.LastMessageID)
	fmt.Fprintf(w, "Found:        %d\n", stats.Found)
	fmt.Fprintf(w, "Transferred:  %d\n", stats.Transferred)
	fmt.Fprintf(w, "Notified:     %d\n", stats.Notified)
	fmt.Fprintf(w, "Failed:       %d\n", stats.Failed)
	fmt.Fprintf(w, "Duration:     %s\n", FormatDuration(stats.Duration.Seconds()))
	if runErr != nil {
		fmt.Fprintln(w, strings.Repeat("-", len(rule)))
		fmt.Fprintf(w, "Run failed: %v\n", runErr)
	}
	fmt.Fprintln(w, rule)
}

// FormatDuration renders seconds as 1.2s, 3m04s or 1h02m03s.
func FormatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
