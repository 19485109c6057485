package pool

import (
	"fmt"
	"io"
	"strings"
)

const summarySampleSize = 10

// PrintSummary writes the human-readable end-of-run report for bulk mode.
func PrintSummary(w io.Writer, results []Result, snap Snapshot) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "BULK EXTRACTION SUMMARY")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "URLs submitted:   %d\n", snap.Submitted)
	fmt.Fprintf(w, "Succeeded:        %d\n", snap.Succeeded)
	fmt.Fprintf(w, "Failed:           %d\n", snap.Failed)
	fmt.Fprintf(w, "Products found:   %d\n", snap.TotalProductsFound)
	fmt.Fprintf(w, "Saved to DB:      %d\n", snap.TotalSavedToDB)
	fmt.Fprintf(w, "Duration:         %.1fs\n", snap.DurationSeconds)

	sample := results
	if len(sample) > summarySampleSize {
		sample = sample[:summarySampleSize]
	}
	if len(sample) > 0 {
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, res := range sample {
			if res.Success {
				fmt.Fprintf(w, "  ✓ %s  (%d products", res.URL, res.ProductsFound)
				if res.Strategy != "" {
					fmt.Fprintf(w, ", %s", res.Strategy)
				}
				fmt.Fprintln(w, ")")
			} else {
				fmt.Fprintf(w, "  ✗ %s  (%s)\n", res.URL, res.Error)
			}
		}
		if len(results) > len(sample) {
			fmt.Fprintf(w, "  ... and %d more\n", len(results)-len(sample))
		}
	}
	fmt.Fprintln(w, rule)
}
