package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tastebase/capture-cli/internal/ledger"
)

var (
	statsHours int
	statsBy    string
	statsJSON  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show extraction ledger aggregates",
	Long:  "Summarizes the extraction ledger: attempt counts, success rate, spend, confidence, and latency, optionally broken down by provider, domain, or day.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		led, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()

		var since time.Time
		if statsHours > 0 {
			since = time.Now().UTC().Add(-time.Duration(statsHours) * time.Hour)
		}

		switch statsBy {
		case "":
			totals, err := led.Stats(ctx, since)
			if err != nil {
				return eris.Wrap(err, "ledger stats")
			}
			if statsJSON {
				return printJSON(totals)
			}
			formatTotals(os.Stdout, totals)
		case "provider":
			rows, err := led.StatsByProvider(ctx, since)
			if err != nil {
				return eris.Wrap(err, "ledger stats by provider")
			}
			if statsJSON {
				return printJSON(rows)
			}
			out := make([]statsRow, 0, len(rows))
			for _, r := range rows {
				out = append(out, statsRow{Label: r.Provider, Totals: r.Totals})
			}
			formatStatsRows(os.Stdout, "PROVIDER", out)
		case "domain":
			rows, err := led.StatsByDomain(ctx, since)
			if err != nil {
				return eris.Wrap(err, "ledger stats by domain")
			}
			if statsJSON {
				return printJSON(rows)
			}
			out := make([]statsRow, 0, len(rows))
			for _, r := range rows {
				out = append(out, statsRow{Label: string(r.Domain), Totals: r.Totals})
			}
			formatStatsRows(os.Stdout, "DOMAIN", out)
		case "day":
			rows, err := led.StatsByDay(ctx, since)
			if err != nil {
				return eris.Wrap(err, "ledger stats by day")
			}
			if statsJSON {
				return printJSON(rows)
			}
			out := make([]statsRow, 0, len(rows))
			for _, r := range rows {
				out = append(out, statsRow{Label: r.Day, Totals: r.Totals})
			}
			formatStatsRows(os.Stdout, "DAY", out)
		default:
			return eris.Errorf("unknown breakdown %q (use provider, domain, or day)", statsBy)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsHours, "hours", 0, "restrict to the last N hours (0 = all time)")
	statsCmd.Flags().StringVar(&statsBy, "by", "", "break down by provider, domain, or day")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit JSON instead of a table")
	rootCmd.AddCommand(statsCmd)
}

// statsRow pairs a grouping label with its totals for tabular output.
type statsRow struct {
	Label string
	ledger.Totals
}

// formatTotals writes the overall aggregates to w.
func formatTotals(out io.Writer, t *ledger.Totals) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Attempts\t%d\n", t.Count)
	_, _ = fmt.Fprintf(w, "Successes\t%d\n", t.Successes)
	_, _ = fmt.Fprintf(w, "Failures\t%d\n", t.Failures)
	_, _ = fmt.Fprintf(w, "Success rate\t%.1f%%\n", t.SuccessRate*100)
	_, _ = fmt.Fprintf(w, "Total cost\t$%.4f\n", t.TotalCostUSD)
	_, _ = fmt.Fprintf(w, "Avg confidence\t%.2f\n", t.AvgConfidence)
	_, _ = fmt.Fprintf(w, "Avg latency\t%.0fms\n", t.AvgLatencyMS)
	_ = w.Flush()
}

// formatStatsRows writes a grouped aggregate table to w.
func formatStatsRows(out io.Writer, label string, rows []statsRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "%s\tATTEMPTS\tOK\tFAIL\tRATE\tCOST\tCONF\tLATENCY\n", label)
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\t$%.4f\t%.2f\t%.0fms\n",
			r.Label,
			r.Count,
			r.Successes,
			r.Failures,
			r.SuccessRate*100,
			r.TotalCostUSD,
			r.AvgConfidence,
			r.AvgLatencyMS,
		)
	}
	_ = w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
