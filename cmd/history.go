package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-cli/internal/export"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/monitoring"
	"github.com/sells-group/parcel-cli/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded searches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		state, _ := cmd.Flags().GetString("state")
		street, _ := cmd.Flags().GetString("street")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListSearches(ctx, store.SearchFilter{
			State:      state,
			StreetName: street,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "history list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No searches found.")
			return nil
		}

		formatHistory(os.Stdout, runs)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <search-id>",
	Short: "Show a recorded search with its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetSearch(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "history show")
		}

		if xlsxPath, _ := cmd.Flags().GetString("xlsx"); xlsxPath != "" {
			if err := export.WriteXLSX(xlsxPath, run.Results); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d results to %s\n", len(run.Results), xlsxPath)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent searches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		stats, err := monitoring.NewCollector(st, nil).Collect(ctx, since)
		if err != nil {
			return eris.Wrap(err, "history stats")
		}
		formatStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	historyCmd.Flags().String("state", "", "filter by state (running, completed, cancelled)")
	historyCmd.Flags().String("street", "", "filter by street name substring")
	historyCmd.Flags().Int("limit", 20, "max number of searches to display")

	historyShowCmd.Flags().String("xlsx", "", "export the results to this spreadsheet instead of printing")

	historyStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 168h)")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	rootCmd.AddCommand(historyCmd)
}

// formatHistory writes a tabular list of searches to out.
func formatHistory(out io.Writer, runs []model.SearchRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSEARCH\tSTATE\tRESULTS\tFAILED\tSTARTED\tDURATION")
	for _, r := range runs {
		dur := "-"
		if r.Finished() {
			dur = r.Duration().Round(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID,
			r.Criteria.String(),
			r.State,
			r.ResultCount,
			r.Failures,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatStats writes a summary of search activity to out.
func formatStats(out io.Writer, s *monitoring.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Since:\t%s\n", s.Since.Local().Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(w, "Searches:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Completed:\t%d\n", s.Completed)
	_, _ = fmt.Fprintf(w, "Cancelled:\t%d (%.1f%%)\n", s.Cancelled, s.CancelRate*100)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "Avg results:\t%.1f\n", s.AvgResults)
	_, _ = fmt.Fprintf(w, "Avg failed requests:\t%.1f\n", s.AvgFailures)
	_, _ = fmt.Fprintf(w, "Avg duration:\t%s\n", s.AvgDuration.Round(time.Millisecond))
	_ = w.Flush()
}
