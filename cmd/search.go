package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-cli/internal/export"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/session"
	"github.com/sells-group/parcel-cli/internal/store"
)

const cliConsumer = "cli"

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search every jurisdiction for a street address",
	Long:  "Queries all jurisdictions in the catalog, printing new parcels as each group of jurisdictions settles. Ctrl-C cancels the search at the next group boundary.",
	Example: `  parcel-cli search --street-name "Main St" --street-number 12
  parcel-cli search --street-name Elm --jurisdictions travis,hays --xlsx elm.xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		name, _ := cmd.Flags().GetString("street-name")
		number, _ := cmd.Flags().GetString("street-number")
		year, _ := cmd.Flags().GetInt("year")
		groupSize, _ := cmd.Flags().GetInt("group-size")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		only, _ := cmd.Flags().GetStringSlice("jurisdictions")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		noHistory, _ := cmd.Flags().GetBool("no-history")

		criteria := model.SearchCriteria{
			StreetNumber: number,
			StreetName:   name,
			TaxYear:      cfg.Search.TaxYear,
		}
		if year > 0 {
			criteria.TaxYear = year
		}
		if err := criteria.Validate(); err != nil {
			return err
		}

		runCfg := *cfg
		if groupSize > 0 {
			runCfg.Search.GroupSize = groupSize
		}
		if timeout > 0 {
			runCfg.Search.TimeoutSecs = max(1, int(timeout.Round(time.Second).Seconds()))
		}

		env, err := initSearchEnv(ctx, &runCfg, !noHistory)
		if err != nil {
			return err
		}
		defer env.Close()

		cat, err := env.Catalog.Select(only)
		if err != nil {
			return err
		}

		printer := newDeltaPrinter(os.Stdout)
		var (
			sink session.Sink = printer
			rec  *store.Recorder
		)
		if env.Store != nil {
			rec = store.NewRecorder(env.Store)
			sink = session.Tee(printer, rec)
		}

		s, err := session.New(criteria, cat, env.Dispatcher, sink, session.WithMetrics(env.Metrics))
		if err != nil {
			return err
		}
		if rec != nil {
			rec.Begin(ctx, cliConsumer, s)
		}

		if err := s.Run(ctx); err != nil {
			return eris.Wrap(err, "search")
		}

		final, _ := printer.Last()
		if xlsxPath != "" {
			if err := export.WriteXLSX(xlsxPath, final.Results); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d results to %s\n", len(final.Results), xlsxPath)
		}
		return nil
	},
}

func init() {
	f := searchCmd.Flags()
	f.String("street-name", "", "street name to search for (required)")
	f.String("street-number", "", "optional street number")
	f.Int("year", 0, "tax year (default from search.tax_year)")
	f.Int("group-size", 0, "jurisdictions queried concurrently (default from search.group_size)")
	f.Duration("timeout", 0, "per-jurisdiction request timeout (default from search.timeout_secs)")
	f.StringSlice("jurisdictions", nil, "restrict the search to these jurisdiction ids")
	f.String("xlsx", "", "write the final results to this spreadsheet")
	f.Bool("no-history", false, "do not record the search in history")
	_ = searchCmd.MarkFlagRequired("street-name")

	rootCmd.AddCommand(searchCmd)
}

// deltaPrinter prints the results each snapshot adds. Snapshots only ever
// append, so the delta is the tail past the previous length.
type deltaPrinter struct {
	out   io.Writer
	start time.Time
	seen  int
	last  session.Snapshot
	ok    bool
}

func newDeltaPrinter(out io.Writer) *deltaPrinter {
	return &deltaPrinter{out: out, start: time.Now()}
}

func (p *deltaPrinter) Deliver(snap session.Snapshot) {
	p.last, p.ok = snap, true

	if !snap.Terminal() {
		header := color.New(color.Faint).Sprintf("[group %d/%d]", snap.Group, snap.TotalGroups)
		if snap.Failures > 0 {
			header += color.YellowString(" %d failed", snap.Failures)
		}
		_, _ = fmt.Fprintln(p.out, header)
	}

	// A cancelled event re-sends what was already printed.
	if snap.Kind == session.EventSnapshot && len(snap.Results) > p.seen {
		for _, r := range snap.Results[p.seen:] {
			_, _ = fmt.Fprintf(p.out, "  %s  %s  %s\n",
				color.CyanString("%-16s", r.JurisdictionID),
				r.DisplayAddress,
				color.New(color.Faint).Sprint(r.ListKey()),
			)
		}
		p.seen = len(snap.Results)
	}

	if snap.Terminal() {
		elapsed := time.Since(p.start).Round(time.Millisecond)
		switch snap.Kind {
		case session.EventCompleted:
			_, _ = fmt.Fprintf(p.out, "%s %d results from %d groups in %s\n",
				color.GreenString("completed:"), len(snap.Results), snap.Group, elapsed)
		default:
			_, _ = fmt.Fprintf(p.out, "%s %d results from %d groups in %s\n",
				color.RedString("cancelled:"), len(snap.Results), snap.Group, elapsed)
		}
	}
}

// Last returns the most recent snapshot delivered.
func (p *deltaPrinter) Last() (session.Snapshot, bool) {
	return p.last, p.ok
}
