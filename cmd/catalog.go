package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-cli/internal/catalog"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/internal/query"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the jurisdiction catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jurisdictions in dispatch order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		formatCatalog(os.Stdout, cat, cfg.Search.GroupSize)
		return nil
	},
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every template and print a sample request",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		sample := model.SearchCriteria{StreetNumber: "100", StreetName: "Main St", TaxYear: cfg.Search.TaxYear}
		for _, j := range cat.All() {
			d, err := query.Build(sample, j)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s %s\n", color.GreenString("ok"), d.URL)
		}
		_, _ = fmt.Fprintf(os.Stdout, "%d jurisdictions valid\n", cat.Len())
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(catalogCmd)
}

// formatCatalog writes the catalog as a table with the group each
// jurisdiction is dispatched in.
func formatCatalog(out io.Writer, cat *catalog.Catalog, groupSize int) {
	if groupSize < 1 {
		groupSize = 1
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GROUP\tID\tDETAIL")
	for i, j := range cat.All() {
		detail := "-"
		if j.DetailTemplate != "" {
			detail = "yes"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i/groupSize+1, j.ID, detail)
	}
	_ = w.Flush()
}
