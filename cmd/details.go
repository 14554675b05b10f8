package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/parcel-cli/internal/catalog"
	"github.com/sells-group/parcel-cli/internal/model"
	"github.com/sells-group/parcel-cli/pkg/appraisal"
)

var detailsCmd = &cobra.Command{
	Use:   "details [list-key]",
	Short: "Look up one parcel's appraisal record",
	Long:  "Fetches a single property from its jurisdiction. Pass --jurisdiction and --property-id, or the list key printed by search (e.g. travis_123456).",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
		propertyID, _ := cmd.Flags().GetString("property-id")
		price, _ := cmd.Flags().GetFloat64("price")

		if len(args) == 1 {
			key, err := model.ParseListKey(args[0])
			if err != nil {
				return err
			}
			jurisdiction, propertyID = key.JurisdictionID, key.SourceRecordID
		}
		if jurisdiction == "" || propertyID == "" {
			return eris.New("details: a list key or both --jurisdiction and --property-id are required")
		}

		cat, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		j, err := cat.Get(jurisdiction)
		if err != nil {
			return err
		}

		client := appraisal.NewClient(appraisal.WithUserAgent(cfg.Search.UserAgent))
		p, err := client.Details(ctx, j, propertyID)
		if err != nil {
			return err
		}

		printProperty(p, price)
		return nil
	},
}

func init() {
	detailsCmd.Flags().String("jurisdiction", "", "jurisdiction id")
	detailsCmd.Flags().String("property-id", "", "property id within the jurisdiction")
	detailsCmd.Flags().Float64("price", 0, "asking price to compare with the appraised value")
	rootCmd.AddCommand(detailsCmd)
}

func printProperty(p *appraisal.Property, price float64) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Jurisdiction:\t%s\n", p.JurisdictionID)
	_, _ = fmt.Fprintf(w, "Property ID:\t%s\n", p.PropertyID)
	_, _ = fmt.Fprintf(w, "Address:\t%s\n", p.Address)
	_, _ = fmt.Fprintf(w, "Owner:\t%s\n", p.OwnerName)
	_, _ = fmt.Fprintf(w, "Appraised value:\t$%.0f\n", p.AppraisedValue)
	_, _ = fmt.Fprintf(w, "Subdivision:\t%s\n", p.Subdivision)
	_, _ = fmt.Fprintf(w, "Legal description:\t%s\n", p.LegalDescription)
	_ = w.Flush()

	if price <= 0 {
		return
	}
	v := appraisal.EvaluatePrice(p.AppraisedValue, price)
	label := v.Label()
	switch v {
	case appraisal.VerdictGreat:
		label = color.GreenString(label)
	case appraisal.VerdictFair:
		label = color.YellowString(label)
	case appraisal.VerdictBad:
		label = color.RedString(label)
	}
	fmt.Printf("\nAt $%.0f: %s\n", price, label)
}
