package commands

import (
	"pricewise-backend/internal/components/telemetry"
	"pricewise-backend/internal/scrapers/woolworths"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(detailsCmd)
}

var detailsCmd = &cobra.Command{
	Use:   "details <product url>",
	Short: "Scrapes a single Woolworths product page and prints what was found.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := woolworths.NewDetailsClient(woolworths.BaseURL, telemetry.SlogAPI{})
		if err != nil {
			fatal(err)
		}
		item, err := client.Details(cmd.Context(), args[0])
		if err != nil {
			fatal(err)
		}

		t := newTable()
		t.AppendRows([]table.Row{
			{"Name", item.Name},
			{"Brand", item.Brand},
			{"Category", item.Category},
			{"Price", item.CurrencyOrDefault() + " " + item.Price.StringFixed(2)},
			{"Barcode", item.Barcode},
			{"Image", item.ImageURL},
			{"Description", item.Description},
		})
		t.Render()
	},
}
