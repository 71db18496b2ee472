package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var showFailures *bool

func init() {
	showFailures = ingestCmd.Flags().Bool("failures", false, "List every item that could not be stored.")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <shop>",
	Short: "Scrapes every listing page of a shop and merges the items into the catalog.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := openApp(cmd.Context())
		defer pipeline.Close()

		report, err := pipeline.Coordinator.Ingest(cmd.Context(), args[0])
		if err != nil {
			fatal(err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Operation", "Shop", "State", "Pages", "Processed", "Total", "Duration"})
		t.AppendRow(table.Row{
			report.OperationID,
			report.Shop.Name,
			report.State,
			report.Pagination.Pages,
			report.Processed,
			report.Total,
			report.FinishedAt.Sub(report.StartedAt).Round(time.Second),
		})
		t.Render()

		failed := report.Failed()
		if len(failed) == 0 || !*showFailures {
			if len(failed) > 0 {
				fmt.Printf("%d items failed, rerun with --failures to list them.\n", len(failed))
			}
			return
		}

		ft := newTable()
		ft.AppendHeader(table.Row{"Item", "Error"})
		for _, res := range failed {
			ft.AppendRow(table.Row{res.Item.Name, res.Err.Error()})
		}
		ft.Render()
	},
}
