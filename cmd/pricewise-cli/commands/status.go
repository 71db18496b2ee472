package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statusLimit *int

func init() {
	statusLimit = statusCmd.Flags().Int("limit", 10, "Number of operations to show.")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <shop>",
	Short: "Shows the most recent ingestion runs of a shop.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := openApp(cmd.Context())
		defer pipeline.Close()

		ops, err := pipeline.Store.ListFetchOperations(cmd.Context(), args[0], *statusLimit)
		if err != nil {
			fatal(err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Operation", "Fetching", "Started", "Updated"})
		for _, op := range ops {
			t.AppendRow(table.Row{
				op.ID,
				op.IsFetching,
				op.CreatedAt.Format("2006-01-02 15:04:05"),
				op.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		t.Render()
	},
}
