package commands

import (
	"strings"

	"pricewise-backend/internal/catalog"

	"github.com/spf13/cobra"
)

var searchLimit *int

func init() {
	searchLimit = searchCmd.Flags().Int("limit", 20, "Maximum number of results.")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Finds stored products whose name resembles the query.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := openApp(cmd.Context())
		defer pipeline.Close()

		results, err := pipeline.Store.SearchProducts(cmd.Context(), strings.Join(args, " "), *searchLimit)
		if err != nil {
			fatal(err)
		}

		products := make([]catalog.Product, len(results))
		scores := make([]float64, len(results))
		for i, r := range results {
			products[i] = r.Product
			scores[i] = r.Score
		}
		renderProducts(products, scores)
	},
}
