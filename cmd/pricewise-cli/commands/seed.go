package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Stores a test product, for checking a deployment without scraping.",
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := openApp(cmd.Context())
		defer pipeline.Close()

		product, err := pipeline.Store.SeedTestProduct(cmd.Context())
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Seeded %q (%s) in %s.\n", product.Name, product.ID, product.ShopName)
	},
}
