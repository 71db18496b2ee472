package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(clearCmd)
}

var clearCmd = &cobra.Command{
	Use:   "clear <shop>",
	Short: "Deletes every product and price of a shop, the shop itself is kept.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := openApp(cmd.Context())
		defer pipeline.Close()

		result, err := pipeline.Store.ClearShop(cmd.Context(), args[0])
		if err != nil {
			fatal(err)
		}
		fmt.Printf(
			"Cleared %d products and %d prices for %s.\n",
			result.DeletedProducts,
			result.DeletedPrices,
			args[0],
		)
	},
}
