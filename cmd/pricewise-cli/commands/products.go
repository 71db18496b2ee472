package commands

import (
	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/pricestore"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var productsShop *string

func init() {
	productsShop = productsCmd.Flags().String("shop", "", "Only list products of this shop.")
	rootCmd.AddCommand(productsCmd)
}

func renderProducts(products []catalog.Product, scores []float64) {
	t := newTable()
	header := table.Row{"Shop", "Product", "Brand", "Price", "Updated"}
	if scores != nil {
		header = append(header, "Score")
	}
	t.AppendHeader(header)

	for i, p := range products {
		price := "-"
		updated := "-"
		if p.Price != nil {
			price = p.Price.Currency + " " + p.Price.Amount.StringFixed(2)
			updated = p.Price.CreatedAt.Format("2006-01-02 15:04")
		}
		row := table.Row{p.ShopName, p.Name, p.Brand, price, updated}
		if scores != nil {
			row = append(row, scores[i])
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", len(products)})
	t.Render()
}

var productsCmd = &cobra.Command{
	Use:   "products [--shop <name>]",
	Short: "Lists stored products with their latest price.",
	Run: func(cmd *cobra.Command, args []string) {
		pipeline := openApp(cmd.Context())
		defer pipeline.Close()

		products, err := pipeline.Store.ListProducts(cmd.Context(), pricestore.ProductFilter{
			ShopName: *productsShop,
		})
		if err != nil {
			fatal(err)
		}
		renderProducts(products, nil)
	},
}
