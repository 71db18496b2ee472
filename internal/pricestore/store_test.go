package pricestore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/chrono"
	"pricewise-backend/internal/components/db"
	"pricewise-backend/pkg/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var woolworths = catalog.Shop{Name: "Woolworths", URL: "https://www.woolworths.co.za"}

func newTestStore(t *testing.T) (Store, *chrono.FakeClock) {
	clock := chrono.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	return NewStore(testutil.OpenInMemoryDB(t, db.Schema), clock), clock
}

func item(name, price string) catalog.ScrapedItem {
	return catalog.ScrapedItem{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Currency: "ZAR",
		ImageURL: "https://img/" + strings.ReplaceAll(name, " ", "-") + ".jpg",
	}
}

func TestMergeIsIdempotentForProducts(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	batch := []catalog.ScrapedItem{
		item("Full Cream Milk 2L", "32.99"),
		item("Free Range Eggs 6 Pack", "41.99"),
		item("Sourdough Loaf", "45.00"),
	}
	ids := map[string]string{}
	for _, it := range batch {
		id, err := store.MergeItem(ctx, woolworths, it)
		require.NoError(t, err)
		ids[it.Name] = id
	}

	clock.Advance(time.Hour)
	batch[0].Price = decimal.RequireFromString("34.99")
	for _, it := range batch {
		id, err := store.MergeItem(ctx, woolworths, it)
		require.NoError(t, err)
		require.Equal(t, ids[it.Name], id)
	}

	products, err := store.ListProducts(ctx, ProductFilter{ShopName: "Woolworths"})
	require.NoError(t, err)
	require.Len(t, products, 3)

	for _, p := range products {
		history, err := store.PriceHistory(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, history, 2, p.Name)
		require.NotNil(t, p.Price)
		require.Equal(t, history[0].ID, p.Price.ID)
	}

	milk := products[slicesIndex(products, "Full Cream Milk 2L")]
	require.Equal(t, "34.99", milk.Price.Amount.StringFixed(2))
	require.Equal(t, "ZAR", milk.Price.Currency)
	require.Equal(t, "Woolworths", milk.ShopName)
}

func slicesIndex(products []catalog.Product, name string) int {
	for i, p := range products {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func TestMergeReplacesDescriptiveFields(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	first := item("Rooibos Tea", "29.99")
	first.Brand = "Freshpak"
	first.Category = "Beverages"
	_, err := store.MergeItem(ctx, woolworths, first)
	require.NoError(t, err)

	second := item("Rooibos Tea", "29.99")
	second.Description = "80 tea bags"
	_, err = store.MergeItem(ctx, woolworths, second)
	require.NoError(t, err)

	products, err := store.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "80 tea bags", products[0].Description)
	require.Empty(t, products[0].Brand)
	require.Empty(t, products[0].Category)
}

func TestMergeRejectsInvalidItems(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.MergeItem(ctx, woolworths, item("", "10"))
	var persistence catalog.PersistenceError
	require.ErrorAs(t, err, &persistence)
	var validation catalog.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "name", validation.Field)

	_, err = store.MergeItem(ctx, woolworths, item("Butter", "-1"))
	require.ErrorAs(t, err, &validation)

	// nothing from the failed merges was kept
	products, err := store.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	require.Empty(t, products)
}

func TestMergeDefaultsCurrency(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	it := item("Bananas", "19.99")
	it.Currency = ""
	id, err := store.MergeItem(ctx, woolworths, it)
	require.NoError(t, err)

	history, err := store.PriceHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, catalog.DefaultCurrency, history[0].Currency)
}

func TestZeroPriceIsKept(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	id, err := store.MergeItem(ctx, woolworths, item("Free Sample", "0"))
	require.NoError(t, err)

	history, err := store.PriceHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].Amount.IsZero())
}

func TestClearShop(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for _, it := range []catalog.ScrapedItem{item("Apples", "25"), item("Pears", "30")} {
		_, err := store.MergeItem(ctx, woolworths, it)
		require.NoError(t, err)
		_, err = store.MergeItem(ctx, woolworths, it)
		require.NoError(t, err)
	}
	_, err := store.MergeItem(ctx, catalog.Shop{Name: "Checkers", URL: "https://www.checkers.co.za"}, item("Apples", "22"))
	require.NoError(t, err)

	result, err := store.ClearShop(ctx, "Woolworths")
	require.NoError(t, err)
	require.Equal(t, ClearResult{DeletedProducts: 2, DeletedPrices: 4}, result)

	result, err = store.ClearShop(ctx, "Woolworths")
	require.NoError(t, err)
	require.Equal(t, ClearResult{}, result)

	// other shops are untouched
	products, err := store.ListProducts(ctx, ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "Checkers", products[0].ShopName)

	_, err = store.ClearShop(ctx, "Pick n Pay")
	var notFound catalog.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = store.ClearShop(ctx, "  ")
	var validation catalog.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestSearchProducts(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for _, it := range []catalog.ScrapedItem{
		item("Full Cream Fresh Milk 2L", "32.99"),
		item("Low Fat Milk 1L", "19.99"),
		item("Sourdough Loaf", "45.00"),
		item("Mature Cheddar", "89.99"),
	} {
		_, err := store.MergeItem(ctx, woolworths, it)
		require.NoError(t, err)
	}

	results, err := store.SearchProducts(ctx, "milk", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.Contains(t, r.Product.Name, "Milk")
		require.Equal(t, 1.0, r.Score)
	}

	// a misspelling still finds the closest product
	results, err = store.SearchProducts(ctx, "mlk", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Product.Name, "Milk")
	require.Less(t, results[0].Score, 1.0)

	results, err = store.SearchProducts(ctx, "chedar", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "Mature Cheddar", results[0].Product.Name)

	_, err = store.SearchProducts(ctx, "", 5)
	var validation catalog.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestFetchOperations(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	op, err := store.CreateFetchOperation(ctx, "Woolworths")
	require.NoError(t, err)
	require.True(t, op.IsFetching)
	require.True(t, strings.HasPrefix(op.ID, "fetch_1709280000000_"))

	clock.Advance(time.Minute)
	require.NoError(t, store.FinishFetchOperation(ctx, op.ID))

	got, err := store.GetFetchOperation(ctx, op.ID)
	require.NoError(t, err)
	require.False(t, got.IsFetching)
	require.Equal(t, time.Minute, got.UpdatedAt.Sub(got.CreatedAt))

	ops, err := store.ListFetchOperations(ctx, "Woolworths", 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	_, err = store.GetFetchOperation(ctx, "fetch_0_missing")
	var notFound catalog.NotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, "fetch operation", notFound.Kind)
}

func TestSeedTestProduct(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	p, err := store.SeedTestProduct(ctx)
	require.NoError(t, err)
	require.Equal(t, "Test Shop", p.ShopName)
	require.Equal(t, "Test Product", p.Name)
	require.Equal(t, "99.99", p.Price.Amount.StringFixed(2))

	p2, err := store.SeedTestProduct(ctx)
	require.NoError(t, err)
	require.Equal(t, p.ID, p2.ID)
}
