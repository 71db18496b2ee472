package pricestore

import (
	"context"
	"database/sql"
	"slices"
	"strings"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/db"

	"github.com/antzucaro/matchr"
	"github.com/shopspring/decimal"
)

// ProductFilter narrows ListProducts, empty fields match everything.
type ProductFilter struct {
	ShopName string
	ShopID   string
}

func (s Store) toProduct(row db.ListProductsRow) catalog.Product {
	p := catalog.Product{
		ID:          row.Product.ID,
		ShopID:      row.Product.ShopID,
		ShopName:    row.ShopName,
		Name:        row.Product.Name,
		Description: row.Product.Description.String,
		Brand:       row.Product.Brand.String,
		Category:    row.Product.Category.String,
		ImageURL:    row.Product.ImageUrl.String,
		Barcode:     row.Product.Barcode.String,
		Promotion:   row.Product.Promotion.String,
		ProductURL:  row.Product.ProductUrl.String,
	}
	if row.PriceID.Valid {
		p.Price = &catalog.Price{
			ID:        row.PriceID.String,
			ProductID: row.Product.ID,
			Amount:    row.PriceAmount.Decimal,
			Currency:  row.PriceCurrency.String,
			CreatedAt: s.fromMillis(row.PriceCreatedAt.Int64),
		}
	}
	return p
}

// ListProducts returns products with their latest price, ordered by shop then
// name.
func (s Store) ListProducts(ctx context.Context, filter ProductFilter) ([]catalog.Product, error) {
	rows, err := s.qry.ListProducts(ctx, db.ListProductsParams{
		ShopName: nullString(strings.TrimSpace(filter.ShopName)),
		ShopID:   nullString(strings.TrimSpace(filter.ShopID)),
	})
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Product, len(rows))
	for i, row := range rows {
		out[i] = s.toProduct(row)
	}
	return out, nil
}

// PriceHistory returns every price observation of a product, newest first.
func (s Store) PriceHistory(ctx context.Context, productID string) ([]catalog.Price, error) {
	rows, err := s.qry.ListPriceHistory(ctx, productID)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Price, len(rows))
	for i, row := range rows {
		out[i] = catalog.Price{
			ID:        row.ID,
			ProductID: row.ProductID,
			Amount:    row.Amount,
			Currency:  row.Currency,
			CreatedAt: s.fromMillis(row.CreatedAt),
		}
	}
	return out, nil
}

// MinSearchScore is the lowest similarity a search result may have.
const MinSearchScore = 0.85

type SearchResult struct {
	Product catalog.Product
	Score   float64
}

// searchScore compares every word of query against the closest word of name
// using Jaro-Winkler similarity and averages them. A name containing the
// whole query scores 1.
func searchScore(query, name string) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	name = strings.ToLower(name)
	if query == "" {
		return 0
	}
	if strings.Contains(name, query) {
		return 1
	}

	queryWords := strings.Fields(query)
	nameWords := strings.Fields(name)
	total := 0.0
	for _, qw := range queryWords {
		best := 0.0
		for _, nw := range nameWords {
			similarity := matchr.JaroWinkler(qw, nw, false)
			if similarity > best {
				best = similarity
			}
		}
		total += best
	}
	return total / float64(len(queryWords))
}

// SearchProducts ranks stored products by how closely their name matches
// query, best match first.
func (s Store) SearchProducts(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, catalog.ValidationError{Field: "query", Reason: "required"}
	}
	if limit <= 0 {
		limit = 20
	}

	products, err := s.ListProducts(ctx, ProductFilter{})
	if err != nil {
		return nil, err
	}

	results := []SearchResult{}
	for _, p := range products {
		score := searchScore(query, p.Name)
		if score < MinSearchScore {
			continue
		}
		results = append(results, SearchResult{Product: p, Score: score})
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.Product.Name, b.Product.Name)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// test fixture served by the seed command
var (
	testShop = catalog.Shop{Name: "Test Shop", URL: "https://test-shop.com"}
	testItem = catalog.ScrapedItem{
		Name:        "Test Product",
		Description: "This is a test product",
		Price:       decimal.RequireFromString("99.99"),
		Currency:    catalog.DefaultCurrency,
	}
)

// SeedTestProduct merges a fixed product into a "Test Shop", for checking a
// deployment end to end without scraping.
func (s Store) SeedTestProduct(ctx context.Context) (catalog.Product, error) {
	_, err := s.MergeItem(ctx, testShop, testItem)
	if err != nil {
		return catalog.Product{}, err
	}
	products, err := s.ListProducts(ctx, ProductFilter{ShopName: testShop.Name})
	if err != nil {
		return catalog.Product{}, err
	}
	for _, p := range products {
		if p.Name == testItem.Name {
			return p, nil
		}
	}
	return catalog.Product{}, sql.ErrNoRows
}
