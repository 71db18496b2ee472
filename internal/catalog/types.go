// Package catalog contains the records that flow through ingestion and the
// errors shared by every stage of it.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used whenever a source does not state a currency.
const DefaultCurrency = "ZAR"

// PlaceholderImageURL is substituted for products without an image when the
// catalog is read.
const PlaceholderImageURL = "https://placehold.co/400x400?text=No+Image"

// ScrapedItem is one product as seen on a listing page. It has no identity
// beyond its name until it is merged into the store.
type ScrapedItem struct {
	Name        string
	Price       decimal.Decimal
	Currency    string
	ImageURL    string
	Description string
	Brand       string
	Category    string
	Promotion   string
	ProductURL  string
	Barcode     string
}

// Validate checks the fields the store relies on.
func (i ScrapedItem) Validate() error {
	if i.Name == "" {
		return ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if i.Price.IsNegative() {
		return ValidationError{Field: "price", Reason: "must not be negative"}
	}
	return nil
}

// CurrencyOrDefault returns the item currency, or DefaultCurrency if unset.
func (i ScrapedItem) CurrencyOrDefault() string {
	if i.Currency == "" {
		return DefaultCurrency
	}
	return i.Currency
}

type Shop struct {
	ID   string
	Name string
	URL  string
}

type Product struct {
	ID          string
	ShopID      string
	ShopName    string
	Name        string
	Description string
	Brand       string
	Category    string
	ImageURL    string
	Barcode     string
	Promotion   string
	ProductURL  string
	// Price is the most recent price observation, it is nil when the product
	// has never been priced.
	Price *Price
}

// ImageOrPlaceholder returns the product image or PlaceholderImageURL.
func (p Product) ImageOrPlaceholder() string {
	if p.ImageURL == "" {
		return PlaceholderImageURL
	}
	return p.ImageURL
}

type Price struct {
	ID        string
	ProductID string
	Amount    decimal.Decimal
	Currency  string
	CreatedAt time.Time
}

type FetchOperation struct {
	ID         string
	ShopName   string
	IsFetching bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
