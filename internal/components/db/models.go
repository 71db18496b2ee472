package db

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// timestamps are unix milliseconds

type Shop struct {
	ID        string
	Name      string
	Url       string
	CreatedAt int64
}

type Product struct {
	ID          string
	ShopID      string
	Name        string
	Description sql.NullString
	Brand       sql.NullString
	Category    sql.NullString
	ImageUrl    sql.NullString
	Barcode     sql.NullString
	Promotion   sql.NullString
	ProductUrl  sql.NullString
	CreatedAt   int64
	UpdatedAt   int64
}

type Price struct {
	ID        string
	ProductID string
	Amount    decimal.Decimal
	Currency  string
	CreatedAt int64
}

type FetchOperation struct {
	ID         string
	ShopName   string
	IsFetching bool
	CreatedAt  int64
	UpdatedAt  int64
}
