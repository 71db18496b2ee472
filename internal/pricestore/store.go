// Package pricestore merges scraped items into the catalog database and reads
// the catalog back out.
package pricestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/assert"
	"pricewise-backend/internal/components/chrono"
	"pricewise-backend/internal/components/db"

	"github.com/google/uuid"
	random "github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("pricewise.pricestore")

type Store struct {
	qry    *db.Queries
	makeTx db.MakeTx
	clock  chrono.API
}

func NewStore(database *sql.DB, clock chrono.API) Store {
	assert.NotNil(database)
	assert.NotNil(clock)
	return Store{
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		clock:  clock,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s Store) now() int64 {
	return s.clock.Now().UnixMilli()
}

func (s Store) fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).In(s.clock.Location())
}

// UpsertShop resolves a shop by name, creating it when absent. An existing
// shop's url is overwritten.
func (s Store) UpsertShop(ctx context.Context, shop catalog.Shop) (string, error) {
	return upsertShop(ctx, s.qry, shop, s.now())
}

func upsertShop(ctx context.Context, qry *db.Queries, shop catalog.Shop, now int64) (string, error) {
	if shop.Name == "" {
		return "", catalog.ValidationError{Field: "shopName", Reason: "must not be empty"}
	}
	id, err := qry.UpsertShop(ctx, db.UpsertShopParams{
		ID:        uuid.NewString(),
		Name:      shop.Name,
		Url:       shop.URL,
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("upsert shop %q: %w", shop.Name, err)
	}
	return id, nil
}

// UpsertProduct creates the product identified by (item.Name, shopID) or
// replaces every descriptive field of the existing one.
func (s Store) UpsertProduct(ctx context.Context, shopID string, item catalog.ScrapedItem) (string, error) {
	return upsertProduct(ctx, s.qry, shopID, item, s.now())
}

func upsertProduct(ctx context.Context, qry *db.Queries, shopID string, item catalog.ScrapedItem, now int64) (string, error) {
	id, err := qry.UpsertProduct(ctx, db.UpsertProductParams{
		ID:          uuid.NewString(),
		ShopID:      shopID,
		Name:        item.Name,
		Description: nullString(item.Description),
		Brand:       nullString(item.Brand),
		Category:    nullString(item.Category),
		ImageUrl:    nullString(item.ImageURL),
		Barcode:     nullString(item.Barcode),
		Promotion:   nullString(item.Promotion),
		ProductUrl:  nullString(item.ProductURL),
		Now:         now,
	})
	if err != nil {
		return "", fmt.Errorf("upsert product %q: %w", item.Name, err)
	}
	return id, nil
}

// AppendPrice records a new price observation, existing rows are never touched.
func (s Store) AppendPrice(ctx context.Context, productID string, price catalog.Price) error {
	return appendPrice(ctx, s.qry, productID, price, s.now())
}

func appendPrice(ctx context.Context, qry *db.Queries, productID string, price catalog.Price, now int64) error {
	if price.Amount.IsNegative() {
		return catalog.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	currency := price.Currency
	if currency == "" {
		currency = catalog.DefaultCurrency
	}
	err := qry.CreatePrice(ctx, db.CreatePriceParams{
		ID:        uuid.NewString(),
		ProductID: productID,
		Amount:    price.Amount,
		Currency:  currency,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("append price for %s: %w", productID, err)
	}
	return nil
}

// MergeItem resolves the shop, upserts the product and appends its price in
// one transaction. Any failure is returned as a catalog.PersistenceError and
// leaves nothing behind.
func (s Store) MergeItem(ctx context.Context, shop catalog.Shop, item catalog.ScrapedItem) (productID string, err error) {
	ctx, span := tracer.Start(ctx, "MergeItem")
	defer span.End()
	span.SetAttributes(
		attribute.String("shop", shop.Name),
		attribute.String("item", item.Name),
	)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to merge item")
			err = catalog.PersistenceError{ItemName: item.Name, Err: err}
		}
	}()

	err = item.Validate()
	if err != nil {
		return "", err
	}

	txqry, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return "", err
	}
	defer discard()

	now := s.now()
	shopID, err := upsertShop(ctx, txqry, shop, now)
	if err != nil {
		return "", err
	}
	productID, err = upsertProduct(ctx, txqry, shopID, item, now)
	if err != nil {
		return "", err
	}
	err = appendPrice(ctx, txqry, productID, catalog.Price{
		Amount:   item.Price,
		Currency: item.CurrencyOrDefault(),
	}, now)
	if err != nil {
		return "", err
	}

	err = commit()
	if err != nil {
		return "", err
	}
	return productID, nil
}

type ClearResult struct {
	DeletedProducts int64
	DeletedPrices   int64
}

// ClearShop deletes every price and product of a shop, the shop row itself is
// kept. Clearing a shop that has no products succeeds with zero counts, an
// unknown shop name is a catalog.NotFoundError.
func (s Store) ClearShop(ctx context.Context, shopName string) (ClearResult, error) {
	ctx, span := tracer.Start(ctx, "ClearShop")
	defer span.End()

	shopName = strings.TrimSpace(shopName)
	if shopName == "" {
		return ClearResult{}, catalog.ValidationError{Field: "shopName", Reason: "required"}
	}

	txqry, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return ClearResult{}, err
	}
	defer discard()

	shop, err := txqry.GetShopByName(ctx, shopName)
	if errors.Is(err, sql.ErrNoRows) {
		return ClearResult{}, catalog.NotFoundError{Kind: "shop", Key: shopName}
	}
	if err != nil {
		return ClearResult{}, err
	}

	deletedPrices, err := txqry.DeletePricesForShop(ctx, shop.ID)
	if err != nil {
		return ClearResult{}, fmt.Errorf("delete prices: %w", err)
	}
	deletedProducts, err := txqry.DeleteProductsForShop(ctx, shop.ID)
	if err != nil {
		return ClearResult{}, fmt.Errorf("delete products: %w", err)
	}

	err = commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to commit")
		return ClearResult{}, err
	}

	span.SetAttributes(
		attribute.Int64("deleted_products", deletedProducts),
		attribute.Int64("deleted_prices", deletedPrices),
	)
	return ClearResult{
		DeletedProducts: deletedProducts,
		DeletedPrices:   deletedPrices,
	}, nil
}

// NewFetchOperationID returns an id of the form fetch_<unix millis>_<random>.
func NewFetchOperationID(now time.Time) (string, error) {
	suffix, err := random.String(8)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("fetch_%d_%s", now.UnixMilli(), suffix), nil
}

func (s Store) CreateFetchOperation(ctx context.Context, shopName string) (catalog.FetchOperation, error) {
	now := s.clock.Now()
	id, err := NewFetchOperationID(now)
	if err != nil {
		return catalog.FetchOperation{}, err
	}
	err = s.qry.CreateFetchOperation(ctx, db.CreateFetchOperationParams{
		ID:        id,
		ShopName:  shopName,
		CreatedAt: now.UnixMilli(),
	})
	if err != nil {
		return catalog.FetchOperation{}, fmt.Errorf("create fetch operation: %w", err)
	}
	return catalog.FetchOperation{
		ID:         id,
		ShopName:   shopName,
		IsFetching: true,
		CreatedAt:  s.fromMillis(now.UnixMilli()),
		UpdatedAt:  s.fromMillis(now.UnixMilli()),
	}, nil
}

func (s Store) FinishFetchOperation(ctx context.Context, id string) error {
	err := s.qry.FinishFetchOperation(ctx, db.FinishFetchOperationParams{
		ID:        id,
		UpdatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("finish fetch operation %s: %w", id, err)
	}
	return nil
}

func (s Store) toFetchOperation(row db.FetchOperation) catalog.FetchOperation {
	return catalog.FetchOperation{
		ID:         row.ID,
		ShopName:   row.ShopName,
		IsFetching: row.IsFetching,
		CreatedAt:  s.fromMillis(row.CreatedAt),
		UpdatedAt:  s.fromMillis(row.UpdatedAt),
	}
}

func (s Store) GetFetchOperation(ctx context.Context, id string) (catalog.FetchOperation, error) {
	row, err := s.qry.GetFetchOperation(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.FetchOperation{}, catalog.NotFoundError{Kind: "fetch operation", Key: id}
	}
	if err != nil {
		return catalog.FetchOperation{}, err
	}
	return s.toFetchOperation(row), nil
}

// ListFetchOperations returns the most recent operations of a shop first.
func (s Store) ListFetchOperations(ctx context.Context, shopName string, limit int) ([]catalog.FetchOperation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.qry.ListFetchOperations(ctx, db.ListFetchOperationsParams{
		ShopName: shopName,
		Limit:    int64(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]catalog.FetchOperation, len(rows))
	for i, row := range rows {
		out[i] = s.toFetchOperation(row)
	}
	return out, nil
}
