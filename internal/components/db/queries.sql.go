package db

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

const getShopByName = `
select id, name, url, created_at from shop where name = ?
`

func (q *Queries) GetShopByName(ctx context.Context, name string) (Shop, error) {
	row := q.db.QueryRowContext(ctx, getShopByName, name)
	var i Shop
	err := row.Scan(&i.ID, &i.Name, &i.Url, &i.CreatedAt)
	return i, err
}

const getShopById = `
select id, name, url, created_at from shop where id = ?
`

func (q *Queries) GetShopById(ctx context.Context, id string) (Shop, error) {
	row := q.db.QueryRowContext(ctx, getShopById, id)
	var i Shop
	err := row.Scan(&i.ID, &i.Name, &i.Url, &i.CreatedAt)
	return i, err
}

const upsertShop = `
insert into shop (id, name, url, created_at) values (?, ?, ?, ?)
on conflict(name) do update set url = excluded.url
returning id
`

type UpsertShopParams struct {
	ID        string
	Name      string
	Url       string
	CreatedAt int64
}

// UpsertShop returns the id of the existing shop on conflict, not params.ID.
func (q *Queries) UpsertShop(ctx context.Context, arg UpsertShopParams) (string, error) {
	row := q.db.QueryRowContext(ctx, upsertShop, arg.ID, arg.Name, arg.Url, arg.CreatedAt)
	var id string
	err := row.Scan(&id)
	return id, err
}

const upsertProduct = `
insert into product (
    id, shop_id, name, description, brand, category, image_url,
    barcode, promotion, product_url, created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict(name, shop_id) do update set
    description = excluded.description,
    brand = excluded.brand,
    category = excluded.category,
    image_url = excluded.image_url,
    barcode = excluded.barcode,
    promotion = excluded.promotion,
    product_url = excluded.product_url,
    updated_at = excluded.updated_at
returning id
`

type UpsertProductParams struct {
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
	Now         int64
}

func (q *Queries) UpsertProduct(ctx context.Context, arg UpsertProductParams) (string, error) {
	row := q.db.QueryRowContext(ctx, upsertProduct,
		arg.ID,
		arg.ShopID,
		arg.Name,
		arg.Description,
		arg.Brand,
		arg.Category,
		arg.ImageUrl,
		arg.Barcode,
		arg.Promotion,
		arg.ProductUrl,
		arg.Now,
		arg.Now,
	)
	var id string
	err := row.Scan(&id)
	return id, err
}

const createPrice = `
insert into price (id, product_id, amount, currency, created_at) values (?, ?, ?, ?, ?)
`

type CreatePriceParams struct {
	ID        string
	ProductID string
	Amount    decimal.Decimal
	Currency  string
	CreatedAt int64
}

func (q *Queries) CreatePrice(ctx context.Context, arg CreatePriceParams) error {
	_, err := q.db.ExecContext(ctx, createPrice,
		arg.ID,
		arg.ProductID,
		arg.Amount,
		arg.Currency,
		arg.CreatedAt,
	)
	return err
}

const getLatestPrice = `
select id, product_id, amount, currency, created_at from price
where product_id = ?
order by created_at desc, rowid desc
limit 1
`

func (q *Queries) GetLatestPrice(ctx context.Context, productID string) (Price, error) {
	row := q.db.QueryRowContext(ctx, getLatestPrice, productID)
	var i Price
	err := row.Scan(&i.ID, &i.ProductID, &i.Amount, &i.Currency, &i.CreatedAt)
	return i, err
}

const listPriceHistory = `
select id, product_id, amount, currency, created_at from price
where product_id = ?
order by created_at desc, rowid desc
`

func (q *Queries) ListPriceHistory(ctx context.Context, productID string) ([]Price, error) {
	rows, err := q.db.QueryContext(ctx, listPriceHistory, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Price
	for rows.Next() {
		var i Price
		if err := rows.Scan(&i.ID, &i.ProductID, &i.Amount, &i.Currency, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deletePricesForShop = `
delete from price where product_id in (select id from product where shop_id = ?)
`

func (q *Queries) DeletePricesForShop(ctx context.Context, shopID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deletePricesForShop, shopID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteProductsForShop = `
delete from product where shop_id = ?
`

func (q *Queries) DeleteProductsForShop(ctx context.Context, shopID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteProductsForShop, shopID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countProductsForShop = `
select count(*) from product where shop_id = ?
`

func (q *Queries) CountProductsForShop(ctx context.Context, shopID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countProductsForShop, shopID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countPricesForProduct = `
select count(*) from price where product_id = ?
`

func (q *Queries) CountPricesForProduct(ctx context.Context, productID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPricesForProduct, productID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listProducts = `
select
    p.id, p.shop_id, p.name, p.description, p.brand, p.category, p.image_url,
    p.barcode, p.promotion, p.product_url, p.created_at, p.updated_at,
    s.name,
    lp.id, lp.amount, lp.currency, lp.created_at
from product p
join shop s on s.id = p.shop_id
left join price lp on lp.id = (
    select id from price
    where product_id = p.id
    order by created_at desc, rowid desc
    limit 1
)
where (?1 is null or s.name = ?1)
  and (?2 is null or s.id = ?2)
order by s.name, p.name
`

type ListProductsParams struct {
	ShopName sql.NullString
	ShopID   sql.NullString
}

type ListProductsRow struct {
	Product        Product
	ShopName       string
	PriceID        sql.NullString
	PriceAmount    decimal.NullDecimal
	PriceCurrency  sql.NullString
	PriceCreatedAt sql.NullInt64
}

// ListProducts returns every product joined with its latest price, filters
// that are not valid are ignored.
func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]ListProductsRow, error) {
	rows, err := q.db.QueryContext(ctx, listProducts, arg.ShopName, arg.ShopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListProductsRow
	for rows.Next() {
		var i ListProductsRow
		if err := rows.Scan(
			&i.Product.ID,
			&i.Product.ShopID,
			&i.Product.Name,
			&i.Product.Description,
			&i.Product.Brand,
			&i.Product.Category,
			&i.Product.ImageUrl,
			&i.Product.Barcode,
			&i.Product.Promotion,
			&i.Product.ProductUrl,
			&i.Product.CreatedAt,
			&i.Product.UpdatedAt,
			&i.ShopName,
			&i.PriceID,
			&i.PriceAmount,
			&i.PriceCurrency,
			&i.PriceCreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createFetchOperation = `
insert into fetch_operation (id, shop_name, is_fetching, created_at, updated_at)
values (?, ?, 1, ?, ?)
`

type CreateFetchOperationParams struct {
	ID        string
	ShopName  string
	CreatedAt int64
}

func (q *Queries) CreateFetchOperation(ctx context.Context, arg CreateFetchOperationParams) error {
	_, err := q.db.ExecContext(ctx, createFetchOperation, arg.ID, arg.ShopName, arg.CreatedAt, arg.CreatedAt)
	return err
}

const finishFetchOperation = `
update fetch_operation set is_fetching = 0, updated_at = ? where id = ?
`

type FinishFetchOperationParams struct {
	ID        string
	UpdatedAt int64
}

func (q *Queries) FinishFetchOperation(ctx context.Context, arg FinishFetchOperationParams) error {
	_, err := q.db.ExecContext(ctx, finishFetchOperation, arg.UpdatedAt, arg.ID)
	return err
}

const getFetchOperation = `
select id, shop_name, is_fetching, created_at, updated_at from fetch_operation where id = ?
`

func (q *Queries) GetFetchOperation(ctx context.Context, id string) (FetchOperation, error) {
	row := q.db.QueryRowContext(ctx, getFetchOperation, id)
	var i FetchOperation
	err := row.Scan(&i.ID, &i.ShopName, &i.IsFetching, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const listFetchOperations = `
select id, shop_name, is_fetching, created_at, updated_at from fetch_operation
where shop_name = ?
order by created_at desc, rowid desc
limit ?
`

type ListFetchOperationsParams struct {
	ShopName string
	Limit    int64
}

func (q *Queries) ListFetchOperations(ctx context.Context, arg ListFetchOperationsParams) ([]FetchOperation, error) {
	rows, err := q.db.QueryContext(ctx, listFetchOperations, arg.ShopName, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FetchOperation
	for rows.Next() {
		var i FetchOperation
		if err := rows.Scan(&i.ID, &i.ShopName, &i.IsFetching, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
