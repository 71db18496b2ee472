package service

import (
	"time"

	"pricewise-backend/internal/catalog"

	"github.com/shopspring/decimal"
)

// Messages of pricewise.catalog.v1.CatalogService.

type TriggerIngestionRequest struct {
	ShopName string `json:"shopName"`
}

type TriggerIngestionResponse struct {
	Message     string `json:"message"`
	OperationId string `json:"operationId"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
}

type ClearShopRequest struct {
	ShopName string `json:"shopName"`
}

type ClearShopResponse struct {
	Message       string `json:"message"`
	Deleted       int64  `json:"deleted"`
	DeletedPrices int64  `json:"deletedPrices"`
}

type ListProductsRequest struct {
	ShopName string `json:"shopName,omitempty"`
	ShopId   string `json:"shopId,omitempty"`
}

type Price struct {
	Id        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Product struct {
	Id          string  `json:"id"`
	ShopId      string  `json:"shopId"`
	ShopName    string  `json:"shopName"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Brand       string  `json:"brand,omitempty"`
	Category    string  `json:"category,omitempty"`
	ImageUrl    string  `json:"imageUrl"`
	Barcode     string  `json:"barcode,omitempty"`
	Promotion   string  `json:"promotion,omitempty"`
	ProductUrl  string  `json:"productUrl,omitempty"`
	Price       *Price  `json:"price,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

type ListProductsResponse struct {
	Products []Product `json:"products"`
}

type SearchProductsRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchProductsResponse struct {
	Products []Product `json:"products"`
}

type GetFetchStatusRequest struct {
	ShopName string `json:"shopName"`
	Limit    int    `json:"limit,omitempty"`
}

type FetchOperation struct {
	Id         string    `json:"id"`
	ShopName   string    `json:"shopName"`
	IsFetching bool      `json:"isFetching"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type GetFetchStatusResponse struct {
	Operations []FetchOperation `json:"operations"`
}

func toProductMessage(p catalog.Product) Product {
	msg := Product{
		Id:          p.ID,
		ShopId:      p.ShopID,
		ShopName:    p.ShopName,
		Name:        p.Name,
		Description: p.Description,
		Brand:       p.Brand,
		Category:    p.Category,
		ImageUrl:    p.ImageOrPlaceholder(),
		Barcode:     p.Barcode,
		Promotion:   p.Promotion,
		ProductUrl:  p.ProductURL,
	}
	if p.Price != nil {
		msg.Price = &Price{
			Id:        p.Price.ID,
			Amount:    p.Price.Amount,
			Currency:  p.Price.Currency,
			CreatedAt: p.Price.CreatedAt,
		}
	}
	return msg
}

func toFetchOperationMessage(op catalog.FetchOperation) FetchOperation {
	return FetchOperation{
		Id:         op.ID,
		ShopName:   op.ShopName,
		IsFetching: op.IsFetching,
		CreatedAt:  op.CreatedAt,
		UpdatedAt:  op.UpdatedAt,
	}
}
