// Package service implements pricewise.catalog.v1.CatalogService over connect.
package service

import (
	"context"
	"errors"
	"fmt"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/assert"
	"pricewise-backend/internal/components/telemetry"
	"pricewise-backend/internal/ingest"
	"pricewise-backend/internal/pricestore"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("pricewise.service")

const (
	report_catalog_trigger_ingestion = "catalog.trigger-ingestion"
	report_catalog_clear_shop        = "catalog.clear-shop"
	report_catalog_list_products     = "catalog.list-products"
	report_catalog_search_products   = "catalog.search-products"
	report_catalog_get_fetch_status  = "catalog.get-fetch-status"
)

// errInternal is returned to callers in place of unexpected failures, the
// actual error is only reported through telemetry.
var errInternal = errors.New("internal error")

// IngestAPI starts ingestion runs.
//
// note: fault injection point
type IngestAPI interface {
	Ingest(ctx context.Context, shopName string) (ingest.RunReport, error)
}

// CatalogAPI reads and clears the stored catalog.
//
// note: fault injection point
type CatalogAPI interface {
	ClearShop(ctx context.Context, shopName string) (pricestore.ClearResult, error)
	ListProducts(ctx context.Context, filter pricestore.ProductFilter) ([]catalog.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]pricestore.SearchResult, error)
	ListFetchOperations(ctx context.Context, shopName string, limit int) ([]catalog.FetchOperation, error)
}

// CatalogService implements pricewise.catalog.v1.CatalogService
type CatalogService struct {
	ingester IngestAPI
	catalog  CatalogAPI
	tel      telemetry.API
}

func NewCatalogService(ingester IngestAPI, catalog CatalogAPI, tel telemetry.API) CatalogService {
	assert.NotNil(ingester)
	assert.NotNil(catalog)
	assert.NotNil(tel)
	return CatalogService{
		ingester: ingester,
		catalog:  catalog,
		tel:      telemetry.NewScopedAPI("service", tel),
	}
}

// connectError maps domain errors onto connect codes, anything unexpected is
// reported under report and hidden behind errInternal.
func (s CatalogService) connectError(report string, err error) *connect.Error {
	var validation catalog.ValidationError
	var notFound catalog.NotFoundError
	switch {
	case errors.As(err, &validation):
		return connect.NewError(connect.CodeInvalidArgument, validation)
	case errors.As(err, &notFound):
		return connect.NewError(connect.CodeNotFound, notFound)
	case errors.Is(err, catalog.ErrRunInProgress):
		return connect.NewError(connect.CodeAborted, catalog.ErrRunInProgress)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	}
	s.tel.ReportBroken(report, err)
	return connect.NewError(connect.CodeInternal, errInternal)
}

func required(field, value string) error {
	if value == "" {
		return connect.NewError(
			connect.CodeInvalidArgument,
			catalog.ValidationError{Field: field, Reason: "required"},
		)
	}
	return nil
}

// TriggerIngestion implements the protocol method.
func (s CatalogService) TriggerIngestion(ctx context.Context, req *connect.Request[TriggerIngestionRequest]) (*connect.Response[TriggerIngestionResponse], error) {
	ctx, span := tracer.Start(ctx, "TriggerIngestion")
	defer span.End()

	shopName := req.Msg.ShopName
	err := required("shopName", shopName)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("shop", shopName))

	// a run outlives the request that triggered it
	report, err := s.ingester.Ingest(context.WithoutCancel(ctx), shopName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, s.connectError(report_catalog_trigger_ingestion, err)
	}

	return connect.NewResponse(&TriggerIngestionResponse{
		Message:     fmt.Sprintf("Successfully fetched %d products from %s", report.Total, report.Shop.Name),
		OperationId: report.OperationID,
		Processed:   report.Processed,
		Total:       report.Total,
	}), nil
}

// ClearShop implements the protocol method.
func (s CatalogService) ClearShop(ctx context.Context, req *connect.Request[ClearShopRequest]) (*connect.Response[ClearShopResponse], error) {
	ctx, span := tracer.Start(ctx, "ClearShop")
	defer span.End()

	shopName := req.Msg.ShopName
	err := required("shopName", shopName)
	if err != nil {
		return nil, err
	}

	result, err := s.catalog.ClearShop(ctx, shopName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, s.connectError(report_catalog_clear_shop, err)
	}

	return connect.NewResponse(&ClearShopResponse{
		Message:       fmt.Sprintf("Successfully cleared %d products for %s", result.DeletedProducts, shopName),
		Deleted:       result.DeletedProducts,
		DeletedPrices: result.DeletedPrices,
	}), nil
}

// ListProducts implements the protocol method.
func (s CatalogService) ListProducts(ctx context.Context, req *connect.Request[ListProductsRequest]) (*connect.Response[ListProductsResponse], error) {
	ctx, span := tracer.Start(ctx, "ListProducts")
	defer span.End()

	products, err := s.catalog.ListProducts(ctx, pricestore.ProductFilter{
		ShopName: req.Msg.ShopName,
		ShopID:   req.Msg.ShopId,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, s.connectError(report_catalog_list_products, err)
	}

	out := make([]Product, len(products))
	for i, p := range products {
		out[i] = toProductMessage(p)
	}
	return connect.NewResponse(&ListProductsResponse{Products: out}), nil
}

// SearchProducts implements the protocol method.
func (s CatalogService) SearchProducts(ctx context.Context, req *connect.Request[SearchProductsRequest]) (*connect.Response[SearchProductsResponse], error) {
	ctx, span := tracer.Start(ctx, "SearchProducts")
	defer span.End()

	results, err := s.catalog.SearchProducts(ctx, req.Msg.Query, req.Msg.Limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, s.connectError(report_catalog_search_products, err)
	}

	out := make([]Product, len(results))
	for i, r := range results {
		out[i] = toProductMessage(r.Product)
		out[i].Score = r.Score
	}
	return connect.NewResponse(&SearchProductsResponse{Products: out}), nil
}

// GetFetchStatus implements the protocol method.
func (s CatalogService) GetFetchStatus(ctx context.Context, req *connect.Request[GetFetchStatusRequest]) (*connect.Response[GetFetchStatusResponse], error) {
	ctx, span := tracer.Start(ctx, "GetFetchStatus")
	defer span.End()

	err := required("shopName", req.Msg.ShopName)
	if err != nil {
		return nil, err
	}

	ops, err := s.catalog.ListFetchOperations(ctx, req.Msg.ShopName, req.Msg.Limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, s.connectError(report_catalog_get_fetch_status, err)
	}

	out := make([]FetchOperation, len(ops))
	for i, op := range ops {
		out[i] = toFetchOperationMessage(op)
	}
	return connect.NewResponse(&GetFetchStatusResponse{Operations: out}), nil
}
