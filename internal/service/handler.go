package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const CatalogServiceName = "pricewise.catalog.v1.CatalogService"

const (
	CatalogServiceTriggerIngestionProcedure = "/" + CatalogServiceName + "/TriggerIngestion"
	CatalogServiceClearShopProcedure        = "/" + CatalogServiceName + "/ClearShop"
	CatalogServiceListProductsProcedure     = "/" + CatalogServiceName + "/ListProducts"
	CatalogServiceSearchProductsProcedure   = "/" + CatalogServiceName + "/SearchProducts"
	CatalogServiceGetFetchStatusProcedure   = "/" + CatalogServiceName + "/GetFetchStatus"
)

// AdminProcedures modify the catalog and are guarded by the admin token.
var AdminProcedures = []string{
	CatalogServiceTriggerIngestionProcedure,
	CatalogServiceClearShopProcedure,
}

// NewCatalogServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewCatalogServiceHandler(svc CatalogService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithCodec(jsonCharsetCodec{}),
	}, opts...)

	triggerIngestion := connect.NewUnaryHandler(CatalogServiceTriggerIngestionProcedure, svc.TriggerIngestion, opts...)
	clearShop := connect.NewUnaryHandler(CatalogServiceClearShopProcedure, svc.ClearShop, opts...)
	listProducts := connect.NewUnaryHandler(CatalogServiceListProductsProcedure, svc.ListProducts, opts...)
	searchProducts := connect.NewUnaryHandler(CatalogServiceSearchProductsProcedure, svc.SearchProducts, opts...)
	getFetchStatus := connect.NewUnaryHandler(CatalogServiceGetFetchStatusProcedure, svc.GetFetchStatus, opts...)

	return "/" + CatalogServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CatalogServiceTriggerIngestionProcedure:
			triggerIngestion.ServeHTTP(w, r)
		case CatalogServiceClearShopProcedure:
			clearShop.ServeHTTP(w, r)
		case CatalogServiceListProductsProcedure:
			listProducts.ServeHTTP(w, r)
		case CatalogServiceSearchProductsProcedure:
			searchProducts.ServeHTTP(w, r)
		case CatalogServiceGetFetchStatusProcedure:
			getFetchStatus.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// CatalogServiceClient is a client for pricewise.catalog.v1.CatalogService.
type CatalogServiceClient struct {
	triggerIngestion *connect.Client[TriggerIngestionRequest, TriggerIngestionResponse]
	clearShop        *connect.Client[ClearShopRequest, ClearShopResponse]
	listProducts     *connect.Client[ListProductsRequest, ListProductsResponse]
	searchProducts   *connect.Client[SearchProductsRequest, SearchProductsResponse]
	getFetchStatus   *connect.Client[GetFetchStatusRequest, GetFetchStatusResponse]
}

func NewCatalogServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) CatalogServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return CatalogServiceClient{
		triggerIngestion: connect.NewClient[TriggerIngestionRequest, TriggerIngestionResponse](httpClient, baseURL+CatalogServiceTriggerIngestionProcedure, opts...),
		clearShop:        connect.NewClient[ClearShopRequest, ClearShopResponse](httpClient, baseURL+CatalogServiceClearShopProcedure, opts...),
		listProducts:     connect.NewClient[ListProductsRequest, ListProductsResponse](httpClient, baseURL+CatalogServiceListProductsProcedure, opts...),
		searchProducts:   connect.NewClient[SearchProductsRequest, SearchProductsResponse](httpClient, baseURL+CatalogServiceSearchProductsProcedure, opts...),
		getFetchStatus:   connect.NewClient[GetFetchStatusRequest, GetFetchStatusResponse](httpClient, baseURL+CatalogServiceGetFetchStatusProcedure, opts...),
	}
}

func (c CatalogServiceClient) TriggerIngestion(ctx context.Context, req *connect.Request[TriggerIngestionRequest]) (*connect.Response[TriggerIngestionResponse], error) {
	return c.triggerIngestion.CallUnary(ctx, req)
}

func (c CatalogServiceClient) ClearShop(ctx context.Context, req *connect.Request[ClearShopRequest]) (*connect.Response[ClearShopResponse], error) {
	return c.clearShop.CallUnary(ctx, req)
}

func (c CatalogServiceClient) ListProducts(ctx context.Context, req *connect.Request[ListProductsRequest]) (*connect.Response[ListProductsResponse], error) {
	return c.listProducts.CallUnary(ctx, req)
}

func (c CatalogServiceClient) SearchProducts(ctx context.Context, req *connect.Request[SearchProductsRequest]) (*connect.Response[SearchProductsResponse], error) {
	return c.searchProducts.CallUnary(ctx, req)
}

func (c CatalogServiceClient) GetFetchStatus(ctx context.Context, req *connect.Request[GetFetchStatusRequest]) (*connect.Response[GetFetchStatusResponse], error) {
	return c.getFetchStatus.CallUnary(ctx, req)
}
