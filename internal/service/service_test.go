package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/chrono"
	"pricewise-backend/internal/components/db"
	"pricewise-backend/internal/components/telemetry"
	"pricewise-backend/internal/ingest"
	"pricewise-backend/internal/pricestore"
	"pricewise-backend/pkg/serviceutil"
	"pricewise-backend/pkg/testutil"

	"connectrpc.com/connect"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const adminToken = "secret-admin-token"

type fakeIngester struct {
	store pricestore.Store
	err   error
	calls []string
	// hold blocks Ingest until closed, the run's context error is then sent
	// on finished.
	hold     chan struct{}
	finished chan error
}

func (f *fakeIngester) Ingest(ctx context.Context, shopName string) (ingest.RunReport, error) {
	f.calls = append(f.calls, shopName)
	if f.hold != nil {
		select {
		case <-f.hold:
		case <-ctx.Done():
		}
		f.finished <- ctx.Err()
	}
	if f.err != nil {
		return ingest.RunReport{}, f.err
	}
	shop := catalog.Shop{Name: "Woolworths", URL: "https://www.woolworths.co.za"}
	items := []catalog.ScrapedItem{
		{Name: "Full Cream Milk 2L", Price: decimal.RequireFromString("32.99"), Currency: "ZAR"},
		{Name: "Sourdough Loaf", Price: decimal.RequireFromString("45.00"), Currency: "ZAR"},
		{Name: "", Price: decimal.RequireFromString("1")},
	}
	report := ingest.RunReport{OperationID: "fetch_1_abc", Shop: shop, Total: len(items)}
	for _, item := range items {
		_, err := f.store.MergeItem(ctx, shop, item)
		if err == nil {
			report.Processed++
		}
	}
	return report, nil
}

type fixture struct {
	client   CatalogServiceClient
	rest     *resty.Client
	ingester *fakeIngester
	store    pricestore.Store
	tel      telemetry.TestAPI
}

func newFixture(t *testing.T) fixture {
	clock := chrono.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	store := pricestore.NewStore(testutil.OpenInMemoryDB(t, db.Schema), clock)
	ingester := &fakeIngester{store: store}
	tel := telemetry.NewTestAPI()

	mux := http.NewServeMux()
	mux.Handle(NewCatalogServiceHandler(
		NewCatalogService(ingester, store, tel),
		connect.WithInterceptors(serviceutil.VerifyAccessTokenInterceptor(adminToken, AdminProcedures...)),
	))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return fixture{
		client:   NewCatalogServiceClient(server.Client(), server.URL),
		rest:     resty.New().SetBaseURL(server.URL).SetHeader("Content-Type", "application/json"),
		ingester: ingester,
		store:    store,
		tel:      tel,
	}
}

func authorized[T any](msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set("Authorization", "Bearer "+adminToken)
	return req
}

func requireCode(t *testing.T, code connect.Code, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, connect.CodeOf(err), err.Error())
}

func TestTriggerIngestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.client.TriggerIngestion(ctx, authorized(&TriggerIngestionRequest{ShopName: "Woolworths"}))
	require.NoError(t, err)
	require.Equal(t, "Successfully fetched 3 products from Woolworths", res.Msg.Message)
	require.Equal(t, 2, res.Msg.Processed)
	require.Equal(t, 3, res.Msg.Total)
	require.Equal(t, "fetch_1_abc", res.Msg.OperationId)

	_, err = f.client.TriggerIngestion(ctx, authorized(&TriggerIngestionRequest{}))
	requireCode(t, connect.CodeInvalidArgument, err)
	require.Len(t, f.ingester.calls, 1)

	_, err = f.client.TriggerIngestion(ctx, connect.NewRequest(&TriggerIngestionRequest{ShopName: "Woolworths"}))
	requireCode(t, connect.CodeUnauthenticated, err)
}

func TestTriggerIngestionOutlivesClient(t *testing.T) {
	f := newFixture(t)
	f.ingester.hold = make(chan struct{})
	f.ingester.finished = make(chan error, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := f.client.TriggerIngestion(ctx, authorized(&TriggerIngestionRequest{ShopName: "Woolworths"}))
	require.Error(t, err)
	require.Equal(t, connect.CodeDeadlineExceeded, connect.CodeOf(err))

	close(f.ingester.hold)
	select {
	case err := <-f.ingester.finished:
		require.NoError(t, err, "run must not be cancelled with the request")
	case <-time.After(5 * time.Second):
		t.Fatal("ingestion run never finished")
	}
}

func TestTriggerIngestionErrors(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		err  error
		code connect.Code
	}{
		{err: catalog.ValidationError{Field: "shopName", Reason: "unsupported shop Makro"}, code: connect.CodeInvalidArgument},
		{err: catalog.ErrRunInProgress, code: connect.CodeAborted},
		{err: ingest.PageError{Index: 2, Err: errors.New("dial tcp: connection refused")}, code: connect.CodeInternal},
	}

	for _, c := range cases {
		f := newFixture(t)
		f.ingester.err = c.err

		_, err := f.client.TriggerIngestion(ctx, authorized(&TriggerIngestionRequest{ShopName: "Makro"}))
		requireCode(t, c.code, err)

		if c.code == connect.CodeInternal {
			// internal details stay out of the response
			require.NotContains(t, err.Error(), "connection refused")
			require.Len(t, f.tel.Reports("broken", report_catalog_trigger_ingestion), 1)
		}
	}
}

func TestJSONContentTypes(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.SeedTestProduct(context.Background())
	require.NoError(t, err)

	for _, contentType := range []string{"application/json", "application/json; charset=utf-8"} {
		t.Run(contentType, func(t *testing.T) {
			var out ListProductsResponse
			res, err := f.rest.R().
				SetHeader("Content-Type", contentType).
				SetBody(`{"shopName":"Test Shop"}`).
				SetResult(&out).
				Post(CatalogServiceListProductsProcedure)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, res.StatusCode(), res.String())
			require.Equal(t, contentType, res.Header().Get("Content-Type"))
			require.Len(t, out.Products, 1)
			require.Equal(t, "Test Product", out.Products[0].Name)
		})
	}
}

func TestHTTPStatusCodes(t *testing.T) {
	f := newFixture(t)

	res, err := f.rest.R().
		SetAuthToken(adminToken).
		SetBody(`{"shopName":""}`).
		Post(CatalogServiceClearShopProcedure)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, res.StatusCode())

	res, err = f.rest.R().
		SetAuthToken(adminToken).
		SetBody(`{"shopName":"Nowhere"}`).
		Post(CatalogServiceClearShopProcedure)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, res.StatusCode())

	f.ingester.err = catalog.ErrRunInProgress
	res, err = f.rest.R().
		SetAuthToken(adminToken).
		SetBody(`{"shopName":"Woolworths"}`).
		Post(CatalogServiceTriggerIngestionProcedure)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, res.StatusCode())

	f.ingester.err = errors.New("browser crashed")
	res, err = f.rest.R().
		SetAuthToken(adminToken).
		SetBody(`{"shopName":"Woolworths"}`).
		Post(CatalogServiceTriggerIngestionProcedure)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode())
	require.NotContains(t, res.String(), "browser crashed")

	res, err = f.rest.R().
		SetBody(`{}`).
		Post(CatalogServiceListProductsProcedure)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode())
	require.JSONEq(t, `{"products":[]}`, res.String())
}

func TestClearShop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.client.TriggerIngestion(ctx, authorized(&TriggerIngestionRequest{ShopName: "Woolworths"}))
	require.NoError(t, err)

	res, err := f.client.ClearShop(ctx, authorized(&ClearShopRequest{ShopName: "Woolworths"}))
	require.NoError(t, err)
	require.Equal(t, "Successfully cleared 2 products for Woolworths", res.Msg.Message)
	require.EqualValues(t, 2, res.Msg.Deleted)
	require.EqualValues(t, 2, res.Msg.DeletedPrices)

	res, err = f.client.ClearShop(ctx, authorized(&ClearShopRequest{ShopName: "Woolworths"}))
	require.NoError(t, err)
	require.Zero(t, res.Msg.Deleted)

	_, err = f.client.ClearShop(ctx, authorized(&ClearShopRequest{ShopName: "Spar"}))
	requireCode(t, connect.CodeNotFound, err)
}

func TestListProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.client.TriggerIngestion(ctx, authorized(&TriggerIngestionRequest{ShopName: "Woolworths"}))
	require.NoError(t, err)
	_, err = f.store.SeedTestProduct(ctx)
	require.NoError(t, err)

	res, err := f.client.ListProducts(ctx, connect.NewRequest(&ListProductsRequest{}))
	require.NoError(t, err)
	require.Len(t, res.Msg.Products, 3)

	res, err = f.client.ListProducts(ctx, connect.NewRequest(&ListProductsRequest{ShopName: "Woolworths"}))
	require.NoError(t, err)
	require.Len(t, res.Msg.Products, 2)

	milk := res.Msg.Products[0]
	require.Equal(t, "Full Cream Milk 2L", milk.Name)
	require.Equal(t, catalog.PlaceholderImageURL, milk.ImageUrl)
	require.NotNil(t, milk.Price)
	require.True(t, decimal.RequireFromString("32.99").Equal(milk.Price.Amount))
	require.Equal(t, "ZAR", milk.Price.Currency)

	res, err = f.client.ListProducts(ctx, connect.NewRequest(&ListProductsRequest{ShopId: milk.ShopId}))
	require.NoError(t, err)
	require.Len(t, res.Msg.Products, 2)
}

func TestSearchProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.client.TriggerIngestion(ctx, authorized(&TriggerIngestionRequest{ShopName: "Woolworths"}))
	require.NoError(t, err)

	res, err := f.client.SearchProducts(ctx, connect.NewRequest(&SearchProductsRequest{Query: "sourdough"}))
	require.NoError(t, err)
	require.Len(t, res.Msg.Products, 1)
	require.Equal(t, "Sourdough Loaf", res.Msg.Products[0].Name)
	require.Equal(t, 1.0, res.Msg.Products[0].Score)

	_, err = f.client.SearchProducts(ctx, connect.NewRequest(&SearchProductsRequest{}))
	requireCode(t, connect.CodeInvalidArgument, err)
}

func TestGetFetchStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	op, err := f.store.CreateFetchOperation(ctx, "Woolworths")
	require.NoError(t, err)

	res, err := f.client.GetFetchStatus(ctx, connect.NewRequest(&GetFetchStatusRequest{ShopName: "Woolworths"}))
	require.NoError(t, err)
	require.Len(t, res.Msg.Operations, 1)
	require.Equal(t, op.ID, res.Msg.Operations[0].Id)
	require.True(t, res.Msg.Operations[0].IsFetching)

	require.NoError(t, f.store.FinishFetchOperation(ctx, op.ID))
	res, err = f.client.GetFetchStatus(ctx, connect.NewRequest(&GetFetchStatusRequest{ShopName: "Woolworths"}))
	require.NoError(t, err)
	require.False(t, res.Msg.Operations[0].IsFetching)

	_, err = f.client.GetFetchStatus(ctx, connect.NewRequest(&GetFetchStatusRequest{}))
	requireCode(t, connect.CodeInvalidArgument, err)
}
