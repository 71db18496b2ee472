package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/chrono"
	"pricewise-backend/internal/components/db"
	"pricewise-backend/internal/components/events"
	"pricewise-backend/internal/components/lock"
	"pricewise-backend/internal/components/telemetry"
	"pricewise-backend/internal/pricestore"
	"pricewise-backend/internal/scrapers/browser"
	"pricewise-backend/internal/scrapers/woolworths"
	"pricewise-backend/pkg/testutil"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.RunFinished
	err    error
}

func (p *recordingPublisher) PublishRunFinished(ctx context.Context, event events.RunFinished) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

// failingStore fails merges of the named items and can cancel the run after
// a number of merges.
type failingStore struct {
	Store
	failNames   map[string]bool
	cancelAfter int
	cancel      context.CancelFunc
	merged      int
}

func (s *failingStore) MergeItem(ctx context.Context, shop catalog.Shop, item catalog.ScrapedItem) (string, error) {
	s.merged++
	if s.cancel != nil && s.merged == s.cancelAfter {
		defer s.cancel()
	}
	if s.failNames[item.Name] {
		return "", catalog.PersistenceError{ItemName: item.Name, Err: errors.New("disk full")}
	}
	return s.Store.MergeItem(ctx, shop, item)
}

// countingLocker counts lease refreshes and can lose the lease on a given
// refresh.
type countingLocker struct {
	lock.Locker
	mu        sync.Mutex
	refreshes []time.Duration
	loseOn    int
}

func (l *countingLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	lease, err := l.Locker.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return countingLease{Lease: lease, locker: l}, nil
}

func (l *countingLocker) Refreshes() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration(nil), l.refreshes...)
}

type countingLease struct {
	lock.Lease
	locker *countingLocker
}

func (l countingLease) Refresh(ctx context.Context, ttl time.Duration) error {
	l.locker.mu.Lock()
	l.locker.refreshes = append(l.locker.refreshes, ttl)
	lost := len(l.locker.refreshes) == l.locker.loseOn
	l.locker.mu.Unlock()
	if lost {
		return lock.ErrLost
	}
	return l.Lease.Refresh(ctx, ttl)
}

type harness struct {
	clock     *chrono.FakeClock
	tel       telemetry.TestAPI
	store     pricestore.Store
	locker    lock.Locker
	publisher *recordingPublisher
}

func newHarness(t *testing.T) harness {
	clock := chrono.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	return harness{
		clock:     clock,
		tel:       telemetry.NewTestAPI(),
		store:     pricestore.NewStore(testutil.OpenInMemoryDB(t, db.Schema), clock),
		locker:    lock.NewMemoryLocker(),
		publisher: &recordingPublisher{},
	}
}

func (h harness) coordinator(store Store, sources ...Source) Coordinator {
	if store == nil {
		store = h.store
	}
	opts := DefaultPaginatorOptions()
	opts.NewBackOff = constantBackOff
	return NewCoordinator(
		NewRegistry(sources...),
		NewPaginator(opts, h.clock, h.tel),
		store,
		h.locker,
		h.publisher,
		h.clock,
		h.tel,
		CoordinatorOptions{},
	)
}

func (h harness) requireFinished(t *testing.T, shopName string) {
	t.Helper()
	ops, err := h.store.ListFetchOperations(context.Background(), shopName, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.False(t, ops[0].IsFetching)
}

func TestIngestTwoPages(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	source := newFakeSource("Woolworths", 100, 40)

	report, err := h.coordinator(nil, source).Ingest(ctx, "woolworths")
	require.NoError(t, err)

	require.Equal(t, StateCompleted, report.State)
	require.Equal(t, 140, report.Total)
	require.Equal(t, 140, report.Processed)
	require.Len(t, report.Results, 140)
	require.Empty(t, report.Failed())
	require.Equal(t, []int{0, 1}, source.Fetched())
	require.Equal(t, 1, report.Pagination.Delays)
	require.Equal(t, []time.Duration{2 * time.Second}, h.clock.Sleeps())
	require.Equal(t, "Woolworths", report.Shop.Name)
	require.NotEmpty(t, report.OperationID)
	require.Equal(t, 2*time.Second, report.FinishedAt.Sub(report.StartedAt))

	h.requireFinished(t, "Woolworths")

	products, err := h.store.ListProducts(ctx, pricestore.ProductFilter{ShopName: "Woolworths"})
	require.NoError(t, err)
	require.Len(t, products, 140)

	require.Len(t, h.publisher.events, 1)
	event := h.publisher.events[0]
	require.Equal(t, report.OperationID, event.OperationID)
	require.Equal(t, "completed", event.State)
	require.Equal(t, 140, event.Total)
	require.Equal(t, 2, event.Pages)
	require.Empty(t, event.Error)

	processed, ok := h.tel.Count(report_coordinator_processed)
	require.True(t, ok)
	require.EqualValues(t, 140, processed)
}

func TestIngestTwiceAddsOnePricePerItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.coordinator(nil, newFakeSource("Woolworths", 12))

	_, err := c.Ingest(ctx, "Woolworths")
	require.NoError(t, err)
	h.clock.Advance(24 * time.Hour)
	report, err := c.Ingest(ctx, "Woolworths")
	require.NoError(t, err)
	require.Equal(t, 12, report.Processed)

	products, err := h.store.ListProducts(ctx, pricestore.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 12)
	for _, p := range products {
		history, err := h.store.PriceHistory(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
	}
}

func TestIngestCollectsItemFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	store := &failingStore{Store: h.store, failNames: map[string]bool{"Item 007": true}}

	report, err := h.coordinator(store, newFakeSource("Woolworths", 20)).Ingest(ctx, "Woolworths")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, report.State)
	require.Equal(t, 20, report.Total)
	require.Equal(t, 19, report.Processed)

	failed := report.Failed()
	require.Len(t, failed, 1)
	require.Equal(t, "Item 007", failed[0].Item.Name)
	var persistence catalog.PersistenceError
	require.ErrorAs(t, failed[0].Err, &persistence)
	require.Len(t, h.tel.Reports("warning", report_coordinator_merge), 1)
}

func TestIngestUnsupportedShop(t *testing.T) {
	h := newHarness(t)
	c := h.coordinator(nil, newFakeSource("Woolworths", 1))

	for _, name := range []string{"", "  ", "Pick n Pay"} {
		_, err := c.Ingest(context.Background(), name)
		var validation catalog.ValidationError
		require.ErrorAs(t, err, &validation, name)
	}
	require.Empty(t, h.publisher.events)
}

func TestIngestRunInProgress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	source := newFakeSource("Woolworths", 1)
	c := h.coordinator(nil, source)

	lease, err := h.locker.TryLock(ctx, LockKey("Woolworths"), time.Minute)
	require.NoError(t, err)

	_, err = c.Ingest(ctx, "Woolworths")
	require.ErrorIs(t, err, catalog.ErrRunInProgress)
	require.Empty(t, source.Fetched())

	ops, err := h.store.ListFetchOperations(ctx, "Woolworths", 0)
	require.NoError(t, err)
	require.Empty(t, ops)

	require.NoError(t, lease.Unlock(ctx))
	_, err = c.Ingest(ctx, "Woolworths")
	require.NoError(t, err)
}

func TestIngestPageFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	source := newFakeSource("Woolworths", 100, 10)
	source.errs[1] = []error{
		catalog.NavigationError{URL: "https://x", Status: 503},
		catalog.NavigationError{URL: "https://x", Status: 503},
		catalog.NavigationError{URL: "https://x", Status: 503},
	}

	report, err := h.coordinator(nil, source).Ingest(ctx, "Woolworths")
	var navigation catalog.NavigationError
	require.ErrorAs(t, err, &navigation)
	require.Equal(t, StateFailed, report.State)
	require.Zero(t, report.Processed)
	require.Equal(t, 2, report.Pagination.Retries)

	h.requireFinished(t, "Woolworths")

	products, err := h.store.ListProducts(ctx, pricestore.ProductFilter{})
	require.NoError(t, err)
	require.Empty(t, products)

	require.Len(t, h.publisher.events, 1)
	require.Equal(t, "failed", h.publisher.events[0].State)
	require.Contains(t, h.publisher.events[0].Error, "status 503")

	// the lock is released after a failed run
	_, err = h.coordinator(nil, newFakeSource("Woolworths", 1)).Ingest(ctx, "Woolworths")
	require.NoError(t, err)
}

func TestIngestCancelledMidRun(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &failingStore{Store: h.store, cancelAfter: 5, cancel: cancel}

	report, err := h.coordinator(store, newFakeSource("Woolworths", 30)).Ingest(ctx, "Woolworths")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateFailed, report.State)
	require.Equal(t, 30, report.Total)
	require.Equal(t, 5, report.Processed)
	require.LessOrEqual(t, report.Processed, report.Total)

	h.requireFinished(t, "Woolworths")
}

func TestIngestPublishFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker down")

	report, err := h.coordinator(nil, newFakeSource("Woolworths", 3)).Ingest(context.Background(), "Woolworths")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, report.State)
	require.Len(t, h.tel.Reports("warning", report_coordinator_publish), 1)
}

func TestIngestWoolworthsListing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	markup, err := os.ReadFile("../scrapers/woolworths/testdata/listing.html")
	require.NoError(t, err)

	renderer := &browser.FakeRenderer{Pages: map[string]browser.Page{}}
	source, err := woolworths.NewSource(renderer, h.clock, h.tel, woolworths.SourceOptions{})
	require.NoError(t, err)
	renderer.Pages[source.PageURL(0)] = &browser.FakePage{Markup: string(markup)}

	report, err := h.coordinator(nil, source).Ingest(ctx, "WOOLWORTHS")
	require.NoError(t, err)
	require.Equal(t, []string{source.PageURL(0)}, renderer.Rendered)
	// the blank card fails validation, the rest are merged
	require.Equal(t, 4, report.Total)
	require.Equal(t, 3, report.Processed)
	failed := report.Failed()
	require.Len(t, failed, 1)
	var validation catalog.ValidationError
	require.ErrorAs(t, failed[0].Err, &validation)

	products, err := h.store.ListProducts(ctx, pricestore.ProductFilter{ShopName: woolworths.ShopName})
	require.NoError(t, err)
	require.Len(t, products, 3)
	for _, p := range products {
		require.Equal(t, "ZAR", p.Price.Currency)
	}
}

// listingMarkup renders n woolworths product cards named from offset on.
func listingMarkup(offset, n int) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><div class="product-list">`)
	for i := offset; i < offset+n; i++ {
		fmt.Fprintf(&sb, `<div class="product-list__item">
<div class="prod_details"><div class="product-card__name">Item %03d</div></div>
<div class="product__price-field"><span class="price">R%d.99</span></div>
</div>`, i, i+1)
	}
	sb.WriteString(`</div></body></html>`)
	return sb.String()
}

func TestIngestWoolworthsSlowPage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	renderer := &browser.FakeRenderer{Pages: map[string]browser.Page{}}
	source, err := woolworths.NewSource(renderer, h.clock, h.tel, woolworths.SourceOptions{})
	require.NoError(t, err)
	renderer.Pages[source.PageURL(0)] = &browser.FakePage{Markup: listingMarkup(0, 100)}
	// the second page is full but its cards never render
	renderer.Pages[source.PageURL(1)] = &browser.FakePage{
		Markup:  listingMarkup(100, 100),
		Missing: map[string]bool{".product-list__item": true},
	}
	renderer.Pages[source.PageURL(2)] = &browser.FakePage{Markup: listingMarkup(200, 40)}

	report, err := h.coordinator(nil, source).Ingest(ctx, "Woolworths")
	var pageErr PageError
	require.ErrorAs(t, err, &pageErr)
	require.Equal(t, 1, pageErr.Index)
	var timeout catalog.RenderTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, StateFailed, report.State)
	require.Equal(t, 0, report.Processed)
	require.Equal(t, 2, report.Pagination.Retries)
	require.Equal(t, []string{
		source.PageURL(0), source.PageURL(1), source.PageURL(1), source.PageURL(1),
	}, renderer.Rendered)

	products, err := h.store.ListProducts(ctx, pricestore.ProductFilter{ShopName: woolworths.ShopName})
	require.NoError(t, err)
	require.Empty(t, products)
	h.requireFinished(t, "Woolworths")

	// once the page renders the whole catalog is kept
	delete(renderer.Pages[source.PageURL(1)].(*browser.FakePage).Missing, ".product-list__item")
	report, err = h.coordinator(nil, source).Ingest(ctx, "Woolworths")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, report.State)
	require.Equal(t, 240, report.Total)
	require.Equal(t, 240, report.Processed)
}

func TestIngestRefreshesLockPerPage(t *testing.T) {
	h := newHarness(t)
	locker := &countingLocker{Locker: lock.NewMemoryLocker()}
	h.locker = locker

	source := newFakeSource("Woolworths", 100, 100, 40)
	report, err := h.coordinator(nil, source).Ingest(context.Background(), "Woolworths")
	require.NoError(t, err)
	require.Equal(t, 240, report.Processed)
	require.Equal(t, []time.Duration{time.Hour, time.Hour, time.Hour}, locker.Refreshes())
}

func TestIngestLostLockFailsRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	locker := &countingLocker{Locker: lock.NewMemoryLocker(), loseOn: 2}
	h.locker = locker

	source := newFakeSource("Woolworths", 100, 100, 40)
	report, err := h.coordinator(nil, source).Ingest(ctx, "Woolworths")
	require.ErrorIs(t, err, lock.ErrLost)
	require.Equal(t, StateFailed, report.State)
	// a lost lock is not retried
	require.Equal(t, []int{0}, source.Fetched())
	require.Zero(t, report.Pagination.Retries)
	h.requireFinished(t, "Woolworths")
}
