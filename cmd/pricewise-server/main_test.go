package main

import (
	"context"
	"testing"
	"time"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/chrono"
	"pricewise-backend/internal/components/events"
	"pricewise-backend/internal/components/lock"
	"pricewise-backend/internal/components/telemetry"
	"pricewise-backend/internal/ingest"

	"github.com/stretchr/testify/require"
)

type fakeCron struct {
	specs []string
	jobs  []func()
}

func (f *fakeCron) Cron(spec string, callback func()) error {
	f.specs = append(f.specs, spec)
	f.jobs = append(f.jobs, callback)
	return nil
}

type emptySource struct{}

func (emptySource) Shop() catalog.Shop {
	return catalog.Shop{Name: "Woolworths"}
}

func (emptySource) PageSize() int {
	return 100
}

func (emptySource) FetchPage(ctx context.Context, index int) ([]catalog.ScrapedItem, error) {
	return nil, nil
}

type nopStore struct {
	finished []string
}

func (s *nopStore) MergeItem(ctx context.Context, shop catalog.Shop, item catalog.ScrapedItem) (string, error) {
	return "", nil
}

func (s *nopStore) CreateFetchOperation(ctx context.Context, shopName string) (catalog.FetchOperation, error) {
	return catalog.FetchOperation{ID: "fetch_1_test", ShopName: shopName, IsFetching: true}, nil
}

func (s *nopStore) FinishFetchOperation(ctx context.Context, id string) error {
	s.finished = append(s.finished, id)
	return nil
}

func TestSchedule(t *testing.T) {
	clock := chrono.NewFakeClock(time.Unix(0, 0))
	tel := telemetry.NewTestAPI()
	store := &nopStore{}
	coordinator := ingest.NewCoordinator(
		ingest.NewRegistry(emptySource{}),
		ingest.NewPaginator(ingest.DefaultPaginatorOptions(), clock, tel),
		store,
		lock.NewMemoryLocker(),
		events.Noop{},
		clock,
		tel,
		ingest.CoordinatorOptions{},
	)

	cron := &fakeCron{}
	err := schedule(context.Background(), cron, coordinator, map[string]string{"woolworths": "0 5 * * *"})
	require.NoError(t, err)
	require.Equal(t, []string{"0 5 * * *"}, cron.specs)

	cron.jobs[0]()
	require.Equal(t, []string{"fetch_1_test"}, store.finished)

	err = schedule(context.Background(), &fakeCron{}, coordinator, map[string]string{"Makro": "@daily"})
	var validation catalog.ValidationError
	require.ErrorAs(t, err, &validation)
}
