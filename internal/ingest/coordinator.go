package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/assert"
	"pricewise-backend/internal/components/chrono"
	"pricewise-backend/internal/components/events"
	"pricewise-backend/internal/components/lock"
	"pricewise-backend/internal/components/telemetry"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("pricewise.ingest")

const (
	report_coordinator_merge     = "coordinator.merge"
	report_coordinator_finish    = "coordinator.finish"
	report_coordinator_unlock    = "coordinator.unlock"
	report_coordinator_publish   = "coordinator.publish"
	report_coordinator_processed = "coordinator.processed"
	report_coordinator_total     = "coordinator.total"
)

type RunState string

const (
	StateCreated   RunState = "created"
	StateFetching  RunState = "fetching"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// Store is the part of the catalog store a run writes to.
//
// note: fault injection point
type Store interface {
	MergeItem(ctx context.Context, shop catalog.Shop, item catalog.ScrapedItem) (string, error)
	CreateFetchOperation(ctx context.Context, shopName string) (catalog.FetchOperation, error)
	FinishFetchOperation(ctx context.Context, id string) error
}

type ItemResult struct {
	Item      catalog.ScrapedItem
	ProductID string
	Err       error
}

type RunReport struct {
	OperationID string
	Shop        catalog.Shop
	State       RunState
	// Processed is the number of items merged successfully, it never
	// exceeds Total.
	Processed  int
	Total      int
	Results    []ItemResult
	Pagination PaginationStats
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed returns the results of items that could not be merged.
func (r RunReport) Failed() []ItemResult {
	var out []ItemResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

type CoordinatorOptions struct {
	// LockTTL bounds how long a crashed run can block its shop.
	LockTTL time.Duration
}

type Coordinator struct {
	registry  Registry
	paginator Paginator
	store     Store
	locker    lock.Locker
	publisher events.Publisher
	clock     chrono.API
	tel       telemetry.API
	opts      CoordinatorOptions
}

func NewCoordinator(
	registry Registry,
	paginator Paginator,
	store Store,
	locker lock.Locker,
	publisher events.Publisher,
	clock chrono.API,
	tel telemetry.API,
	opts CoordinatorOptions,
) Coordinator {
	assert.NotNil(store)
	assert.NotNil(locker)
	assert.NotNil(publisher)
	assert.NotNil(clock)
	assert.NotNil(tel)
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Hour
	}
	return Coordinator{
		registry:  registry,
		paginator: paginator,
		store:     store,
		locker:    locker,
		publisher: publisher,
		clock:     clock,
		tel:       telemetry.NewScopedAPI("ingest", tel),
		opts:      opts,
	}
}

func (c Coordinator) Registry() Registry {
	return c.registry
}

// LockKey is the lock held while a shop is being ingested.
func LockKey(shopName string) string {
	return "ingest:" + strings.ToLower(shopName)
}

// Ingest runs one full ingestion of the named shop. Page failures fail the
// run, item failures are recorded in the report and the run carries on.
func (c Coordinator) Ingest(ctx context.Context, shopName string) (report RunReport, err error) {
	ctx, span := tracer.Start(ctx, "Ingest")
	defer span.End()

	report.State = StateCreated
	report.StartedAt = c.clock.Now()

	source, err := c.registry.Lookup(shopName)
	if err != nil {
		return report, err
	}
	shop := source.Shop()
	report.Shop = shop
	span.SetAttributes(attribute.String("shop", shop.Name))

	lease, err := c.locker.TryLock(ctx, LockKey(shop.Name), c.opts.LockTTL)
	if errors.Is(err, lock.ErrLocked) {
		return report, catalog.ErrRunInProgress
	}
	if err != nil {
		return report, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() {
		uerr := lease.Unlock(context.WithoutCancel(ctx))
		if uerr != nil {
			c.tel.ReportBroken(report_coordinator_unlock, uerr, shop.Name)
		}
	}()

	op, err := c.store.CreateFetchOperation(ctx, shop.Name)
	if err != nil {
		return report, err
	}
	report.OperationID = op.ID
	report.State = StateFetching

	defer func() {
		cleanup := context.WithoutCancel(ctx)

		ferr := c.store.FinishFetchOperation(cleanup, op.ID)
		if ferr != nil {
			c.tel.ReportBroken(report_coordinator_finish, ferr, op.ID)
		}

		report.FinishedAt = c.clock.Now()
		report.State = StateCompleted
		if err != nil {
			report.State = StateFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, "ingestion failed")
		}
		span.SetAttributes(
			attribute.String("operation_id", op.ID),
			attribute.Int("processed", report.Processed),
			attribute.Int("total", report.Total),
		)
		c.tel.ReportCount(report_coordinator_processed, int64(report.Processed))
		c.tel.ReportCount(report_coordinator_total, int64(report.Total))

		perr := c.publisher.PublishRunFinished(cleanup, runFinished(report, err))
		if perr != nil {
			c.tel.ReportWarning(report_coordinator_publish, perr, op.ID)
		}
	}()

	items, stats, err := c.paginator.Collect(ctx, leasedSource{Source: source, lease: lease, ttl: c.opts.LockTTL})
	report.Pagination = stats
	if err != nil {
		return report, err
	}
	report.Total = len(items)
	report.Results = make([]ItemResult, 0, len(items))

	for _, item := range items {
		err = ctx.Err()
		if err != nil {
			return report, err
		}

		productID, merr := c.store.MergeItem(ctx, shop, item)
		report.Results = append(report.Results, ItemResult{
			Item:      item,
			ProductID: productID,
			Err:       merr,
		})
		if merr != nil {
			c.tel.ReportWarning(report_coordinator_merge, merr)
			continue
		}
		report.Processed++
	}

	c.tel.ReportDebug(
		"ingestion finished",
		shop.Name,
		fmt.Sprintf("%d/%d", report.Processed, report.Total),
	)
	return report, nil
}

// leasedSource extends the run's lock before every page, a crawl can take
// longer than a single LockTTL.
type leasedSource struct {
	Source
	lease lock.Lease
	ttl   time.Duration
}

func (s leasedSource) FetchPage(ctx context.Context, index int) ([]catalog.ScrapedItem, error) {
	err := s.lease.Refresh(ctx, s.ttl)
	if errors.Is(err, lock.ErrLost) {
		return nil, backoff.Permanent(fmt.Errorf("refresh lock: %w", err))
	}
	if err != nil {
		return nil, fmt.Errorf("refresh lock: %w", err)
	}
	return s.Source.FetchPage(ctx, index)
}

func runFinished(report RunReport, err error) events.RunFinished {
	event := events.RunFinished{
		OperationID: report.OperationID,
		ShopName:    report.Shop.Name,
		State:       string(report.State),
		Processed:   report.Processed,
		Total:       report.Total,
		Pages:       report.Pagination.Pages,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}
