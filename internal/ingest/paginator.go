// Package ingest runs ingestion: it walks a shop's listing pages and merges
// every scraped item into the catalog.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/assert"
	"pricewise-backend/internal/components/chrono"
	"pricewise-backend/internal/components/telemetry"

	"github.com/cenkalti/backoff/v4"
)

const (
	report_paginator_retry   = "paginator.retry"
	report_paginator_collect = "paginator.collect"
)

// Source is a shop whose catalog can be read page by page.
//
// note: fault injection point
type Source interface {
	Shop() catalog.Shop
	// PageSize is the number of items a full page holds.
	PageSize() int
	// FetchPage returns the items on the page at index, starting from 0. An
	// error matching catalog.ErrNoResults means the page is empty, a
	// backoff.Permanent error is never retried.
	FetchPage(ctx context.Context, index int) ([]catalog.ScrapedItem, error)
}

type PaginatorOptions struct {
	// Delay is waited between two page fetches.
	Delay time.Duration
	// Retries is how many times a failed page is fetched again.
	Retries int
	// MaxPages stops pagination early, 0 means no limit.
	MaxPages int
	// NewBackOff produces the retry intervals of a single page.
	NewBackOff func() backoff.BackOff
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	// attempts are bounded by Retries instead
	b.MaxElapsedTime = 0
	return b
}

func DefaultPaginatorOptions() PaginatorOptions {
	return PaginatorOptions{
		Delay:      2 * time.Second,
		Retries:    2,
		NewBackOff: defaultBackOff,
	}
}

type PaginationStats struct {
	// Pages is the number of pages fetched successfully, including the
	// terminating empty page.
	Pages   int
	Delays  int
	Retries int
}

// PageError is a page that still failed after every retry.
type PageError struct {
	Index int
	Err   error
}

func (e PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Index, e.Err)
}

func (e PageError) Unwrap() error {
	return e.Err
}

type Paginator struct {
	opts  PaginatorOptions
	clock chrono.API
	tel   telemetry.API
}

func NewPaginator(opts PaginatorOptions, clock chrono.API, tel telemetry.API) Paginator {
	assert.NotNil(clock)
	assert.NotNil(tel)
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return Paginator{
		opts:  opts,
		clock: clock,
		tel:   telemetry.NewScopedAPI("ingest", tel),
	}
}

// Collect fetches pages in order until one comes back short of a full page,
// the short page's items are included.
func (p Paginator) Collect(ctx context.Context, source Source) ([]catalog.ScrapedItem, PaginationStats, error) {
	pageSize := source.PageSize()
	assert.Positive(pageSize, "page size")

	var stats PaginationStats
	var all []catalog.ScrapedItem

	for index := 0; p.opts.MaxPages <= 0 || index < p.opts.MaxPages; index++ {
		if index > 0 && p.opts.Delay > 0 {
			err := p.clock.Sleep(ctx, p.opts.Delay)
			if err != nil {
				return nil, stats, err
			}
			stats.Delays++
		}

		items, err := p.fetch(ctx, source, index, &stats)
		if errors.Is(err, catalog.ErrNoResults) {
			stats.Pages++
			break
		}
		if err != nil {
			p.tel.ReportBroken(report_paginator_collect, err, source.Shop().Name)
			return nil, stats, PageError{Index: index, Err: err}
		}

		stats.Pages++
		all = append(all, items...)
		if len(items) < pageSize {
			break
		}
	}

	return all, stats, nil
}

func (p Paginator) fetch(ctx context.Context, source Source, index int, stats *PaginationStats) ([]catalog.ScrapedItem, error) {
	b := p.opts.NewBackOff()
	b.Reset()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, err := source.FetchPage(ctx, index)
		if err == nil || errors.Is(err, catalog.ErrNoResults) {
			return items, err
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Unwrap()
		}
		if attempt >= p.opts.Retries || ctx.Err() != nil {
			return nil, err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil, err
		}
		stats.Retries++
		p.tel.ReportWarning(report_paginator_retry, fmt.Errorf("page %d attempt %d: %w", index, attempt+1, err))

		err = p.clock.Sleep(ctx, wait)
		if err != nil {
			return nil, err
		}
	}
}
