package woolworths

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/assert"
	"pricewise-backend/internal/components/chrono"
	"pricewise-backend/internal/components/telemetry"
	"pricewise-backend/internal/scrapers/browser"
)

const (
	ShopName = "Woolworths"
	BaseURL  = "https://www.woolworths.co.za"
	Currency = "ZAR"
	PageSize = 100

	listingPath = "/cat/Food/_/N-1z13sk5"
)

const (
	report_source_fetch_page = "source.fetch-page"
	report_source_page_items = "source.page-items"
)

// Source fetches the food catalog one listing page at a time.
type Source struct {
	baseURL  *url.URL
	renderer browser.Renderer
	policy   browser.ConvergencePolicy
	clock    chrono.API
	tel      telemetry.API
}

type SourceOptions struct {
	// BaseURL overrides the retailer's url, used to point at a test server.
	BaseURL string
	// Policy overrides the default scroll convergence policy.
	Policy *browser.ConvergencePolicy
}

func NewSource(renderer browser.Renderer, clock chrono.API, tel telemetry.API, opts SourceOptions) (Source, error) {
	assert.NotNil(renderer)
	assert.NotNil(clock)
	assert.NotNil(tel)

	rawBase := opts.BaseURL
	if rawBase == "" {
		rawBase = BaseURL
	}
	base, err := url.Parse(rawBase)
	if err != nil {
		return Source{}, fmt.Errorf("parse base url: %w", err)
	}

	policy := browser.DefaultConvergencePolicy(selectorCard, selectorImage)
	policy.EmptySelector = selectorNoResults
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	return Source{
		baseURL:  base,
		renderer: renderer,
		policy:   policy,
		clock:    clock,
		tel:      telemetry.NewScopedAPI("woolworths", tel),
	}, nil
}

func (s Source) Shop() catalog.Shop {
	return catalog.Shop{Name: ShopName, URL: s.baseURL.String()}
}

func (s Source) PageSize() int {
	return PageSize
}

// PageURL returns the listing url of the page at index, starting from 0.
func (s Source) PageURL(index int) string {
	u := s.baseURL.JoinPath(listingPath)
	query := url.Values{}
	query.Set("No", fmt.Sprint(index*PageSize))
	query.Set("Nrpp", fmt.Sprint(PageSize))
	u.RawQuery = query.Encode()
	return u.String()
}

func (s Source) FetchPage(ctx context.Context, index int) ([]catalog.ScrapedItem, error) {
	pageURL := s.PageURL(index)

	var items []catalog.ScrapedItem
	err := s.renderer.Render(ctx, pageURL, func(ctx context.Context, page browser.Page) error {
		convergence, err := s.policy.Converge(ctx, page, s.clock)
		if err != nil {
			return err
		}
		s.tel.ReportDebug(
			"page converged",
			pageURL,
			convergence.State.String(),
			convergence.Scrolls,
		)

		html, err := page.HTML(ctx)
		if err != nil {
			return fmt.Errorf("read page html: %w", err)
		}
		items = ExtractFrom(html, s.baseURL)
		return nil
	})
	if errors.Is(err, catalog.ErrNoResults) {
		s.tel.ReportDebug("page has no results", pageURL)
		return nil, err
	}
	if err != nil {
		s.tel.ReportWarning(report_source_fetch_page, fmt.Errorf("page %d: %w", index, err))
		return nil, err
	}

	s.tel.ReportCount(report_source_page_items, int64(len(items)))
	return items, nil
}
