// Package browser loads listing pages in a headless browser and waits for
// their lazily loaded content to settle.
package browser

import (
	"context"
	"time"
)

// Page is a live, loaded page.
type Page interface {
	// WaitFor blocks until an element matching one of selectors exists and
	// returns the selector that matched, or fails once timeout elapses.
	WaitFor(ctx context.Context, timeout time.Duration, selectors ...string) (string, error)
	// Count returns the number of elements currently matching selector.
	Count(ctx context.Context, selector string) (int, error)
	// ScrollTo scrolls the window to the absolute vertical offset y.
	ScrollTo(ctx context.Context, y int) error
	// HTML returns a snapshot of the rendered document.
	HTML(ctx context.Context) (string, error)
}

// Renderer loads url and hands the live page to fn. Everything acquired for
// the page is released when Render returns, whatever the outcome.
//
// note: fault injection point
type Renderer interface {
	Render(ctx context.Context, url string, fn func(ctx context.Context, page Page) error) error
}
