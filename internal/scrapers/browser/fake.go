package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FakePage is an in-memory Page. Every Count of the signal selector returns the
// next value of Counts (the last value repeats once they run out).
type FakePage struct {
	mu sync.Mutex

	// Markup is served by HTML. When set, WaitFor only finds selectors that
	// match it.
	Markup string
	// Missing lists selectors WaitFor never finds.
	Missing        map[string]bool
	SignalSelector string
	Counts         []int

	Scrolls []int
	counted int
}

func (f *FakePage) WaitFor(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var doc *goquery.Document
	if f.Markup != "" {
		var err error
		doc, err = goquery.NewDocumentFromReader(strings.NewReader(f.Markup))
		if err != nil {
			return "", err
		}
	}
	for _, selector := range selectors {
		if f.Missing[selector] {
			continue
		}
		if doc != nil && doc.Find(selector).Length() == 0 {
			continue
		}
		return selector, nil
	}
	return "", context.DeadlineExceeded
}

func (f *FakePage) Count(ctx context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if selector != f.SignalSelector || len(f.Counts) == 0 {
		return 0, nil
	}
	idx := f.counted
	if idx >= len(f.Counts) {
		idx = len(f.Counts) - 1
	}
	f.counted++
	return f.Counts[idx], nil
}

func (f *FakePage) ScrollTo(ctx context.Context, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scrolls = append(f.Scrolls, y)
	return nil
}

func (f *FakePage) HTML(ctx context.Context) (string, error) {
	return f.Markup, nil
}

// FakeRenderer serves pages from a map keyed by url.
type FakeRenderer struct {
	mu    sync.Mutex
	Pages map[string]Page
	// Errors queues failures per url, each Render pops one before the page
	// is served.
	Errors   map[string][]error
	Rendered []string
}

var ErrUnknownPage = errors.New("unknown page")

func (f *FakeRenderer) Render(ctx context.Context, url string, fn func(ctx context.Context, page Page) error) error {
	f.mu.Lock()
	f.Rendered = append(f.Rendered, url)
	var err error
	if queued := f.Errors[url]; len(queued) > 0 {
		err = queued[0]
		f.Errors[url] = queued[1:]
	}
	page, ok := f.Pages[url]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownPage
	}
	return fn(ctx, page)
}
