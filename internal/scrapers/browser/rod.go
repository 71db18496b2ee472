package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/telemetry"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	report_rod_close  = "rod.close"
	report_rod_render = "rod.render"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

type RodOptions struct {
	// BinPath is the chromium binary, rod downloads one when empty.
	BinPath   string
	UserAgent string
	// the viewport is tall so that a page needs fewer scrolls to render
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	// Headful shows the browser window, for debugging selectors locally.
	Headful bool
}

func (o RodOptions) withDefaults() RodOptions {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = 1920
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = 4320
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	return o
}

// RodRenderer renders each page in its own freshly launched chromium process.
type RodRenderer struct {
	opts RodOptions
	tel  telemetry.API
}

func NewRodRenderer(opts RodOptions, tel telemetry.API) RodRenderer {
	return RodRenderer{
		opts: opts.withDefaults(),
		tel:  telemetry.NewScopedAPI("browser", tel),
	}
}

func (r RodRenderer) launch(ctx context.Context) (*launcher.Launcher, *rod.Browser, error) {
	l := launcher.New().
		Context(ctx).
		Headless(!r.opts.Headful).
		NoSandbox(true).
		Set("remote-allow-origins", "*")
	if r.opts.BinPath != "" {
		l = l.Bin(r.opts.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	err = browser.Connect()
	if err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}
	return l, browser, nil
}

func (r RodRenderer) Render(ctx context.Context, url string, fn func(ctx context.Context, page Page) error) error {
	l, browser, err := r.launch(ctx)
	if err != nil {
		return catalog.NavigationError{URL: url, Err: err}
	}
	defer func() {
		err := browser.Close()
		if err != nil {
			r.tel.ReportWarning(report_rod_close, err)
		}
		l.Kill()
	}()

	page, err := stealth.Page(browser)
	if err != nil {
		return catalog.NavigationError{URL: url, Err: fmt.Errorf("open page: %w", err)}
	}
	err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.opts.UserAgent})
	if err != nil {
		return catalog.NavigationError{URL: url, Err: fmt.Errorf("set user agent: %w", err)}
	}
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             r.opts.ViewportWidth,
		Height:            r.opts.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return catalog.NavigationError{URL: url, Err: fmt.Errorf("set viewport: %w", err)}
	}

	err = r.navigate(page, url)
	if err != nil {
		r.tel.ReportWarning(report_rod_render, err)
		return err
	}
	r.tel.ReportDebug("page loaded", url)

	return fn(ctx, rodPage{page: page})
}

// navigate loads url waiting for DOMContentLoaded and load, it fails unless
// the document itself answered 200.
func (r RodRenderer) navigate(page *rod.Page, url string) error {
	navPage := page.Timeout(r.opts.NavigationTimeout)
	defer navPage.CancelTimeout()

	status := 0
	waitStatus := navPage.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status = e.Response.Status
		return true
	})
	waitDOMReady := navPage.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)

	err := navPage.Navigate(url)
	if err != nil {
		return catalog.NavigationError{URL: url, Err: err}
	}
	waitStatus()
	waitDOMReady()

	err = navPage.WaitLoad()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.opts.NavigationTimeout, err)
		}
		return catalog.NavigationError{URL: url, Status: status, Err: err}
	}
	if status != http.StatusOK {
		return catalog.NavigationError{URL: url, Status: status}
	}
	return nil
}

type rodPage struct {
	page *rod.Page
}

func (p rodPage) WaitFor(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	timed := p.page.Context(ctx).Timeout(timeout)
	defer timed.CancelTimeout()

	matched := ""
	race := timed.Race()
	for _, selector := range selectors {
		selector := selector
		race = race.Element(selector).Handle(func(*rod.Element) error {
			matched = selector
			return nil
		})
	}
	_, err := race.Do()
	if err != nil {
		return "", err
	}
	return matched, nil
}

func (p rodPage) Count(ctx context.Context, selector string) (int, error) {
	elements, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, err
	}
	return len(elements), nil
}

func (p rodPage) ScrollTo(ctx context.Context, y int) error {
	_, err := p.page.Context(ctx).Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}

func (p rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}
