package browser

import (
	"context"
	"fmt"
	"time"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/chrono"
)

type State int

const (
	Scrolling State = iota
	Converged
	BudgetExhausted
)

func (s State) String() string {
	switch s {
	case Scrolling:
		return "scrolling"
	case Converged:
		return "converged"
	case BudgetExhausted:
		return "budget_exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StablePredicate reports whether two consecutive signal samples mean the page
// has finished loading.
type StablePredicate func(prev, cur int) bool

// CountUnchanged is stable once one scroll renders no new elements.
func CountUnchanged(prev, cur int) bool {
	return prev == cur
}

// ConvergencePolicy scrolls a page one viewport at a time until a signal (the
// number of rendered images) stops changing.
type ConvergencePolicy struct {
	// ResultSelector matches a result card.
	ResultSelector string
	// EmptySelector matches the marker a listing shows instead of result
	// cards. Without it a page is only ever empty by timing out, which is an
	// error.
	EmptySelector string
	// SignalSelector is counted after every scroll.
	SignalSelector string
	ResultTimeout  time.Duration
	ViewportHeight int
	Settle         time.Duration
	MaxScrolls     int
	// FinalSettle lets trailing images finish after the loop stops.
	FinalSettle time.Duration
	Stable      StablePredicate
}

func DefaultConvergencePolicy(resultSelector, signalSelector string) ConvergencePolicy {
	return ConvergencePolicy{
		ResultSelector: resultSelector,
		SignalSelector: signalSelector,
		ResultTimeout:  10 * time.Second,
		ViewportHeight: 4320,
		Settle:         time.Second,
		MaxScrolls:     10,
		FinalSettle:    2 * time.Second,
		Stable:         CountUnchanged,
	}
}

// Convergence describes how a page settled.
type Convergence struct {
	State    State
	Scrolls  int
	Position int
	// Samples holds the signal count before the first scroll followed by one
	// sample per scroll.
	Samples []int
}

func (p ConvergencePolicy) stable(prev, cur int) bool {
	if p.Stable == nil {
		return CountUnchanged(prev, cur)
	}
	return p.Stable(prev, cur)
}

// step performs one scroll and moves the state machine.
func (p ConvergencePolicy) step(ctx context.Context, page Page, clock chrono.API, c *Convergence) error {
	if c.Scrolls >= p.MaxScrolls {
		c.State = BudgetExhausted
		return nil
	}

	c.Position += p.ViewportHeight
	err := page.ScrollTo(ctx, c.Position)
	if err != nil {
		return fmt.Errorf("scroll to %d: %w", c.Position, err)
	}
	c.Scrolls++

	err = clock.Sleep(ctx, p.Settle)
	if err != nil {
		return err
	}

	cur, err := page.Count(ctx, p.SignalSelector)
	if err != nil {
		return fmt.Errorf("sample %q: %w", p.SignalSelector, err)
	}
	prev := c.Samples[len(c.Samples)-1]
	c.Samples = append(c.Samples, cur)
	if p.stable(prev, cur) {
		c.State = Converged
	}
	return nil
}

// Converge waits for the first result card then scrolls until the signal is
// stable or MaxScrolls is spent. It fails with catalog.ErrNoResults when the
// empty-state marker shows up first and with a catalog.RenderTimeoutError when
// neither appears in time.
func (p ConvergencePolicy) Converge(ctx context.Context, page Page, clock chrono.API) (Convergence, error) {
	selectors := []string{p.ResultSelector}
	if p.EmptySelector != "" {
		selectors = append(selectors, p.EmptySelector)
	}
	matched, err := page.WaitFor(ctx, p.ResultTimeout, selectors...)
	if err != nil {
		if ctx.Err() != nil {
			return Convergence{}, ctx.Err()
		}
		return Convergence{}, catalog.RenderTimeoutError{
			Selector: p.ResultSelector,
			Timeout:  p.ResultTimeout,
			Err:      err,
		}
	}
	if matched == p.EmptySelector {
		return Convergence{}, fmt.Errorf("%q shown: %w", p.EmptySelector, catalog.ErrNoResults)
	}

	initial, err := page.Count(ctx, p.SignalSelector)
	if err != nil {
		return Convergence{}, fmt.Errorf("sample %q: %w", p.SignalSelector, err)
	}

	c := Convergence{State: Scrolling, Samples: []int{initial}}
	for c.State == Scrolling {
		err = p.step(ctx, page, clock, &c)
		if err != nil {
			return c, err
		}
	}

	err = clock.Sleep(ctx, p.FinalSettle)
	if err != nil {
		return c, err
	}
	return c, nil
}
