package events

import (
	"context"
	"errors"
)

// Multi publishes every event to all of its publishers, a failing publisher
// does not stop the others.
type Multi []Publisher

func (m Multi) PublishRunFinished(ctx context.Context, event RunFinished) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PublishRunFinished(ctx, event))
	}
	return errors.Join(errs...)
}
