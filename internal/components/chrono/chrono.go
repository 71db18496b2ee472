package chrono

import (
	"context"
	"time"
)

// API is the clock every component that reads the current time or waits
// should depend on.
//
// note: fault injection point
type API interface {
	Now() time.Time
	Location() *time.Location
	// Sleep blocks for d or until ctx is done, whichever comes first. It returns
	// ctx.Err() when interrupted.
	Sleep(ctx context.Context, d time.Duration) error
}

// DefaultLocation is the timezone the retailer publishes its prices in.
const DefaultLocation = "Africa/Johannesburg"

type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl(location string) (StandardImpl, error) {
	if location == "" {
		location = DefaultLocation
	}
	loc, err := time.LoadLocation(location)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: loc}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

func (s StandardImpl) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
