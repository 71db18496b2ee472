// Package events publishes ingestion run outcomes to other systems.
package events

import (
	"context"
	"time"
)

// RunFinished describes one completed or failed ingestion run.
type RunFinished struct {
	OperationID string    `json:"operationId"`
	ShopName    string    `json:"shopName"`
	State       string    `json:"state"`
	Processed   int       `json:"processed"`
	Total       int       `json:"total"`
	Pages       int       `json:"pages"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// Publisher delivers run events.
//
// note: fault injection point
type Publisher interface {
	PublishRunFinished(ctx context.Context, event RunFinished) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) PublishRunFinished(context.Context, RunFinished) error {
	return nil
}
