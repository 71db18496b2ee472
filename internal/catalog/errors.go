package catalog

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoResults means a listing page loaded and showed its empty-state marker
// instead of result cards.
var ErrNoResults = errors.New("no results")

// ErrRunInProgress is returned when an ingestion run for the same shop is
// already underway.
var ErrRunInProgress = errors.New("ingestion already in progress")

// ValidationError means the caller supplied a missing or invalid field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError means a named entity does not exist.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// NavigationError means a page could not be loaded.
type NavigationError struct {
	URL string
	// Status is the document status code, 0 if no response was received.
	Status int
	Err    error
}

func (e NavigationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("navigate %s: unexpected status %d", e.URL, e.Status)
}

func (e NavigationError) Unwrap() error {
	return e.Err
}

// RenderTimeoutError means an element never appeared on a loaded page.
type RenderTimeoutError struct {
	Selector string
	Timeout  time.Duration
	Err      error
}

func (e RenderTimeoutError) Error() string {
	return fmt.Sprintf("wait for %q (%s): %v", e.Selector, e.Timeout, e.Err)
}

func (e RenderTimeoutError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failure to store a single scraped item.
type PersistenceError struct {
	ItemName string
	Err      error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persist %q: %v", e.ItemName, e.Err)
}

func (e PersistenceError) Unwrap() error {
	return e.Err
}
