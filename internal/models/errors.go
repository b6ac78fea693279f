package models

import "errors"

// Error classes shared by the price source, the history store, and readers.
// Callers wrap them with context and test with errors.Is.
var (
	// ErrItemNotFound means the configured identifier does not resolve to an
	// upstream item. It is not retried automatically.
	ErrItemNotFound = errors.New("item not found")

	// ErrUpstream covers network failures, timeouts, rate limiting and 5xx
	// responses. The next scheduled cycle is the only retry.
	ErrUpstream = errors.New("upstream error")

	// ErrInvalidSample marks a malformed or negative price. Such samples are
	// never stored.
	ErrInvalidSample = errors.New("invalid sample")

	// ErrNoData is returned to readers before any fetch has succeeded.
	ErrNoData = errors.New("no data yet")
)
