package feed

import "errors"

// Engine error taxonomy. Carried on ErrorEvent.Kind; the wrapped cause is in
// ErrorEvent.Err.
var (
	ErrAuthRequired          = errors.New("auth required")
	ErrSubscriptionFailed    = errors.New("subscription failed")
	ErrSubmissionFailed      = errors.New("submission failed")
	ErrVisibilityWriteFailed = errors.New("visibility write failed")

	// ErrStreamClosed is returned by a Stream whose backend ended the feed
	// without a transport error.
	ErrStreamClosed = errors.New("feed stream closed")
)
