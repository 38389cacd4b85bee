package client

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy retries failed calls with linearly growing delays. Client
// errors (4xx other than 429) are returned at once. The client applies it
// to reads, deletes, PATCH updates and order creation; cart adds are never
// retried.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Delay: time.Second}

// NoRetry makes a single attempt
var NoRetry = RetryPolicy{}

// Do runs fn until it succeeds, fails permanently or retries run out
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !retryable(err) || attempt >= p.MaxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.Delay * time.Duration(attempt+1)):
		}
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
