package dbopen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Policy bounds how a database call is retried.
type Policy struct {
	// Attempts is the total number of tries, first call included. Default: 3.
	Attempts int
	// BaseDelay scales the linear backoff: the wait after attempt n is
	// n × BaseDelay. Default: 100ms.
	BaseDelay time.Duration
	// Retryable filters errors worth another attempt. Nil retries every
	// error except context cancellation.
	Retryable func(error) bool
	// OnRetry, when set, is called before each backoff wait.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy retries 3 times with 100/200 ms backoff.
var DefaultPolicy = Policy{Attempts: 3, BaseDelay: 100 * time.Millisecond}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultPolicy.Attempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy's attempts are exhausted. It returns the number of attempts made
// and the last error.
func Retry(ctx context.Context, p Policy, fn func(context.Context) error) (int, error) {
	p = p.normalized()
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || isCancel(err) {
			return attempt, err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return attempt, err
		}
		if attempt == p.Attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := sleepCtx(ctx, time.Duration(attempt)*p.BaseDelay); serr != nil {
			return attempt, fmt.Errorf("dbopen: context cancelled during retry: %w", serr)
		}
	}
	return p.Attempts, err
}

// IsBusy reports whether err indicates an SQLite BUSY condition.
// It checks for SQLITE_BUSY, "database is locked", and "database table is locked".
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
