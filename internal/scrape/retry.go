package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

// Policy is a bounded retry with a backoff schedule. Backoff receives the
// number of failed attempts so far.
type Policy struct {
	Attempts uint
	Backoff  func(failures uint) time.Duration
}

// URLPolicy retries image URL resolution 3 times, waiting 5s then 10s.
func URLPolicy() Policy {
	return Policy{
		Attempts: 3,
		Backoff: func(failures uint) time.Duration {
			return time.Duration(failures) * 5 * time.Second
		},
	}
}

// DownloadPolicy retries an image download 6 times. The download paces itself
// so there is no extra backoff.
func DownloadPolicy() Policy {
	return Policy{Attempts: 6}
}

// Do runs fn until it succeeds, the attempts are used up or ctx is done. fn
// gets the zero-based attempt number. Login aborts and context errors are not
// retried.
func (p Policy) Do(ctx context.Context, fn func(attempt uint) error, onRetry func(attempt uint, err error)) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}

	var attempt, failures uint
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			if p.Backoff == nil {
				return 0
			}
			return p.Backoff(failures)
		}),
	}
	if onRetry != nil {
		opts = append(opts, retry.OnRetry(func(_ uint, err error) {
			// retry-go also reports the final failure, which is not retried
			if attempt < attempts {
				onRetry(attempt-1, err)
			}
		}))
	}

	return retry.Do(func() error {
		err := fn(attempt)
		attempt++
		if err == nil {
			return nil
		}
		failures++
		if errors.Is(err, ErrLoginAborted) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return retry.Unrecoverable(err)
		}
		return err
	}, opts...)
}
