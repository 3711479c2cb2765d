package pgproxy

import (
	"context"
	"time"
)

// Backoff implements the bounded exponential retry named in §7 for
// ConfigIO faults encountered outside the request path: base 100ms,
// doubling, capped at 2s, three attempts. Handler.Handle uses it for
// the upstream dial; schema reloads are not retried. Grounded on the retry loop the teacher's health checker
// runs against its probe target.
type Backoff struct {
	Base       time.Duration
	Cap        time.Duration
	MaxAttempt int
}

// DefaultBackoff returns the §7 parameters.
func DefaultBackoff() Backoff {
	return Backoff{Base: 100 * time.Millisecond, Cap: 2 * time.Second, MaxAttempt: 3}
}

// Retry calls fn up to MaxAttempt times, sleeping an exponentially
// growing, capped delay between attempts. It returns the last error if
// every attempt fails, or nil on the first success.
func (b Backoff) Retry(ctx context.Context, fn func() error) error {
	delay := b.Base
	var err error
	for attempt := 0; attempt < b.MaxAttempt; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == b.MaxAttempt-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > b.Cap {
			delay = b.Cap
		}
	}
	return err
}
