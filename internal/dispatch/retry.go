package dispatch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hamed0406/sitewatch/internal/config"
)

// RetryPolicy bounds how hard a single notification is pushed within one
// cycle.
type RetryPolicy struct {
	MaxRetries      int           // retries after the first attempt
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Timeout         time.Duration // per attempt
	MaxRetryAfter   time.Duration // cap on server-requested waits
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Timeout:         10 * time.Second,
		MaxRetryAfter:   30 * time.Second,
	}
}

func PolicyFromConfig(c config.DispatchConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxRetries = c.MaxRetries
	if c.InitialBackoff > 0 {
		p.InitialInterval = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		p.MaxInterval = c.MaxBackoff
	}
	if c.Timeout > 0 {
		p.Timeout = c.Timeout
	}
	return p
}

// backOff builds the schedule for one dispatch; hint carries a
// Retry-After from the last failure.
func (p RetryPolicy) backOff(ctx context.Context, hint *time.Duration) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0 // bounded by MaxRetries instead
	exp.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	b := &hintedBackOff{inner: exp, hint: hint, max: p.MaxRetryAfter}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

type hintedBackOff struct {
	inner backoff.BackOff
	hint  *time.Duration
	max   time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	d := h.inner.NextBackOff()
	if d == backoff.Stop || h.hint == nil {
		return d
	}
	if w := *h.hint; w > d {
		if h.max > 0 && w > h.max {
			w = h.max
		}
		d = w
	}
	*h.hint = 0
	return d
}

func (h *hintedBackOff) Reset() {
	h.inner.Reset()
	if h.hint != nil {
		*h.hint = 0
	}
}
