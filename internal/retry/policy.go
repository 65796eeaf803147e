// Package retry runs operations again after transient failures, waiting
// between attempts according to a backoff policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
)

// HintKey is the ClassifiedError context key carrying a server-requested
// wait (time.Duration) before the next attempt.
const HintKey = "retry_after"

// Policy describes how many times to retry and how long to wait in between.
// The zero Policy never retries.
type Policy struct {
	Mode       config.RetryBackoffMode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int // attempts after the first one
}

// DefaultPolicy is linear backoff from 1s, capped at 30s, with 2 retries.
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 2}
}

// NewPolicy overlays the given values on DefaultPolicy. Non-positive
// durations, negative retry counts and unknown modes keep the default.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if m := config.NormalizeRetryBackoff(string(mode)); m != "" {
		p.Mode = m
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	p.Initial = min(p.Initial, p.Max)
	return p
}

// FromConfig builds a policy from a retry configuration section.
func FromConfig(rc config.RetryConfig) Policy {
	return NewPolicy(rc.Backoff, rc.InitialDelayDuration(), rc.MaxDelayDuration(), rc.MaxRetries)
}

// Delay is the wait before retry n (1-based). It never exceeds Max.
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		d = p.Initial
	case config.RetryBackoffExponential:
		d = p.Initial
		for i := 1; i < n && d < p.Max; i++ {
			d *= 2
		}
	default:
		d = time.Duration(n) * p.Initial
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Do calls fn until it succeeds, permanent reports its error as final, the
// retries are used up, or ctx ends. The last error from fn is returned. A
// server wait hint on a ClassifiedError lengthens the next delay up to Max.
func Do(ctx context.Context, p Policy, permanent func(error) bool, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if werr := sleep(ctx, p.waitAfter(err, attempt)); werr != nil {
				return fmt.Errorf("retry aborted after %d attempts: %w", attempt, werr)
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if permanent != nil && permanent(err) {
			return err
		}
	}
	return err
}

func (p Policy) waitAfter(err error, attempt int) time.Duration {
	d := p.Delay(attempt)
	ce, ok := errors.AsClassified(err)
	if !ok {
		return d
	}
	if hint, ok := ce.Context[HintKey].(time.Duration); ok && hint > d {
		return min(hint, p.Max)
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
