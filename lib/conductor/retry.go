// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductor

import (
	"context"
	"log/slog"
	"time"

	"github.com/bureau-foundation/hostsync/lib/clock"
)

// RetryPolicy controls connection attempts: the wait starts at
// Interval and doubles up to MaxInterval. MaxAttempts of zero retries
// until the context ends.
type RetryPolicy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy waits 1s, 2s, 4s ... 30s between unlimited attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Interval: time.Second, MaxInterval: 30 * time.Second}
}

// NoRetry makes exactly one attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) next(current time.Duration) time.Duration {
	if current <= 0 {
		current = p.Interval
	} else {
		current *= 2
	}
	if p.MaxInterval > 0 && current > p.MaxInterval {
		current = p.MaxInterval
	}
	return current
}

// retry runs attempt until it succeeds, the policy is exhausted, or
// ctx ends. Failures are returned as *ConnectionError.
func retry(ctx context.Context, clk clock.Clock, policy RetryPolicy, logger *slog.Logger, url string, attempt func(context.Context) error) error {
	var wait time.Duration
	for attempts := 1; ; attempts++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return &ConnectionError{URL: url, Attempts: attempts, Err: ctx.Err()}
		}
		if policy.MaxAttempts > 0 && attempts >= policy.MaxAttempts {
			return &ConnectionError{URL: url, Attempts: attempts, Err: err}
		}

		wait = policy.next(wait)
		logger.Warn("conductor not reachable, retrying",
			"url", url,
			"attempt", attempts,
			"retry_in", wait,
			"error", err,
		)
		select {
		case <-clk.After(wait):
		case <-ctx.Done():
			return &ConnectionError{URL: url, Attempts: attempts, Err: ctx.Err()}
		}
	}
}
