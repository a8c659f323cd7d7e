// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds transient-failure retries inside a connector.
// Retries live here, at the backend edge, and nowhere else: the
// orchestrator never retries, it moves on with partial results. The
// default policy allows at most two retries with jittered exponential
// backoff so a retried call still fits inside a lane budget.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the standard backend retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// Backoff returns the delay before the given retry attempt (1-based),
// doubling from InitialDelay and jittered ±25% so concurrent lanes
// retrying against the same provider don't thunder in step.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.InitialDelay << uint(attempt-1)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
	return delay + jitter
}

// Do runs op up to 1+MaxRetries times, sleeping Backoff between
// attempts. retryable decides whether an error is worth another try;
// context cancellation always stops the loop immediately.
func (p RetryPolicy) Do(ctx context.Context, op func() error, retryable func(error) bool) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Backoff(attempt)):
			}
		}
		if err = op(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	return err
}
