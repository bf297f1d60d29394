// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package throttle runs independent provider calls on a bounded worker pool
// and spaces calls to the same provider by a minimum interval.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Limiter enforces a minimum interval between calls to one provider. It is
// shared by every goroutine calling that provider. A nil Limiter never waits.
type Limiter struct {
	interval time.Duration

	mu   sync.Mutex
	next time.Time
}

// NewLimiter returns a limiter that admits one call per interval. A
// non-positive interval admits calls immediately.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Wait blocks until the caller may issue its call or ctx is done. Slots are
// reserved in arrival order so concurrent callers are spread out evenly.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Outcome is the result of one item processed by Map.
type Outcome[R any] struct {
	Value R
	Err   error
}

// Map calls fn for every item with at most workers calls in flight and
// returns the outcomes in input order. A failing item does not stop the
// others; its error is recorded in its Outcome. Items not started before ctx
// is done get ctx.Err().
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error)) []Outcome[R] {
	if workers < 1 {
		workers = 1
	}
	out := make([]Outcome[R], len(items))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			v, err := fn(ctx, item)
			out[i] = Outcome[R]{Value: v, Err: err}
			return nil
		})
	}
	g.Wait()
	return out
}

// Failed counts outcomes carrying an error.
func Failed[R any](outcomes []Outcome[R]) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// AllFailed reports whether there was at least one outcome and every one failed.
func AllFailed[R any](outcomes []Outcome[R]) bool {
	return len(outcomes) > 0 && Failed(outcomes) == len(outcomes)
}
