package sysmetrics

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// query runs fn with a deadline of timeout. If fn has not returned by then,
// query gives up with ErrQueryTimeout and leaves fn to finish in the
// background; its result is discarded.
func query[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		if errors.Is(r.err, context.DeadlineExceeded) {
			return r.val, fmt.Errorf("%w after %s", ErrQueryTimeout, timeout)
		}
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrQueryTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}

// guardedQuery runs query behind the subgroup's circuit breaker. Only a call
// that did not return in time counts against the breaker; a call that came
// back with an error still proves the OS read is not hung.
func guardedQuery[T any](ctx context.Context, s *Sampler, group string, fn func(context.Context) (T, error)) (T, error) {
	b := s.breakers[group]
	if b == nil {
		return query(ctx, s.timeout, fn)
	}

	if ok, _ := b.Allow(); !ok {
		var zero T
		return zero, ErrQuerySuspended
	}

	v, err := query(ctx, s.timeout, fn)
	if errors.Is(err, ErrQueryTimeout) || (err != nil && ctx.Err() != nil) {
		b.Failure()
	} else {
		b.Success()
	}
	return v, err
}
