package dispatch

import (
	"context"

	"github.com/richxcame/roadside-dispatch/pkg/resilience"
)

// Failure classification for the attempt loop's own outbound calls
// (spec.md §4.3.5). Logical errors — bad acceptance requests — never
// reach this path: AcceptOffer/DeclineOffer validate up front and
// return a *common.AppError straight to the caller, unretried.
//
// Transient calls (store reads, matcher queries) are retried under
// resilience.DispatchRetryConfig(); if every attempt fails the caller
// decides what "unresolved" means for that call site — the matcher
// call folds it into "no candidates found" (radius expansion), a
// failed incident load is fatal and escalates with reason "internal".

// withRetry wraps a transient-class outbound call in the dispatch
// retry policy (250ms initial, x2, capped 5s, bounded jitter, 4
// attempts). name is the operation label recorded in retry metrics.
func withRetry[T any](ctx context.Context, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := resilience.RetryWithName(ctx, resilience.DispatchRetryConfig(), func(ctx context.Context) (interface{}, error) {
		return op(ctx)
	}, name)
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}
