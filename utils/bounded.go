// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"time"
)

type boundedResult[T any] struct {
	value T
	err   error
}

// CallBounded invokes [fn] under a wall-clock budget. The call runs in its
// own goroutine so a collaborator that ignores context cancellation cannot
// stall the caller past the budget; its result is discarded once the budget
// is exhausted.
func CallBounded[T any](
	ctx context.Context,
	budget time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	results := make(chan boundedResult[T], 1)
	go func() {
		value, err := fn(cctx)
		results <- boundedResult[T]{value: value, err: err}
	}()

	select {
	case result := <-results:
		return result.value, result.err
	case <-cctx.Done():
		var zero T
		return zero, cctx.Err()
	}
}
