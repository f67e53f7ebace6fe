package backend

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// race runs call under ctx concurrently with a wait on the cancellation signal. When the
// signal fires first, abort is invoked and the call is awaited before race returns
// ErrRequestCancelled. A nil signal never fires.
//
// The call's result is returned even when the race was lost so the caller can release
// resources it holds.
func race[T any](
	ctx context.Context,
	abort context.CancelFunc,
	signal <-chan struct{},
	call func(context.Context) (T, error),
) (T, error) {
	var (
		g         errgroup.Group
		result    T
		cancelled atomic.Bool
	)
	finished := make(chan struct{})

	g.Go(func() error {
		defer close(finished)
		var err error
		result, err = call(ctx)
		return err
	})

	g.Go(func() error {
		select {
		case <-signal:
			select {
			case <-finished:
				// The call already completed; its outcome stands.
				return nil
			default:
			}
			cancelled.Store(true)
			abort()
			return ErrRequestCancelled
		case <-finished:
			return nil
		}
	})

	err := g.Wait()
	if cancelled.Load() {
		return result, ErrRequestCancelled
	}
	return result, err
}
