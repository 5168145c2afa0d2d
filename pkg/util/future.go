package util

import (
	"context"
	"sync"
)

// Future is a value that is resolved exactly once. Later Resolve calls are
// ignored.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

// NewFuture creates an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve fulfils the future. It reports whether this call won.
func (f *Future[T]) Resolve(v T) bool {
	won := false
	f.once.Do(func() {
		f.value = v
		close(f.done)
		won = true
	})
	return won
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future is resolved or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
