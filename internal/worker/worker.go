// Package worker is a bounded pool of goroutines shared by the MSM engines.
package worker

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Worker bounds how many closures run at once across every call that uses it.
// It holds no cryptographic state.
type Worker struct {
	size int
	sem  *semaphore.Weighted
}

// New returns a pool of the given size. size <= 0 => GOMAXPROCS(0).
func New(size int) *Worker {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Worker{size: size, sem: semaphore.NewWeighted(int64(size))}
}

// Size returns the number of slots of the pool.
func (w *Worker) Size() int { return w.size }

// Parallel runs fn(0) .. fn(n-1), each holding one pool slot, and waits for
// all of them. The first error is returned; remaining closures that have not
// started yet are skipped.
func (w *Worker) Parallel(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		if err := w.sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer w.sem.Release(1)
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Task is the handle of a computation started with Compute.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Compute starts fn in the background and returns its handle. fn itself
// does not take a pool slot; it is expected to fan out through Parallel.
func Compute[T any](w *Worker, fn func() (T, error)) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.val, t.err = fn()
	}()
	return t
}

// Done returns a resolved task. Used for results known without any work.
func Done[T any](val T, err error) *Task[T] {
	t := &Task[T]{done: make(chan struct{}), val: val, err: err}
	close(t.done)
	return t
}

// Wait blocks until the task finishes.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.val, t.err
}
