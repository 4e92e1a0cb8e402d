// Package task runs a long job in the background and reports progress on a
// channel, followed by exactly one terminal result.
package task

import "context"

// Progress is a periodic counter update.
type Progress struct {
	Current int
	Total   int
	Item    string
}

// Report publishes a progress update. It never blocks the job: when the
// consumer lags, intermediate updates are dropped.
type Report func(Progress)

// Task is a running job producing T.
type Task[T any] struct {
	progress chan Progress
	done     chan struct{}
	result   T
	err      error
}

// Start runs fn on its own goroutine.
func Start[T any](ctx context.Context, fn func(ctx context.Context, report Report) (T, error)) *Task[T] {
	t := &Task[T]{
		progress: make(chan Progress, 16),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		defer close(t.progress)
		t.result, t.err = fn(ctx, func(p Progress) {
			select {
			case t.progress <- p:
			default:
			}
		})
	}()
	return t
}

// Progress yields updates and is closed when the job finishes.
func (t *Task[T]) Progress() <-chan Progress { return t.progress }

// Done is closed once the result is available.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the job finishes and returns its terminal result.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.result, t.err
}
