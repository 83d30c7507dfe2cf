package mirror

import (
	"context"
	"errors"
)

// Task tracks one submitted mutation.
type Task struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Err is nil until Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Cancel abandons the request. The local change is undone; the server may
// still have applied it, which the next reconciliation shows.
func (t *Task) Cancel() { t.cancel() }

func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func failedTask(err error) *Task {
	t := &Task{done: make(chan struct{}), err: err, cancel: func() {}}
	close(t.done)
	return t
}

// start runs call on its own goroutine; settle sees its result under no lock.
func (m *Mirror) start(call func(ctx context.Context) error, settle func(err error)) *Task {
	ctx, cancel := context.WithCancel(m.ctx)
	t := &Task{done: make(chan struct{}), cancel: cancel}
	m.tasks.Add(1)
	go func() {
		defer m.tasks.Done()
		defer cancel()
		err := call(ctx)
		settle(err)
		t.err = err
		close(t.done)
	}()
	return t
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
