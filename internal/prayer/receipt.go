package prayer

import (
	"context"
	"errors"
)

var (
	// ErrToggleInFlight reports a toggle dropped because the previous one has not resolved.
	ErrToggleInFlight = errors.New("toggle already in flight")
	// ErrTornDown reports a toggle on a controller that was torn down.
	ErrTornDown = errors.New("controller torn down")
)

// Receipt is a best-effort notification for one toggle's increment dispatch.
// Callers may wait on it or drop it; nothing is retried either way.
type Receipt struct {
	Delta   int
	Dropped bool

	done chan struct{}
	err  error
}

func newReceipt(delta int) *Receipt {
	return &Receipt{Delta: delta, done: make(chan struct{})}
}

func droppedReceipt(err error) *Receipt {
	r := &Receipt{Dropped: true, done: make(chan struct{}), err: err}
	close(r.done)
	return r
}

func (r *Receipt) resolve(err error) {
	r.err = err
	close(r.done)
}

// Done is closed once the dispatch resolved or the toggle was dropped.
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Err returns the dispatch outcome. It is nil until Done is closed.
func (r *Receipt) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the dispatch resolves or ctx ends.
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
