// Package prayer implements the per-item "I prayed" control: an optimistic local
// flag and count, reconciled against an eventually consistent aggregate.
package prayer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/verte-zerg/prayerwall/internal/logging"
	"github.com/verte-zerg/prayerwall/internal/model"
)

// Deps are the collaborators a Controller talks to.
type Deps struct {
	Flags      FlagStore
	Subscriber Subscriber
	Dispatcher Dispatcher
	Logger     *zap.Logger
	// OnChange, when set, receives every new state in order. Stale states are
	// skipped rather than delivered late. It must not call back into the controller.
	OnChange func(itemKey string, s State)
}

// Controller owns the prayed flag and displayed count for one item.
type Controller struct {
	key    string
	deps   Deps
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	version  uint64
	inFlight bool
	started  bool
	closed   bool
	cancel   context.CancelFunc

	notifyMu sync.Mutex
	notified uint64

	subWG      sync.WaitGroup
	dispatchWG sync.WaitGroup
}

// New returns a controller for itemKey showing seed until the first aggregate arrives.
func New(itemKey string, seed int64, deps Deps) *Controller {
	if deps.Flags == nil {
		deps.Flags = NewMemFlags()
	}
	logger := logging.OrNop(deps.Logger).With(zap.String("item", itemKey))
	return &Controller{
		key:    itemKey,
		deps:   deps,
		logger: logger,
		state:  State{DisplayedCount: seed},
	}
}

// Key returns the item key.
func (c *Controller) Key() string {
	return c.key
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start loads the device flag and opens the live subscription. It never blocks
// on the network. Calling it again, or after Teardown, does nothing.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true

	prayed, err := c.deps.Flags.Get(model.FlagKey(c.key))
	if err != nil {
		c.logger.Warn("failed to read prayed flag", zap.Error(err))
	}
	c.state.Prayed = prayed

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.subWG.Add(1)
	st, version := c.bumpLocked()
	c.mu.Unlock()

	c.notify(st, version)

	if c.deps.Subscriber == nil {
		c.subWG.Done()
		return
	}
	updates, err := c.deps.Subscriber.Subscribe(subCtx, c.key)
	if err != nil {
		c.logger.Warn("subscription failed; count will stay stale", zap.Error(err))
		c.subWG.Done()
		return
	}
	go c.follow(subCtx, updates)
}

func (c *Controller) follow(ctx context.Context, updates <-chan int64) {
	defer c.subWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case count, ok := <-updates:
			if !ok {
				return
			}
			c.OnAuthoritativeUpdate(count)
		}
	}
}

// Toggle flips the prayed flag, persists it, adjusts the displayed count and
// dispatches a matching increment record. A toggle issued while the previous
// dispatch is unresolved is dropped. Dispatch failures are logged and left as is:
// the flag and the optimistic count are not rolled back.
func (c *Controller) Toggle(ctx context.Context) *Receipt {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return droppedReceipt(ErrTornDown)
	}
	if c.inFlight {
		c.mu.Unlock()
		c.logger.Debug("toggle dropped while dispatch in flight")
		return droppedReceipt(ErrToggleInFlight)
	}
	c.inFlight = true
	c.state = reduce(c.state, action{kind: actionToggled})
	if err := c.deps.Flags.Set(model.FlagKey(c.key), c.state.Prayed); err != nil {
		c.logger.Warn("failed to persist prayed flag", zap.Error(err))
	}
	st, version := c.bumpLocked()
	c.mu.Unlock()

	c.notify(st, version)

	delta := model.DeltaFor(st.Prayed)
	receipt := newReceipt(delta)
	if c.deps.Dispatcher == nil {
		c.release()
		receipt.resolve(nil)
		return receipt
	}

	// In-flight dispatches are not cancelled by the caller or by Teardown.
	dispatchCtx := context.WithoutCancel(ctx)
	c.dispatchWG.Add(1)
	go func() {
		defer c.dispatchWG.Done()
		err := c.deps.Dispatcher.Dispatch(dispatchCtx, c.key, delta)
		if err != nil {
			c.logger.Warn("increment dispatch failed", zap.Int("delta", delta), zap.Error(err))
		} else {
			c.logger.Debug("increment dispatched", zap.Int("delta", delta))
		}
		c.release()
		receipt.resolve(err)
	}()
	return receipt
}

func (c *Controller) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// OnAuthoritativeUpdate replaces the displayed count with count. It has no
// effect after Teardown.
func (c *Controller) OnAuthoritativeUpdate(count int64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = reduce(c.state, action{kind: actionAuthoritative, count: count})
	st, version := c.bumpLocked()
	c.mu.Unlock()

	c.notify(st, version)
}

// Teardown cancels the subscription and waits for it to stop. The prayed flag
// stays persisted. A dispatch already in flight keeps running; use Flush to wait
// for it. Safe to call more than once.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.subWG.Wait()
}

// Flush waits for an in-flight dispatch to finish. It returns ctx.Err() if ctx
// ends first. The backing store must stay open until Flush returns.
func (c *Controller) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.dispatchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) bumpLocked() (State, uint64) {
	c.version++
	return c.state, c.version
}

func (c *Controller) notify(st State, version uint64) {
	if c.deps.OnChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if version <= c.notified {
		return
	}
	c.notified = version
	c.deps.OnChange(c.key, st)
}
