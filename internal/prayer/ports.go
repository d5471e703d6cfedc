package prayer

import (
	"context"
	"sync"
)

// FlagStore is the device-local key-value store holding prayed flags.
type FlagStore interface {
	Get(key string) (bool, error)
	Set(key string, value bool) error
}

// Subscriber opens a live feed of aggregate snapshots for one item. The channel
// may deliver zero or more values and is closed when ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, itemKey string) (<-chan int64, error)
}

// Dispatcher appends one increment record for an item.
type Dispatcher interface {
	Dispatch(ctx context.Context, itemKey string, delta int) error
}

// MemFlags is an in-memory FlagStore.
type MemFlags struct {
	mu     sync.Mutex
	values map[string]bool
}

// NewMemFlags returns an empty MemFlags.
func NewMemFlags() *MemFlags {
	return &MemFlags{values: map[string]bool{}}
}

// Get implements FlagStore.
func (m *MemFlags) Get(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

// Set implements FlagStore.
func (m *MemFlags) Set(key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
