package subscribe

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/verte-zerg/prayerwall/internal/model"
	"github.com/verte-zerg/prayerwall/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeReader struct {
	mu         sync.Mutex
	count      int64
	aggregated bool
	err        error
}

func (f *fakeReader) set(count int64, aggregated bool, err error) {
	f.mu.Lock()
	f.count, f.aggregated, f.err = count, aggregated, err
	f.mu.Unlock()
}

func (f *fakeReader) AggregateCount(context.Context, string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, f.aggregated, f.err
}

func receive(t *testing.T, ch <-chan int64) int64 {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
		return 0
	}
}

func assertQuiet(t *testing.T, ch <-chan int64, wait time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected snapshot %d", v)
	case <-time.After(wait):
	}
}

func TestSubscribeDeliversOnlyChanges(t *testing.T) {
	reader := &fakeReader{}
	w := NewWatcher(reader, "", 2*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := w.Subscribe(ctx, "k")
	require.NoError(t, err)

	assertQuiet(t, ch, 20*time.Millisecond)

	reader.set(3, true, nil)
	assert.Equal(t, int64(3), receive(t, ch))
	assertQuiet(t, ch, 20*time.Millisecond)

	reader.set(0, false, errors.New("permission denied"))
	assertQuiet(t, ch, 20*time.Millisecond)

	reader.set(5, true, nil)
	assert.Equal(t, int64(5), receive(t, ch))

	cancel()
	for range ch {
	}
}

func TestWakeAllNudgesSubscribers(t *testing.T) {
	w := NewWatcher(&fakeReader{}, "", time.Hour, nil)
	id, wake := w.register()
	w.wakeAll()
	w.wakeAll()

	select {
	case <-wake:
	default:
		t.Fatalf("expected wake signal")
	}
	select {
	case <-wake:
		t.Fatalf("wake signals should coalesce")
	default:
	}

	w.unregister(id)
	assert.Empty(t, w.wakers)
}

func TestSubscribeFollowsStoreFolds(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "prayerwall.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	item, err := st.CreateItem(ctx, model.PrayerItem{Title: "rain"})
	require.NoError(t, err)

	w := NewWatcher(st, dbPath, 50*time.Millisecond, nil)
	w.Start(ctx)

	ch, err := w.Subscribe(ctx, item.Key)
	require.NoError(t, err)

	counter := store.NewCounter(st, 2)
	require.NoError(t, counter.Dispatch(ctx, item.Key, 1))
	require.NoError(t, counter.Dispatch(ctx, item.Key, 1))
	_, err = st.FoldIncrements(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), receive(t, ch))

	require.NoError(t, counter.Dispatch(ctx, item.Key, -1))
	_, err = st.FoldIncrements(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), receive(t, ch))

	cancel()
	for range ch {
	}
	w.Stop()
}
