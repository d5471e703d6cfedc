package wall

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/prayerwall/internal/model"
	"github.com/verte-zerg/prayerwall/internal/prayer"
)

type memItems struct {
	mu    sync.Mutex
	items []model.PrayerItem
	next  int
}

func (s *memItems) ListItems(context.Context) ([]model.PrayerItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PrayerItem(nil), s.items...), nil
}

func (s *memItems) CreateItem(_ context.Context, item model.PrayerItem) (model.PrayerItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	item.Key = "new-" + string(rune('a'+s.next-1))
	item.CreatedAt = time.Now()
	s.items = append([]model.PrayerItem{item}, s.items...)
	return item, nil
}

type countingDispatcher struct {
	mu     sync.Mutex
	deltas map[string][]int
	err    error
	gate   chan struct{}
}

func (d *countingDispatcher) Dispatch(_ context.Context, key string, delta int) error {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deltas == nil {
		d.deltas = map[string][]int{}
	}
	d.deltas[key] = append(d.deltas[key], delta)
	return d.err
}

func (d *countingDispatcher) get(key string) []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.deltas[key]...)
}

func newTestModel(t *testing.T, disp prayer.Dispatcher) (*Model, *memItems, *prayer.MemFlags) {
	t.Helper()
	items := &memItems{items: []model.PrayerItem{
		{Key: "one", Title: "Healing for Anna", Body: "surgery on Friday", Author: "Ruth", Count: 12},
		{Key: "two", Title: "New job for Sam", Count: 3},
	}}
	flags := prayer.NewMemFlags()
	m := NewModel(Deps{Items: items, Flags: flags, Dispatcher: disp, Author: "Naomi"})
	t.Cleanup(m.Close)
	return m, items, flags
}

func press(m *Model, key string) tea.Cmd {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

func TestViewListsItemsWithCounts(t *testing.T) {
	m, _, _ := newTestModel(t, &countingDispatcher{})
	out := m.View()
	for _, want := range []string{"Prayer Wall", "Healing for Anna", "surgery on Friday", "12", "Ruth", "New job for Sam", "2 requests", "15 prayers"} {
		assert.True(t, strings.Contains(out, want), "missing %q in view:\n%s", want, out)
	}
}

func TestSpaceTogglesSelectedItem(t *testing.T) {
	disp := &countingDispatcher{}
	m, _, flags := newTestModel(t, disp)

	cmd := press(m, " ")
	require.NotNil(t, cmd)
	assert.True(t, m.pending["one"])
	assert.Equal(t, prayer.State{Prayed: true, DisplayedCount: 13}, m.controllers["one"].State())

	msg := cmd()
	_, _ = m.Update(msg)
	assert.False(t, m.pending["one"])
	assert.Empty(t, m.errMsg)
	assert.Equal(t, []int{1}, disp.get("one"))

	prayed, err := flags.Get(model.FlagKey("one"))
	require.NoError(t, err)
	assert.True(t, prayed)
	assert.Contains(t, m.View(), "prayed")
}

func TestCursorMovesAndToggleTargetsSelection(t *testing.T) {
	disp := &countingDispatcher{}
	m, _, _ := newTestModel(t, disp)

	press(m, "j")
	press(m, "j")
	assert.Equal(t, 1, m.cursor)
	cmd := press(m, "enter")
	require.NotNil(t, cmd)
	cmd()

	assert.Equal(t, []int{1}, disp.get("two"))
	assert.Empty(t, disp.get("one"))

	press(m, "k")
	assert.Equal(t, 0, m.cursor)
}

func TestDispatchFailureShowsError(t *testing.T) {
	disp := &countingDispatcher{err: errors.New("offline")}
	m, _, _ := newTestModel(t, disp)

	cmd := press(m, " ")
	require.NotNil(t, cmd)
	_, _ = m.Update(cmd())

	assert.Contains(t, m.errMsg, "offline")
	assert.True(t, m.controllers["one"].State().Prayed)
}

func TestAddPrayerFromInput(t *testing.T) {
	m, items, _ := newTestModel(t, &countingDispatcher{})

	press(m, "a")
	require.True(t, m.adding)
	press(m, "Rain for the farms | drought in the valley")
	press(m, "enter")

	assert.False(t, m.adding)
	require.Len(t, m.items, 3)
	assert.Equal(t, "Rain for the farms", m.items[0].Title)
	assert.Equal(t, "drought in the valley", m.items[0].Body)
	assert.Equal(t, "Naomi", m.items[0].Author)
	assert.Contains(t, m.controllers, m.items[0].Key)

	stored, err := items.ListItems(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestAddPrayerCancelled(t *testing.T) {
	m, _, _ := newTestModel(t, &countingDispatcher{})
	press(m, "a")
	press(m, "x")
	press(m, "esc")
	assert.False(t, m.adding)
	assert.Len(t, m.items, 2)
}

func TestQuitTearsDownControllers(t *testing.T) {
	m, _, _ := newTestModel(t, &countingDispatcher{})
	c := m.controllers["one"]

	cmd := press(m, "q")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	assert.Empty(t, m.controllers)
	assert.True(t, c.Toggle(context.Background()).Dropped)
}

func TestChangeSignalRepaints(t *testing.T) {
	m, _, _ := newTestModel(t, &countingDispatcher{})
	m.controllers["two"].OnAuthoritativeUpdate(40)

	msg := m.waitForUpdate()()
	_, cmd := m.Update(msg)
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "40")
}

func TestQuitWaitsForInFlightPrayer(t *testing.T) {
	disp := &countingDispatcher{gate: make(chan struct{})}
	m, _, _ := newTestModel(t, disp)

	require.NotNil(t, press(m, " "))
	assert.Empty(t, disp.get("one"))

	time.AfterFunc(20*time.Millisecond, func() { close(disp.gate) })
	cmd := press(m, "q")
	require.NotNil(t, cmd)

	assert.Equal(t, []int{1}, disp.get("one"))
}

func TestQuitGivesUpAfterFlushTimeout(t *testing.T) {
	disp := &countingDispatcher{gate: make(chan struct{})}
	items := &memItems{items: []model.PrayerItem{{Key: "one", Title: "Peace"}}}
	m := NewModel(Deps{Items: items, Dispatcher: disp, FlushTimeout: 10 * time.Millisecond})

	require.NotNil(t, press(m, " "))
	start := time.Now()
	m.Close()
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, disp.get("one"))

	close(disp.gate)
}

func TestReloadWaitsForPendingPrayers(t *testing.T) {
	disp := &countingDispatcher{gate: make(chan struct{})}
	m, items, _ := newTestModel(t, disp)
	t.Cleanup(func() { close(disp.gate) })

	cmd := press(m, " ")
	require.NotNil(t, cmd)
	before := m.controllers["one"]

	_, err := items.CreateItem(context.Background(), model.PrayerItem{Title: "Late request"})
	require.NoError(t, err)
	press(m, "r")

	assert.Same(t, before, m.controllers["one"])
	assert.Len(t, m.items, 2)
	assert.Contains(t, m.errMsg, "pending")
	assert.True(t, press(m, " ") == nil, "second toggle must wait for the first")
}
