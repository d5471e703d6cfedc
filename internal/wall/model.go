// Package wall provides the Bubble Tea prayer wall interface.
package wall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/verte-zerg/prayerwall/internal/logging"
	"github.com/verte-zerg/prayerwall/internal/model"
	"github.com/verte-zerg/prayerwall/internal/prayer"
)

const (
	updateBuffer = 64
	// DefaultFlushTimeout bounds how long Close waits for in-flight prayers.
	DefaultFlushTimeout = 5 * time.Second
)

// ItemStore lists and creates prayer items.
type ItemStore interface {
	ListItems(ctx context.Context) ([]model.PrayerItem, error)
	CreateItem(ctx context.Context, item model.PrayerItem) (model.PrayerItem, error)
}

// Deps wires the wall to storage and to the prayer controllers' collaborators.
type Deps struct {
	Items      ItemStore
	Flags      prayer.FlagStore
	Subscriber prayer.Subscriber
	Dispatcher prayer.Dispatcher
	Logger     *zap.Logger
	Author     string
	// FlushTimeout bounds Close; zero selects DefaultFlushTimeout.
	FlushTimeout time.Duration
}

type changedMsg struct {
	key string
}

type receiptMsg struct {
	key string
	err error
}

// Model implements the Bubble Tea prayer wall.
type Model struct {
	deps   Deps
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	items       []model.PrayerItem
	controllers map[string]*prayer.Controller
	pending     map[string]bool
	updates     chan tea.Msg

	cursor int
	width  int
	height int

	adding  bool
	input   textinput.Model
	spinner spinner.Model

	errMsg string
	closed bool
}

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	bodyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	authorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	countStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	prayedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	unprayedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// NewModel constructs the wall and loads its items.
func NewModel(deps Deps) *Model {
	if deps.Flags == nil {
		deps.Flags = prayer.NewMemFlags()
	}
	ctx, cancel := context.WithCancel(context.Background())
	input := textinput.New()
	input.Prompt = "New prayer › "
	input.Placeholder = "title | details"
	input.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = countStyle

	m := &Model{
		deps:        deps,
		logger:      logging.OrNop(deps.Logger).Named("wall"),
		ctx:         ctx,
		cancel:      cancel,
		controllers: map[string]*prayer.Controller{},
		pending:     map[string]bool{},
		updates:     make(chan tea.Msg, updateBuffer),
		input:       input,
		spinner:     sp,
	}
	m.reload()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.spinner.Tick)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = maxInt(10, msg.Width-lipgloss.Width(m.input.Prompt)-2)
		return m, nil
	case changedMsg:
		return m, m.waitForUpdate()
	case receiptMsg:
		delete(m.pending, msg.key)
		if msg.err != nil && !isDropped(msg.err) {
			m.errMsg = fmt.Sprintf("prayer not sent: %v", msg.err)
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.Close()
			return m, tea.Quit
		}
		if m.adding {
			return m.updateAdding(msg)
		}
		switch msg.String() {
		case "q":
			m.Close()
			return m, tea.Quit
		case "up", "k":
			m.moveCursor(-1)
		case "down", "j":
			m.moveCursor(1)
		case "g", "home":
			m.cursor = 0
		case "G", "end":
			m.cursor = maxInt(0, len(m.items)-1)
		case " ", "space", "enter":
			return m, m.toggleSelected()
		case "a":
			m.adding = true
			m.input.SetValue("")
			return m, m.input.Focus()
		case "r":
			m.reload()
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.adding = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.adding = false
		m.input.Blur()
		m.addPrayer(m.input.Value())
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Prayer Wall"))
	b.WriteString("\n\n")

	if len(m.items) == 0 {
		b.WriteString(authorStyle.Render("No prayer requests yet. Press a to add one."))
		b.WriteString("\n")
	}
	start, end := m.visibleRange()
	for i := start; i < end; i++ {
		b.WriteString(m.renderItem(i))
		b.WriteString("\n")
	}

	if m.adding {
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderItem(i int) string {
	item := m.items[i]
	st := m.stateFor(item)

	pointer := "  "
	if i == m.cursor {
		pointer = cursorStyle.Render("› ")
	}
	mark := unprayedStyle.Render("○ pray")
	if st.Prayed {
		mark = prayedStyle.Render("● prayed")
	}
	count := countStyle.Render(fmt.Sprintf("%d", st.DisplayedCount))
	if m.pending[item.Key] {
		count += " " + m.spinner.View()
	}

	contentWidth := m.contentWidth()
	lines := []string{
		pointer + titleStyle.Render(truncate(item.Title, contentWidth)),
	}
	for _, line := range wrapText(item.Body, contentWidth) {
		lines = append(lines, "  "+bodyStyle.Render(line))
	}
	meta := []string{count, mark}
	if item.Author != "" {
		meta = append(meta, authorStyle.Render("by "+item.Author))
	}
	lines = append(lines, "  "+strings.Join(meta, "  "))
	return strings.Join(lines, "\n")
}

func (m *Model) renderFooter() string {
	var total int64
	for _, item := range m.items {
		total += m.stateFor(item).DisplayedCount
	}
	segments := []string{
		fmt.Sprintf("%d requests", len(m.items)),
		fmt.Sprintf("%d prayers", total),
		"space pray  a add  r reload  q quit",
	}
	footer := footerStyle.Render(strings.Join(segments, " · "))
	if m.errMsg != "" {
		footer += "\n" + errorStyle.Render(m.errMsg)
	}
	return footer
}

func (m *Model) stateFor(item model.PrayerItem) prayer.State {
	if c, ok := m.controllers[item.Key]; ok {
		return c.State()
	}
	return prayer.State{DisplayedCount: item.Count}
}

func (m *Model) contentWidth() int {
	if m.width <= 0 {
		return 0
	}
	return maxInt(10, m.width-4)
}

func (m *Model) visibleRange() (int, int) {
	if len(m.items) == 0 {
		return 0, 0
	}
	if m.height <= 0 {
		return 0, len(m.items)
	}
	perPage := maxInt(1, (m.height-6)/4)
	start := 0
	if m.cursor >= perPage {
		start = m.cursor - perPage + 1
	}
	end := minInt(len(m.items), start+perPage)
	return start, end
}

func (m *Model) moveCursor(delta int) {
	if len(m.items) == 0 {
		m.cursor = 0
		return
	}
	m.cursor = minInt(len(m.items)-1, maxInt(0, m.cursor+delta))
}

func (m *Model) toggleSelected() tea.Cmd {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return nil
	}
	key := m.items[m.cursor].Key
	c, ok := m.controllers[key]
	if !ok {
		return nil
	}
	receipt := c.Toggle(m.ctx)
	if receipt.Dropped {
		return nil
	}
	m.pending[key] = true
	m.errMsg = ""
	return waitForReceipt(key, receipt)
}

func waitForReceipt(key string, receipt *prayer.Receipt) tea.Cmd {
	return func() tea.Msg {
		<-receipt.Done()
		return receiptMsg{key: key, err: receipt.Err()}
	}
}

func (m *Model) addPrayer(raw string) {
	title, body, _ := strings.Cut(raw, "|")
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	item, err := m.deps.Items.CreateItem(m.ctx, model.PrayerItem{
		Title:  title,
		Body:   strings.TrimSpace(body),
		Author: m.deps.Author,
	})
	if err != nil {
		m.logger.Warn("failed to add prayer", zap.Error(err))
		m.errMsg = fmt.Sprintf("failed to add prayer: %v", err)
		return
	}
	m.logger.Info("prayer added", zap.String("item", item.Key))
	m.items = append([]model.PrayerItem{item}, m.items...)
	m.startController(item)
	m.cursor = 0
}

func (m *Model) reload() {
	if len(m.pending) > 0 {
		m.errMsg = "wait for pending prayers before reloading"
		return
	}
	m.teardownControllers()
	items, err := m.deps.Items.ListItems(m.ctx)
	if err != nil {
		m.logger.Warn("failed to load prayers", zap.Error(err))
		m.errMsg = fmt.Sprintf("failed to load prayers: %v", err)
		return
	}
	m.items = items
	for _, item := range items {
		m.startController(item)
	}
	m.moveCursor(0)
}

func (m *Model) startController(item model.PrayerItem) {
	c := prayer.New(item.Key, item.Count, prayer.Deps{
		Flags:      m.deps.Flags,
		Subscriber: m.deps.Subscriber,
		Dispatcher: m.deps.Dispatcher,
		Logger:     m.deps.Logger,
		OnChange:   m.onChange,
	})
	m.controllers[item.Key] = c
	c.Start(m.ctx)
}

// onChange runs on controller goroutines. A full buffer already holds a
// repaint, so extra signals are dropped.
func (m *Model) onChange(key string, _ prayer.State) {
	select {
	case m.updates <- changedMsg{key: key}:
	default:
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	updates := m.updates
	done := m.ctx.Done()
	return func() tea.Msg {
		select {
		case msg := <-updates:
			return msg
		case <-done:
			return nil
		}
	}
}

func (m *Model) teardownControllers() {
	for key, c := range m.controllers {
		c.Teardown()
		delete(m.controllers, key)
	}
	m.pending = map[string]bool{}
}

// Close tears down every controller and waits, up to the flush timeout, for
// prayers still being dispatched. The backing store must stay open until it returns.
func (m *Model) Close() {
	if m.closed {
		return
	}
	m.closed = true
	controllers := make([]*prayer.Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		controllers = append(controllers, c)
	}
	m.teardownControllers()
	m.cancel()

	timeout := m.deps.FlushTimeout
	if timeout <= 0 {
		timeout = DefaultFlushTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, c := range controllers {
		if err := c.Flush(ctx); err != nil {
			m.logger.Warn("prayer still dispatching at exit", zap.String("item", c.Key()), zap.Error(err))
		}
	}
}

func isDropped(err error) bool {
	return errors.Is(err, prayer.ErrToggleInFlight) || errors.Is(err, prayer.ErrTornDown)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
