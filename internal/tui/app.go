package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"rem/internal/dse"
)

// Item is one agenda row: a timed reminder for today.
type Item struct {
	Time int // minutes past midnight, NoTime for untimed
	Body string
}

// Loader reloads the agenda from the reminder file; the app calls it at
// startup, on file changes and on manual refresh.
type Loader func() ([]Item, error)

// Watcher yields a signal whenever the source file changes.
type Watcher func(ctx context.Context) <-chan struct{}

type refreshMsg struct{}
type tickMsg time.Time
type loadedMsg struct {
	items []Item
	err   error
}

// Model is the monitor's bubbletea model.
type Model struct {
	title   string
	load    Loader
	changes <-chan struct{}
	vp      viewport.Model
	items   []Item
	err     error
	now     func() time.Time
	ready   bool
}

// NewModel builds the monitor for a title (normally the file name).
func NewModel(title string, load Loader, watch Watcher) *Model {
	ctx := context.Background()
	var changes <-chan struct{}
	if watch != nil {
		changes = watch(ctx)
	}
	return &Model{title: title, load: load, changes: changes, now: time.Now}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.reload, m.waitChange, m.tick())
}

func (m *Model) reload() tea.Msg {
	items, err := m.load()
	return loadedMsg{items: items, err: err}
}

func (m *Model) waitChange() tea.Msg {
	if m.changes == nil {
		return nil
	}
	if _, ok := <-m.changes; ok {
		return refreshMsg{}
	}
	return nil
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.reload
		}
	case tea.WindowSizeMsg:
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-3)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - 3
		}
		m.vp.SetContent(m.render())
	case refreshMsg:
		return m, tea.Batch(m.reload, m.waitChange)
	case tickMsg:
		m.vp.SetContent(m.render())
		return m, m.tick()
	case loadedMsg:
		m.items = msg.items
		m.err = msg.err
		sort.SliceStable(m.items, func(i, j int) bool { return m.items[i].Time < m.items[j].Time })
		m.vp.SetContent(m.render())
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m *Model) render() string {
	if m.err != nil {
		return overdueStyle.Render(m.err.Error())
	}
	if len(m.items) == 0 {
		return helpStyle.Render("no timed reminders for today")
	}
	nowMin := m.now().Hour()*60 + m.now().Minute()
	var b strings.Builder
	for _, it := range m.items {
		ts := "     "
		style := bodyStyle
		if it.Time != dse.NoTime {
			ts = dse.TimeString(it.Time)
			switch {
			case it.Time < nowMin:
				style = firedStyle
			default:
				style = bodyStyle
			}
		}
		fmt.Fprintf(&b, "%s  %s\n", timeStyle.Render(ts), style.Render(it.Body))
	}
	return b.String()
}

func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}
	header := titleStyle.Render(m.title)
	footer := helpStyle.Render("r refresh · q quit")
	return header + "\n" + m.vp.View() + "\n" + footer
}
