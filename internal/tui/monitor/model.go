// Package monitor is the live sync dashboard: connectivity state, the
// pending-operation queue and the last drain outcome, refreshing while a
// background sync runs.
package monitor

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/riverwalks/rw/internal/queue"
	"github.com/riverwalks/rw/internal/syncer"
)

// Source is what the dashboard observes. Satisfied by *offline.Layer.
type Source interface {
	SyncStatus() syncer.Status
	ForceSyncAsync()
	ListOps() ([]queue.Operation, error)
}

// Model is the Bubble Tea model for rw sync monitor.
type Model struct {
	source Source

	Width  int
	Height int

	Status syncer.Status
	Ops    []queue.Operation
	Err    error

	spinner      spinner.Model
	scroll       int
	ShowHelp     bool
	LastRefresh  time.Time
	RefreshEvery time.Duration
}

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Status    syncer.Status
	Ops       []queue.Operation
	Err       error
	Timestamp time.Time
}

// NewModel creates a monitor model over the given source.
func NewModel(source Source, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		source:       source,
		spinner:      sp,
		RefreshEvery: refresh,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
		m.spinner.Tick,
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.Status = msg.Status
		m.Ops = msg.Ops
		m.Err = msg.Err
		m.LastRefresh = msg.Timestamp
		if m.scroll > len(m.Ops) {
			m.scroll = len(m.Ops)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "j", "down":
		if m.scroll < len(m.Ops)-1 {
			m.scroll++
		}
		return m, nil

	case "k", "up":
		if m.scroll > 0 {
			m.scroll--
		}
		return m, nil

	case "s":
		m.source.ForceSyncAsync()
		return m, m.fetchData()

	case "r":
		return m, m.fetchData()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshEvery, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) fetchData() tea.Cmd {
	return func() tea.Msg {
		ops, err := m.source.ListOps()
		return RefreshDataMsg{
			Status:    m.source.SyncStatus(),
			Ops:       ops,
			Err:       err,
			Timestamp: time.Now(),
		}
	}
}
