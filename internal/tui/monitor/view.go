package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/riverwalks/rw/internal/output"
	"github.com/riverwalks/rw/internal/queue"
)

var (
	mutedColor   = lipgloss.Color("241")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")
	successColor = lipgloss.Color("42")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	subtleStyle = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	failStyle   = lipgloss.NewStyle().Foreground(errorColor)
	okStyle     = lipgloss.NewStyle().Foreground(successColor)
	warnStyle   = lipgloss.NewStyle().Foreground(warningColor)
)

// maxVisibleOps bounds the queue panel so long queues scroll instead of
// overflowing small terminals.
const maxVisibleOps = 12

func (m Model) renderView() string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Render("rw sync monitor"))
	sb.WriteString("\n\n")

	sb.WriteString(m.renderStatusLine())
	sb.WriteString("\n\n")
	sb.WriteString(m.renderQueuePanel())

	if m.Err != nil {
		sb.WriteString("\n")
		sb.WriteString(failStyle.Render("error: " + m.Err.Error()))
	}

	sb.WriteString("\n")
	if m.ShowHelp {
		sb.WriteString(helpStyle.Render("s sync now  r refresh  j/k scroll  q quit  ? close help"))
	} else {
		sb.WriteString(helpStyle.Render("? help  q quit"))
	}
	return sb.String()
}

func (m Model) renderStatusLine() string {
	var parts []string
	parts = append(parts, output.ConnectivityBadge(m.Status.IsOnline))
	if m.Status.IsSyncing {
		parts = append(parts, m.spinner.View()+warnStyle.Render(" syncing"))
	}
	if m.Status.PendingCount == 0 && m.Status.FailedCount == 0 && !m.Status.IsSyncing {
		parts = append(parts, okStyle.Render("all synced"))
	}
	if !m.Status.LastSyncTime.IsZero() {
		parts = append(parts, subtleStyle.Render("last sync "+output.FormatTimeAgo(m.Status.LastSyncTime)))
	}
	if m.Status.LastError != "" {
		parts = append(parts, failStyle.Render(m.Status.LastError))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderQueuePanel() string {
	title := fmt.Sprintf("queue: %d pending, %d failed", m.Status.PendingCount, m.Status.FailedCount)

	if len(m.Ops) == 0 {
		return panelStyle.Render(title + "\n" + subtleStyle.Render("nothing waiting to sync"))
	}

	start := m.scroll
	if start > len(m.Ops)-1 {
		start = len(m.Ops) - 1
	}
	end := start + maxVisibleOps
	if end > len(m.Ops) {
		end = len(m.Ops)
	}

	var lines []string
	lines = append(lines, title)
	for _, op := range m.Ops[start:end] {
		lines = append(lines, m.renderOpLine(op))
	}
	if end < len(m.Ops) {
		lines = append(lines, subtleStyle.Render(fmt.Sprintf("... %d more", len(m.Ops)-end)))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderOpLine(op queue.Operation) string {
	badge := warnStyle.Render("●")
	switch op.Status {
	case queue.StatusFailed:
		badge = failStyle.Render("✗")
	case queue.StatusInFlight:
		badge = okStyle.Render("▶")
	}
	line := fmt.Sprintf("%s #%d %s %s", badge, op.Seq, op.Kind, op.EntityType)
	if op.LastError != "" {
		line += "  " + failStyle.Render(truncate(op.LastError, 40))
	}
	return line
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
