// Package output provides styled terminal output helpers (success, error,
// warning, sync and queue formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/riverwalks/rw/internal/models"
	"github.com/riverwalks/rw/internal/queue"
	"github.com/riverwalks/rw/internal/syncer"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	queuedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	opStyles     = map[queue.Status]lipgloss.Style{
		queue.StatusPending:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		queue.StatusInFlight: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		queue.StatusFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// Queued prints the offline-capture notice for a write that was queued.
func Queued(format string, args ...interface{}) {
	fmt.Println(queuedStyle.Render("Saved offline: " + fmt.Sprintf(format, args...)))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeOffline       = "offline"
	ErrCodeRejected      = "rejected"
	ErrCodeDatabaseError = "database_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	fmt.Printf(`{"error":{"code":"%s","message":"%s"}}`, code, message)
	fmt.Println()
}

// ConnectivityBadge renders the online/offline indicator.
func ConnectivityBadge(online bool) string {
	if online {
		return onlineStyle.Render("● online")
	}
	return offlineStyle.Render("○ offline")
}

// FormatSyncStatus renders the one-line sync summary shown after mutations
// and by rw sync status.
func FormatSyncStatus(st syncer.Status) string {
	var parts []string
	parts = append(parts, ConnectivityBadge(st.IsOnline))
	if st.IsSyncing {
		parts = append(parts, warningStyle.Render("syncing..."))
	}
	if st.PendingCount > 0 {
		parts = append(parts, queuedStyle.Render(fmt.Sprintf("%d pending", st.PendingCount)))
	}
	if st.FailedCount > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("%d failed", st.FailedCount)))
	}
	if st.PendingCount == 0 && st.FailedCount == 0 && !st.IsSyncing {
		parts = append(parts, subtleStyle.Render("all synced"))
	}
	if !st.LastSyncTime.IsZero() {
		parts = append(parts, subtleStyle.Render("last sync "+FormatTimeAgo(st.LastSyncTime)))
	}
	return strings.Join(parts, "  ")
}

// FormatOpStatus formats a queued operation status with color.
func FormatOpStatus(s queue.Status) string {
	style, ok := opStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatOpLine renders one pending operation for rw queue list.
func FormatOpLine(op *queue.Operation) string {
	var parts []string
	parts = append(parts, titleStyle.Render(fmt.Sprintf("#%d", op.Seq)))
	parts = append(parts, fmt.Sprintf("%s %s", op.Kind, op.EntityType))
	parts = append(parts, FormatOpStatus(op.Status))
	if op.Attempts > 0 {
		parts = append(parts, subtleStyle.Render(fmt.Sprintf("attempts: %d", op.Attempts)))
	}
	if op.LastError != "" {
		parts = append(parts, errorStyle.Render(op.LastError))
	}
	parts = append(parts, subtleStyle.Render(FormatTimeAgo(op.CreatedAt)))
	return strings.Join(parts, "  ")
}

// FormatWalkShort formats a river walk in list format.
func FormatWalkShort(w *models.RiverWalk) string {
	var parts []string
	parts = append(parts, titleStyle.Render(w.ID))
	parts = append(parts, w.Name)
	if w.RiverName != "" {
		parts = append(parts, subtleStyle.Render(w.RiverName))
	}
	if w.WalkDate != "" {
		parts = append(parts, subtleStyle.Render(w.WalkDate))
	}
	if strings.HasPrefix(w.ID, "tmp-") {
		parts = append(parts, queuedStyle.Render("[not synced]"))
	}
	return strings.Join(parts, "  ")
}

// FormatSiteShort formats a site in list format.
func FormatSiteShort(s *models.Site) string {
	var parts []string
	parts = append(parts, titleStyle.Render(fmt.Sprintf("site %d", s.SiteNumber)))
	if s.SiteName != "" {
		parts = append(parts, s.SiteName)
	}
	parts = append(parts, subtleStyle.Render(fmt.Sprintf("width %.2fm", s.RiverWidth)))
	if s.Latitude != nil && s.Longitude != nil {
		parts = append(parts, subtleStyle.Render(fmt.Sprintf("%.5f,%.5f", *s.Latitude, *s.Longitude)))
	}
	if strings.HasPrefix(s.ID, "tmp-") {
		parts = append(parts, queuedStyle.Render("[not synced]"))
	}
	return strings.Join(parts, "  ")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// SectionHeader returns a formatted section header for CLI output
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}
