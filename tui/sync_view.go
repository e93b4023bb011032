// ABOUTME: Sources view for the watch TUI
// ABOUTME: Displays each mail source's poll status, cursor and last error, plus the last poll summary
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/tradedesk/db"
)

var (
	syncServiceStyle = lipgloss.NewStyle().
				Bold(true).
				Width(16)

	syncIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncSyncingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	syncErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

// SyncStateDisplay holds a source's poll state for display
type SyncStateDisplay struct {
	Service      string
	Status       string
	LastSyncTime string
	ErrorMessage string
}

func (m Model) renderSyncView() string {
	var s strings.Builder

	if len(m.syncStates) == 0 {
		s.WriteString(mutedStyle.Render("No source has been polled yet. Press 'p' to poll now."))
		s.WriteString("\n")
	} else {
		s.WriteString(headerStyle.Render("Source Status"))
		s.WriteString("\n\n")
		for _, state := range m.syncStates {
			var row strings.Builder
			row.WriteString(syncServiceStyle.Render(state.Service))
			switch state.Status {
			case db.SyncSyncing:
				row.WriteString(syncSyncingStyle.Render("⟳ Polling..."))
			case db.SyncError:
				row.WriteString(syncErrorStyle.Render("✗ Error"))
				if state.ErrorMessage != "" {
					row.WriteString(syncErrorStyle.Render(": " + state.ErrorMessage))
				}
			default:
				row.WriteString(syncIdleStyle.Render("✓ Idle"))
			}
			if state.LastSyncTime != "" {
				row.WriteString(mutedStyle.Render(" • cursor " + state.LastSyncTime))
			}
			s.WriteString(row.String())
			s.WriteString("\n")
		}
	}

	if sum := m.lastSummary; sum != nil {
		s.WriteString("\n")
		s.WriteString(headerStyle.Render("Last Poll"))
		s.WriteString("\n\n")
		fmt.Fprintf(&s, "  %d read, %d kept, %d recorded, %d band changes\n", sum.Read, sum.Kept, sum.Recorded, sum.ClassificationChanges)
		if len(sum.IntentsByTag) > 0 {
			s.WriteString("  intents: " + formatCounts(sum.IntentsByTag) + "\n")
		}
		if len(sum.ErrorsByKind) > 0 {
			s.WriteString(syncErrorStyle.Render("  errors: "+formatCounts(sum.ErrorsByKind)) + "\n")
		}
		if sum.Cancelled {
			s.WriteString(mutedStyle.Render("  cancelled before all sources were read") + "\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(m.renderActivity())
	return s.String()
}

func (m *Model) loadSyncStates() {
	states, err := db.GetAllSyncStates(context.Background(), m.db)
	if err != nil {
		m.syncStates = []SyncStateDisplay{}
		return
	}

	m.syncStates = []SyncStateDisplay{}
	for _, state := range states {
		display := SyncStateDisplay{
			Service: state.Service,
			Status:  state.Status,
		}
		if state.LastSyncTime != nil {
			display.LastSyncTime = formatTimeSince(m.now(), *state.LastSyncTime)
		}
		if state.ErrorMessage != nil {
			display.ErrorMessage = *state.ErrorMessage
		}
		m.syncStates = append(m.syncStates, display)
	}
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(now, t time.Time) string {
	duration := now.Sub(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
