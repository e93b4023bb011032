// ABOUTME: Clients view for the watch TUI
// ABOUTME: Score-ordered client list with band icons in their configured colours and recent activity
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/tradedesk/db"
)

const clientListLimit = 200

var (
	rowSelectedStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("255")).
				Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

func (m Model) renderClientsView() string {
	var s strings.Builder

	if m.err != nil {
		s.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		s.WriteString("\n\n")
	}

	if len(m.clients) == 0 {
		s.WriteString(mutedStyle.Render("No clients yet. Press 'p' to poll the mail sources."))
		s.WriteString("\n")
	} else {
		s.WriteString(headerStyle.Render(fmt.Sprintf("%-2s %-28s %-32s %6s  %-16s %s", "", "Company", "Email", "Score", "Band", "Status")))
		s.WriteString("\n")

		start, end := m.visibleRows()
		rb := m.rules.Current()
		for i := start; i < end; i++ {
			c := m.clients[i]
			band := rb.Classify(c.Score)
			icon := lipgloss.NewStyle().Foreground(lipgloss.Color(band.Color)).Render(band.Icon)
			row := fmt.Sprintf("%-28s %-32s %6d  %-16s %s",
				truncate(c.CompanyName, 28), truncate(c.Email, 32), c.Score, c.Classification, c.Status)
			if i == m.selectedRow {
				row = rowSelectedStyle.Render(row)
			}
			s.WriteString(icon + "  " + row + "\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(m.renderActivity())
	return s.String()
}

// visibleRows keeps the selection on screen when the list is taller than
// the terminal.
func (m Model) visibleRows() (int, int) {
	height := m.height - 14
	if height < 5 {
		height = 5
	}
	start := 0
	if m.selectedRow >= height {
		start = m.selectedRow - height + 1
	}
	end := start + height
	if end > len(m.clients) {
		end = len(m.clients)
	}
	return start, end
}

func (m Model) renderActivity() string {
	if len(m.activity) == 0 {
		return ""
	}
	var s strings.Builder
	s.WriteString(headerStyle.Render("Recent Activity"))
	s.WriteString("\n")
	start := 0
	if len(m.activity) > 5 {
		start = len(m.activity) - 5
	}
	for _, line := range m.activity[start:] {
		s.WriteString(mutedStyle.Render("  " + line))
		s.WriteString("\n")
	}
	return s.String()
}

func (m Model) handleClientKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.clients)-1 {
			m.selectedRow++
		}
	}
	return m, nil
}

func (m *Model) loadClients() {
	clients, err := db.ListClients(context.Background(), m.db, db.ClientFilter{Limit: clientListLimit})
	if err != nil {
		m.err = err
		return
	}
	m.clients = clients
	if m.selectedRow >= len(m.clients) {
		m.selectedRow = len(m.clients) - 1
	}
	if m.selectedRow < 0 {
		m.selectedRow = 0
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
