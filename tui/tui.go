// ABOUTME: Terminal watch view using the bubbletea framework
// ABOUTME: Polls mail sources on an interval and shows clients, sources and live band changes
package tui

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/rules"
	"github.com/harperreed/tradedesk/scoring"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewClients ViewMode = iota
	ViewSources
)

const maxActivity = 50

// Model is the main bubbletea model
type Model struct {
	ctx      context.Context
	db       *sql.DB
	ingestor *intake.Ingestor
	queue    *scoring.EventQueue
	rules    *rules.Store
	interval time.Duration
	viewMode ViewMode

	// Clients view state
	clients     []*models.Client
	selectedRow int

	// Sources view state
	syncStates []SyncStateDisplay

	spinner     spinner.Model
	polling     bool
	lastSummary *intake.Summary
	activity    []string

	// UI state
	width  int
	height int
	err    error
	now    func() time.Time
}

// Messages.
type (
	tickMsg     time.Time
	eventsMsg   []scoring.Event
	pollDoneMsg struct {
		summary *intake.Summary
		err     error
	}
)

// NewModel creates a new TUI model. A zero interval disables scheduled polls.
func NewModel(ctx context.Context, db *sql.DB, ingestor *intake.Ingestor, queue *scoring.EventQueue, store *rules.Store, interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	m := Model{
		ctx:      ctx,
		db:       db,
		ingestor: ingestor,
		queue:    queue,
		rules:    store,
		interval: interval,
		viewMode: ViewClients,
		spinner:  sp,
		width:    80,
		height:   24,
		now:      time.Now,
	}
	m.loadClients()
	m.loadSyncStates()
	return m
}

// Run starts the full-screen program and blocks until the user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx)).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForEvents(), m.spinner.Tick}
	if m.interval > 0 {
		cmds = append(cmds, m.tick())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.polling {
			return m, m.tick()
		}
		m.polling = true
		return m, tea.Batch(m.poll(), m.tick())
	case pollDoneMsg:
		m.handlePollDone(msg)
		return m, nil
	case eventsMsg:
		m.handleEvents(msg)
		return m, m.waitForEvents()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var body string
	switch m.viewMode {
	case ViewClients:
		body = m.renderClientsView()
	case ViewSources:
		body = m.renderSyncView()
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), body, m.renderHelp())
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.polling && m.ingestor != nil {
			m.ingestor.Cancel()
		}
		return m, tea.Quit
	case "tab":
		if m.viewMode == ViewClients {
			m.viewMode = ViewSources
		} else {
			m.viewMode = ViewClients
		}
		return m, nil
	case "p":
		if m.polling || m.ingestor == nil {
			return m, nil
		}
		m.polling = true
		m.addActivity("Polling mail sources...")
		return m, m.poll()
	case "c":
		if m.polling && m.ingestor != nil {
			m.ingestor.Cancel()
			m.addActivity("Cancel requested, stopping after the current page")
		}
		return m, nil
	case "r":
		m.loadClients()
		m.loadSyncStates()
		return m, nil
	}

	if m.viewMode == ViewClients {
		return m.handleClientKeys(msg)
	}
	return m, nil
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) poll() tea.Cmd {
	ingestor, ctx := m.ingestor, m.ctx
	return func() tea.Msg {
		summary, err := ingestor.Poll(ctx)
		return pollDoneMsg{summary: summary, err: err}
	}
}

// waitForEvents blocks until the recorder publishes, then drains the queue.
func (m Model) waitForEvents() tea.Cmd {
	queue, ctx := m.queue, m.ctx
	return func() tea.Msg {
		select {
		case <-queue.Notify():
			return eventsMsg(queue.Drain())
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Model) handlePollDone(msg pollDoneMsg) {
	m.polling = false
	m.err = msg.err
	if msg.summary != nil {
		m.lastSummary = msg.summary
		s := msg.summary
		m.addActivity(fmt.Sprintf("✓ Poll read %d, recorded %d, skipped %d irrelevant, %d duplicate, %d unresolved",
			s.Read, s.Recorded, s.SkippedIrrelevant, s.SkippedDuplicate, s.SkippedUnresolved))
	}
	if msg.err != nil {
		m.addActivity(fmt.Sprintf("✗ Poll failed: %v", msg.err))
	}
	m.loadClients()
	m.loadSyncStates()
}

func (m *Model) handleEvents(events eventsMsg) {
	names := make(map[int64]string, len(m.clients))
	for _, c := range m.clients {
		names[c.ID] = c.CompanyName
	}
	for _, ev := range events {
		name, ok := names[ev.ClientID]
		if !ok {
			name = fmt.Sprintf("client #%d", ev.ClientID)
		}
		switch ev.Kind {
		case scoring.KindClassificationChanged:
			c := ev.Change
			m.addActivity(fmt.Sprintf("%s: %s → %s (%d → %d)", name, c.OldBand, c.NewBand, c.OldScore, c.NewScore))
		case scoring.KindRequestResolved:
			m.addActivity(fmt.Sprintf("%s: %s replied", name, ev.Request.RequestType))
		}
	}
	m.loadClients()
}

// addActivity appends a timestamped line to the activity log.
func (m *Model) addActivity(line string) {
	timestamp := m.now().Format("15:04:05")
	m.activity = append(m.activity, fmt.Sprintf("[%s] %s", timestamp, line))
	if len(m.activity) > maxActivity {
		m.activity = m.activity[len(m.activity)-maxActivity:]
	}
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("Export desk")
	tabs := []string{"Clients", "Sources"}
	var rendered []string
	for i, tab := range tabs {
		if ViewMode(i) == m.viewMode {
			rendered = append(rendered, tabActiveStyle.Render(tab))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(tab))
		}
	}
	status := ""
	if m.polling {
		status = m.spinner.View() + " polling"
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinHorizontal(lipgloss.Top, append(rendered, "  "+status)...))
}

func (m Model) renderHelp() string {
	return helpStyle.Render("↑/↓: Select • tab: Switch view • p: Poll now • c: Cancel poll • r: Refresh • q: Quit")
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)
