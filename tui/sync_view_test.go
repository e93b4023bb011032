// ABOUTME: Tests for the watch TUI model
// ABOUTME: Verifies poll handling, event rendering, source status and key navigation
package tui

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/linker"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/rules"
	"github.com/harperreed/tradedesk/scoring"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "tui.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func newTestModel(t *testing.T, database *sql.DB, msgs ...intake.Message) Model {
	t.Helper()
	store := rules.NewStaticStore(rules.Default())
	queue := scoring.NewEventQueue(16, zerolog.Nop())
	recorder := scoring.NewRecorder(database, store, queue, zerolog.Nop())
	pipeline := intake.NewPipeline(recorder, linker.NewResolver(zerolog.Nop()), zerolog.Nop())
	source := intake.SourceFunc(func(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
		return msgs, nil
	})
	ingestor := intake.NewIngestor(database, pipeline, []intake.Feed{{Name: "imap", Max: 50, Source: source}},
		intake.DefaultOptions(), nil, zerolog.Nop())

	m := NewModel(context.Background(), database, ingestor, queue, store, 0)
	m.now = func() time.Time { return time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC) }
	m.loadSyncStates()
	return m
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func inquiry() intake.Message {
	return intake.Message{
		ID:         "AAMkAD-1",
		Subject:    "Dehydrated onion price inquiry",
		Body:       intake.Body{Content: "Please send MOQ and price"},
		From:       intake.Address{Address: "sales@acme-foods.de"},
		ReceivedAt: time.Now().Add(-time.Hour),
	}
}

func TestEmptyClientsView(t *testing.T) {
	m := newTestModel(t, setupTestDB(t))
	output := m.View()
	assert.Contains(t, output, "Export desk")
	assert.Contains(t, output, "No clients yet")
}

func TestPollKeyRunsPollAndRendersClients(t *testing.T) {
	database := setupTestDB(t)
	m := newTestModel(t, database, inquiry())

	updated, cmd := m.Update(keyMsg("p"))
	m = updated.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.polling)

	// A second press while polling does nothing.
	updated, cmd = m.Update(keyMsg("p"))
	m = updated.(Model)
	assert.Nil(t, cmd)

	msg := m.poll()()
	done, ok := msg.(pollDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)

	updated, _ = m.Update(done)
	m = updated.(Model)
	assert.False(t, m.polling)
	require.Len(t, m.clients, 1)
	assert.Equal(t, 1, m.lastSummary.Recorded)

	output := m.View()
	assert.Contains(t, output, "Acme-Foods")
	assert.Contains(t, output, "Potential")
	assert.Contains(t, output, "recorded 1")
}

func TestEventsAreRenderedAsActivity(t *testing.T) {
	database := setupTestDB(t)
	m := newTestModel(t, database)

	client := &models.Client{CompanyName: "Acme-Foods", Email: "sales@acme-foods.de", Classification: "Potential"}
	require.NoError(t, db.InsertClient(context.Background(), database, client))
	m.loadClients()

	events := eventsMsg{
		{
			Kind:     scoring.KindClassificationChanged,
			ClientID: client.ID,
			Change:   &models.ClassificationChange{OldBand: "Potential", NewBand: "Not Serious", OldScore: 40, NewScore: 15},
		},
		{
			Kind:     scoring.KindRequestResolved,
			ClientID: 999,
			Request:  &models.Request{RequestType: models.IntentSample},
		},
	}
	updated, cmd := m.Update(events)
	m = updated.(Model)
	assert.NotNil(t, cmd, "must keep waiting for the next events")

	require.Len(t, m.activity, 2)
	assert.Equal(t, "[09:30:00] Acme-Foods: Potential → Not Serious (40 → 15)", m.activity[0])
	assert.Equal(t, "[09:30:00] client #999: Sample Request replied", m.activity[1])
}

func TestActivityIsBounded(t *testing.T) {
	m := newTestModel(t, setupTestDB(t))
	for i := 0; i < maxActivity+10; i++ {
		m.addActivity("line")
	}
	assert.Len(t, m.activity, maxActivity)
}

func TestPollFailureIsShown(t *testing.T) {
	m := newTestModel(t, setupTestDB(t))
	m.polling = true

	updated, _ := m.Update(pollDoneMsg{err: errs.ProviderAuth("imap", errors.New("LOGIN failed"))})
	m = updated.(Model)
	assert.False(t, m.polling)
	require.NotEmpty(t, m.activity)
	assert.Contains(t, m.activity[len(m.activity)-1], "Poll failed")
	assert.Contains(t, m.View(), "Error:")
}

func TestSourcesView(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.MarkSynced(ctx, database, "imap", time.Date(2026, 6, 1, 7, 30, 0, 0, time.UTC), ""))
	require.NoError(t, db.UpdateSyncStatus(ctx, database, "graph", db.SyncError, "token expired"))

	m := newTestModel(t, database)
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(Model)
	assert.Equal(t, ViewSources, m.viewMode)

	output := m.View()
	assert.Contains(t, output, "imap")
	assert.Contains(t, output, "2 hours ago")
	assert.Contains(t, output, "graph")
	assert.Contains(t, output, "token expired")

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(Model)
	assert.Equal(t, ViewClients, m.viewMode)
}

func TestClientKeyNavigation(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	for _, email := range []string{"a@one.com", "b@two.com"} {
		require.NoError(t, db.InsertClient(ctx, database, &models.Client{CompanyName: email, Email: email, Classification: "Not Serious"}))
	}
	m := newTestModel(t, database)
	require.Len(t, m.clients, 2)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)
	assert.Equal(t, 1, m.selectedRow)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)
	assert.Equal(t, 1, m.selectedRow, "selection stops at the last row")

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = updated.(Model)
	assert.Equal(t, 0, m.selectedRow)
}

func TestQuitCancelsRunningPoll(t *testing.T) {
	m := newTestModel(t, setupTestDB(t))
	m.polling = true
	_, cmd := m.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestFormatTimeSince(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		ago      time.Duration
		expected string
	}{
		{"just now", 30 * time.Second, "just now"},
		{"one minute", time.Minute, "1 minute ago"},
		{"minutes", 5 * time.Minute, "5 minutes ago"},
		{"one hour", time.Hour, "1 hour ago"},
		{"hours", 3 * time.Hour, "3 hours ago"},
		{"one day", 24 * time.Hour, "1 day ago"},
		{"days", 72 * time.Hour, "3 days ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTimeSince(now, now.Add(-tt.ago)))
		})
	}
}

func TestFormatCountsIsSorted(t *testing.T) {
	got := formatCounts(map[string]int{"storage": 1, "provider_auth": 2})
	assert.Equal(t, "provider_auth 2, storage 1", got)
	assert.False(t, strings.HasSuffix(got, ","))
}
