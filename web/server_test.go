// ABOUTME: Tests for the status server routes
// ABOUTME: Exercises the chi router against a real SQLite desk with httptest
package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/linker"
	"github.com/harperreed/tradedesk/metrics"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/rules"
	"github.com/harperreed/tradedesk/scoring"
)

func setupServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	database, err := db.OpenDatabase(filepath.Join(dir, "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	store, err := rules.NewStore(filepath.Join(dir, "rules.json"), zerolog.Nop())
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m := metrics.NewIngestMetrics(reg)
	queue := scoring.NewEventQueue(16, zerolog.Nop())
	recorder := scoring.NewRecorder(database, store, queue, zerolog.Nop())
	pipeline := intake.NewPipeline(recorder, linker.NewResolver(zerolog.Nop()), zerolog.Nop())

	msg := intake.Message{
		ID:         "AAMkAD-1",
		Subject:    "Dehydrated onion price inquiry",
		Body:       intake.Body{Content: "Please send MOQ and price", ContentType: "text"},
		From:       intake.Address{Address: "sales@acme-foods.de"},
		ReceivedAt: time.Now().Add(-time.Hour),
	}
	source := intake.SourceFunc(func(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
		return []intake.Message{msg}, nil
	})
	ingestor := intake.NewIngestor(database, pipeline,
		[]intake.Feed{{Name: "imap", Max: 50, Source: source}}, intake.DefaultOptions(), m, zerolog.Nop())

	srv, err := NewServer(database, recorder, queue, ingestor, reg, Options{}, zerolog.Nop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func do(t *testing.T, method, url string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHealthz(t *testing.T) {
	_, ts := setupServer(t)

	status, body := do(t, http.MethodGet, ts.URL+"/healthz")
	require.Equal(t, http.StatusOK, status)

	var health healthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Polling)
	assert.Zero(t, health.Queued)
}

func TestIngestThenReadEventsAndChanges(t *testing.T) {
	_, ts := setupServer(t)

	status, body := do(t, http.MethodPost, ts.URL+"/api/ingest")
	require.Equal(t, http.StatusOK, status)
	var summary intake.Summary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 1, summary.Recorded)

	status, body = do(t, http.MethodGet, ts.URL+"/api/events")
	require.Equal(t, http.StatusOK, status)
	var events []scoring.Event
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 1)
	assert.Equal(t, scoring.KindClassificationChanged, events[0].Kind)

	status, body = do(t, http.MethodGet, ts.URL+"/api/events")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "[]", string(bytes.TrimSpace(body)))

	status, body = do(t, http.MethodGet, ts.URL+"/api/classification-changes?since=24h")
	require.Equal(t, http.StatusOK, status)
	var changes []models.ClassificationChange
	require.NoError(t, json.Unmarshal(body, &changes))
	require.Len(t, changes, 1)
	assert.Equal(t, "Potential", changes[0].NewBand)

	status, _ = do(t, http.MethodGet, ts.URL+"/api/classification-changes?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, http.MethodGet, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "tradedesk_intake_poll_duration_seconds")
	assert.Contains(t, string(body), `tradedesk_intake_messages_total{outcome="recorded",source="imap"} 1`)
}

func TestMarkRequestRepliedRoute(t *testing.T) {
	srv, ts := setupServer(t)
	status, _ := do(t, http.MethodPost, ts.URL+"/api/ingest")
	require.Equal(t, http.StatusOK, status)

	pending, err := db.ListRequests(context.Background(), srv.db, db.RequestFilter{ReplyStatus: models.ReplyPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	status, body := do(t, http.MethodPost, ts.URL+"/api/requests/"+pending[0].ID+"/replied")
	require.Equal(t, http.StatusOK, status)
	var req models.Request
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, models.ReplyReplied, req.ReplyStatus)

	status, body = do(t, http.MethodPost, ts.URL+"/api/requests/"+pending[0].ID+"/replied")
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), `"kind"`)

	status, _ = do(t, http.MethodPost, ts.URL+"/api/requests/missing/replied")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDashboardRendersClients(t *testing.T) {
	_, ts := setupServer(t)
	status, _ := do(t, http.MethodPost, ts.URL+"/api/ingest")
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, http.MethodGet, ts.URL+"/")
	require.Equal(t, http.StatusOK, status)
	page := string(body)
	assert.Contains(t, page, "Acme-Foods")
	assert.Contains(t, page, "#FFC107")
	assert.Contains(t, page, models.IntentPrice)
	assert.Contains(t, page, "imap")
}

func TestReloadRulesRoute(t *testing.T) {
	_, ts := setupServer(t)
	status, body := do(t, http.MethodPost, ts.URL+"/api/rules/reload")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Serious Buyer")
}
