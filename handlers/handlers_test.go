// ABOUTME: Tests for the desk MCP tools, resources and prompts
// ABOUTME: Drives a real SQLite desk through the handlers the MCP server registers
package handlers

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/linker"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/rules"
	"github.com/harperreed/tradedesk/scoring"
)

type desk struct {
	db       *sql.DB
	store    *rules.Store
	queue    *scoring.EventQueue
	recorder *scoring.Recorder
	pipeline *intake.Pipeline
	ingestor *intake.Ingestor
}

func inquiry() intake.Message {
	return intake.Message{
		ID:         "AAMkAD-1",
		Subject:    "Dehydrated onion price inquiry",
		Body:       intake.Body{Content: "Please send MOQ and price", ContentType: "text"},
		From:       intake.Address{Address: "sales@acme-foods.de", Name: "Acme Foods"},
		ReceivedAt: time.Now().Add(-time.Hour),
	}
}

func setupDesk(t *testing.T, msgs ...intake.Message) *desk {
	t.Helper()
	dir := t.TempDir()
	database, err := db.OpenDatabase(filepath.Join(dir, "desk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	store, err := rules.NewStore(filepath.Join(dir, "rules.json"), zerolog.Nop())
	require.NoError(t, err)
	queue := scoring.NewEventQueue(16, zerolog.Nop())
	recorder := scoring.NewRecorder(database, store, queue, zerolog.Nop())
	pipeline := intake.NewPipeline(recorder, linker.NewResolver(zerolog.Nop()), zerolog.Nop())

	source := intake.SourceFunc(func(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
		return msgs, nil
	})
	feeds := []intake.Feed{{Name: "imap", Folder: "INBOX", Max: 50, Channel: models.ChannelEmail, Source: source}}

	return &desk{
		db:       database,
		store:    store,
		queue:    queue,
		recorder: recorder,
		pipeline: pipeline,
		ingestor: intake.NewIngestor(database, pipeline, feeds, intake.DefaultOptions(), nil, zerolog.Nop()),
	}
}

func (d *desk) ingest(t *testing.T) *intake.Summary {
	t.Helper()
	_, out, err := NewIntakeHandlers(d.ingestor, d.queue).IngestNow(context.Background(), nil, IngestNowInput{})
	require.NoError(t, err)
	require.Empty(t, out.Error)
	return out.Summary
}

func TestIngestNowRecordsAndQueuesEvents(t *testing.T) {
	d := setupDesk(t, inquiry())
	h := NewIntakeHandlers(d.ingestor, d.queue)

	summary := d.ingest(t)
	assert.Equal(t, 1, summary.Read)
	assert.Equal(t, 1, summary.Recorded)
	assert.Equal(t, 1, summary.ClassificationChanges)

	_, events, err := h.DrainEvents(context.Background(), nil, DrainEventsInput{})
	require.NoError(t, err)
	require.Equal(t, 1, events.Count)
	assert.Equal(t, scoring.KindClassificationChanged, events.Events[0].Kind)
	assert.Equal(t, "Potential", events.Events[0].Change.NewBand)

	_, events, err = h.DrainEvents(context.Background(), nil, DrainEventsInput{})
	require.NoError(t, err)
	assert.Zero(t, events.Count)
	assert.NotNil(t, events.Events)
}

func TestListClientsIncludesBandAndTrend(t *testing.T) {
	d := setupDesk(t, inquiry())
	d.ingest(t)

	h := NewClientHandlers(d.db, d.recorder, d.pipeline)
	_, out, err := h.ListClients(context.Background(), nil, ListClientsInput{})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)

	view := out.Clients[0]
	assert.Equal(t, "sales@acme-foods.de", view.Client.Email)
	assert.Equal(t, 25, view.Client.Score)
	assert.Equal(t, "#FFC107", view.Color)
	require.NotNil(t, view.Trend)
	assert.Equal(t, scoring.TrendRising, view.Trend.Direction)
	assert.Equal(t, 25, view.Trend.Delta)

	_, out, err = h.ListClients(context.Background(), nil, ListClientsInput{Classification: "Serious Buyer"})
	require.NoError(t, err)
	assert.Zero(t, out.Count)
}

func TestMarkRequestReplied(t *testing.T) {
	d := setupDesk(t, inquiry())
	d.ingest(t)
	d.queue.Drain()

	h := NewRequestHandlers(d.db, d.recorder)
	_, pending, err := h.ListRequests(context.Background(), nil, ListRequestsInput{})
	require.NoError(t, err)
	require.Equal(t, 1, pending.Count)
	assert.Equal(t, models.IntentPrice, pending.Requests[0].RequestType)

	_, out, err := h.MarkRequestReplied(context.Background(), nil, MarkRequestRepliedInput{RequestID: pending.Requests[0].ID})
	require.NoError(t, err)
	assert.Equal(t, models.ReplyReplied, out.Request.ReplyStatus)
	assert.Equal(t, models.RequestClosed, out.Request.Status)

	events := d.queue.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, scoring.KindRequestResolved, events[0].Kind)

	_, pending, err = h.ListRequests(context.Background(), nil, ListRequestsInput{})
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	_, _, err = h.MarkRequestReplied(context.Background(), nil, MarkRequestRepliedInput{RequestID: out.Request.ID})
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	_, _, err = h.MarkRequestReplied(context.Background(), nil, MarkRequestRepliedInput{})
	assert.Error(t, err)

	_, _, err = h.ListRequests(context.Background(), nil, ListRequestsInput{ReplyStatus: "ignored"})
	assert.Error(t, err)
}

func TestListClassificationChanges(t *testing.T) {
	d := setupDesk(t, inquiry())
	d.ingest(t)

	h := NewClientHandlers(d.db, d.recorder, d.pipeline)
	_, out, err := h.ListClassificationChanges(context.Background(), nil, ListClassificationChangesInput{Since: "1h"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "Not Serious", out.Changes[0].OldBand)
	assert.Equal(t, "Potential", out.Changes[0].NewBand)

	h.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, out, err = h.ListClassificationChanges(context.Background(), nil, ListClassificationChangesInput{Since: "1h"})
	require.NoError(t, err)
	assert.Zero(t, out.Count)

	_, _, err = h.ListClassificationChanges(context.Background(), nil, ListClassificationChangesInput{Since: "last week"})
	assert.Error(t, err)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := ParseSince("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = ParseSince("72h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-72*time.Hour), got)

	got, err = ParseSince("2026-05-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseSince("-5h", now)
	assert.Error(t, err)
}

func TestLogInteractionComputesDelta(t *testing.T) {
	d := setupDesk(t, inquiry())
	d.ingest(t)
	clients, err := db.ListClients(context.Background(), d.db, db.ClientFilter{})
	require.NoError(t, err)
	require.Len(t, clients, 1)

	h := NewClientHandlers(d.db, d.recorder, d.pipeline)
	_, out, err := h.LogInteraction(context.Background(), nil, LogInteractionInput{
		ClientID:    clients[0].ID,
		MessageType: models.MessageNotInterested,
		Channel:     models.ChannelPhone,
		Body:        "Not interested at the moment",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChannelPhone, out.Interaction.Channel)
	assert.Less(t, out.Client.Score, 25)
	require.NotNil(t, out.Change)
	assert.Equal(t, "Not Serious", out.Change.NewBand)

	_, _, err = h.LogInteraction(context.Background(), nil, LogInteractionInput{ClientID: clients[0].ID})
	assert.Error(t, err)

	_, _, err = h.LogInteraction(context.Background(), nil, LogInteractionInput{ClientID: 999, MessageType: models.MessageReply})
	assert.ErrorIs(t, err, errs.ErrUnresolved)
}

func TestSweeps(t *testing.T) {
	d := setupDesk(t)
	h := NewClientHandlers(d.db, d.recorder, d.pipeline)

	_, _, err := h.FlagIgnored(context.Background(), nil, FlagIgnoredInput{Days: 0})
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	_, out, err := h.Reclassify(context.Background(), nil, ReclassifyInput{})
	require.NoError(t, err)
	assert.Zero(t, out.Result.Relabeled)
}

func TestDraftReply(t *testing.T) {
	d := setupDesk(t, inquiry())
	d.ingest(t)
	clients, err := db.ListClients(context.Background(), d.db, db.ClientFilter{})
	require.NoError(t, err)

	h := NewDraftHandlers(d.db, "Export desk")
	_, out, err := h.DraftReply(context.Background(), nil, DraftReplyInput{ClientID: clients[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "sales@acme-foods.de", out.Draft.To)
	assert.Equal(t, "Re: Dehydrated onion price inquiry", out.Draft.Subject)
	assert.Equal(t, "AAMkAD-1", out.Draft.InReplyToID)
	assert.Contains(t, out.Draft.Body, "Export desk")

	_, _, err = h.DraftReply(context.Background(), nil, DraftReplyInput{ClientID: 999})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestReloadRules(t *testing.T) {
	d := setupDesk(t)
	h := NewRuleHandlers(d.store)

	rb := rules.Default().Clone()
	rb.ClassificationThresholds[1].MinScore = 30
	require.NoError(t, rules.Save(d.store.Path(), rb))

	_, out, err := h.ReloadRules(context.Background(), nil, ReloadRulesInput{})
	require.NoError(t, err)
	assert.Equal(t, 30, out.Thresholds[1].MinScore)
	assert.Equal(t, d.store.Path(), out.Path)

	bad := []byte(`{"classification_thresholds": [{"label": "A", "min_score": 0}, {"label": "B", "min_score": 0}]}`)
	require.NoError(t, os.WriteFile(d.store.Path(), bad, 0644))

	_, _, err = h.ReloadRules(context.Background(), nil, ReloadRulesInput{})
	assert.ErrorIs(t, err, errs.ErrConfigInvalid)
	assert.Equal(t, 30, d.store.Current().ClassificationThresholds[1].MinScore)
}

func TestReadResources(t *testing.T) {
	d := setupDesk(t, inquiry())
	d.ingest(t)
	h := NewResourceHandlers(d.db, d.store)
	ctx := context.Background()

	read := func(uri string) (*mcp.ReadResourceResult, error) {
		return h.ReadResource(ctx, &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}})
	}

	res, err := read(ClientsURI)
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)
	assert.Contains(t, res.Contents[0].Text, "sales@acme-foods.de")

	clients, err := db.ListClients(ctx, d.db, db.ClientFilter{})
	require.NoError(t, err)
	res, err = read(ClientsURI + "/" + itoa(clients[0].ID))
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, "AAMkAD-1")

	res, err = read(PendingRequestsURI)
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, models.IntentPrice)

	res, err = read(RulesURI)
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, "classification_thresholds")

	_, err = read(ClientsURI + "/999")
	assert.Error(t, err)
	_, err = read("crm://contacts")
	assert.Error(t, err)
}

func TestPrompts(t *testing.T) {
	d := setupDesk(t, inquiry())
	d.ingest(t)
	h := NewPromptHandlers(d.db)
	ctx := context.Background()

	clients, err := db.ListClients(ctx, d.db, db.ClientFilter{})
	require.NoError(t, err)

	res, err := h.GetPrompt(ctx, &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{
		Name:      PromptClientSummary,
		Arguments: map[string]string{"client_id": itoa(clients[0].ID)},
	}})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	text := res.Messages[0].Content.(*mcp.TextContent).Text
	assert.Contains(t, text, "Company: Acme-Foods")
	assert.Contains(t, text, "Score: 25 (Potential)")
	assert.Contains(t, text, models.IntentPrice)

	res, err = h.GetPrompt(ctx, &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: PromptFollowUpPlan}})
	require.NoError(t, err)
	assert.Contains(t, res.Messages[0].Content.(*mcp.TextContent).Text, "sales@acme-foods.de")

	_, err = h.GetPrompt(ctx, &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: PromptClientSummary}})
	assert.Error(t, err)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
