// ABOUTME: MCP tool handlers for clients, their band history and manual interactions
// ABOUTME: Lists clients with trend, reads the classification log and runs the sweeps
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/scoring"
)

type ClientHandlers struct {
	db       *sql.DB
	recorder *scoring.Recorder
	pipeline *intake.Pipeline
	now      func() time.Time
}

func NewClientHandlers(database *sql.DB, recorder *scoring.Recorder, pipeline *intake.Pipeline) *ClientHandlers {
	return &ClientHandlers{db: database, recorder: recorder, pipeline: pipeline, now: time.Now}
}

type ListClientsInput struct {
	Classification string `json:"classification,omitempty" jsonschema:"Only clients in this band (e.g. Potential)"`
	Status         string `json:"status,omitempty" jsonschema:"Only clients with this status (e.g. Requested Price)"`
	FocusOnly      bool   `json:"focus_only,omitempty" jsonschema:"Only clients marked as focus"`
	Limit          int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default 50)"`
}

type ClientView struct {
	Client *models.Client `json:"client"`
	Color  string         `json:"color,omitempty"`
	Icon   string         `json:"icon,omitempty"`
	Trend  *scoring.Trend `json:"trend,omitempty"`
}

type ListClientsOutput struct {
	Clients []ClientView `json:"clients"`
	Count   int          `json:"count"`
}

// ListClients returns clients by score, with band styling and, when the rule
// book enables it, the trend over the recent interactions.
func (h *ClientHandlers) ListClients(ctx context.Context, _ *mcp.CallToolRequest, input ListClientsInput) (*mcp.CallToolResult, ListClientsOutput, error) {
	if input.Limit == 0 {
		input.Limit = 50
	}
	clients, err := db.ListClients(ctx, h.db, db.ClientFilter{
		Classification: input.Classification,
		Status:         input.Status,
		FocusOnly:      input.FocusOnly,
		Limit:          input.Limit,
	})
	if err != nil {
		return nil, ListClientsOutput{}, err
	}

	views, err := ClientViews(ctx, h.db, h.recorder, clients)
	if err != nil {
		return nil, ListClientsOutput{}, err
	}
	return nil, ListClientsOutput{Clients: views, Count: len(views)}, nil
}

// ClientViews decorates clients with the current band styling and trend.
func ClientViews(ctx context.Context, q db.Querier, recorder *scoring.Recorder, clients []*models.Client) ([]ClientView, error) {
	rb := recorder.Rules().Current()
	views := make([]ClientView, 0, len(clients))
	for _, c := range clients {
		band := rb.Classify(c.Score)
		view := ClientView{Client: c, Color: band.Color, Icon: band.Icon}
		if rb.TrendAnalysisEnabled {
			trend, err := scoring.ClientTrend(ctx, q, c.ID, rb.TrendWindow)
			if err != nil {
				return nil, err
			}
			view.Trend = &trend
		}
		views = append(views, view)
	}
	return views, nil
}

type ListClassificationChangesInput struct {
	Since string `json:"since,omitempty" jsonschema:"RFC3339 time or a lookback such as 72h (default: everything)"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default 100)"`
}

type ListClassificationChangesOutput struct {
	Changes []*models.ClassificationChange `json:"changes"`
	Count   int                            `json:"count"`
}

func (h *ClientHandlers) ListClassificationChanges(ctx context.Context, _ *mcp.CallToolRequest, input ListClassificationChangesInput) (*mcp.CallToolResult, ListClassificationChangesOutput, error) {
	since, err := ParseSince(input.Since, h.now())
	if err != nil {
		return nil, ListClassificationChangesOutput{}, err
	}
	if input.Limit == 0 {
		input.Limit = 100
	}

	changes, err := db.ListClassificationChanges(ctx, h.db, since, input.Limit)
	if err != nil {
		return nil, ListClassificationChangesOutput{}, err
	}
	if changes == nil {
		changes = []*models.ClassificationChange{}
	}
	return nil, ListClassificationChangesOutput{Changes: changes, Count: len(changes)}, nil
}

// ParseSince accepts an RFC3339 timestamp or a duration counted back from
// now. An empty string means the beginning of time.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q: want RFC3339 or a positive duration", s)
	}
	return now.Add(-d), nil
}

type LogInteractionInput struct {
	ClientID    int64  `json:"client_id" jsonschema:"Client the interaction belongs to"`
	MessageType string `json:"message_type" jsonschema:"reply, price_request, samples_request, followup, meeting_request, order_placed, not_interested, ..."`
	Channel     string `json:"channel,omitempty" jsonschema:"Email, Outlook, WhatsApp, LinkedIn, Telegram, Phone, SMS or Other (default Email)"`
	Subject     string `json:"subject,omitempty" jsonschema:"Subject line, if any"`
	Body        string `json:"body,omitempty" jsonschema:"What the client said"`
}

type LogInteractionOutput struct {
	Change      *models.ClassificationChange `json:"change,omitempty"`
	Client      *models.Client               `json:"client"`
	Interaction *models.Interaction          `json:"interaction"`
	Request     *models.Request              `json:"request,omitempty"`
}

// LogInteraction records an operator-entered interaction. The score delta is
// always computed from the text and the rule book.
func (h *ClientHandlers) LogInteraction(ctx context.Context, _ *mcp.CallToolRequest, input LogInteractionInput) (*mcp.CallToolResult, LogInteractionOutput, error) {
	if input.ClientID == 0 {
		return nil, LogInteractionOutput{}, fmt.Errorf("client_id is required")
	}
	if strings.TrimSpace(input.MessageType) == "" {
		return nil, LogInteractionOutput{}, fmt.Errorf("message_type is required")
	}

	out, err := h.pipeline.RecordManual(ctx, scoring.Input{
		ClientID:    input.ClientID,
		MessageType: input.MessageType,
		Channel:     input.Channel,
		Subject:     input.Subject,
		Body:        input.Body,
		Date:        h.now(),
	})
	if err != nil {
		return nil, LogInteractionOutput{}, err
	}
	return nil, LogInteractionOutput{
		Change:      out.Change,
		Client:      out.Client,
		Interaction: out.Interaction,
		Request:     out.Request,
	}, nil
}

type FlagIgnoredInput struct {
	Days int `json:"days" jsonschema:"Flag clients with no interaction for this many days"`
}

type SweepOutput struct {
	Result scoring.SweepResult `json:"result"`
}

func (h *ClientHandlers) FlagIgnored(ctx context.Context, _ *mcp.CallToolRequest, input FlagIgnoredInput) (*mcp.CallToolResult, SweepOutput, error) {
	res, err := h.recorder.FlagIgnored(ctx, input.Days)
	if err != nil {
		return nil, SweepOutput{}, err
	}
	return nil, SweepOutput{Result: res}, nil
}

type ReclassifyInput struct{}

// Reclassify relabels clients whose band no longer matches the thresholds.
func (h *ClientHandlers) Reclassify(ctx context.Context, _ *mcp.CallToolRequest, _ ReclassifyInput) (*mcp.CallToolResult, SweepOutput, error) {
	res, err := h.recorder.Reclassify(ctx)
	if err != nil {
		return nil, SweepOutput{}, err
	}
	return nil, SweepOutput{Result: res}, nil
}
