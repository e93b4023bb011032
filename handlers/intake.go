// ABOUTME: MCP tool handlers for the ingest loop and the live event queue
// ABOUTME: Runs one poll on demand and hands queued notifications to the agent
package handlers

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/scoring"
)

type IntakeHandlers struct {
	ingestor *intake.Ingestor
	queue    *scoring.EventQueue
}

func NewIntakeHandlers(ingestor *intake.Ingestor, queue *scoring.EventQueue) *IntakeHandlers {
	return &IntakeHandlers{ingestor: ingestor, queue: queue}
}

type IngestNowInput struct{}

type IngestNowOutput struct {
	Error   string          `json:"error,omitempty"`
	Summary *intake.Summary `json:"summary"`
}

// IngestNow polls every configured source once. A poll that is already
// running is reported as an error; an auth failure still returns the
// partial summary alongside the error text.
func (h *IntakeHandlers) IngestNow(ctx context.Context, _ *mcp.CallToolRequest, _ IngestNowInput) (*mcp.CallToolResult, IngestNowOutput, error) {
	summary, err := h.ingestor.Poll(ctx)
	if summary == nil {
		return nil, IngestNowOutput{}, err
	}
	out := IngestNowOutput{Summary: summary}
	if err != nil {
		out.Error = err.Error()
	}
	return nil, out, nil
}

type DrainEventsInput struct{}

type DrainEventsOutput struct {
	Count   int             `json:"count"`
	Dropped uint64          `json:"dropped"`
	Events  []scoring.Event `json:"events"`
}

// DrainEvents returns and clears every queued notification, oldest first.
func (h *IntakeHandlers) DrainEvents(_ context.Context, _ *mcp.CallToolRequest, _ DrainEventsInput) (*mcp.CallToolResult, DrainEventsOutput, error) {
	events := h.queue.Drain()
	if events == nil {
		events = []scoring.Event{}
	}
	return nil, DrainEventsOutput{
		Count:   len(events),
		Dropped: h.queue.Dropped(),
		Events:  events,
	}, nil
}
