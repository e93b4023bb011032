// ABOUTME: MCP tool handlers for client requests
// ABOUTME: Lists pending asks and moves a request from pending to replied
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/scoring"
)

type RequestHandlers struct {
	db       *sql.DB
	recorder *scoring.Recorder
}

func NewRequestHandlers(database *sql.DB, recorder *scoring.Recorder) *RequestHandlers {
	return &RequestHandlers{db: database, recorder: recorder}
}

type MarkRequestRepliedInput struct {
	RequestID string `json:"request_id" jsonschema:"ID of the pending request that has been answered"`
}

type MarkRequestRepliedOutput struct {
	Request *models.Request `json:"request"`
}

func (h *RequestHandlers) MarkRequestReplied(ctx context.Context, _ *mcp.CallToolRequest, input MarkRequestRepliedInput) (*mcp.CallToolResult, MarkRequestRepliedOutput, error) {
	id := strings.TrimSpace(input.RequestID)
	if id == "" {
		return nil, MarkRequestRepliedOutput{}, fmt.Errorf("request_id is required")
	}
	req, err := h.recorder.MarkRequestReplied(ctx, id)
	if err != nil {
		return nil, MarkRequestRepliedOutput{}, err
	}
	return nil, MarkRequestRepliedOutput{Request: req}, nil
}

type ListRequestsInput struct {
	ClientID    int64  `json:"client_id,omitempty" jsonschema:"Only requests from this client"`
	ReplyStatus string `json:"reply_status,omitempty" jsonschema:"pending or replied (default pending)"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default 50)"`
}

type ListRequestsOutput struct {
	Count    int               `json:"count"`
	Requests []*models.Request `json:"requests"`
}

func (h *RequestHandlers) ListRequests(ctx context.Context, _ *mcp.CallToolRequest, input ListRequestsInput) (*mcp.CallToolResult, ListRequestsOutput, error) {
	if input.ReplyStatus == "" {
		input.ReplyStatus = models.ReplyPending
	}
	if input.ReplyStatus != models.ReplyPending && input.ReplyStatus != models.ReplyReplied {
		return nil, ListRequestsOutput{}, fmt.Errorf("invalid reply_status: %s (valid: pending, replied)", input.ReplyStatus)
	}
	if input.Limit == 0 {
		input.Limit = 50
	}

	requests, err := db.ListRequests(ctx, h.db, db.RequestFilter{
		ClientID:    input.ClientID,
		ReplyStatus: input.ReplyStatus,
		Limit:       input.Limit,
	})
	if err != nil {
		return nil, ListRequestsOutput{}, err
	}
	if requests == nil {
		requests = []*models.Request{}
	}
	return nil, ListRequestsOutput{Count: len(requests), Requests: requests}, nil
}
