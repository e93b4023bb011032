// ABOUTME: MCP prompt handlers for recurring export-desk workflows
// ABOUTME: Client summaries and a follow-up plan built from stored scores and requests
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/models"
)

// Prompt names.
const (
	PromptClientSummary = "client-summary"
	PromptFollowUpPlan  = "follow-up-plan"
)

type PromptHandlers struct {
	db *sql.DB
}

func NewPromptHandlers(database *sql.DB) *PromptHandlers {
	return &PromptHandlers{db: database}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case PromptClientSummary:
		return h.getClientSummaryPrompt(ctx, request.Params.Arguments)
	case PromptFollowUpPlan:
		return h.getFollowUpPlanPrompt(ctx)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getClientSummaryPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	rawID, ok := args["client_id"]
	if !ok {
		return nil, fmt.Errorf("client_id is required")
	}
	clientID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid client_id: %w", err)
	}

	client, err := db.GetClient(ctx, h.db, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("client %d not found", clientID)
	}

	interactions, err := db.ListInteractions(ctx, h.db, clientID, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch interactions: %w", err)
	}
	pending, err := db.ListRequests(ctx, h.db, db.RequestFilter{ClientID: clientID, ReplyStatus: models.ReplyPending})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch requests: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please summarise this dehydrated-vegetable buyer:\n\n")
	fmt.Fprintf(&promptText, "Company: %s\n", client.CompanyName)
	if client.ContactPerson != "" {
		fmt.Fprintf(&promptText, "Contact: %s\n", client.ContactPerson)
	}
	if client.Country != "" {
		fmt.Fprintf(&promptText, "Country: %s\n", client.Country)
	}
	fmt.Fprintf(&promptText, "Status: %s\n", client.Status)
	fmt.Fprintf(&promptText, "Score: %d (%s)\n", client.Score, client.Classification)

	if len(interactions) > 0 {
		promptText.WriteString("\nRecent interactions (newest first):\n")
		for _, in := range interactions {
			fmt.Fprintf(&promptText, "- %s %s via %s (%+d)", in.Date.Format("2006-01-02"), in.MessageType, in.Channel, in.AppliedDelta)
			if in.Subject != "" {
				fmt.Fprintf(&promptText, ": %s", in.Subject)
			}
			promptText.WriteString("\n")
		}
	}
	if len(pending) > 0 {
		promptText.WriteString("\nUnanswered requests:\n")
		for _, r := range pending {
			fmt.Fprintf(&promptText, "- %s since %s\n", r.RequestType, r.CreatedAt.Format("2006-01-02"))
		}
	}

	promptText.WriteString("\nPlease provide:")
	promptText.WriteString("\n1. How serious this buyer looks and why")
	promptText.WriteString("\n2. What to send or ask next")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Summary for client: %s", client.CompanyName),
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}

func (h *PromptHandlers) getFollowUpPlanPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	pending, err := db.ListRequests(ctx, h.db, db.RequestFilter{ReplyStatus: models.ReplyPending, Limit: 50})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch requests: %w", err)
	}
	focus, err := db.ListClients(ctx, h.db, db.ClientFilter{FocusOnly: true, Limit: 50})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clients: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Plan today's follow-ups for the export desk.\n")
	if len(pending) == 0 {
		promptText.WriteString("\nThere are no unanswered requests.\n")
	} else {
		promptText.WriteString("\nUnanswered requests (newest first):\n")
		for _, r := range pending {
			fmt.Fprintf(&promptText, "- client %d (%s): %s since %s\n", r.ClientID, r.Email, r.RequestType, r.CreatedAt.Format("2006-01-02"))
		}
	}
	if len(focus) > 0 {
		promptText.WriteString("\nFocus clients:\n")
		for _, c := range focus {
			fmt.Fprintf(&promptText, "- %s: %d (%s), %s\n", c.CompanyName, c.Score, c.Classification, c.Status)
		}
	}
	promptText.WriteString("\nOrder the follow-ups by urgency and suggest one line for each.")

	return &mcp.GetPromptResult{
		Description: "Follow-up plan",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}
