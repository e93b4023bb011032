// ABOUTME: MCP tool handler for outbound draft replies
// ABOUTME: Builds the payload an external mail client sends; nothing leaves this process
package handlers

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/tradedesk/draft"
)

type DraftHandlers struct {
	db        *sql.DB
	signature string
}

func NewDraftHandlers(database *sql.DB, signature string) *DraftHandlers {
	return &DraftHandlers{db: database, signature: signature}
}

type DraftReplyInput struct {
	ClientID       int64  `json:"client_id" jsonschema:"Client to reply to"`
	AttachmentPath string `json:"attachment_path,omitempty" jsonschema:"Local file to attach, such as a price list PDF"`
}

type DraftReplyOutput struct {
	Draft *draft.Payload `json:"draft"`
}

func (h *DraftHandlers) DraftReply(ctx context.Context, _ *mcp.CallToolRequest, input DraftReplyInput) (*mcp.CallToolResult, DraftReplyOutput, error) {
	if input.ClientID == 0 {
		return nil, DraftReplyOutput{}, fmt.Errorf("client_id is required")
	}
	p, err := draft.ForClient(ctx, h.db, input.ClientID, draft.Options{
		AttachmentPath: input.AttachmentPath,
		Signature:      h.signature,
	})
	if err != nil {
		return nil, DraftReplyOutput{}, err
	}
	return nil, DraftReplyOutput{Draft: p}, nil
}
