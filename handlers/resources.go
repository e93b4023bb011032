// ABOUTME: MCP resource handlers exposing desk data by URI
// ABOUTME: Read-only views of clients, pending requests and the active rule book
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/models"
	"github.com/harperreed/tradedesk/rules"
)

const resourceScheme = "tradedesk://"

// Resource URIs.
const (
	ClientsURI         = resourceScheme + "clients"
	ClientURITemplate  = resourceScheme + "clients/{id}"
	PendingRequestsURI = resourceScheme + "requests/pending"
	RulesURI           = resourceScheme + "rules"
)

type ResourceHandlers struct {
	db    *sql.DB
	store *rules.Store
}

func NewResourceHandlers(database *sql.DB, store *rules.Store) *ResourceHandlers {
	return &ResourceHandlers{db: database, store: store}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")
	switch parts[0] {
	case "clients":
		if len(parts) == 1 {
			return h.readAllClients(ctx, uri)
		}
		return h.readClient(ctx, uri, parts[1])
	case "requests":
		if len(parts) == 2 && parts[1] == "pending" {
			return h.readPendingRequests(ctx, uri)
		}
	case "rules":
		return jsonResource(uri, h.store.Current())
	}
	return nil, mcp.ResourceNotFoundError(uri)
}

func (h *ResourceHandlers) readAllClients(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	clients, err := db.ListClients(ctx, h.db, db.ClientFilter{Limit: 1000})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clients: %w", err)
	}
	if clients == nil {
		clients = []*models.Client{}
	}
	return jsonResource(uri, clients)
}

type clientDetail struct {
	Client       *models.Client        `json:"client"`
	Interactions []*models.Interaction `json:"interactions"`
	Requests     []*models.Request     `json:"requests"`
}

func (h *ResourceHandlers) readClient(ctx context.Context, uri, rawID string) (*mcp.ReadResourceResult, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid client id: %s", rawID)
	}

	client, err := db.GetClient(ctx, h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	if client == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	interactions, err := db.ListInteractions(ctx, h.db, id, 20)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch interactions: %w", err)
	}
	requests, err := db.ListRequests(ctx, h.db, db.RequestFilter{ClientID: id, Limit: 20})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch requests: %w", err)
	}
	return jsonResource(uri, clientDetail{Client: client, Interactions: interactions, Requests: requests})
}

func (h *ResourceHandlers) readPendingRequests(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	requests, err := db.ListRequests(ctx, h.db, db.RequestFilter{ReplyStatus: models.ReplyPending})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch requests: %w", err)
	}
	if requests == nil {
		requests = []*models.Request{}
	}
	return jsonResource(uri, requests)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
