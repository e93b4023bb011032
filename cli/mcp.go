// ABOUTME: MCP server subcommand
// ABOUTME: Serves the desk tools, resources and prompts to an assistant over stdio
package cli

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/harperreed/tradedesk/handlers"
	"github.com/harperreed/tradedesk/intake"
)

func newMCPCommand(env *Env, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			ingestor, err := app.Ingestor(cmd.Context())
			if err != nil {
				return err
			}

			app.Logger.Info().Msg("starting MCP server")
			return NewMCPServer(app, ingestor, version).Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

// NewMCPServer registers every tool, resource and prompt on a new server.
func NewMCPServer(app *App, ingestor *intake.Ingestor, version string) *mcp.Server {
	intakeHandlers := handlers.NewIntakeHandlers(ingestor, app.Queue)
	ruleHandlers := handlers.NewRuleHandlers(app.Rules)
	requestHandlers := handlers.NewRequestHandlers(app.DB, app.Recorder)
	clientHandlers := handlers.NewClientHandlers(app.DB, app.Recorder, app.Pipeline)
	draftHandlers := handlers.NewDraftHandlers(app.DB, app.Config.Draft.Signature)
	resourceHandlers := handlers.NewResourceHandlers(app.DB, app.Rules)
	promptHandlers := handlers.NewPromptHandlers(app.DB)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "tradedesk",
		Version: version,
	}, nil)

	// Register tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_now",
		Description: "Poll every configured mailbox once and return the poll summary",
	}, intakeHandlers.IngestNow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "drain_events",
		Description: "Return and clear the queued band-change and request-replied events",
	}, intakeHandlers.DrainEvents)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reload_rules",
		Description: "Re-read the rule book; an invalid file is rejected and the previous rules stay active",
	}, ruleHandlers.ReloadRules)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "mark_request_replied",
		Description: "Mark a pending buyer request as answered",
	}, requestHandlers.MarkRequestReplied)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_requests",
		Description: "List buyer requests by reply status, newest first",
	}, requestHandlers.ListRequests)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_clients",
		Description: "List clients by score with band colour, icon and trend",
	}, clientHandlers.ListClients)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_classification_changes",
		Description: "List band changes since a time or lookback, newest first",
	}, clientHandlers.ListClassificationChanges)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "log_interaction",
		Description: "Record a call, chat or meeting with a client; the score change is computed from the text",
	}, clientHandlers.LogInteraction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "flag_ignored",
		Description: "Penalise clients with no interaction for the given number of days",
	}, clientHandlers.FlagIgnored)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reclassify",
		Description: "Relabel every client against the current band thresholds",
	}, clientHandlers.Reclassify)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "draft_reply",
		Description: "Build a reply draft for the client's latest message; nothing is sent",
	}, draftHandlers.DraftReply)

	// Register resources
	server.AddResource(&mcp.Resource{
		URI:         handlers.ClientsURI,
		Name:        "clients",
		Description: "Every client with score and band",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: handlers.ClientURITemplate,
		Name:        "client",
		Description: "One client with recent interactions and requests",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         handlers.PendingRequestsURI,
		Name:        "pending-requests",
		Description: "Buyer requests waiting for an answer",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         handlers.RulesURI,
		Name:        "rules",
		Description: "The active rule book",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	// Register prompts
	server.AddPrompt(&mcp.Prompt{
		Name:        handlers.PromptClientSummary,
		Description: "Summarise a client's history, score and open requests",
		Arguments: []*mcp.PromptArgument{
			{Name: "client_id", Description: "Client to summarise", Required: true},
		},
	}, promptHandlers.GetPrompt)

	server.AddPrompt(&mcp.Prompt{
		Name:        handlers.PromptFollowUpPlan,
		Description: "Plan today's follow-ups from pending requests and hot leads",
	}, promptHandlers.GetPrompt)

	return server
}
