// ABOUTME: Request CLI commands
// ABOUTME: List pending buyer requests and mark them answered
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harperreed/tradedesk/handlers"
	"github.com/harperreed/tradedesk/models"
)

func newListRequestsCommand(env *Env) *cobra.Command {
	var input handlers.ListRequestsInput

	cmd := &cobra.Command{
		Use:   "list-requests",
		Short: "List buyer requests waiting for an answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			_, out, err := handlers.NewRequestHandlers(app.DB, app.Recorder).ListRequests(cmd.Context(), nil, input)
			if err != nil {
				return err
			}
			if env.JSON() {
				return printJSON(cmd.OutOrStdout(), out)
			}

			if out.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No requests found.")
				return nil
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tCLIENT\tTYPE\tEMAIL\tRECEIVED\tREPLY")
			fmt.Fprintln(w, "--\t------\t----\t-----\t--------\t-----")
			for _, r := range out.Requests {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
					r.ID, r.ClientID, r.RequestType, orDash(r.Email), formatDate(r.CreatedAt), r.ReplyStatus)
			}
			_ = w.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "\nFound %d request(s)\n", out.Count)
			return nil
		},
	}
	cmd.Flags().Int64Var(&input.ClientID, "client-id", 0, "Only requests from this client")
	cmd.Flags().StringVar(&input.ReplyStatus, "status", models.ReplyPending, "Reply status: pending or replied")
	cmd.Flags().IntVar(&input.Limit, "limit", 50, "Maximum results")
	return cmd
}

func newMarkRequestRepliedCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-request-replied <request-id>",
		Short: "Mark a pending request as answered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			_, out, err := handlers.NewRequestHandlers(app.DB, app.Recorder).
				MarkRequestReplied(cmd.Context(), nil, handlers.MarkRequestRepliedInput{RequestID: args[0]})
			if err != nil {
				return err
			}
			if env.JSON() {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s request %s marked replied\n", out.Request.RequestType, out.Request.ID)
			return nil
		},
	}
}
