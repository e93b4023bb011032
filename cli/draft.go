// ABOUTME: draft-reply command
// ABOUTME: Prints the reply payload for a client's latest message as JSON
package cli

import (
	"github.com/spf13/cobra"

	"github.com/harperreed/tradedesk/draft"
	"github.com/harperreed/tradedesk/handlers"
)

func newDraftReplyCommand(env *Env) *cobra.Command {
	var attachment string

	cmd := &cobra.Command{
		Use:   "draft-reply <client-id>",
		Short: "Print a reply draft for the client's latest message",
		Long: `Build a reply to the client's latest message from the template for
their open request and print it as JSON for a mail client to send. Nothing is
sent from here.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClientID(args[0])
			if err != nil {
				return err
			}
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			_, out, err := handlers.NewDraftHandlers(app.DB, app.Config.Draft.Signature).
				DraftReply(cmd.Context(), nil, handlers.DraftReplyInput{ClientID: id, AttachmentPath: attachment})
			if err != nil {
				return err
			}
			return draft.Write(cmd.OutOrStdout(), out.Draft)
		},
	}
	cmd.Flags().StringVar(&attachment, "attach", "", "File to attach, such as a price list PDF")
	return cmd
}
