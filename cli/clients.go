// ABOUTME: Client CLI commands
// ABOUTME: Add and list clients, log manual interactions, run the sweeps and read the band history
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/handlers"
	"github.com/harperreed/tradedesk/models"
)

func newAddClientCommand(env *Env) *cobra.Command {
	var c models.Client

	cmd := &cobra.Command{
		Use:   "add-client",
		Short: "Add a client met outside the mailboxes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(c.CompanyName) == "" {
				return fmt.Errorf("--company is required")
			}
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}

			c.Classification = app.Rules.Current().Classify(0).Label
			err = app.Recorder.Tx(cmd.Context(), func(q db.Querier) error {
				return db.InsertClient(cmd.Context(), q, &c)
			})
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("client with email %s: %w", c.Email, errs.ErrDuplicate)
			}
			if err != nil {
				return err
			}

			if env.JSON() {
				return printJSON(cmd.OutOrStdout(), c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Client created: %s (ID: %d)\n", c.CompanyName, c.ID)
			if c.Email != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  Email: %s\n", c.Email)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  Band: %s\n", c.Classification)
			return nil
		},
	}
	cmd.Flags().StringVar(&c.CompanyName, "company", "", "Company name (required)")
	cmd.Flags().StringVar(&c.Email, "email", "", "Buyer email address")
	cmd.Flags().StringVar(&c.ContactPerson, "contact", "", "Contact person")
	cmd.Flags().StringVar(&c.Country, "country", "", "Country")
	cmd.Flags().StringVar(&c.Phone, "phone", "", "Phone number")
	cmd.Flags().StringVar(&c.Website, "website", "", "Website")
	return cmd
}

func newListClientsCommand(env *Env) *cobra.Command {
	var input handlers.ListClientsInput

	cmd := &cobra.Command{
		Use:   "list-clients",
		Short: "List clients by score with their band and trend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			_, out, err := handlers.NewClientHandlers(app.DB, app.Recorder, app.Pipeline).ListClients(cmd.Context(), nil, input)
			if err != nil {
				return err
			}
			if env.JSON() {
				return printJSON(cmd.OutOrStdout(), out)
			}

			if out.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No clients found.")
				return nil
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tCOMPANY\tEMAIL\tSCORE\tBAND\tSTATUS\tTREND")
			fmt.Fprintln(w, "--\t-------\t-----\t-----\t----\t------\t-----")
			for _, v := range out.Clients {
				c := v.Client
				name := c.CompanyName
				if c.Focus {
					name = "★ " + name
				}
				trend := "-"
				if v.Trend != nil {
					trend = fmt.Sprintf("%s (%+d)", v.Trend.Direction, v.Trend.Delta)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s %s\t%s\t%s\n",
					c.ID, name, orDash(c.Email), c.Score, v.Icon, c.Classification, c.Status, trend)
			}
			_ = w.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "\nFound %d client(s)\n", out.Count)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Classification, "classification", "", "Only clients in this band")
	cmd.Flags().StringVar(&input.Status, "status", "", "Only clients with this status")
	cmd.Flags().BoolVar(&input.FocusOnly, "focus", false, "Only focus clients")
	cmd.Flags().IntVar(&input.Limit, "limit", 50, "Maximum results")
	return cmd
}

func newFocusCommand(env *Env) *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "focus <client-id>",
		Short: "Mark a client as focus, or clear it with --off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClientID(args[0])
			if err != nil {
				return err
			}
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			err = app.Recorder.Tx(cmd.Context(), func(q db.Querier) error {
				return db.SetClientFocus(cmd.Context(), q, id, !off)
			})
			if err != nil {
				return err
			}
			if off {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Client %d removed from focus\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Client %d marked as focus\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "Clear the focus flag")
	return cmd
}

func newLogInteractionCommand(env *Env) *cobra.Command {
	var input handlers.LogInteractionInput

	cmd := &cobra.Command{
		Use:   "log-interaction <client-id>",
		Short: "Record a call, chat or meeting with a client",
		Long: `Record an interaction that did not arrive by mail. The score change is
computed from the message text and the rule book, the same way as for mail.

Examples:
  tradedesk log-interaction 12 --type reply --channel WhatsApp \
    --body "Please send samples and the price"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClientID(args[0])
			if err != nil {
				return err
			}
			input.ClientID = id
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			_, out, err := handlers.NewClientHandlers(app.DB, app.Recorder, app.Pipeline).LogInteraction(cmd.Context(), nil, input)
			if err != nil {
				return err
			}
			if env.JSON() {
				return printJSON(cmd.OutOrStdout(), out)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s logged for %s (%+d)\n",
				out.Interaction.MessageType, out.Client.CompanyName, out.Interaction.AppliedDelta)
			fmt.Fprintf(cmd.OutOrStdout(), "  Score: %d (%s)\n", out.Client.Score, out.Client.Classification)
			if out.Change != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  Band: %s → %s\n", out.Change.OldBand, out.Change.NewBand)
			}
			if out.Request != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  Request: %s %s\n", out.Request.RequestType, out.Request.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input.MessageType, "type", models.MessageReply, "Message type (reply, price_request, samples_request, not_interested, ...)")
	cmd.Flags().StringVar(&input.Channel, "channel", models.ChannelPhone, "Channel the interaction happened on")
	cmd.Flags().StringVar(&input.Subject, "subject", "", "Subject line")
	cmd.Flags().StringVar(&input.Body, "body", "", "What the client said")
	return cmd
}

func newFlagIgnoredCommand(env *Env) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "flag-ignored",
		Short: "Penalise clients that have gone quiet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			_, out, err := handlers.NewClientHandlers(app.DB, app.Recorder, app.Pipeline).
				FlagIgnored(cmd.Context(), nil, handlers.FlagIgnoredInput{Days: days})
			if err != nil {
				return err
			}
			if env.JSON() {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Flagged %d client(s), %d already flagged today\n", out.Result.Flagged, out.Result.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Days without any interaction")
	return cmd
}

func newReclassifyCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "reclassify",
		Short: "Relabel every client against the current bands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			_, out, err := handlers.NewClientHandlers(app.DB, app.Recorder, app.Pipeline).
				Reclassify(cmd.Context(), nil, handlers.ReclassifyInput{})
			if err != nil {
				return err
			}
			if env.JSON() {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Relabeled %d client(s)\n", out.Result.Relabeled)
			return nil
		},
	}
}

func newListClassificationChangesCommand(env *Env) *cobra.Command {
	var input handlers.ListClassificationChangesInput

	cmd := &cobra.Command{
		Use:   "list-classification-changes",
		Short: "Show band changes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			_, out, err := handlers.NewClientHandlers(app.DB, app.Recorder, app.Pipeline).
				ListClassificationChanges(cmd.Context(), nil, input)
			if err != nil {
				return err
			}
			if env.JSON() {
				return printJSON(cmd.OutOrStdout(), out)
			}

			if out.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No band changes found.")
				return nil
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "WHEN\tCLIENT\tFROM\tTO\tSCORE\tREASON")
			fmt.Fprintln(w, "----\t------\t----\t--\t-----\t------")
			for _, c := range out.Changes {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d → %d\t%s\n",
					formatDate(c.CreatedAt), c.ClientID, c.OldBand, c.NewBand, c.OldScore, c.NewScore, orDash(c.Reason))
			}
			_ = w.Flush()
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Since, "since", "", "RFC3339 time or a lookback such as 72h")
	cmd.Flags().IntVar(&input.Limit, "limit", 100, "Maximum results")
	return cmd
}
