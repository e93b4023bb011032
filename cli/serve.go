// ABOUTME: watch and serve commands
// ABOUTME: Long-running intake with the terminal dashboard or the HTTP status server
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/harperreed/tradedesk/tui"
	"github.com/harperreed/tradedesk/web"
)

func newWatchCommand(env *Env) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll on a schedule with a live terminal dashboard",
		Long: `Open the terminal dashboard: clients by score, live band changes and
the state of every mailbox. Polls every --interval; "p" polls now. Logs go to
the XDG state directory so they do not disturb the screen. SIGHUP reloads the
rule book.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logPath, err := xdg.StateFile("tradedesk/watch.log")
			if err != nil {
				return fmt.Errorf("resolving log file: %w", err)
			}
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err != nil {
				return fmt.Errorf("opening log file: %w", err)
			}
			defer func() { _ = logFile.Close() }()
			env.LogOutput = logFile

			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			ingestor, err := app.Ingestor(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("interval") {
				interval = app.Config.Ingest.Interval
			}

			reloadOnHangup(cmd.Context(), app.Rules, app.Logger)
			return tui.Run(tui.NewModel(cmd.Context(), app.DB, ingestor, app.Queue, app.Rules, interval))
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval; 0 polls only on demand (default from config)")
	return cmd
}

func newServeCommand(env *Env) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll on a schedule and serve the status dashboard, JSON API and metrics",
		Long: `Serve the status dashboard on / and the JSON API under /api, with
Prometheus metrics on /metrics and a health check on /healthz. Polls every
--interval. SIGHUP or POST /api/rules/reload reloads the rule book.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			ingestor, err := app.Ingestor(cmd.Context())
			if err != nil {
				return err
			}
			if addr == "" {
				addr = app.Config.Serve.Addr
			}
			if !cmd.Flags().Changed("interval") {
				interval = app.Config.Ingest.Interval
			}

			server, err := web.NewServer(app.DB, app.Recorder, app.Queue, ingestor, app.Registry,
				web.Options{Addr: addr, Interval: interval}, app.Logger)
			if err != nil {
				return err
			}

			reloadOnHangup(cmd.Context(), app.Rules, app.Logger)
			return server.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval; 0 disables scheduled polls (default from config)")
	return cmd
}
