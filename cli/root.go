// ABOUTME: Root cobra command and the global flags shared by every subcommand
// ABOUTME: Loads config lazily so help and version never touch the database
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harperreed/tradedesk/config"
	"github.com/harperreed/tradedesk/logging"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

// Env carries the global flags and the opened application into subcommands.
type Env struct {
	ConfigPath string
	DBPath     string
	RulesPath  string
	LogLevel   string
	Output     string

	// LogOutput overrides where logs go; watch points it at a file.
	LogOutput io.Writer

	app *App
}

// Config loads the config file with flag overrides applied.
func (e *Env) Config() (*config.Config, error) {
	path := e.ConfigPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if e.DBPath != "" {
		cfg.DatabasePath = e.DBPath
	}
	if e.RulesPath != "" {
		cfg.RulesPath = e.RulesPath
	}
	if e.LogLevel != "" {
		cfg.Log.Level = e.LogLevel
	}
	return cfg, nil
}

// Open returns the application, opening it on first use.
func (e *Env) Open(cmd *cobra.Command) (*App, error) {
	if e.app != nil {
		return e.app, nil
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}

	app, err := OpenApp(cfg, e.logger(cmd, cfg))
	if err != nil {
		return nil, err
	}
	e.app = app
	return app, nil
}

func (e *Env) logger(cmd *cobra.Command, cfg *config.Config) zerolog.Logger {
	lc := cfg.Logging()
	lc.Output = e.LogOutput
	if lc.Output == nil {
		lc.Output = cmd.ErrOrStderr()
	}
	return logging.New(lc)
}

// Close releases the application if a command opened it.
func (e *Env) Close() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close()
	e.app = nil
	return err
}

func (e *Env) JSON() bool { return e.Output == OutputJSON }

// Execute runs the command tree and closes whatever the command opened,
// including when it failed.
func Execute(ctx context.Context, version string) error {
	env := &Env{}
	defer func() { _ = env.Close() }()
	return NewRootCommand(env, version).ExecuteContext(ctx)
}

// NewRootCommand builds the tradedesk command tree over env.
func NewRootCommand(env *Env, version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "tradedesk",
		Short: "Correspondence intake and client scoring for export sales",
		Long: `tradedesk reads buyer correspondence from your mailboxes, links each
message to a client, scores the client by what they asked for and keeps a
log of every band change.

Examples:
  # Create the config file and default rule book
  tradedesk init

  # Poll every configured mailbox once
  tradedesk ingest-now

  # Show the hottest leads
  tradedesk list-clients --classification "Serious Buyer"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if env.Output != OutputText && env.Output != OutputJSON {
				return fmt.Errorf("invalid --output %q: want %s or %s", env.Output, OutputText, OutputJSON)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return env.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&env.ConfigPath, "config", "", "Config file (default $TRADEDESK_CONFIG or ~/.config/tradedesk/config.yaml)")
	flags.StringVar(&env.DBPath, "db-path", "", "Database path (overrides config)")
	flags.StringVar(&env.RulesPath, "rules-path", "", "Rule book path (overrides config)")
	flags.StringVar(&env.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	flags.StringVarP(&env.Output, "output", "o", OutputText, "Output format: text or json")

	root.AddCommand(
		newInitCommand(env),
		newReloadRulesCommand(env),
		newIngestNowCommand(env),
		newListRequestsCommand(env),
		newMarkRequestRepliedCommand(env),
		newAddClientCommand(env),
		newListClientsCommand(env),
		newFocusCommand(env),
		newLogInteractionCommand(env),
		newFlagIgnoredCommand(env),
		newReclassifyCommand(env),
		newListClassificationChangesCommand(env),
		newDraftReplyCommand(env),
		newSetSecretCommand(env),
		newDeleteSecretCommand(env),
		newAuthGmailCommand(env),
		newMCPCommand(env, version),
		newWatchCommand(env),
		newServeCommand(env),
	)
	return root
}
