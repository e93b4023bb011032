// ABOUTME: init and reload-rules commands
// ABOUTME: Write the default config and rule book, and validate rule book edits
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harperreed/tradedesk/config"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/rules"
)

func newInitCommand(env *Env) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the config file, rule book and database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := env.ConfigPath
			if path == "" {
				path = config.Path()
			}

			_, err := os.Stat(path)
			switch {
			case errors.Is(err, fs.ErrNotExist) || force:
				if err := config.Save(path, config.Default()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Config written: %s\n", path)
			case err != nil:
				return fmt.Errorf("checking config file: %w", err)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Config exists: %s\n", path)
			}

			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Rule book: %s\n", app.Rules.Path())
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Database: %s\n", app.Config.DatabasePath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file with the defaults")
	return cmd
}

func newReloadRulesCommand(env *Env) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "reload-rules",
		Short: "Validate the rule book and optionally tell a running server to reload it",
		Long: `Validate the rule book file and print the bands and score rules it defines.

An invalid file exits with status 2 and leaves any running process on its
previous rules. With --server the reload is also requested from a running
"tradedesk serve"; a running "tradedesk watch" reloads on SIGHUP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.Config()
			if err != nil {
				return err
			}
			rb, err := rules.Load(cfg.RulesPath)
			if err != nil && !errors.Is(err, rules.ErrSeeded) {
				return err
			}

			if server != "" {
				if err := notifyReload(cmd.Context(), server); err != nil {
					return err
				}
			}

			if env.JSON() {
				return printJSON(cmd.OutOrStdout(), rb)
			}
			printRuleBook(cmd, cfg.RulesPath, rb)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "Address of a running serve process (e.g. 127.0.0.1:8765)")
	return cmd
}

func printRuleBook(cmd *cobra.Command, path string, rb *rules.RuleBook) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Rule book valid: %s\n\n", path)

	w := newTable(out)
	fmt.Fprintln(w, "BAND\tMIN SCORE\tCOLOR")
	fmt.Fprintln(w, "----\t---------\t-----")
	for _, t := range rb.ClassificationThresholds {
		fmt.Fprintf(w, "%s %s\t%d\t%s\n", t.Icon, t.Label, t.MinScore, t.Color)
	}
	_ = w.Flush()
	fmt.Fprintln(out)

	names := make([]string, 0, len(rb.ScoreRules))
	for name := range rb.ScoreRules {
		names = append(names, name)
	}
	sort.Strings(names)

	w = newTable(out)
	fmt.Fprintln(w, "MESSAGE TYPE\tEFFECT\tENABLED")
	fmt.Fprintln(w, "------------\t------\t-------")
	for _, name := range names {
		r := rb.ScoreRules[name]
		fmt.Fprintf(w, "%s\t%+d\t%t\n", name, r.Effect, r.Enabled)
	}
	_ = w.Flush()
}

func notifyReload(ctx context.Context, addr string) error {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(addr, "/")+"/api/rules/reload", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("contacting server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return errs.ConfigInvalid("rules", "server rejected the rule book and kept its previous rules")
	case resp.StatusCode >= 300:
		return fmt.Errorf("server reload failed: %s", resp.Status)
	}
	return nil
}
