// ABOUTME: Source secret commands
// ABOUTME: Store and remove mailbox passwords and client secrets in the OS keyring
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/harperreed/tradedesk/sources"
)

func newSetSecretCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "set-secret <source>",
		Short: "Store a mailbox password or client secret in the OS keyring",
		Long: `Store the secret for the named source in the OS keyring. The secret is
read from the terminal without echo, or from stdin when piped. A source's
secret_env variable, when set, still takes precedence.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd, args[0])
			if err != nil {
				return err
			}
			if err := sources.SetSecret(args[0], secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Secret stored for %s\n", args[0])
			return nil
		},
	}
}

func readSecret(cmd *cobra.Command, source string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Secret for %s: ", source)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading secret from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func newDeleteSecretCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-secret <source>",
		Short: "Remove a stored secret from the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sources.DeleteSecret(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Secret removed for %s\n", args[0])
			return nil
		},
	}
}
