// ABOUTME: auth-gmail command
// ABOUTME: Runs the browser OAuth flow for a Gmail source and stores its token
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/harperreed/tradedesk/sources"
)

func newAuthGmailCommand(env *Env) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "auth-gmail <source>",
		Short: "Authorise read-only access to a Gmail source",
		Long: `Open the Google consent page and store the resulting token for the named
gmail source. GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			config, err := sources.GoogleOAuthConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			token, err := authorize(ctx, config, !noBrowser, func(authURL string) {
				fmt.Fprintln(cmd.OutOrStdout(), "Opening browser for Google OAuth...")
				fmt.Fprintf(cmd.OutOrStdout(), "\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)
			})
			if err != nil {
				return err
			}

			path := sources.TokenPath(source)
			if err := sources.SaveToken(path, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Authenticated successfully\n")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Token saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the consent URL without opening a browser")
	return cmd
}

// authorize serves the OAuth callback on the redirect URL's host until the
// code arrives or ctx ends.
func authorize(ctx context.Context, config *oauth2.Config, browser bool, show func(string)) (*oauth2.Token, error) {
	redirect, err := url.Parse(config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	state := uuid.NewString()

	tokens := make(chan *oauth2.Token, 1)
	errCh := make(chan error, 1)

	fail := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			fail(errors.New("oauth state mismatch"))
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			fail(errors.New("no authorization code received"))
			return
		}
		token, err := config.Exchange(ctx, code)
		if err != nil {
			http.Error(w, "exchange failed", http.StatusBadGateway)
			fail(fmt.Errorf("failed to exchange code: %w", err))
			return
		}
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
		select {
		case tokens <- token:
		default:
		}
	})

	server := &http.Server{Addr: redirect.Host, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail(err)
		}
	}()
	defer func() { _ = server.Shutdown(context.WithoutCancel(ctx)) }()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	show(authURL)
	if browser {
		_ = openBrowser(authURL)
	}

	select {
	case token := <-tokens:
		return token, nil
	case err := <-errCh:
		return nil, fmt.Errorf("OAuth flow failed: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("OAuth flow abandoned: %w", ctx.Err())
	}
}

func openBrowser(target string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	default:
		cmd = "xdg-open"
	}
	args = append(args, target)
	return exec.Command(cmd, args...).Start()
}
