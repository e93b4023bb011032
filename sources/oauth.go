// ABOUTME: OAuth configuration and token storage for Google mail sources
// ABOUTME: Tokens live as 0600 JSON files under the XDG data directory, one per source
package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/harperreed/tradedesk/errs"
)

// OAuthRedirectURL is where the local callback server listens during auth-gmail.
const OAuthRedirectURL = "http://localhost:8080/oauth/callback"

// GoogleOAuthConfig creates the OAuth2 config for read-only Gmail access.
// Client credentials come from GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET.
func GoogleOAuthConfig() (*oauth2.Config, error) {
	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, errs.ConfigInvalid("GOOGLE_CLIENT_ID", "google OAuth credentials not configured; set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  OAuthRedirectURL,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}, nil
}

// TokenPath returns the XDG data path for the named source's token.
func TokenPath(source string) string {
	return filepath.Join(xdg.DataHome, "tradedesk", "tokens", source+".json")
}

// SaveToken writes token to path with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}

// LoadToken reads a token saved by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &token, nil
}

// persistingTokenSource saves refreshed tokens so the next run starts from them.
type persistingTokenSource struct {
	path    string
	base    oauth2.TokenSource
	current *oauth2.Token
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	if p.current == nil || tok.AccessToken != p.current.AccessToken {
		_ = SaveToken(p.path, tok)
		p.current = tok
	}
	return tok, nil
}

// googleTokenSource loads the stored token for source and refreshes it on demand.
func googleTokenSource(ctx context.Context, source string) (oauth2.TokenSource, error) {
	cfg, err := GoogleOAuthConfig()
	if err != nil {
		return nil, err
	}
	path := TokenPath(source)
	token, err := LoadToken(path)
	if err != nil {
		return nil, errs.ConfigInvalid("sources."+source, "no OAuth token; run auth-gmail first")
	}
	return oauth2.ReuseTokenSource(token, &persistingTokenSource{
		path:    path,
		base:    cfg.TokenSource(ctx, token),
		current: token,
	}), nil
}
