// ABOUTME: Mail source configuration and construction for every supported provider
// ABOUTME: Builds an intake.Feed per configured source, wrapped in a circuit breaker
package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/models"
)

// Source kinds.
const (
	KindIMAP   = "imap"
	KindGraph  = "graph"
	KindCPanel = "cpanel"
	KindGmail  = "gmail"
)

// Config describes one mail source. Which connection fields apply depends on
// Kind. Secrets never live here; SecretEnv names the environment variable
// that holds one, with the OS keyring as fallback.
type Config struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Folder    string `yaml:"folder"`
	Max       int    `yaml:"max"`
	Channel   string `yaml:"channel"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Insecure  bool   `yaml:"insecure"`
	Username  string `yaml:"username"`
	SecretEnv string `yaml:"secret_env"`
	BaseURL   string `yaml:"base_url"`
	TenantID  string `yaml:"tenant_id"`
	ClientID  string `yaml:"client_id"`
	Mailbox   string `yaml:"mailbox"`
}

// Validate checks the fields the source kind needs. index positions the
// source in the config file for error messages.
func (c Config) Validate(index int) error {
	field := func(name string) string { return fmt.Sprintf("sources[%d].%s", index, name) }

	if strings.TrimSpace(c.Name) == "" {
		return errs.ConfigInvalid(field("name"), "must not be empty")
	}
	if c.Channel != "" && !models.IsValidChannel(c.Channel) {
		return errs.ConfigInvalid(field("channel"), fmt.Sprintf("unknown channel %q", c.Channel))
	}

	switch c.Kind {
	case KindIMAP:
		if c.Host == "" {
			return errs.ConfigInvalid(field("host"), "required for imap")
		}
		if c.Username == "" {
			return errs.ConfigInvalid(field("username"), "required for imap")
		}
	case KindGraph:
		if c.ClientID == "" {
			return errs.ConfigInvalid(field("client_id"), "required for graph")
		}
		if c.Mailbox == "" {
			return errs.ConfigInvalid(field("mailbox"), "required for graph")
		}
	case KindCPanel:
		if c.BaseURL == "" {
			return errs.ConfigInvalid(field("base_url"), "required for cpanel")
		}
		if c.Username == "" {
			return errs.ConfigInvalid(field("username"), "required for cpanel")
		}
	case KindGmail:
	default:
		return errs.ConfigInvalid(field("kind"), fmt.Sprintf("unknown source kind %q", c.Kind))
	}
	return nil
}

func (c Config) channel() string {
	if c.Channel != "" {
		return c.Channel
	}
	if c.Kind == KindGraph {
		return models.ChannelOutlook
	}
	return models.ChannelEmail
}

func (c Config) folder() string {
	if c.Folder != "" {
		return c.Folder
	}
	if c.Kind == KindGraph {
		return "inbox"
	}
	return "INBOX"
}

// Build constructs the feed for c. Secrets and OAuth tokens are looked up
// here so a misconfigured source fails before the first poll.
func Build(ctx context.Context, c Config, logger zerolog.Logger) (intake.Feed, error) {
	var (
		src intake.MessageSource
		err error
	)

	switch c.Kind {
	case KindIMAP:
		var password string
		if password, err = Secret(c.Name, c.SecretEnv); err == nil {
			src = NewIMAPSource(IMAPOptions{
				Name:     c.Name,
				Host:     c.Host,
				Port:     c.Port,
				Insecure: c.Insecure,
				Username: c.Username,
				Password: password,
			}, logger)
		}
	case KindGraph:
		var secret string
		if secret, err = Secret(c.Name, c.SecretEnv); err == nil {
			src = NewGraphSource(GraphOptions{
				Name:         c.Name,
				BaseURL:      c.BaseURL,
				Mailbox:      c.Mailbox,
				HTTPClient:   GraphClient(ctx, c.TenantID, c.ClientID, secret),
				MaxPageItems: c.Max,
			}, logger)
		}
	case KindCPanel:
		var password string
		if password, err = Secret(c.Name, c.SecretEnv); err == nil {
			src = NewCPanelSource(CPanelOptions{
				Name:     c.Name,
				BaseURL:  c.BaseURL,
				Username: c.Username,
				Password: password,
			}, logger)
		}
	case KindGmail:
		src, err = NewGmailSource(ctx, c.Name, logger)
	default:
		err = errs.ConfigInvalid("kind", fmt.Sprintf("unknown source kind %q", c.Kind))
	}
	if err != nil {
		return intake.Feed{}, fmt.Errorf("source %s: %w", c.Name, err)
	}

	return intake.Feed{
		Name:    c.Name,
		Folder:  c.folder(),
		Max:     c.Max,
		Channel: c.channel(),
		Source:  NewGuard(c.Name, src, logger),
	}, nil
}

// BuildAll validates and builds every configured source.
func BuildAll(ctx context.Context, configs []Config, logger zerolog.Logger) ([]intake.Feed, error) {
	seen := make(map[string]bool, len(configs))
	feeds := make([]intake.Feed, 0, len(configs))
	for i, c := range configs {
		if err := c.Validate(i); err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, errs.ConfigInvalid(fmt.Sprintf("sources[%d].name", i), fmt.Sprintf("duplicate source name %q", c.Name))
		}
		seen[c.Name] = true

		feed, err := Build(ctx, c, logger)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, nil
}
