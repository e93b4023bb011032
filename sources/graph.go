// ABOUTME: Hosted Graph-style mail API source
// ABOUTME: Lists a mailbox folder oldest first, following @odata.nextLink until max is reached
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/intake"
)

const (
	graphBaseURL      = "https://graph.microsoft.com/v1.0"
	graphDefaultScope = "https://graph.microsoft.com/.default"
	graphSelect       = "id,subject,body,from,isRead,receivedDateTime"
	graphMaxTop       = 50
	maxErrorBody      = 512
)

type GraphOptions struct {
	Name    string
	BaseURL string
	// Mailbox is the user id or address whose folders are read.
	Mailbox      string
	HTTPClient   *http.Client
	MaxPageItems int
}

type GraphSource struct {
	opts   GraphOptions
	logger zerolog.Logger
}

// GraphClient returns an HTTP client authenticated with the client
// credentials grant for the given tenant.
func GraphClient(ctx context.Context, tenantID, clientID, clientSecret string) *http.Client {
	if tenantID == "" {
		tenantID = "common"
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     microsoft.AzureADEndpoint(tenantID).TokenURL,
		Scopes:       []string{graphDefaultScope},
	}
	return cfg.Client(ctx)
}

func NewGraphSource(opts GraphOptions, logger zerolog.Logger) *GraphSource {
	if opts.BaseURL == "" {
		opts.BaseURL = graphBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.MaxPageItems <= 0 || opts.MaxPageItems > graphMaxTop {
		opts.MaxPageItems = graphMaxTop
	}
	return &GraphSource{
		opts:   opts,
		logger: logger.With().Str("component", "graph").Str("source", opts.Name).Logger(),
	}
}

type graphPage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphMessage struct {
	ID               string         `json:"id"`
	Subject          string         `json:"subject"`
	Body             graphBody      `json:"body"`
	From             graphRecipient `json:"from"`
	IsRead           bool           `json:"isRead"`
	ReceivedDateTime string         `json:"receivedDateTime"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Read returns up to max messages received at or after since, oldest first.
func (s *GraphSource) Read(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
	next := s.firstPageURL(folder, max, since)

	var msgs []intake.Message
	for next != "" {
		var page graphPage
		if err := s.get(ctx, next, &page); err != nil {
			return nil, err
		}
		for i := range page.Value {
			msgs = append(msgs, convertGraph(&page.Value[i]))
			if max > 0 && len(msgs) >= max {
				return msgs, nil
			}
		}
		next = page.NextLink
	}
	return msgs, nil
}

func (s *GraphSource) firstPageURL(folder string, max int, since time.Time) string {
	top := s.opts.MaxPageItems
	if max > 0 && max < top {
		top = max
	}
	params := url.Values{}
	params.Set("$top", strconv.Itoa(top))
	params.Set("$orderby", "receivedDateTime asc")
	params.Set("$select", graphSelect)
	if !since.IsZero() {
		params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	}
	return fmt.Sprintf("%s/users/%s/mailFolders/%s/messages?%s",
		s.opts.BaseURL, url.PathEscape(s.opts.Mailbox), url.PathEscape(folder), params.Encode())
}

func (s *GraphSource) get(ctx context.Context, target string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", `outlook.body-content-type="text"`)

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isOAuthRejection(err) {
			return errs.ProviderAuth(s.opts.Name, err)
		}
		return errs.ProviderTransient(s.opts.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return httpError(s.opts.Name, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errs.ProviderTransient(s.opts.Name, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func convertGraph(m *graphMessage) intake.Message {
	received, _ := time.Parse(time.RFC3339, m.ReceivedDateTime)
	return intake.Message{
		ID:      m.ID,
		Subject: m.Subject,
		Body:    intake.Body{Content: m.Body.Content, ContentType: normalizeContentType(m.Body.ContentType)},
		From: intake.Address{
			Address: m.From.EmailAddress.Address,
			Name:    m.From.EmailAddress.Name,
		},
		ReceivedAt: received,
		IsRead:     m.IsRead,
	}
}

func normalizeContentType(ct string) string {
	if strings.Contains(strings.ToLower(ct), "html") {
		return intake.ContentHTML
	}
	return intake.ContentText
}

// httpError maps a provider HTTP status onto the error taxonomy.
func httpError(source string, status int, body []byte) error {
	err := fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errs.ProviderAuth(source, err)
	default:
		return errs.ProviderTransient(source, err)
	}
}

// isOAuthRejection reports whether a token fetch failed because the
// credentials were refused rather than because the network failed.
func isOAuthRejection(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.ErrorCode != "" {
		return true
	}
	return re.Response != nil && re.Response.StatusCode >= 400 && re.Response.StatusCode < 500
}
