// ABOUTME: cPanel webmail bridge source
// ABOUTME: Reads a small JSON bridge in front of a cPanel mailbox, paging by opaque cursor
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/intake"
)

type CPanelOptions struct {
	Name       string
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client
}

// CPanelSource reads GET {base}/messages?folder=&since=&limit=&cursor= with
// basic auth. Each message carries either decoded fields or the raw RFC 5322
// text in "raw".
type CPanelSource struct {
	opts   CPanelOptions
	logger zerolog.Logger
}

func NewCPanelSource(opts CPanelOptions, logger zerolog.Logger) *CPanelSource {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &CPanelSource{
		opts:   opts,
		logger: logger.With().Str("component", "cpanel").Str("source", opts.Name).Logger(),
	}
}

type cpanelPage struct {
	Messages   []cpanelMessage `json:"messages"`
	NextCursor string          `json:"next_cursor"`
}

type cpanelMessage struct {
	ContentType string         `json:"content_type"`
	Body        string         `json:"body"`
	From        intake.Address `json:"from"`
	ID          string         `json:"id"`
	IsRead      bool           `json:"is_read"`
	Raw         string         `json:"raw"`
	ReceivedAt  time.Time      `json:"received_at"`
	Subject     string         `json:"subject"`
}

func (s *CPanelSource) Read(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
	var msgs []intake.Message
	cursor := ""
	for {
		page, err := s.page(ctx, folder, max-len(msgs), since, cursor)
		if err != nil {
			return nil, err
		}
		for _, m := range page.Messages {
			msg, err := s.convert(m)
			if err != nil {
				s.logger.Warn().Err(err).Str("message_id", m.ID).Msg("skipping unparseable message")
				continue
			}
			msgs = append(msgs, msg)
			if max > 0 && len(msgs) >= max {
				return msgs, nil
			}
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			return msgs, nil
		}
		cursor = page.NextCursor
	}
}

func (s *CPanelSource) page(ctx context.Context, folder string, limit int, since time.Time, cursor string) (*cpanelPage, error) {
	params := url.Values{}
	params.Set("folder", folder)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if !since.IsZero() {
		params.Set("since", since.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.BaseURL+"/messages?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(s.opts.Username, s.opts.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.ProviderTransient(s.opts.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, httpError(s.opts.Name, resp.StatusCode, body)
	}

	var page cpanelPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, errs.ProviderTransient(s.opts.Name, fmt.Errorf("decode response: %w", err))
	}
	return &page, nil
}

func (s *CPanelSource) convert(m cpanelMessage) (intake.Message, error) {
	msg := intake.Message{
		ID:         m.ID,
		Subject:    m.Subject,
		Body:       intake.Body{Content: m.Body, ContentType: normalizeContentType(m.ContentType)},
		From:       m.From,
		ReceivedAt: m.ReceivedAt,
		IsRead:     m.IsRead,
	}
	if m.Raw == "" {
		return msg, nil
	}

	pm, err := parseMessage(strings.NewReader(m.Raw))
	if err != nil {
		return msg, err
	}
	if msg.ID == "" {
		msg.ID = pm.MessageID
	}
	if msg.Subject == "" {
		msg.Subject = pm.Subject
	}
	if msg.From.Address == "" {
		msg.From = pm.From
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = pm.Date
	}
	if msg.Body.Content == "" {
		msg.Body = pm.Body
	}
	return msg, nil
}
