// ABOUTME: Gmail API mail source
// ABOUTME: Lists a label since the cursor and converts full messages into intake messages
package sources

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/intake"
)

const (
	gmailUser        = "me"
	gmailMaxPageSize = 500
	gmailUnreadLabel = "UNREAD"
)

type GmailSource struct {
	name    string
	service *gmail.Service
	logger  zerolog.Logger
}

// NewGmailSource creates a source using the OAuth token stored for name.
func NewGmailSource(ctx context.Context, name string, logger zerolog.Logger) (*GmailSource, error) {
	ts, err := googleTokenSource(ctx, name)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return NewGmailSourceWithService(name, svc, logger), nil
}

func NewGmailSourceWithService(name string, svc *gmail.Service, logger zerolog.Logger) *GmailSource {
	return &GmailSource{
		name:    name,
		service: svc,
		logger:  logger.With().Str("component", "gmail").Str("source", name).Logger(),
	}
}

// Read returns up to max messages in the label received after since, oldest
// first. Gmail's after: operator has second granularity.
func (s *GmailSource) Read(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
	ids, err := s.list(ctx, folder, since)
	if err != nil {
		return nil, err
	}

	// List results are newest first.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}

	msgs := make([]intake.Message, 0, len(ids))
	for _, id := range ids {
		full, err := s.service.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, s.wrap(ctx, err)
		}
		msgs = append(msgs, convertGmail(full))
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt) })
	return msgs, nil
}

func (s *GmailSource) list(ctx context.Context, label string, since time.Time) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		call := s.service.Users.Messages.List(gmailUser).
			LabelIds(label).
			MaxResults(gmailMaxPageSize).
			Context(ctx)
		if !since.IsZero() {
			call = call.Q(fmt.Sprintf("after:%d", since.Unix()))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, s.wrap(ctx, err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (s *GmailSource) wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == 401 || apiErr.Code == 403) {
		return errs.ProviderAuth(s.name, err)
	}
	if isOAuthRejection(err) {
		return errs.ProviderAuth(s.name, err)
	}
	return errs.ProviderTransient(s.name, err)
}

func convertGmail(m *gmail.Message) intake.Message {
	msg := intake.Message{
		ID:         m.Id,
		ReceivedAt: time.UnixMilli(m.InternalDate).UTC(),
		IsRead:     true,
	}
	for _, label := range m.LabelIds {
		if label == gmailUnreadLabel {
			msg.IsRead = false
		}
	}
	if m.Payload == nil {
		return msg
	}

	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			msg.Subject = h.Value
		case "from":
			msg.From = parseFrom(h.Value)
		}
	}

	var text, html string
	walkParts(m.Payload, func(p *gmail.MessagePart) {
		if p.Body == nil || p.Body.Data == "" || p.Filename != "" {
			return
		}
		mediaType, params, _ := mime.ParseMediaType(partHeader(p, "Content-Type"))
		if mediaType == "" {
			mediaType = p.MimeType
		}
		switch mediaType {
		case "text/plain":
			if text == "" {
				text = decodePart(p.Body.Data, params["charset"])
			}
		case "text/html":
			if html == "" {
				html = decodePart(p.Body.Data, params["charset"])
			}
		}
	})
	switch {
	case text != "":
		msg.Body = intake.Body{Content: text, ContentType: intake.ContentText}
	case html != "":
		msg.Body = intake.Body{Content: html, ContentType: intake.ContentHTML}
	default:
		msg.Body = intake.Body{Content: m.Snippet, ContentType: intake.ContentText}
	}
	return msg
}

func walkParts(p *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	fn(p)
	for _, child := range p.Parts {
		walkParts(child, fn)
	}
}

func partHeader(p *gmail.MessagePart, name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func decodePart(data, charset string) string {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return string(raw)
	}
	r, err := charsetReader(charset, bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func parseFrom(value string) intake.Address {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return intake.Address{Address: strings.Trim(strings.TrimSpace(value), "<>")}
	}
	return intake.Address{Address: addr.Address, Name: addr.Name}
}
