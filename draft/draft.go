// ABOUTME: Outbound draft-reply payload handed to an external mail client
// ABOUTME: Picks a body template from the client's open request and threads onto the last message
package draft

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/models"
)

// Payload is the draft handed to the mail client. Nothing is sent.
type Payload struct {
	AttachmentPath string `json:"attachment_path,omitempty"`
	Body           string `json:"body"`
	InReplyToID    string `json:"in_reply_to_id,omitempty"`
	Subject        string `json:"subject"`
	To             string `json:"to"`
}

type Options struct {
	// AttachmentPath is attached as-is; it must exist.
	AttachmentPath string
	Signature      string
}

var templates = map[string]string{
	models.IntentPrice: "Thank you for your interest in our dehydrated vegetables.\n\n" +
		"Please find our current price list attached. Prices are FOB and valid for 30 days. " +
		"Let us know the quantity and destination port and we will confirm a final offer.",
	models.IntentSample: "Thank you for your request.\n\n" +
		"We will be glad to send samples. Please confirm the products you would like to test " +
		"and the full delivery address, including a contact phone number for the courier.",
	models.IntentSpecs: "Thank you for your message.\n\n" +
		"Please find the technical specifications attached. We can also share certificates of analysis on request.",
	models.IntentMOQ: "Thank you for your inquiry.\n\n" +
		"Our minimum order is one 20ft container, which can be mixed across products. " +
		"Let us know the products and quantities you are considering.",
}

const genericTemplate = "Thank you for your message.\n\nWe will get back to you shortly with the details."

// Build prepares a reply to the client's latest interaction. requestType is
// the type of the client's open request, or "" for a generic reply.
func Build(client *models.Client, last *models.Interaction, requestType string, opts Options) (*Payload, error) {
	if client == nil {
		return nil, fmt.Errorf("draft: %w", errs.ErrNotFound)
	}
	if strings.TrimSpace(client.Email) == "" {
		return nil, fmt.Errorf("client %d has no email address: %w", client.ID, errs.ErrInvalidState)
	}
	if opts.AttachmentPath != "" {
		if _, err := os.Stat(opts.AttachmentPath); err != nil {
			return nil, errs.ConfigInvalid("attachment", fmt.Sprintf("cannot read %s", opts.AttachmentPath))
		}
	}

	p := &Payload{
		To:             client.Email,
		Subject:        replySubject(last),
		Body:           body(client, requestType, opts.Signature),
		AttachmentPath: opts.AttachmentPath,
	}
	if last != nil {
		p.InReplyToID = last.ExternalID
	}
	return p, nil
}

// ForClient loads the client, its latest interaction and newest pending
// request, then builds the draft.
func ForClient(ctx context.Context, q db.Querier, clientID int64, opts Options) (*Payload, error) {
	client, err := db.GetClient(ctx, q, clientID)
	if err != nil {
		return nil, err
	}

	var last *models.Interaction
	recent, err := db.ListInteractions(ctx, q, clientID, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		last = recent[0]
	}

	var requestType string
	pending, err := db.ListRequests(ctx, q, db.RequestFilter{ClientID: clientID, ReplyStatus: models.ReplyPending, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		requestType = pending[0].RequestType
	}

	return Build(client, last, requestType, opts)
}

func replySubject(last *models.Interaction) string {
	if last == nil || strings.TrimSpace(last.Subject) == "" {
		return "Dehydrated vegetables"
	}
	subject := strings.TrimSpace(last.Subject)
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}

func body(client *models.Client, requestType, signature string) string {
	greeting := "Dear Sir/Madam,"
	if name := strings.TrimSpace(client.ContactPerson); name != "" {
		greeting = fmt.Sprintf("Dear %s,", name)
	}

	text, ok := templates[requestType]
	if !ok {
		text = genericTemplate
	}

	var b strings.Builder
	b.WriteString(greeting)
	b.WriteString("\n\n")
	b.WriteString(text)
	b.WriteString("\n\nBest regards,")
	if signature != "" {
		b.WriteString("\n")
		b.WriteString(signature)
	}
	b.WriteString("\n")
	return b.String()
}

// Write encodes p as indented JSON.
func Write(w io.Writer, p *Payload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(p)
}
