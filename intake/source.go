// ABOUTME: Mail source contract shared by every provider adapter
// ABOUTME: A source yields a flat, ordered list of messages for a folder since a point in time
package intake

import (
	"context"
	"time"
)

// Body content types as reported by providers. They are advisory only.
const (
	ContentText = "Text"
	ContentHTML = "HTML"
)

type Body struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

type Address struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Message is one inbound message as yielded by a provider.
type Message struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Body       Body      `json:"body"`
	From       Address   `json:"from"`
	ReceivedAt time.Time `json:"received_at"`
	IsRead     bool      `json:"is_read"`
}

// MessageSource reads messages from one provider. Pagination is the
// source's concern; callers receive a single sequence in delivery order.
// Implementations report rejected credentials with errs.ErrProviderAuth and
// retryable failures with errs.ErrProviderTransient.
type MessageSource interface {
	Read(ctx context.Context, folder string, max int, since time.Time) ([]Message, error)
}

// SourceFunc adapts a function to MessageSource.
type SourceFunc func(ctx context.Context, folder string, max int, since time.Time) ([]Message, error)

func (f SourceFunc) Read(ctx context.Context, folder string, max int, since time.Time) ([]Message, error) {
	return f(ctx, folder, max, since)
}

// Feed binds a source to the folder and channel it is polled with. Name keys
// the poll cursor and must be unique.
type Feed struct {
	Name    string
	Folder  string
	Max     int
	Channel string
	Source  MessageSource
}
