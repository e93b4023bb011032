// ABOUTME: RFC 5322 message parsing for sources that deliver raw mail
// ABOUTME: Picks the text body, decodes legacy charsets, and reads sender and date headers
package sources

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/harperreed/tradedesk/intake"
)

// maxBodyBytes bounds how much of one body part is read.
const maxBodyBytes = 1 << 20

func init() {
	message.CharsetReader = charsetReader
}

// charsetReader decodes any charset known to the WHATWG encoding index,
// which covers windows-1256 and iso-8859-6 Arabic mail.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

type parsedMessage struct {
	MessageID string
	Subject   string
	From      intake.Address
	Date      time.Time
	Body      intake.Body
}

// parseMessage reads a raw message. A text/plain part is preferred over
// text/html; attachments are ignored. An undecodable charset keeps the raw
// bytes rather than failing the message.
func parseMessage(r io.Reader) (*parsedMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer func() { _ = mr.Close() }()

	pm := &parsedMessage{
		MessageID: strings.Trim(strings.TrimSpace(mr.Header.Get("Message-Id")), "<>"),
	}
	if subject, err := mr.Header.Subject(); err == nil {
		pm.Subject = subject
	} else {
		pm.Subject = mr.Header.Get("Subject")
	}
	if date, err := mr.Header.Date(); err == nil {
		pm.Date = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		pm.From = intake.Address{Address: from[0].Address, Name: from[0].Name}
	}

	var html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("read part: %w", err)
		}
		if part == nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		if ct != "text/plain" && ct != "text/html" {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if ct == "text/plain" && pm.Body.Content == "" {
			pm.Body = intake.Body{Content: string(data), ContentType: intake.ContentText}
		}
		if ct == "text/html" && html == "" {
			html = string(data)
		}
	}
	if pm.Body.Content == "" && html != "" {
		pm.Body = intake.Body{Content: html, ContentType: intake.ContentHTML}
	}
	return pm, nil
}
