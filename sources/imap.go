// ABOUTME: IMAP mail source
// ABOUTME: Searches a folder by date, fetches bodies without marking them seen, and parses them
package sources

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/intake"
)

const (
	defaultIMAPTLSPort   = 993
	defaultIMAPPlainPort = 143
	imapDialTimeout      = 15 * time.Second
)

type IMAPOptions struct {
	Name     string
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type IMAPSource struct {
	opts   IMAPOptions
	logger zerolog.Logger
}

func NewIMAPSource(opts IMAPOptions, logger zerolog.Logger) *IMAPSource {
	if opts.Port == 0 {
		opts.Port = defaultIMAPTLSPort
		if opts.Insecure {
			opts.Port = defaultIMAPPlainPort
		}
	}
	return &IMAPSource{
		opts:   opts,
		logger: logger.With().Str("component", "imap").Str("source", opts.Name).Logger(),
	}
}

// Read returns up to max messages received at or after since, oldest first.
// IMAP SINCE has day granularity, so results are filtered again on the
// server's internal date.
func (s *IMAPSource) Read(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
	c, err := s.dial()
	if err != nil {
		return nil, errs.ProviderTransient(s.opts.Name, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()
	defer func() { _ = c.Logout() }()

	if err := c.Login(s.opts.Username, s.opts.Password); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.ProviderAuth(s.opts.Name, err)
	}

	msgs, err := s.read(c, folder, max, since)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.ProviderTransient(s.opts.Name, err)
	}
	return msgs, nil
}

func (s *IMAPSource) dial() (*client.Client, error) {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	dialer := &net.Dialer{Timeout: imapDialTimeout}
	if s.opts.Insecure {
		return client.DialWithDialer(dialer, addr)
	}
	return client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: s.opts.Host})
}

func (s *IMAPSource) read(c *client.Client, folder string, max int, since time.Time) ([]intake.Message, error) {
	mbox, err := c.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", folder, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since
	}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	msgs, err := fetchPage(uids, max, func(chunk []uint32) ([]intake.Message, error) {
		return s.fetch(c, folder, mbox.UidValidity, chunk, since)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt) })
	if max > 0 && len(msgs) > max {
		msgs = msgs[:max]
	}
	return msgs, nil
}

// fetchPage fetches sorted uids oldest first in chunks of max and stops once
// max messages are in hand. UIDs ascend with arrival. SINCE matches whole
// days, so a chunk can come back short after fetch drops early messages.
func fetchPage(uids []uint32, max int, fetch func([]uint32) ([]intake.Message, error)) ([]intake.Message, error) {
	chunk := len(uids)
	if max > 0 {
		chunk = max
	}
	var msgs []intake.Message
	for len(uids) > 0 && (max <= 0 || len(msgs) < max) {
		n := min(chunk, len(uids))
		got, err := fetch(uids[:n])
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, got...)
		uids = uids[n:]
	}
	return msgs, nil
}

func (s *IMAPSource) fetch(c *client.Client, folder string, validity uint32, uids []uint32, since time.Time) ([]intake.Message, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchInternalDate, imap.FetchEnvelope, section.FetchItem()}

	fetched := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, fetched)
	}()

	var msgs []intake.Message
	for m := range fetched {
		if !since.IsZero() && m.InternalDate.Before(since) {
			continue
		}
		msg, err := s.convert(folder, validity, m, section)
		if err != nil {
			s.logger.Warn().Err(err).Uint32("uid", m.Uid).Msg("skipping unparseable message")
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return msgs, nil
}

func (s *IMAPSource) convert(folder string, validity uint32, m *imap.Message, section *imap.BodySectionName) (intake.Message, error) {
	msg := intake.Message{
		ID:         fmt.Sprintf("%s:%d:%d", folder, validity, m.Uid),
		ReceivedAt: m.InternalDate,
		IsRead:     hasFlag(m.Flags, imap.SeenFlag),
	}
	if env := m.Envelope; env != nil {
		msg.Subject = env.Subject
		if env.MessageId != "" {
			msg.ID = strings.Trim(env.MessageId, "<>")
		}
		if len(env.From) > 0 {
			msg.From = intake.Address{Address: env.From[0].Address(), Name: env.From[0].PersonalName}
		}
	}

	body := m.GetBody(section)
	if body == nil {
		return msg, nil
	}
	pm, err := parseMessage(body)
	if err != nil {
		return msg, err
	}
	msg.Body = pm.Body
	if pm.Subject != "" {
		// Envelope subjects keep RFC 2047 encoded words; the parsed header is decoded.
		msg.Subject = pm.Subject
	}
	if msg.From.Address == "" {
		msg.From = pm.From
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = pm.Date
	}
	return msg, nil
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}
