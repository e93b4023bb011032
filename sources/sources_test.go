// ABOUTME: Tests for source configuration, secrets, tokens, message parsing and the breaker
// ABOUTME: Keyring access is mocked; everything else runs in-process
package sources

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
	"golang.org/x/text/encoding/htmlindex"
	"google.golang.org/api/gmail/v1"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/models"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"ok imap", Config{Name: "a", Kind: KindIMAP, Host: "mail.example.com", Username: "u"}, ""},
		{"ok gmail", Config{Name: "g", Kind: KindGmail}, ""},
		{"missing name", Config{Kind: KindGmail}, "sources[0].name"},
		{"unknown kind", Config{Name: "x", Kind: "pop3"}, "sources[0].kind"},
		{"imap without host", Config{Name: "a", Kind: KindIMAP, Username: "u"}, "sources[0].host"},
		{"graph without mailbox", Config{Name: "g", Kind: KindGraph, ClientID: "id"}, "sources[0].mailbox"},
		{"cpanel without url", Config{Name: "c", Kind: KindCPanel, Username: "u"}, "sources[0].base_url"},
		{"bad channel", Config{Name: "g", Kind: KindGmail, Channel: "Pigeon"}, "sources[0].channel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(0)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce *errs.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestBuildAllWiresGuardedFeeds(t *testing.T) {
	t.Setenv("CPANEL_PASSWORD", "secret")
	feeds, err := BuildAll(context.Background(), []Config{
		{Name: "webmail", Kind: KindCPanel, BaseURL: "http://localhost:2096", Username: "sales", SecretEnv: "CPANEL_PASSWORD"},
	}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, feeds, 1)

	assert.Equal(t, "webmail", feeds[0].Name)
	assert.Equal(t, "INBOX", feeds[0].Folder)
	assert.Equal(t, models.ChannelEmail, feeds[0].Channel)
	assert.IsType(t, &Guard{}, feeds[0].Source)
}

func TestBuildAllRejectsDuplicateNames(t *testing.T) {
	_, err := BuildAll(context.Background(), []Config{
		{Name: "g", Kind: KindGmail},
		{Name: "g", Kind: KindGmail},
	}, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrConfigInvalid)
}

func TestSecretLookupOrder(t *testing.T) {
	keyring.MockInit()

	_, err := Secret("imap-sales", "TRADEDESK_TEST_SECRET")
	assert.ErrorIs(t, err, errs.ErrConfigInvalid)

	require.NoError(t, SetSecret("imap-sales", "from-keyring"))
	got, err := Secret("imap-sales", "TRADEDESK_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", got)

	t.Setenv("TRADEDESK_TEST_SECRET", "from-env")
	got, err = Secret("imap-sales", "TRADEDESK_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	require.NoError(t, DeleteSecret("imap-sales"))
	require.NoError(t, DeleteSecret("imap-sales"))
	assert.ErrorIs(t, SetSecret("imap-sales", "  "), errs.ErrConfigInvalid)
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens", "gmail.json")
	token := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", Expiry: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, SaveToken(path, token))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.True(t, got.Expiry.Equal(token.Expiry))

	_, err = LoadToken(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParseMessageMultipartPrefersPlainText(t *testing.T) {
	raw := strings.Join([]string{
		"Message-Id: <abc@acme-foods.de>",
		"From: =?utf-8?q?J=C3=BCrgen?= <jurgen@acme-foods.de>",
		"Subject: =?utf-8?b?T25pb24gZmxha2Vz?=",
		"Date: Mon, 04 May 2026 10:00:00 +0200",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Please send price</p>",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Please send price",
		"--b1--",
		"",
	}, "\r\n")

	pm, err := parseMessage(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "abc@acme-foods.de", pm.MessageID)
	assert.Equal(t, "Onion flakes", pm.Subject)
	assert.Equal(t, "jurgen@acme-foods.de", pm.From.Address)
	assert.Equal(t, "Jürgen", pm.From.Name)
	assert.Equal(t, intake.ContentText, pm.Body.ContentType)
	assert.Equal(t, "Please send price", strings.TrimSpace(pm.Body.Content))
	assert.Equal(t, time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC), pm.Date.UTC())
}

func TestParseMessageDecodesArabicCharset(t *testing.T) {
	enc, err := htmlindex.Get("windows-1256")
	require.NoError(t, err)
	body, err := enc.NewEncoder().String("نحتاج عرض سعر للبصل المجفف")
	require.NoError(t, err)

	raw := "From: buyer@cairo-trading.com\r\n" +
		"Subject: inquiry\r\n" +
		"Content-Type: text/plain; charset=windows-1256\r\n\r\n" + body

	pm, err := parseMessage(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "نحتاج عرض سعر للبصل المجفف", pm.Body.Content)
}

func TestParseMessageFallsBackToHTML(t *testing.T) {
	raw := "From: a@b.com\r\nContent-Type: text/html\r\n\r\n<b>Need samples</b>"
	pm, err := parseMessage(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, intake.ContentHTML, pm.Body.ContentType)
	assert.Equal(t, "<b>Need samples</b>", pm.Body.Content)
}

func TestConvertGmail(t *testing.T) {
	enc := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }
	m := &gmail.Message{
		Id:           "18f2c",
		InternalDate: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC).UnixMilli(),
		LabelIds:     []string{"INBOX", "UNREAD"},
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Dehydrated garlic"},
				{Name: "From", Value: "Omar Haddad <omar@levant-foods.com>"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: enc("<p>MOQ?</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: enc("What is your MOQ?")}},
				{MimeType: "application/pdf", Filename: "specs.pdf", Body: &gmail.MessagePartBody{Data: enc("%PDF")}},
			},
		},
	}

	msg := convertGmail(m)
	assert.Equal(t, "18f2c", msg.ID)
	assert.Equal(t, "Dehydrated garlic", msg.Subject)
	assert.Equal(t, intake.Address{Address: "omar@levant-foods.com", Name: "Omar Haddad"}, msg.From)
	assert.Equal(t, "What is your MOQ?", msg.Body.Content)
	assert.Equal(t, intake.ContentText, msg.Body.ContentType)
	assert.False(t, msg.IsRead)
	assert.Equal(t, time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC), msg.ReceivedAt)
}

func TestConvertGmailFallsBackToSnippet(t *testing.T) {
	msg := convertGmail(&gmail.Message{Id: "x", Snippet: "short preview", Payload: &gmail.MessagePart{MimeType: "multipart/mixed"}})
	assert.Equal(t, "short preview", msg.Body.Content)
	assert.True(t, msg.IsRead)
}

func TestGuardOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	failing := intake.SourceFunc(func(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
		calls++
		return nil, errors.New("connection refused")
	})
	g := NewGuard("flaky", failing, zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, err := g.Read(context.Background(), "INBOX", 10, time.Time{})
		require.Error(t, err)
	}
	assert.Equal(t, "open", g.State())

	_, err := g.Read(context.Background(), "INBOX", 10, time.Time{})
	assert.ErrorIs(t, err, errs.ErrProviderTransient)
	assert.Equal(t, 5, calls, "an open breaker does not call the source")
}

func TestGuardIgnoresCancellation(t *testing.T) {
	cancelled := intake.SourceFunc(func(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
		return nil, context.Canceled
	})
	g := NewGuard("s", cancelled, zerolog.Nop())
	for i := 0; i < 10; i++ {
		_, _ = g.Read(context.Background(), "INBOX", 10, time.Time{})
	}
	assert.Equal(t, "closed", g.State())
}

func TestGuardPassesMessagesThrough(t *testing.T) {
	ok := intake.SourceFunc(func(ctx context.Context, folder string, max int, since time.Time) ([]intake.Message, error) {
		return []intake.Message{{ID: "1"}, {ID: "2"}}, nil
	})
	msgs, err := NewGuard("s", ok, zerolog.Nop()).Read(context.Background(), "INBOX", 10, time.Time{})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestFetchPageStopsOnceFull(t *testing.T) {
	uids := make([]uint32, 1000)
	for i := range uids {
		uids[i] = uint32(i + 1)
	}

	var fetched []uint32
	fetch := func(chunk []uint32) ([]intake.Message, error) {
		fetched = append(fetched, chunk...)
		msgs := make([]intake.Message, len(chunk))
		for i, uid := range chunk {
			msgs[i] = intake.Message{ID: fmt.Sprint(uid)}
		}
		return msgs, nil
	}

	msgs, err := fetchPage(uids, 25, fetch)
	require.NoError(t, err)
	assert.Len(t, msgs, 25)
	assert.Len(t, fetched, 25)
	assert.Equal(t, uint32(1), fetched[0])
	assert.Equal(t, uint32(25), fetched[24])
}

func TestFetchPageContinuesPastFilteredMessages(t *testing.T) {
	uids := []uint32{1, 2, 3, 4, 5, 6, 7}

	calls := 0
	fetch := func(chunk []uint32) ([]intake.Message, error) {
		calls++
		var msgs []intake.Message
		for _, uid := range chunk {
			// The oldest two fall before the cursor on the same day.
			if uid > 2 {
				msgs = append(msgs, intake.Message{ID: fmt.Sprint(uid)})
			}
		}
		return msgs, nil
	}

	msgs, err := fetchPage(uids, 3, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, msgs, 4)
	assert.Equal(t, "3", msgs[0].ID)

	_, err = fetchPage(uids, 3, func([]uint32) ([]intake.Message, error) { return nil, errors.New("boom") })
	assert.Error(t, err)

	msgs, err = fetchPage(uids, 0, fetch)
	require.NoError(t, err)
	assert.Len(t, msgs, 5)
}
