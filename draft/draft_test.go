// ABOUTME: Tests for draft-reply payload building
// ABOUTME: Subject threading, template choice and attachment checks
package draft

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/tradedesk/db"
	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/models"
)

func TestBuildPriceReply(t *testing.T) {
	client := &models.Client{ID: 1, Email: "sales@acme-foods.de", ContactPerson: "Jane"}
	last := &models.Interaction{Subject: "Dehydrated onion price inquiry", ExternalID: "AAMkAD-1"}

	p, err := Build(client, last, models.IntentPrice, Options{Signature: "Export desk"})
	require.NoError(t, err)
	assert.Equal(t, "sales@acme-foods.de", p.To)
	assert.Equal(t, "Re: Dehydrated onion price inquiry", p.Subject)
	assert.Equal(t, "AAMkAD-1", p.InReplyToID)
	assert.Contains(t, p.Body, "Dear Jane,")
	assert.Contains(t, p.Body, "price list")
	assert.Contains(t, p.Body, "Export desk")
	assert.Empty(t, p.AttachmentPath)
}

func TestBuildKeepsExistingReplyPrefix(t *testing.T) {
	client := &models.Client{Email: "a@b.com"}
	p, err := Build(client, &models.Interaction{Subject: "RE: samples"}, models.IntentSample, Options{})
	require.NoError(t, err)
	assert.Equal(t, "RE: samples", p.Subject)
	assert.Contains(t, p.Body, "Dear Sir/Madam,")
	assert.Contains(t, p.Body, "samples")
}

func TestBuildWithoutHistory(t *testing.T) {
	p, err := Build(&models.Client{Email: "a@b.com"}, nil, "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Dehydrated vegetables", p.Subject)
	assert.Empty(t, p.InReplyToID)
	assert.Contains(t, p.Body, "get back to you")
}

func TestBuildAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricelist.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0644))

	p, err := Build(&models.Client{Email: "a@b.com"}, nil, models.IntentPrice, Options{AttachmentPath: path})
	require.NoError(t, err)
	assert.Equal(t, path, p.AttachmentPath)

	_, err = Build(&models.Client{Email: "a@b.com"}, nil, models.IntentPrice, Options{AttachmentPath: path + ".missing"})
	assert.ErrorIs(t, err, errs.ErrConfigInvalid)
}

func TestBuildRequiresEmail(t *testing.T) {
	_, err := Build(&models.Client{ID: 9}, nil, "", Options{})
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	_, err = Build(nil, nil, "", Options{})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestWriteOmitsEmptyOptionals(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &Payload{To: "a@b.com", Subject: "Re: x", Body: "<hi>"}))
	out := buf.String()
	assert.NotContains(t, out, "attachment_path")
	assert.NotContains(t, out, "in_reply_to_id")
	assert.Contains(t, out, `"body": "<hi>"`)
}

func TestForClientUsesLatestInteractionAndPendingRequest(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "draft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	client := &models.Client{CompanyName: "Acme-Foods", Email: "sales@acme-foods.de", Classification: "Potential"}
	require.NoError(t, db.InsertClient(ctx, database, client))
	in := &models.Interaction{
		ClientID:    client.ID,
		Channel:     models.ChannelEmail,
		MessageType: models.MessageSamplesRequest,
		Subject:     "Samples of dried carrot",
		ExternalID:  "msg-7",
	}
	require.NoError(t, db.InsertInteraction(ctx, database, in))
	require.NoError(t, db.InsertRequest(ctx, database, &models.Request{
		ClientID:      client.ID,
		InteractionID: in.ID,
		RequestType:   models.IntentSample,
	}))

	p, err := ForClient(ctx, database, client.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Re: Samples of dried carrot", p.Subject)
	assert.Equal(t, "msg-7", p.InReplyToID)
	assert.Contains(t, p.Body, "send samples")

	_, err = ForClient(ctx, database, client.ID+100, Options{})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
