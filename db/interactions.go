// ABOUTME: Interaction database operations
// ABOUTME: Append-only interaction rows with per-client external id dedup
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/models"
)

const interactionColumns = `id, client_id, date, channel, message_type, subject, body, applied_delta, external_id, created_at`

func scanInteraction(row rowScanner) (*models.Interaction, error) {
	in := &models.Interaction{}
	var subject, externalID sql.NullString
	err := row.Scan(
		&in.ID,
		&in.ClientID,
		&in.Date,
		&in.Channel,
		&in.MessageType,
		&subject,
		&in.Body,
		&in.AppliedDelta,
		&externalID,
		&in.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	in.Subject = subject.String
	in.ExternalID = externalID.String
	return in, nil
}

// InsertInteraction appends in, assigning an id when it has none.
func InsertInteraction(ctx context.Context, q Querier, in *models.Interaction) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	in.CreatedAt = time.Now().UTC()
	if in.Date.IsZero() {
		in.Date = in.CreatedAt
	}
	in.Date = in.Date.UTC()

	_, err := q.ExecContext(ctx, `
		INSERT INTO interactions (id, client_id, date, channel, message_type, subject, body, applied_delta, external_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.ID, in.ClientID, in.Date, in.Channel, in.MessageType, nullString(in.Subject), in.Body,
		in.AppliedDelta, nullString(in.ExternalID), in.CreatedAt)
	if err != nil {
		return errs.Storage(fmt.Errorf("insert interaction: %w", err))
	}
	return nil
}

// FindInteractionByExternalID returns nil, nil when the client has no
// interaction with that external id.
func FindInteractionByExternalID(ctx context.Context, q Querier, clientID int64, externalID string) (*models.Interaction, error) {
	if externalID == "" {
		return nil, nil
	}
	row := q.QueryRowContext(ctx, `SELECT `+interactionColumns+` FROM interactions WHERE client_id = ? AND external_id = ?`,
		clientID, externalID)
	in, err := scanInteraction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("find interaction: %w", err))
	}
	return in, nil
}

// ListInteractions returns a client's interactions, newest first.
func ListInteractions(ctx context.Context, q Querier, clientID int64, limit int) ([]*models.Interaction, error) {
	query := `SELECT ` + interactionColumns + ` FROM interactions WHERE client_id = ? ORDER BY date DESC, created_at DESC`
	args := []any{clientID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, errs.Storage(fmt.Errorf("scan interaction: %w", err))
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err)
	}
	return out, nil
}

// SumAppliedDeltas totals every applied delta recorded for a client.
func SumAppliedDeltas(ctx context.Context, q Querier, clientID int64) (int, error) {
	var sum int
	err := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(applied_delta), 0) FROM interactions WHERE client_id = ?`,
		clientID).Scan(&sum)
	if err != nil {
		return 0, errs.Storage(fmt.Errorf("sum deltas: %w", err))
	}
	return sum, nil
}

// CountInteractions counts all interaction rows.
func CountInteractions(ctx context.Context, q Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n); err != nil {
		return 0, errs.Storage(err)
	}
	return n, nil
}
