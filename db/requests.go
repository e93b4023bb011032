// ABOUTME: Request database operations
// ABOUTME: Creation, open-request lookup for dedup, and the pending to replied transition
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

const requestColumns = `id, client_id, email, interaction_id, request_type, status, reply_status, created_at, replied_at`

func scanRequest(row rowScanner) (*models.Request, error) {
	r := &models.Request{}
	var email, interactionID sql.NullString
	var repliedAt sql.NullTime
	err := row.Scan(
		&r.ID,
		&r.ClientID,
		&email,
		&interactionID,
		&r.RequestType,
		&r.Status,
		&r.ReplyStatus,
		&r.CreatedAt,
		&repliedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Email = email.String
	r.InteractionID = interactionID.String
	if repliedAt.Valid {
		r.RepliedAt = &repliedAt.Time
	}
	return r, nil
}

// InsertRequest stores r as open and pending.
func InsertRequest(ctx context.Context, q Querier, r *models.Request) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Status = models.RequestOpen
	r.ReplyStatus = models.ReplyPending

	_, err := q.ExecContext(ctx, `
		INSERT INTO requests (id, client_id, email, interaction_id, request_type, status, reply_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ClientID, nullString(r.Email), nullString(r.InteractionID), r.RequestType,
		r.Status, r.ReplyStatus, r.CreatedAt.UTC())
	if err != nil {
		return errs.Storage(fmt.Errorf("insert request: %w", err))
	}
	return nil
}

// LatestOpenRequest returns the newest open request of requestType for a
// client, or nil, nil.
func LatestOpenRequest(ctx context.Context, q Querier, clientID int64, requestType string) (*models.Request, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE client_id = ? AND request_type = ? AND status = 'open'
		ORDER BY created_at DESC LIMIT 1
	`, clientID, requestType)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("find open request: %w", err))
	}
	return r, nil
}

func GetRequest(ctx context.Context, q Querier, id string) (*models.Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("get request: %w", err))
	}
	return r, nil
}

type RequestFilter struct {
	ClientID    int64
	ReplyStatus string
	Limit       int
}

// ListRequests returns requests newest first.
func ListRequests(ctx context.Context, q Querier, f RequestFilter) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	var args []any
	if f.ClientID != 0 {
		query += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.ReplyStatus != "" {
		query += ` AND reply_status = ?`
		args = append(args, f.ReplyStatus)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, errs.Storage(fmt.Errorf("scan request: %w", err))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err)
	}
	return out, nil
}

// UpdateRequestReplyStatus sets the reply status and lifecycle status of a
// request. Only pending requests change; anything else is ErrInvalidState.
func UpdateRequestReplyStatus(ctx context.Context, q Querier, id, replyStatus, status string, at time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE requests SET reply_status = ?, status = ?, replied_at = ?
		WHERE id = ? AND reply_status = 'pending'
	`, replyStatus, status, at.UTC(), id)
	if err != nil {
		return errs.Storage(fmt.Errorf("update request: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Storage(err)
	}
	if n == 0 {
		existing, err := GetRequest(ctx, q, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("request %s: %w", id, errs.ErrNotFound)
		}
		return fmt.Errorf("request %s is already %s: %w", id, existing.ReplyStatus, errs.ErrInvalidState)
	}
	return nil
}
