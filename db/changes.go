// ABOUTME: Classification change log operations
// ABOUTME: Band transitions persisted alongside the interaction that caused them
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/models"
)

func InsertClassificationChange(ctx context.Context, q Querier, c *models.ClassificationChange) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO classification_changes (id, client_id, old_band, new_band, old_score, new_score, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ClientID, c.OldBand, c.NewBand, c.OldScore, c.NewScore, nullString(c.Reason), c.CreatedAt.UTC())
	if err != nil {
		return errs.Storage(fmt.Errorf("insert classification change: %w", err))
	}
	return nil
}

// ListClassificationChanges returns changes at or after since, newest first.
// A zero since returns everything.
func ListClassificationChanges(ctx context.Context, q Querier, since time.Time, limit int) ([]*models.ClassificationChange, error) {
	query := `
		SELECT id, client_id, old_band, new_band, old_score, new_score, COALESCE(reason, ''), created_at
		FROM classification_changes
		WHERE created_at >= ?
		ORDER BY created_at DESC, id DESC`
	args := []any{since.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.ClassificationChange
	for rows.Next() {
		c := &models.ClassificationChange{}
		if err := rows.Scan(&c.ID, &c.ClientID, &c.OldBand, &c.NewBand, &c.OldScore, &c.NewScore, &c.Reason, &c.CreatedAt); err != nil {
			return nil, errs.Storage(fmt.Errorf("scan classification change: %w", err))
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err)
	}
	return out, nil
}
