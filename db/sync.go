// ABOUTME: Database operations for the sync_state table
// ABOUTME: Tracks per-source poll status and the cursor the next poll starts from
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/tradedesk/errs"
)

// Sync statuses.
const (
	SyncIdle    = "idle"
	SyncSyncing = "syncing"
	SyncError   = "error"
)

// SyncState represents the poll state for a mail source.
type SyncState struct {
	Service       string
	LastSyncTime  *time.Time
	LastSyncToken *string
	Status        string
	ErrorMessage  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const syncStateColumns = `service, last_sync_time, last_sync_token, status, error_message, created_at, updated_at`

func scanSyncState(row rowScanner) (*SyncState, error) {
	var state SyncState
	var lastSyncTime sql.NullTime
	var lastSyncToken sql.NullString
	var errorMessage sql.NullString

	err := row.Scan(
		&state.Service,
		&lastSyncTime,
		&lastSyncToken,
		&state.Status,
		&errorMessage,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSyncTime.Valid {
		state.LastSyncTime = &lastSyncTime.Time
	}
	if lastSyncToken.Valid {
		state.LastSyncToken = &lastSyncToken.String
	}
	if errorMessage.Valid {
		state.ErrorMessage = &errorMessage.String
	}
	return &state, nil
}

// GetSyncState retrieves the poll state for a source, or nil, nil.
func GetSyncState(ctx context.Context, q Querier, service string) (*SyncState, error) {
	row := q.QueryRowContext(ctx, `SELECT `+syncStateColumns+` FROM sync_state WHERE service = ?`, service)
	state, err := scanSyncState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("failed to get sync state: %w", err))
	}
	return state, nil
}

// UpdateSyncStatus updates the status for a source. An empty errorMsg clears it.
func UpdateSyncStatus(ctx context.Context, q Querier, service, status, errorMsg string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_state (service, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = CURRENT_TIMESTAMP
	`, service, status, nullString(errorMsg))
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to update sync status: %w", err))
	}
	return nil
}

// MarkSynced records a successful poll that started at pollStart. The next
// poll reads messages received since then.
func MarkSynced(ctx context.Context, q Querier, service string, pollStart time.Time, token string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_state (service, last_sync_time, last_sync_token, status, created_at, updated_at)
		VALUES (?, ?, ?, 'idle', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			last_sync_time = excluded.last_sync_time,
			last_sync_token = excluded.last_sync_token,
			status = 'idle',
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`, service, pollStart.UTC(), nullString(token))
	if err != nil {
		return errs.Storage(fmt.Errorf("failed to mark synced: %w", err))
	}
	return nil
}

// GetAllSyncStates retrieves the poll state for every source.
func GetAllSyncStates(ctx context.Context, q Querier) ([]SyncState, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+syncStateColumns+` FROM sync_state ORDER BY service`)
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("failed to query sync states: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var states []SyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, errs.Storage(fmt.Errorf("failed to scan sync state: %w", err))
		}
		states = append(states, *state)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(fmt.Errorf("error iterating sync states: %w", err))
	}
	return states, nil
}
