// ABOUTME: Client database operations
// ABOUTME: Lookups by email and domain, inserts guarded by the email UNIQUE index, score updates
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/tradedesk/errs"
	"github.com/harperreed/tradedesk/models"
)

const clientColumns = `id, company_name, country, contact_person, email, phone, website,
	status, score, classification, focus, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	c := &models.Client{}
	var country, person, email, phone, website sql.NullString
	err := row.Scan(
		&c.ID,
		&c.CompanyName,
		&country,
		&person,
		&email,
		&phone,
		&website,
		&c.Status,
		&c.Score,
		&c.Classification,
		&c.Focus,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Country = country.String
	c.ContactPerson = person.String
	c.Email = email.String
	c.Phone = phone.String
	c.Website = website.String
	return c, nil
}

func queryClients(ctx context.Context, q Querier, query string, args ...any) ([]*models.Client, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage(err)
	}
	defer func() { _ = rows.Close() }()

	var clients []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, errs.Storage(fmt.Errorf("scan client: %w", err))
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err)
	}
	return clients, nil
}

// EmailDomain returns the lowercased part after the last @, or "".
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

// FindClientByEmail does a case-insensitive exact match. It returns nil, nil
// when no client has that email.
func FindClientByEmail(ctx context.Context, q Querier, email string) (*models.Client, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}

	row := q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE lower(email) = ?`, email)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("find client by email: %w", err))
	}
	return c, nil
}

// FindClientsByDomain returns every client whose email is at domain, oldest first.
func FindClientsByDomain(ctx context.Context, q Querier, domain string) ([]*models.Client, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, nil
	}
	return queryClients(ctx, q, `SELECT `+clientColumns+` FROM clients WHERE email_domain = ? ORDER BY id`, domain)
}

func GetClient(ctx context.Context, q Querier, id int64) (*models.Client, error) {
	row := q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage(fmt.Errorf("get client: %w", err))
	}
	return c, nil
}

// InsertClient stores c and fills in its id and timestamps. The email is
// lowercased. A clash with an existing email surfaces as a storage error for
// which IsUniqueViolation is true.
func InsertClient(ctx context.Context, q Querier, c *models.Client) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Status == "" {
		c.Status = models.StatusNew
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO clients (company_name, country, contact_person, email, email_domain, phone, website,
			status, score, classification, focus, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.CompanyName, nullString(c.Country), nullString(c.ContactPerson), nullString(c.Email),
		nullString(EmailDomain(c.Email)), nullString(c.Phone), nullString(c.Website),
		c.Status, c.Score, c.Classification, c.Focus, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return errs.Storage(fmt.Errorf("insert client: %w", err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errs.Storage(err)
	}
	c.ID = id
	return nil
}

// UpdateClientScore writes the status, score and classification of a client.
func UpdateClientScore(ctx context.Context, q Querier, id int64, status string, score int, classification string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE clients SET status = ?, score = ?, classification = ?, updated_at = ?
		WHERE id = ?
	`, status, score, classification, time.Now().UTC(), id)
	if err != nil {
		return errs.Storage(fmt.Errorf("update client: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Storage(err)
	}
	if n == 0 {
		return fmt.Errorf("client %d: %w", id, errs.ErrNotFound)
	}
	return nil
}

// SetClientFocus toggles the operator focus flag.
func SetClientFocus(ctx context.Context, q Querier, id int64, focus bool) error {
	res, err := q.ExecContext(ctx, `UPDATE clients SET focus = ?, updated_at = ? WHERE id = ?`,
		focus, time.Now().UTC(), id)
	if err != nil {
		return errs.Storage(fmt.Errorf("set focus: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("client %d: %w", id, errs.ErrNotFound)
	}
	return nil
}

type ClientFilter struct {
	Classification string
	Status         string
	FocusOnly      bool
	Limit          int
}

// ListClients returns clients ordered by score, highest first.
func ListClients(ctx context.Context, q Querier, f ClientFilter) ([]*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE 1=1`
	var args []any

	if f.Classification != "" {
		query += ` AND classification = ?`
		args = append(args, f.Classification)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.FocusOnly {
		query += ` AND focus = 1`
	}

	query += ` ORDER BY score DESC, id ASC`

	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return queryClients(ctx, q, query, args...)
}

// ClientsIdleSince returns clients with no interaction dated at or after
// cutoff and created before it.
func ClientsIdleSince(ctx context.Context, q Querier, cutoff time.Time) ([]*models.Client, error) {
	// Stored times are UTC strings; a zoned cutoff would compare out of order.
	cutoff = cutoff.UTC()
	return queryClients(ctx, q, `
		SELECT `+clientColumns+` FROM clients c
		WHERE c.created_at < ?
		AND NOT EXISTS (
			SELECT 1 FROM interactions i WHERE i.client_id = c.id AND i.date >= ?
		)
		ORDER BY c.id
	`, cutoff, cutoff)
}
