// ABOUTME: Database schema definitions
// ABOUTME: Clients, interactions, requests, classification changes and per-source poll state
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	company_name TEXT NOT NULL,
	country TEXT,
	contact_person TEXT,
	email TEXT,
	email_domain TEXT,
	phone TEXT,
	website TEXT,
	status TEXT NOT NULL DEFAULT 'New',
	score INTEGER NOT NULL DEFAULT 0,
	classification TEXT NOT NULL,
	focus INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_email ON clients(lower(email)) WHERE email IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_clients_email_domain ON clients(email_domain);
CREATE INDEX IF NOT EXISTS idx_clients_classification ON clients(classification);

CREATE TABLE IF NOT EXISTS interactions (
	id TEXT PRIMARY KEY,
	client_id INTEGER NOT NULL,
	date DATETIME NOT NULL,
	channel TEXT NOT NULL,
	message_type TEXT NOT NULL,
	subject TEXT,
	body TEXT NOT NULL DEFAULT '',
	applied_delta INTEGER NOT NULL,
	external_id TEXT,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (client_id) REFERENCES clients(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_interactions_external ON interactions(client_id, external_id) WHERE external_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_interactions_client_date ON interactions(client_id, date);

CREATE TABLE IF NOT EXISTS requests (
	id TEXT PRIMARY KEY,
	client_id INTEGER NOT NULL,
	email TEXT,
	interaction_id TEXT,
	request_type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'closed')),
	reply_status TEXT NOT NULL DEFAULT 'pending' CHECK(reply_status IN ('pending', 'replied')),
	created_at DATETIME NOT NULL,
	replied_at DATETIME,
	FOREIGN KEY (client_id) REFERENCES clients(id),
	FOREIGN KEY (interaction_id) REFERENCES interactions(id)
);

CREATE INDEX IF NOT EXISTS idx_requests_client_type ON requests(client_id, request_type, status);
CREATE INDEX IF NOT EXISTS idx_requests_reply_status ON requests(reply_status);

CREATE TABLE IF NOT EXISTS classification_changes (
	id TEXT PRIMARY KEY,
	client_id INTEGER NOT NULL,
	old_band TEXT NOT NULL,
	new_band TEXT NOT NULL,
	old_score INTEGER NOT NULL,
	new_score INTEGER NOT NULL,
	reason TEXT,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (client_id) REFERENCES clients(id)
);

CREATE INDEX IF NOT EXISTS idx_classification_changes_created ON classification_changes(created_at);

CREATE TABLE IF NOT EXISTS sync_state (
	service TEXT PRIMARY KEY,
	last_sync_time DATETIME,
	last_sync_token TEXT,
	status TEXT NOT NULL DEFAULT 'idle' CHECK(status IN ('idle', 'syncing', 'error')),
	error_message TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
