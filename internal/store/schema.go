package store

import "fmt"

// schema creates the analytics tables. tenant_id is nullable on records
// and tasks: rows imported before tenancy keep a NULL tenant and stay
// visible to every tenant that tolerates legacy rows.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		status TEXT NOT NULL DEFAULT 'new',
		temperature TEXT,
		assignee_id TEXT,
		owner_name TEXT,
		address TEXT,
		city TEXT,
		state TEXT,
		board_id TEXT,
		column_id TEXT,
		estimated_value REAL,
		phone_count INTEGER NOT NULL DEFAULT 0,
		email_count INTEGER NOT NULL DEFAULT 0,
		tag_count INTEGER NOT NULL DEFAULT 0,
		motivation_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		record_id TEXT REFERENCES records(id) ON DELETE CASCADE,
		title TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		assignee_id TEXT,
		due_date TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS phones (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
		number TEXT NOT NULL,
		phone_type TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS emails (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
		address TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS record_tags (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
		tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL,
		UNIQUE(record_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS record_motivations (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
		motivation_id TEXT NOT NULL REFERENCES motivations(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL,
		UNIQUE(record_id, motivation_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS motivations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS boards (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT,
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_records_tenant ON records(tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_records_status ON records(tenant_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_records_assignee ON records(tenant_id, assignee_id)`,
	`CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_tenant ON tasks(tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_record ON tasks(record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date)`,
	`CREATE INDEX IF NOT EXISTS idx_phones_record ON phones(record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_emails_record ON emails(record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_record_tags_record ON record_tags(record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_record_tags_tag ON record_tags(tag_id)`,
	`CREATE INDEX IF NOT EXISTS idx_record_motivations_record ON record_motivations(record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_record_motivations_motivation ON record_motivations(motivation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_tenant ON tags(tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_motivations_tenant ON motivations(tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_boards_tenant ON boards(tenant_id)`,
}

// EnsureSchema creates missing tables and indexes. Idempotent.
func (db *DB) EnsureSchema() error {
	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
