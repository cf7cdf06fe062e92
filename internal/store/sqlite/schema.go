package sqlite

import (
	"database/sql"
	"fmt"
)

// schema is applied idempotently on startup. created_at columns hold Unix
// nanoseconds so ordering is exact.
const schema = `
CREATE TABLE IF NOT EXISTS groups (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_groups_project ON groups(project_id);

CREATE TABLE IF NOT EXISTS group_members (
	group_id    INTEGER NOT NULL,
	user_id     INTEGER NOT NULL,
	role        TEXT NOT NULL DEFAULT 'participant',
	accepted_at INTEGER NOT NULL,
	PRIMARY KEY (group_id, user_id),
	FOREIGN KEY (group_id) REFERENCES groups(id)
);

CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id);

CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id    INTEGER NOT NULL,
	sender_name  TEXT NOT NULL DEFAULT '',
	group_id     INTEGER,
	recipient_id INTEGER,
	body         TEXT NOT NULL,
	client_key   TEXT,
	created_at   INTEGER NOT NULL,
	CHECK ((group_id IS NULL) <> (recipient_id IS NULL)),
	FOREIGN KEY (group_id) REFERENCES groups(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_messages_direct ON messages(sender_id, recipient_id, created_at, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_client_key ON messages(sender_id, client_key)
	WHERE client_key IS NOT NULL;
`

// Migrate applies the schema to db. It is safe to run repeatedly and can be
// passed directly to NewWithSetup.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
