package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/projectchat-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB

	// clockMu guards lastCreated so assigned timestamps never go backwards,
	// keeping created_at order identical to insertion order.
	clockMu     sync.Mutex
	lastCreated int64
	now         func() time.Time
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema on an in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also serializes appends.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.loadClock(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) loadClock() error {
	var last sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(created_at) FROM messages`).Scan(&last); err != nil {
		return fmt.Errorf("load message clock: %w", err)
	}
	s.lastCreated = last.Int64
	return nil
}

// nextTimestamp returns a creation time strictly after every previously
// assigned one, even if the wall clock stepped backwards.
func (s *SQLiteStore) nextTimestamp() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	ts := s.now().UTC().UnixNano()
	if ts <= s.lastCreated {
		ts = s.lastCreated + 1
	}
	s.lastCreated = ts
	return ts
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// ==== GroupStore implementation ====

// CreateGroup creates a group for a project.
func (s *SQLiteStore) CreateGroup(ctx context.Context, projectID int64, name string) (*store.Group, error) {
	query := `
		INSERT INTO groups (project_id, name, created_at)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, projectID, name, s.now().UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetGroup(ctx, id)
}

// GetGroup retrieves a group by ID.
func (s *SQLiteStore) GetGroup(ctx context.Context, id int64) (*store.Group, error) {
	query := `
		SELECT id, project_id, name, created_at
		FROM groups
		WHERE id = ?
	`
	var (
		group   store.Group
		created int64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&group.ID, &group.ProjectID, &group.Name, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("group %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query group: %w", err)
	}
	group.CreatedAt = fromNanos(created)

	return &group, nil
}

// AddMember records an accepted member.
func (s *SQLiteStore) AddMember(ctx context.Context, groupID, userID int64, role store.MemberRole) error {
	query := `
		INSERT OR IGNORE INTO group_members (group_id, user_id, role, accepted_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, groupID, userID, string(role), s.now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert group member: %w", err)
	}

	return nil
}

// RemoveMember deletes a membership record.
func (s *SQLiteStore) RemoveMember(ctx context.Context, groupID, userID int64) error {
	query := `
		DELETE FROM group_members
		WHERE group_id = ? AND user_id = ?
	`
	_, err := s.db.ExecContext(ctx, query, groupID, userID)
	if err != nil {
		return fmt.Errorf("delete group member: %w", err)
	}

	return nil
}

// IsMember checks if user is a member of the group.
func (s *SQLiteStore) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	query := `
		SELECT 1 FROM group_members
		WHERE group_id = ? AND user_id = ?
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, groupID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}

	return true, nil
}

// MemberRole returns the user's role in the group.
func (s *SQLiteStore) MemberRole(ctx context.Context, groupID, userID int64) (store.MemberRole, error) {
	query := `
		SELECT role FROM group_members
		WHERE group_id = ? AND user_id = ?
	`
	var role string
	err := s.db.QueryRowContext(ctx, query, groupID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("query member role: %w", err)
	}

	return store.MemberRole(role), nil
}

// ListMembers lists member user IDs in acceptance order.
func (s *SQLiteStore) ListMembers(ctx context.Context, groupID int64) ([]int64, error) {
	query := `
		SELECT user_id FROM group_members
		WHERE group_id = ?
		ORDER BY accepted_at ASC, user_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, userID)
	}

	return members, rows.Err()
}

// ==== MessageStore implementation ====

const messageColumns = `id, sender_id, sender_name, group_id, recipient_id, body, COALESCE(client_key, ''), created_at`

// AppendMessage validates and persists a message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) (*store.Message, bool, error) {
	if err := store.ValidateMessage(msg); err != nil {
		return nil, false, err
	}

	if msg.ClientKey != "" {
		existing, err := s.findByClientKey(ctx, msg.SenderID, msg.ClientKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return resend(existing, msg)
		}
	}

	var clientKey any
	if msg.ClientKey != "" {
		clientKey = msg.ClientKey
	}

	created := s.nextTimestamp()
	query := `
		INSERT INTO messages (sender_id, sender_name, group_id, recipient_id, body, client_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.SenderID, msg.SenderName, nullable(msg.GroupID), nullable(msg.RecipientID), msg.Body, clientKey, created)
	if err != nil {
		// Lost a race with a concurrent append carrying the same key.
		if msg.ClientKey != "" && strings.Contains(err.Error(), "UNIQUE") {
			existing, findErr := s.findByClientKey(ctx, msg.SenderID, msg.ClientKey)
			if findErr == nil && existing != nil {
				return resend(existing, msg)
			}
		}
		return nil, false, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("get last insert id: %w", err)
	}

	saved := *msg
	saved.ID = id
	saved.CreatedAt = fromNanos(created)
	return &saved, true, nil
}

// resend answers a repeated client key. The key only identifies a resend
// when it targets the conversation of the original message.
func resend(existing, msg *store.Message) (*store.Message, bool, error) {
	if deref(existing.GroupID) != deref(msg.GroupID) || deref(existing.RecipientID) != deref(msg.RecipientID) {
		return nil, false, &store.ValidationError{Field: "client_key", Reason: "already used for another conversation"}
	}
	return existing, false, nil
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func (s *SQLiteStore) findByClientKey(ctx context.Context, senderID int64, key string) (*store.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE sender_id = ? AND client_key = ?
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, senderID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query message by client key: %w", err)
	}
	return msg, nil
}

// ListGroupMessages returns group history ascending by creation time.
func (s *SQLiteStore) ListGroupMessages(ctx context.Context, groupID int64, page store.Page) ([]*store.Message, error) {
	return s.listMessages(ctx, `group_id = ?`, []any{groupID}, page)
}

// ListDirectMessages returns the conversation between two users ascending by creation time.
func (s *SQLiteStore) ListDirectMessages(ctx context.Context, userA, userB int64, page store.Page) ([]*store.Message, error) {
	where := `((sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?))`
	return s.listMessages(ctx, where, []any{userA, userB, userB, userA}, page)
}

// listMessages selects the newest page in descending order and flips it, so
// a limited query returns the latest messages oldest-first.
func (s *SQLiteStore) listMessages(ctx context.Context, where string, args []any, page store.Page) ([]*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE ` + where
	if page.BeforeID > 0 {
		query += ` AND id < ?`
		args = append(args, page.BeforeID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if page.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, page.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var (
		msg         store.Message
		groupID     sql.NullInt64
		recipientID sql.NullInt64
		created     int64
	)
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.SenderName, &groupID, &recipientID, &msg.Body, &msg.ClientKey, &created); err != nil {
		return nil, err
	}
	if groupID.Valid {
		id := groupID.Int64
		msg.GroupID = &id
	}
	if recipientID.Valid {
		id := recipientID.Int64
		msg.RecipientID = &id
	}
	msg.CreatedAt = fromNanos(created)
	return &msg, nil
}

func nullable(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
