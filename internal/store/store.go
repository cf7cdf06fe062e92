package store

import (
	"context"
	"fmt"
	"time"
)

// Group is the chat channel of one project workspace.
type Group struct {
	ID        int64
	ProjectID int64
	Name      string
	CreatedAt time.Time
}

// MemberRole describes how a user came to be in a group.
type MemberRole string

const (
	MemberRoleInstructor  MemberRole = "instructor"
	MemberRoleParticipant MemberRole = "participant"
)

// GroupMember is an accepted participation record.
type GroupMember struct {
	GroupID    int64
	UserID     int64
	Role       MemberRole
	AcceptedAt time.Time
}

// Message represents a persisted chat message. Exactly one of GroupID and
// RecipientID is set.
type Message struct {
	ID          int64
	SenderID    int64
	SenderName  string
	GroupID     *int64
	RecipientID *int64
	Body        string
	ClientKey   string // optional idempotency key chosen by the sender's client
	CreatedAt   time.Time
}

// IsGroup reports whether the message targets a group.
func (m *Message) IsGroup() bool {
	return m.GroupID != nil
}

// Page bounds a history query. A zero Limit means unbounded; a non-zero
// BeforeID returns messages older than that ID.
type Page struct {
	Limit    int
	BeforeID int64
}

// DirectKey returns the canonical conversation key for a user pair.
func DirectKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("dm:%d:%d", userA, userB)
}

// GroupKey returns the conversation key for a group.
func GroupKey(groupID int64) string {
	return fmt.Sprintf("group:%d", groupID)
}

// GroupStore handles group and membership persistence.
type GroupStore interface {
	// CreateGroup creates a group for a project.
	CreateGroup(ctx context.Context, projectID int64, name string) (*Group, error)

	// GetGroup retrieves a group by ID. Returns ErrNotFound if missing.
	GetGroup(ctx context.Context, id int64) (*Group, error)

	// AddMember records an accepted member. Adding an existing member is a no-op.
	AddMember(ctx context.Context, groupID, userID int64, role MemberRole) error

	// RemoveMember deletes a membership record.
	RemoveMember(ctx context.Context, groupID, userID int64) error

	// IsMember checks if user is a member of the group.
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)

	// MemberRole returns the user's role in the group. Returns ErrNotFound
	// if the user is not a member.
	MemberRole(ctx context.Context, groupID, userID int64) (MemberRole, error)

	// ListMembers lists member user IDs in acceptance order.
	ListMembers(ctx context.Context, groupID int64) ([]int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage validates and persists msg, assigning ID and CreatedAt.
	// When msg carries a ClientKey already used by the same sender, the
	// original message is returned and created is false. Reusing a key for
	// a different conversation fails with ErrValidation.
	AppendMessage(ctx context.Context, msg *Message) (saved *Message, created bool, err error)

	// ListGroupMessages returns group history ascending by creation time.
	ListGroupMessages(ctx context.Context, groupID int64, page Page) ([]*Message, error)

	// ListDirectMessages returns the direct conversation between two users
	// ascending by creation time.
	ListDirectMessages(ctx context.Context, userA, userB int64, page Page) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	GroupStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
