package core

import (
	"time"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

// Message is the domain model for a chat message. Exactly one of GroupID
// and RecipientID is non-zero.
type Message struct {
	ID          int64
	SenderID    int64
	SenderName  string
	GroupID     int64
	RecipientID int64
	Body        string
	ClientKey   string
	CreatedAt   time.Time
}

// IsGroup reports whether the message targets a group.
func (m Message) IsGroup() bool {
	return m.GroupID != 0
}

// ConversationKey identifies the ordering domain of the message.
func (m Message) ConversationKey() string {
	if m.IsGroup() {
		return store.GroupKey(m.GroupID)
	}
	return store.DirectKey(m.SenderID, m.RecipientID)
}

func messageFromStore(m *store.Message) Message {
	msg := Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Body:       m.Body,
		ClientKey:  m.ClientKey,
		CreatedAt:  m.CreatedAt,
	}
	if m.GroupID != nil {
		msg.GroupID = *m.GroupID
	}
	if m.RecipientID != nil {
		msg.RecipientID = *m.RecipientID
	}
	return msg
}

func messagesFromStore(in []*store.Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		out = append(out, messageFromStore(m))
	}
	return out
}

func (m Message) toStore() *store.Message {
	out := &store.Message{
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Body:       m.Body,
		ClientKey:  m.ClientKey,
	}
	if m.GroupID != 0 {
		id := m.GroupID
		out.GroupID = &id
	}
	if m.RecipientID != 0 {
		id := m.RecipientID
		out.RecipientID = &id
	}
	return out
}
