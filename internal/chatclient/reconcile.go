// Package chatclient is the client side of the messaging protocol: a
// WebSocket client plus the timelines that merge optimistic echoes with
// server-confirmed messages.
package chatclient

import "time"

// DefaultTolerance is how far apart an echo's client timestamp and the
// confirmed server timestamp may be for the two to count as one message.
const DefaultTolerance = 5 * time.Second

// Status is the lifecycle of a rendered entry.
type Status int

const (
	// StatusTentative marks an optimistic echo not yet confirmed by the server.
	StatusTentative Status = iota
	// StatusConfirmed marks a message the server persisted.
	StatusConfirmed
	// StatusFailed marks an echo whose send was rejected; it is kept so the
	// user can retry.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusTentative:
		return "tentative"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is one rendered message. ID is zero until the server confirms it.
type Entry struct {
	ID         int64
	ClientKey  string
	SenderID   int64
	SenderName string
	Body       string
	At         time.Time
	Status     Status
	Reason     string // set for StatusFailed
}

// NewEcho builds the optimistic entry shown the moment a user submits.
func NewEcho(senderID int64, senderName, body, clientKey string, at time.Time) Entry {
	return Entry{
		ClientKey:  clientKey,
		SenderID:   senderID,
		SenderName: senderName,
		Body:       body,
		At:         at,
		Status:     StatusTentative,
	}
}

// Equivalent reports whether a and b have the same sender and body and
// timestamps no more than tolerance apart.
func Equivalent(a, b Entry, tolerance time.Duration) bool {
	if a.SenderID != b.SenderID || a.Body != b.Body {
		return false
	}
	d := a.At.Sub(b.At)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// Reconcile merges a confirmed message into list and returns the new list;
// list is not modified. A confirmed copy replaces the first unconfirmed
// entry it matches, by client key first and then by Equivalent, keeping
// that entry's position. A message already present by ID is not added
// again. Anything else is appended.
func Reconcile(list []Entry, incoming Entry, tolerance time.Duration) []Entry {
	incoming.Status = StatusConfirmed
	incoming.Reason = ""

	out := make([]Entry, len(list), len(list)+1)
	copy(out, list)

	if incoming.ID != 0 {
		for _, e := range out {
			if e.Status == StatusConfirmed && e.ID == incoming.ID {
				return out
			}
		}
	}

	if incoming.ClientKey != "" {
		for i, e := range out {
			if e.Status != StatusConfirmed && e.SenderID == incoming.SenderID && e.ClientKey == incoming.ClientKey {
				out[i] = incoming
				return out
			}
		}
	}

	// Confirmed entries never absorb a newcomer: two real messages with the
	// same body sent seconds apart must both render.
	for i, e := range out {
		if e.Status != StatusConfirmed && Equivalent(e, incoming, tolerance) {
			out[i] = incoming
			return out
		}
	}

	return append(out, incoming)
}

// MarkFailed flags the unconfirmed entry with clientKey as failed. The list
// is returned unchanged if no such entry exists.
func MarkFailed(list []Entry, clientKey, reason string) []Entry {
	out := make([]Entry, len(list))
	copy(out, list)
	if clientKey == "" {
		return out
	}
	for i, e := range out {
		if e.Status != StatusConfirmed && e.ClientKey == clientKey {
			out[i].Status = StatusFailed
			out[i].Reason = reason
			break
		}
	}
	return out
}
