package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventGroupHistory delivers the ordered history of a group.
	EventGroupHistory EventKind = iota
	// EventDirectHistory delivers the ordered conversation with a peer.
	EventDirectHistory
	// EventGroupMessage pushes a newly persisted group message.
	EventGroupMessage
	// EventDirectMessage pushes a newly persisted direct message.
	EventDirectMessage
	// EventAck confirms to the sending connection that its message persisted.
	EventAck
	// EventError notifies the originating connection about a rejected command.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventGroupHistory:
		return "group_history"
	case EventDirectHistory:
		return "direct_history"
	case EventGroupMessage:
		return "group_message"
	case EventDirectMessage:
		return "direct_message"
	case EventAck:
		return "ack"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	GroupID  int64
	PeerID   int64
	Message  Message
	Messages []Message // history events
	Error    *CoreError
}
