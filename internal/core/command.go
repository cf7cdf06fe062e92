package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandFetchGroupHistory requests the ordered history of a group.
	CommandFetchGroupHistory CommandKind = iota
	// CommandFetchDirectHistory requests the conversation with a peer.
	CommandFetchDirectHistory
	// CommandSendGroupMessage posts a message to a group.
	CommandSendGroupMessage
	// CommandSendDirectMessage posts a message to a single user.
	CommandSendDirectMessage
)

func (k CommandKind) String() string {
	switch k {
	case CommandFetchGroupHistory:
		return "fetch_group_history"
	case CommandFetchDirectHistory:
		return "fetch_direct_history"
	case CommandSendGroupMessage:
		return "send_group"
	case CommandSendDirectMessage:
		return "send_direct"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind

	GroupID int64 // group commands
	PeerID  int64 // direct commands: recipient or history peer

	Body      string
	ClientKey string

	// History paging.
	Limit    int
	BeforeID int64
}
