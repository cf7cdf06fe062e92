package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeFetchGroupHistory  = "fetch_group_history"
	InboundTypeFetchDirectHistory = "fetch_direct_history"
	InboundTypeSendGroup          = "send_group"
	InboundTypeSendDirect         = "send_direct"

	OutboundTypeWelcome       = "welcome"
	OutboundTypeGroupHistory  = "group_history"
	OutboundTypeDirectHistory = "direct_history"
	OutboundTypeGroupMessage  = "group_message"
	OutboundTypeDirectMessage = "direct_message"
	OutboundTypeAck           = "ack"
	OutboundTypeError         = "error"
)

// FetchGroupHistoryData requests a page of group history. BeforeID pages
// backwards from an already loaded message.
type FetchGroupHistoryData struct {
	GroupID  int64 `json:"group_id"`
	Limit    int   `json:"limit,omitempty"`
	BeforeID int64 `json:"before_id,omitempty"`
}

// FetchDirectHistoryData requests a page of the conversation with a peer.
type FetchDirectHistoryData struct {
	PeerID   int64 `json:"peer_id"`
	Limit    int   `json:"limit,omitempty"`
	BeforeID int64 `json:"before_id,omitempty"`
}

// SendGroupData posts a message to a group. ClientKey is an optional
// per-sender idempotency key echoed back on ack and error.
type SendGroupData struct {
	GroupID   int64  `json:"group_id"`
	Body      string `json:"body"`
	ClientKey string `json:"client_key,omitempty"`
}

// SendDirectData posts a message to one user.
type SendDirectData struct {
	RecipientID int64  `json:"recipient_id"`
	Body        string `json:"body"`
	ClientKey   string `json:"client_key,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Welcome is sent once after the connection is registered.
type Welcome struct {
	Protocol int    `json:"protocol"`
	ConnID   string `json:"conn_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Message is a persisted chat message. Exactly one of GroupID and
// RecipientID is set. TS is unix milliseconds.
type Message struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"sender_id"`
	SenderName  string `json:"sender_name,omitempty"`
	GroupID     int64  `json:"group_id,omitempty"`
	RecipientID int64  `json:"recipient_id,omitempty"`
	Body        string `json:"body"`
	ClientKey   string `json:"client_key,omitempty"`
	TS          int64  `json:"ts"`
}

// GroupHistory is the response to fetch_group_history.
type GroupHistory struct {
	GroupID  int64     `json:"group_id"`
	Messages []Message `json:"messages"`
}

// DirectHistory is the response to fetch_direct_history.
type DirectHistory struct {
	PeerID   int64     `json:"peer_id"`
	Messages []Message `json:"messages"`
}

// Error describes a protocol-level error response. ClientKey is set when
// the error answers a send that carried one.
type Error struct {
	Code      string `json:"code"`
	Msg       string `json:"msg"`
	ClientKey string `json:"client_key,omitempty"`
}
