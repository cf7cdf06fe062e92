package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/proto"
)

// ErrClosed is returned when using a client after Close.
var ErrClosed = errors.New("chat client closed")

// Conversation identifies a timeline: a group or the peer of a direct chat.
type Conversation struct {
	GroupID int64
	PeerID  int64
}

// Group returns the conversation of a group.
func Group(id int64) Conversation { return Conversation{GroupID: id} }

// Direct returns the direct conversation with a peer.
func Direct(peerID int64) Conversation { return Conversation{PeerID: peerID} }

// IsZero reports whether c names no conversation.
func (c Conversation) IsZero() bool { return c.GroupID == 0 && c.PeerID == 0 }

func (c Conversation) String() string {
	if c.IsZero() {
		return "none"
	}
	if c.GroupID != 0 {
		return fmt.Sprintf("group:%d", c.GroupID)
	}
	return fmt.Sprintf("dm:%d", c.PeerID)
}

// Update tells the caller that a timeline changed. Err is set for a send the
// server rejected or for a protocol error not tied to a send; the latter
// carries the zero Conversation.
type Update struct {
	Conversation Conversation
	Err          *proto.Error
}

// Options configures a client.
type Options struct {
	// Tolerance is the echo matching window. Zero uses DefaultTolerance.
	Tolerance time.Duration
	Logger    *zerolog.Logger
	// Now stamps optimistic echoes. Defaults to time.Now.
	Now func() time.Time
}

// Client is one WebSocket session against the chat server.
type Client struct {
	conn     *websocket.Conn
	log      *zerolog.Logger
	opts     Options
	UserID   int64
	Username string
	ConnID   string

	mu        sync.Mutex
	timelines map[Conversation]*Timeline
	pending   map[string]Conversation // client key -> conversation

	updates chan Update
	closed  chan struct{}
	once    sync.Once
}

// Dial connects with a bearer token and waits for the server's welcome.
func Dial(ctx context.Context, url, token string, opts Options) (*Client, error) {
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: unauthorized: %w", url, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	var welcome struct {
		Type string        `json:"type"`
		Data proto.Welcome `json:"data"`
	}
	if err := wsjson.Read(ctx, conn, &welcome); err != nil {
		conn.Close(websocket.StatusProtocolError, "no welcome")
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != proto.OutboundTypeWelcome || welcome.Data.Protocol != proto.ProtocolVersion {
		conn.Close(websocket.StatusProtocolError, "unsupported protocol")
		return nil, fmt.Errorf("unexpected handshake %q protocol %d", welcome.Type, welcome.Data.Protocol)
	}

	return &Client{
		conn:      conn,
		log:       opts.Logger,
		opts:      opts,
		UserID:    welcome.Data.UserID,
		Username:  welcome.Data.Username,
		ConnID:    welcome.Data.ConnID,
		timelines: make(map[Conversation]*Timeline),
		pending:   make(map[string]Conversation),
		updates:   make(chan Update, 64),
		closed:    make(chan struct{}),
	}, nil
}

// Timeline returns the timeline of conv, creating it on first use.
func (c *Client) Timeline(conv Conversation) *Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.timelines[conv]
	if !ok {
		t = NewTimeline(c.opts.Tolerance)
		c.timelines[conv] = t
	}
	return t
}

// Updates delivers change notifications. Notifications are dropped when the
// caller falls behind; the timelines stay authoritative.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// FetchGroupHistory asks for a group's history. The reply replaces the
// group timeline.
func (c *Client) FetchGroupHistory(ctx context.Context, groupID int64, limit int) error {
	return c.write(ctx, proto.InboundTypeFetchGroupHistory, proto.FetchGroupHistoryData{GroupID: groupID, Limit: limit})
}

// FetchDirectHistory asks for the conversation with peerID.
func (c *Client) FetchDirectHistory(ctx context.Context, peerID int64, limit int) error {
	return c.write(ctx, proto.InboundTypeFetchDirectHistory, proto.FetchDirectHistoryData{PeerID: peerID, Limit: limit})
}

// SendGroup shows an optimistic echo and sends body to the group. It
// returns the client key the server will echo back.
func (c *Client) SendGroup(ctx context.Context, groupID int64, body string) (string, error) {
	key := uuid.NewString()
	return key, c.send(ctx, Group(groupID), key, body, proto.InboundTypeSendGroup,
		proto.SendGroupData{GroupID: groupID, Body: body, ClientKey: key})
}

// SendDirect shows an optimistic echo and sends body to peerID.
func (c *Client) SendDirect(ctx context.Context, peerID int64, body string) (string, error) {
	key := uuid.NewString()
	return key, c.send(ctx, Direct(peerID), key, body, proto.InboundTypeSendDirect,
		proto.SendDirectData{RecipientID: peerID, Body: body, ClientKey: key})
}

func (c *Client) send(ctx context.Context, conv Conversation, key, body, typ string, data any) error {
	t := c.Timeline(conv)
	t.AddTentative(NewEcho(c.UserID, c.Username, body, key, c.opts.Now()))

	c.mu.Lock()
	c.pending[key] = conv
	c.mu.Unlock()

	if err := c.write(ctx, typ, data); err != nil {
		c.resolve(key)
		t.Fail(key, err.Error())
		c.notify(Update{Conversation: conv})
		return err
	}
	c.notify(Update{Conversation: conv})
	return nil
}

func (c *Client) write(ctx context.Context, typ string, data any) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("write %s: %w", typ, err)
	}
	return nil
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// Run reads server frames into the timelines until ctx ends or the
// connection closes.
func (c *Client) Run(ctx context.Context) error {
	for {
		var out rawOutbound
		if err := wsjson.Read(ctx, c.conn, &out); err != nil {
			select {
			case <-c.closed:
				return nil
			default:
			}
			return err
		}
		if err := c.handle(out); err != nil {
			c.log.Warn().Err(err).Str("type", out.Type).Msg("skipping server frame")
		}
	}
}

func (c *Client) handle(out rawOutbound) error {
	switch out.Type {
	case proto.OutboundTypeGroupHistory:
		var h proto.GroupHistory
		if err := json.Unmarshal(out.Data, &h); err != nil {
			return err
		}
		conv := Group(h.GroupID)
		c.Timeline(conv).Replace(entriesFromProto(h.Messages))
		c.notify(Update{Conversation: conv})
	case proto.OutboundTypeDirectHistory:
		var h proto.DirectHistory
		if err := json.Unmarshal(out.Data, &h); err != nil {
			return err
		}
		conv := Direct(h.PeerID)
		c.Timeline(conv).Replace(entriesFromProto(h.Messages))
		c.notify(Update{Conversation: conv})
	case proto.OutboundTypeGroupMessage, proto.OutboundTypeDirectMessage, proto.OutboundTypeAck:
		var m proto.Message
		if err := json.Unmarshal(out.Data, &m); err != nil {
			return err
		}
		conv := c.conversationOf(m)
		if m.SenderID == c.UserID {
			c.resolve(m.ClientKey)
		}
		c.Timeline(conv).Apply(entryFromProto(m))
		c.notify(Update{Conversation: conv})
	case proto.OutboundTypeError:
		if out.Error == nil {
			return errors.New("error frame without payload")
		}
		conv, ok := c.resolve(out.Error.ClientKey)
		if ok {
			c.Timeline(conv).Fail(out.Error.ClientKey, out.Error.Msg)
		}
		c.notify(Update{Conversation: conv, Err: out.Error})
	default:
		return fmt.Errorf("unknown frame type %q", out.Type)
	}
	return nil
}

func (c *Client) conversationOf(m proto.Message) Conversation {
	if m.GroupID != 0 {
		return Group(m.GroupID)
	}
	if m.SenderID == c.UserID {
		return Direct(m.RecipientID)
	}
	return Direct(m.SenderID)
}

func (c *Client) resolve(key string) (Conversation, bool) {
	if key == "" {
		return Conversation{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.pending[key]
	delete(c.pending, key)
	return conv, ok
}

func (c *Client) notify(u Update) {
	select {
	case c.updates <- u:
	default:
	}
}

// Close ends the session.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close(websocket.StatusNormalClosure, "bye")
	})
	return err
}

func entryFromProto(m proto.Message) Entry {
	return Entry{
		ID:         m.ID,
		ClientKey:  m.ClientKey,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Body:       m.Body,
		At:         time.UnixMilli(m.TS),
		Status:     StatusConfirmed,
	}
}

func entriesFromProto(in []proto.Message) []Entry {
	out := make([]Entry, 0, len(in))
	for _, m := range in {
		out = append(out, entryFromProto(m))
	}
	return out
}
