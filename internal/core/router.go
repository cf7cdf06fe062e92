package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

// MembershipResolver answers group membership questions for the router.
type MembershipResolver interface {
	MembersOf(ctx context.Context, groupID int64) ([]int64, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
}

// SendState is the progress of a single send through the router.
type SendState int

const (
	StateReceived SendState = iota
	StateAuthorized
	StatePersisted
	StateDelivered
)

func (s SendState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateAuthorized:
		return "authorized"
	case StatePersisted:
		return "persisted"
	case StateDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// RouterConfig tunes validation and history defaults.
type RouterConfig struct {
	// MaxBodyLength caps message bodies in runes. Zero means no cap.
	MaxBodyLength int
	// HistoryLimit is the page size used when a fetch does not ask for one.
	// Zero means unbounded.
	HistoryLimit int
	// StoreTimeout bounds a single append. Zero means no timeout.
	StoreTimeout time.Duration
	// AckTimeout bounds how long an ack waits for room in the sender's
	// queue. Zero uses defaultAckTimeout.
	AckTimeout time.Duration
}

const defaultAckTimeout = 2 * time.Second

// Router authorizes, persists and fans out messages, and serves history.
type Router struct {
	store    store.MessageStore
	members  MembershipResolver
	registry *Registry
	cfg      RouterConfig
	log      *zerolog.Logger
	metrics  *Metrics
	locks    *keyedMutex
}

// NewRouter creates a router. logger and metrics may be nil.
func NewRouter(st store.MessageStore, members MembershipResolver, registry *Registry, cfg RouterConfig, logger *zerolog.Logger, metrics *Metrics) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{
		store:    st,
		members:  members,
		registry: registry,
		cfg:      cfg,
		log:      logger,
		metrics:  metrics,
		locks:    newKeyedMutex(),
	}
}

// Handle runs one command on behalf of client c. Every outcome other than a
// successful send is answered on c alone.
func (r *Router) Handle(ctx context.Context, c *Client, cmd *Command) {
	r.metrics.commandReceived(cmd.Kind)

	switch cmd.Kind {
	case CommandFetchGroupHistory:
		msgs, err := r.GroupHistory(ctx, c.UserID, cmd.GroupID, store.Page{Limit: cmd.Limit, BeforeID: cmd.BeforeID})
		if err != nil {
			r.reject(ctx, c, cmd, err)
			return
		}
		r.reply(ctx, c, &Event{Kind: EventGroupHistory, GroupID: cmd.GroupID, Messages: msgs})
	case CommandFetchDirectHistory:
		msgs, err := r.DirectHistory(ctx, c.UserID, cmd.PeerID, store.Page{Limit: cmd.Limit, BeforeID: cmd.BeforeID})
		if err != nil {
			r.reject(ctx, c, cmd, err)
			return
		}
		r.reply(ctx, c, &Event{Kind: EventDirectHistory, PeerID: cmd.PeerID, Messages: msgs})
	case CommandSendGroupMessage, CommandSendDirectMessage:
		r.send(ctx, c, cmd)
	default:
		r.reject(ctx, c, cmd, coreError(ErrCodeInvalidMessage, "unknown command", ErrValidation))
	}
}

// GroupHistory returns the group's messages ascending by creation time.
// The caller must be a member.
func (r *Router) GroupHistory(ctx context.Context, userID, groupID int64, page store.Page) ([]Message, error) {
	cmd := &Command{Kind: CommandFetchGroupHistory, GroupID: groupID, Limit: page.Limit, BeforeID: page.BeforeID}
	if cerr := r.authorize(ctx, userID, cmd); cerr != nil {
		return nil, cerr
	}

	msgs, err := r.store.ListGroupMessages(ctx, groupID, r.page(page))
	if err != nil {
		r.log.Error().Err(err).Int64("group_id", groupID).Msg("list group messages")
		return nil, coreError(ErrCodeInternal, "could not load history", err)
	}
	return messagesFromStore(msgs), nil
}

// DirectHistory returns the conversation between userID and peerID
// ascending by creation time.
func (r *Router) DirectHistory(ctx context.Context, userID, peerID int64, page store.Page) ([]Message, error) {
	cmd := &Command{Kind: CommandFetchDirectHistory, PeerID: peerID, Limit: page.Limit, BeforeID: page.BeforeID}
	if cerr := r.authorize(ctx, userID, cmd); cerr != nil {
		return nil, cerr
	}

	msgs, err := r.store.ListDirectMessages(ctx, userID, peerID, r.page(page))
	if err != nil {
		r.log.Error().Err(err).Int64("user_id", userID).Int64("peer_id", peerID).Msg("list direct messages")
		return nil, coreError(ErrCodeInternal, "could not load history", err)
	}
	return messagesFromStore(msgs), nil
}

func (r *Router) page(p store.Page) store.Page {
	if p.Limit == 0 {
		p.Limit = r.cfg.HistoryLimit
	}
	return p
}

// authorize is the single gate every command passes before touching the
// store: identity, payload shape, then group membership.
func (r *Router) authorize(ctx context.Context, userID int64, cmd *Command) *CoreError {
	if userID <= 0 {
		return coreError(ErrCodeUnauthenticated, "connection is not authenticated", nil)
	}
	if cmd.Limit < 0 || cmd.BeforeID < 0 {
		return coreError(ErrCodeBadRequest, "invalid paging parameters", ErrValidation)
	}

	isGroup := false
	switch cmd.Kind {
	case CommandFetchGroupHistory, CommandSendGroupMessage:
		isGroup = true
		if cmd.GroupID <= 0 {
			return coreError(ErrCodeBadRequest, "group_id is required", ErrValidation)
		}
	case CommandFetchDirectHistory, CommandSendDirectMessage:
		if cmd.PeerID <= 0 {
			return coreError(ErrCodeBadRequest, "recipient is required", ErrValidation)
		}
		if cmd.PeerID == userID {
			return coreError(ErrCodeBadRequest, "cannot message yourself", ErrValidation)
		}
	default:
		return coreError(ErrCodeInvalidMessage, "unknown command", ErrValidation)
	}

	if cmd.Kind == CommandSendGroupMessage || cmd.Kind == CommandSendDirectMessage {
		if strings.TrimSpace(cmd.Body) == "" {
			return coreError(ErrCodeBadRequest, "message body is required", ErrValidation)
		}
		if r.cfg.MaxBodyLength > 0 && utf8.RuneCountInString(cmd.Body) > r.cfg.MaxBodyLength {
			return coreError(ErrCodeBadRequest, fmt.Sprintf("message body exceeds %d characters", r.cfg.MaxBodyLength), ErrValidation)
		}
	}

	if isGroup {
		ok, err := r.members.IsMember(ctx, cmd.GroupID, userID)
		if err != nil {
			r.log.Error().Err(err).Int64("group_id", cmd.GroupID).Msg("resolve membership")
			return coreError(ErrCodeInternal, "could not verify membership", err)
		}
		if !ok {
			return coreError(ErrCodeForbidden, "not a member of this group", ErrAuthorization)
		}
	}

	return nil
}

// send drives one message through RECEIVED -> AUTHORIZED -> PERSISTED ->
// DELIVERED. Append and fan-out run under the conversation lock so every
// recipient connection sees messages in persisted order.
func (r *Router) send(ctx context.Context, c *Client, cmd *Command) {
	logger := r.log.With().
		Str("conn_id", c.ID).
		Int64("user_id", c.UserID).
		Str("kind", cmd.Kind.String()).
		Logger()

	state := StateReceived
	if cerr := r.authorize(ctx, c.UserID, cmd); cerr != nil {
		r.reject(ctx, c, cmd, cerr)
		return
	}
	state = r.advance(&logger, state, StateAuthorized)

	msg := Message{
		SenderID:   c.UserID,
		SenderName: c.Username,
		Body:       cmd.Body,
		ClientKey:  cmd.ClientKey,
	}
	if cmd.Kind == CommandSendGroupMessage {
		msg.GroupID = cmd.GroupID
	} else {
		msg.RecipientID = cmd.PeerID
	}

	unlock := r.locks.Lock(msg.ConversationKey())
	defer unlock()

	saved, created, cerr := r.persist(ctx, msg)
	if cerr != nil {
		logger.Error().Err(cerr.Err).Str("state", state.String()).Msg("append message")
		r.reject(ctx, c, cmd, cerr)
		return
	}
	state = r.advance(&logger, state, StatePersisted)

	r.ack(ctx, &logger, c, &Event{Kind: EventAck, GroupID: saved.GroupID, PeerID: cmd.PeerID, Message: saved})

	if !created {
		// A resend of a message we already hold; its fan-out happened with
		// the original append.
		logger.Debug().Int64("message_id", saved.ID).Msg("duplicate send acknowledged")
		return
	}

	r.fanOut(ctx, &logger, saved)
	r.advance(&logger, state, StateDelivered)
}

// ack waits for queue space, unlike fan-out pushes: a lost ack leaves the
// sender's echo unconfirmed.
func (r *Router) ack(ctx context.Context, logger *zerolog.Logger, c *Client, ev *Event) {
	timeout := r.cfg.AckTimeout
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	ackCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.Reply(ackCtx, ev); err != nil {
		logger.Warn().Err(fmt.Errorf("%w: %w", ErrDelivery, err)).Int64("message_id", ev.Message.ID).Msg("ack not delivered")
	}
}

func (r *Router) advance(logger *zerolog.Logger, from, to SendState) SendState {
	logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("send state")
	return to
}

// persist appends msg. The append is detached from ctx so a sender that
// disconnects mid-send cannot abort a write that was already issued.
func (r *Router) persist(ctx context.Context, msg Message) (Message, bool, *CoreError) {
	appendCtx := context.WithoutCancel(ctx)
	if r.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		appendCtx, cancel = context.WithTimeout(appendCtx, r.cfg.StoreTimeout)
		defer cancel()
	}

	saved, created, err := r.store.AppendMessage(appendCtx, msg.toStore())
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			return Message{}, false, coreError(ErrCodeBadRequest, err.Error(), err)
		}
		return Message{}, false, coreError(ErrCodePersistenceFailed, "message could not be saved", fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	target := "direct"
	if msg.IsGroup() {
		target = "group"
	}
	r.metrics.messagePersisted(target, created)
	return messageFromStore(saved), created, nil
}

// fanOut pushes msg to every resolved connection, the sender's own
// connections included. Failed pushes are dropped; the message stays durable
// and reaches those connections on their next history fetch.
func (r *Router) fanOut(ctx context.Context, logger *zerolog.Logger, msg Message) {
	var (
		targets []*Client
		ev      *Event
		label   string
	)

	if msg.IsGroup() {
		members, err := r.members.MembersOf(ctx, msg.GroupID)
		if err != nil {
			logger.Error().Err(err).Int64("group_id", msg.GroupID).Msg("resolve members for fan-out")
			return
		}
		for _, userID := range members {
			targets = append(targets, r.registry.ConnectionsFor(userID)...)
		}
		ev = &Event{Kind: EventGroupMessage, GroupID: msg.GroupID, Message: msg}
		label = "group"
	} else {
		targets = append(targets, r.registry.ConnectionsFor(msg.RecipientID)...)
		targets = append(targets, r.registry.ConnectionsFor(msg.SenderID)...)
		ev = &Event{Kind: EventDirectMessage, Message: msg}
		label = "direct"
	}

	pushed, dropped := 0, 0
	for _, target := range targets {
		if err := target.Deliver(ev); err != nil {
			dropped++
			logger.Warn().
				Err(fmt.Errorf("%w: %w", ErrDelivery, err)).
				Str("target_conn", target.ID).
				Int64("target_user", target.UserID).
				Int64("message_id", msg.ID).
				Msg("push dropped")
			continue
		}
		pushed++
	}

	r.metrics.delivered(label, pushed, dropped)
}

func (r *Router) reply(ctx context.Context, c *Client, ev *Event) {
	if err := c.Reply(ctx, ev); err != nil {
		r.log.Debug().Err(err).Str("conn_id", c.ID).Str("event", ev.Kind.String()).Msg("reply not delivered")
	}
}

func (r *Router) reject(ctx context.Context, c *Client, cmd *Command, err error) {
	var cerr *CoreError
	if !errors.As(err, &cerr) {
		cerr = coreError(ErrCodeInternal, "internal error", err)
	}
	if cerr.ClientKey == "" {
		cerr.ClientKey = cmd.ClientKey
	}

	r.metrics.commandRejected(cerr.Code)
	r.log.Debug().
		Str("conn_id", c.ID).
		Int64("user_id", c.UserID).
		Str("kind", cmd.Kind.String()).
		Str("code", cerr.Code).
		Msg("command rejected")

	r.reply(ctx, c, &Event{Kind: EventError, GroupID: cmd.GroupID, PeerID: cmd.PeerID, Error: cerr})
}
