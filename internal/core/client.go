package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultClientBuffer = 64

// Client is one live connection of an authenticated user. A user may own
// several clients at once (tabs, devices).
type Client struct {
	ID          string
	UserID      int64
	Username    string
	Role        string
	ConnectedAt time.Time

	Commands chan *Command
	Events   chan *Event

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with initialized channels. buffer sizes the
// event queue; zero picks a default.
func NewClient(userID int64, username, role string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		Username:    username,
		Role:        role,
		ConnectedAt: time.Now().UTC(),
		Commands:    make(chan *Command, 8),
		Events:      make(chan *Event, buffer),
		done:        make(chan struct{}),
	}
}

// Deliver pushes an event without blocking. A full queue or a closed client
// yields a DeliveryError; the event is dropped.
func (c *Client) Deliver(ev *Event) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.Events <- ev:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrDelivery
	}
}

// Reply pushes an event to the client, waiting for queue space. Used for
// responses addressed only to this client, such as history snapshots.
func (c *Client) Reply(ctx context.Context, ev *Event) error {
	select {
	case c.Events <- ev:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the client as gone. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
