package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

// Hub owns the session registry and runs each connection's command pump.
// Registration and unregistration are serialized through the Run loop;
// commands from different connections run concurrently, so one slow store
// call never stalls other connections.
type Hub struct {
	registry *Registry
	router   *Router
	log      *zerolog.Logger
	metrics  *Metrics

	register   chan hubRequest
	unregister chan hubRequest
	stopped    chan struct{}
	pumps      sync.WaitGroup
}

type hubRequest struct {
	client *Client
	done   chan bool
}

// NewHub creates a hub with its own registry and router.
func NewHub(st store.MessageStore, members MembershipResolver, cfg RouterConfig, logger *zerolog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	registry := NewRegistry()
	return &Hub{
		registry:   registry,
		router:     NewRouter(st, members, registry, cfg, logger, metrics),
		log:        logger,
		metrics:    metrics,
		register:   make(chan hubRequest),
		unregister: make(chan hubRequest),
		stopped:    make(chan struct{}),
	}
}

// Router exposes the hub's router for request/response surfaces.
func (h *Hub) Router() *Router {
	return h.router
}

// Registry exposes the session registry, mainly for tests and metrics.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run processes registrations until ctx is cancelled, then closes every
// remaining connection and waits for their pumps to exit.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, c := range h.registry.drain() {
			c.Close()
		}
		h.metrics.connectionsChanged(h.registry, false)
		close(h.stopped)
		h.pumps.Wait()
	}()

	for {
		select {
		case req := <-h.register:
			added := h.registry.Register(req.client)
			if added {
				h.pumps.Add(1)
				go h.pump(ctx, req.client)
				h.metrics.connectionsChanged(h.registry, true)
				h.log.Debug().
					Str("conn_id", req.client.ID).
					Int64("user_id", req.client.UserID).
					Int("connections", h.registry.Len()).
					Msg("client registered")
			}
			req.done <- added
		case req := <-h.unregister:
			removed := h.registry.Unregister(req.client)
			req.client.Close()
			if removed {
				h.metrics.connectionsChanged(h.registry, false)
				h.log.Debug().
					Str("conn_id", req.client.ID).
					Int64("user_id", req.client.UserID).
					Int("connections", h.registry.Len()).
					Msg("client unregistered")
			}
			req.done <- removed
		case <-ctx.Done():
			return
		}
	}
}

// RegisterClient adds c to the registry and starts its command pump. It
// returns once the registration is visible to the router.
func (h *Hub) RegisterClient(c *Client) error {
	req := hubRequest{client: c, done: make(chan bool, 1)}
	select {
	case h.register <- req:
		<-req.done
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

// UnregisterClient removes exactly c and closes it. Other connections of the
// same user are untouched.
func (h *Hub) UnregisterClient(c *Client) {
	req := hubRequest{client: c, done: make(chan bool, 1)}
	select {
	case h.unregister <- req:
		<-req.done
	case <-h.stopped:
		c.Close()
	}
}

// pump feeds c's commands to the router one at a time, preserving the
// order a single connection issued them in.
func (h *Hub) pump(ctx context.Context, c *Client) {
	defer h.pumps.Done()

	for {
		select {
		case cmd := <-c.Commands:
			if cmd != nil {
				h.router.Handle(ctx, c, cmd)
			}
		case <-c.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
