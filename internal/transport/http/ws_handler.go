package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/config"
	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/proto"
)

// WSHandler authenticates the handshake, upgrades the connection and
// bridges it to a core.Client.
type WSHandler struct {
	hub      *core.Hub
	resolver auth.Resolver
	cfg      *config.Config
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, resolver auth.Resolver, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, resolver: resolver, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	// Credentials are checked before the upgrade so an unauthenticated
	// caller never gets a connection that could issue commands.
	identity, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws handshake refused")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stdhttp.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: authMessage(err), Code: core.ErrCodeUnauthenticated})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(identity.UserID, identity.Username, string(identity.Role), h.cfg.ClientBuffer)
	if err := h.hub.RegisterClient(client); err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.hub.UnregisterClient(client)

	logger := h.log.With().Str("conn_id", client.ID).Int64("user_id", client.UserID).Logger()
	logger.Info().Str("username", client.Username).Msg("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	welcome := proto.Outbound{
		Type: proto.OutboundTypeWelcome,
		Data: proto.Welcome{
			Protocol: proto.ProtocolVersion,
			ConnID:   client.ID,
			UserID:   client.UserID,
			Username: client.Username,
		},
	}
	if err := wsjson.Write(ctx, conn, welcome); err != nil {
		logger.Warn().Err(err).Msg("write welcome")
		return
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &logger)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, core.ErrClientClosed):
		status = websocket.StatusGoingAway
		reason = "server shutting down"
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	logger.Info().Msg("ws disconnected")
	conn.Close(status, reason)
}

func (h *WSHandler) authenticate(r *stdhttp.Request) (*auth.Identity, error) {
	token, err := auth.TokenFromRequest(r, h.cfg.AllowQueryToken)
	if err != nil {
		return nil, err
	}
	return h.resolver.Resolve(token)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute, time.Minute)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		// Decode before limiting so a throttled send still names its client key.
		cmd, cerr := inboundToCommand(inbound)
		if !limiter.allow(time.Now()) {
			logger.Debug().Str("type", inbound.Type).Msg("rate limited")
			limited := &core.CoreError{Code: core.ErrCodeRateLimited, Message: "too many messages"}
			if cmd != nil {
				limited.ClientKey = cmd.ClientKey
			}
			if err := h.replyError(ctx, client, limited); err != nil {
				return err
			}
			continue
		}
		if cerr != nil {
			logger.Debug().Err(cerr.Err).Str("type", inbound.Type).Msg("rejected inbound frame")
			if err := h.replyError(ctx, client, cerr); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return core.ErrClientClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// replyError queues a protocol error behind any events already waiting, so
// the write loop stays the connection's only writer.
func (h *WSHandler) replyError(ctx context.Context, client *core.Client, cerr *core.CoreError) error {
	return client.Reply(ctx, &core.Event{Kind: core.EventError, Error: cerr})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	for {
		select {
		case event := <-client.Events:
			if event == nil {
				continue
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				logger.Debug().Err(err).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return core.ErrClientClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
