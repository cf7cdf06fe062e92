package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/proto"
	"github.com/vovakirdan/projectchat-server/internal/store"
)

// HistoryHandlers serves message history over REST. Access rules are the
// same as for the WebSocket fetch commands.
type HistoryHandlers struct {
	router *core.Router
	log    *zerolog.Logger
}

// NewHistoryHandlers creates a new history handlers instance.
func NewHistoryHandlers(router *core.Router, logger *zerolog.Logger) *HistoryHandlers {
	return &HistoryHandlers{router: router, log: logger}
}

// GroupMessages returns a page of group history.
// GET /api/groups/:id/messages?limit=&before_id=
func (h *HistoryHandlers) GroupMessages(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthenticated})
		return
	}

	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, ok := pageFromQuery(c)
	if !ok {
		return
	}

	msgs, err := h.router.GroupHistory(c.Request.Context(), identity.UserID, groupID, page)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, proto.GroupHistory{GroupID: groupID, Messages: messagesToProto(msgs)})
}

// DirectMessages returns a page of the caller's conversation with a peer.
// GET /api/direct/:peer_id/messages?limit=&before_id=
func (h *HistoryHandlers) DirectMessages(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthenticated})
		return
	}

	peerID, ok := pathID(c, "peer_id")
	if !ok {
		return
	}
	page, ok := pageFromQuery(c)
	if !ok {
		return
	}

	msgs, err := h.router.DirectHistory(c.Request.Context(), identity.UserID, peerID, page)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, proto.DirectHistory{PeerID: peerID, Messages: messagesToProto(msgs)})
}

func (h *HistoryHandlers) writeError(c *gin.Context, err error) {
	var cerr *core.CoreError
	if !errors.As(err, &cerr) {
		h.log.Error().Err(err).Msg("history request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: core.ErrCodeInternal})
		return
	}
	c.JSON(statusForCode(cerr.Code), ErrorResponse{Error: cerr.Message, Code: cerr.Code})
}

func statusForCode(code string) int {
	switch code {
	case core.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case core.ErrCodeForbidden:
		return http.StatusForbidden
	case core.ErrCodeBadRequest, core.ErrCodeInvalidMessage:
		return http.StatusBadRequest
	case core.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name, Code: core.ErrCodeBadRequest})
		return 0, false
	}
	return id, true
}

func pageFromQuery(c *gin.Context) (store.Page, bool) {
	var page store.Page
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Code: core.ErrCodeBadRequest})
			return page, false
		}
		page.Limit = n
	}
	if v := c.Query("before_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before_id", Code: core.ErrCodeBadRequest})
			return page, false
		}
		page.BeforeID = n
	}
	return page, true
}
