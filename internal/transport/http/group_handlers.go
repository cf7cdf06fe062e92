package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/service/membership"
	"github.com/vovakirdan/projectchat-server/internal/store"
)

// GroupManager is the membership surface the group endpoints need.
type GroupManager interface {
	CreateGroup(ctx context.Context, projectID int64, name string, instructorID int64) (*store.Group, error)
	GetGroup(ctx context.Context, groupID int64) (*store.Group, error)
	Accept(ctx context.Context, groupID, userID int64) error
	Remove(ctx context.Context, groupID, userID int64) error
	MembersOf(ctx context.Context, groupID int64) ([]int64, error)
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	RoleOf(ctx context.Context, groupID, userID int64) (store.MemberRole, error)
}

// GroupHandlers provides HTTP handlers for group and membership endpoints.
type GroupHandlers struct {
	groups GroupManager
	log    *zerolog.Logger
}

// NewGroupHandlers creates a new group handlers instance.
func NewGroupHandlers(groups GroupManager, logger *zerolog.Logger) *GroupHandlers {
	return &GroupHandlers{groups: groups, log: logger}
}

// CreateGroupRequest represents the create group request body.
type CreateGroupRequest struct {
	ProjectID int64  `json:"project_id" binding:"required,min=1"`
	Name      string `json:"name" binding:"required,min=1,max=128"`
}

// AddMemberRequest represents the accept member request body.
type AddMemberRequest struct {
	UserID int64 `json:"user_id" binding:"required,min=1"`
}

// GroupResponse represents a group in API responses.
type GroupResponse struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// MembersResponse lists the members of a group.
type MembersResponse struct {
	GroupID int64   `json:"group_id"`
	Members []int64 `json:"members"`
}

// CreateGroup creates a project group with the caller as its instructor.
// POST /api/groups
func (h *GroupHandlers) CreateGroup(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthenticated})
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create group request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), req.ProjectID, req.Name, identity.UserID)
	if err != nil {
		if errors.Is(err, membership.ErrInvalidGroup) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid group", Code: core.ErrCodeBadRequest})
			return
		}
		h.log.Error().Err(err).Int64("project_id", req.ProjectID).Msg("failed to create group")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: core.ErrCodeInternal})
		return
	}

	h.log.Info().Int64("group_id", group.ID).Int64("project_id", group.ProjectID).Int64("instructor_id", identity.UserID).Msg("group created")
	c.JSON(http.StatusCreated, GroupResponse{
		ID:        group.ID,
		ProjectID: group.ProjectID,
		Name:      group.Name,
		CreatedAt: group.CreatedAt.Format(time.RFC3339),
	})
}

// ListMembers returns the group's members. Members and group managers may
// read it.
// GET /api/groups/:id/members
func (h *GroupHandlers) ListMembers(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthenticated})
		return
	}
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.groups.GetGroup(ctx, groupID); err != nil {
		h.writeError(c, err, groupID)
		return
	}

	if !identity.Role.CanManageGroups() {
		member, err := h.groups.IsMember(ctx, groupID, identity.UserID)
		if err != nil {
			h.writeError(c, err, groupID)
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this group", Code: core.ErrCodeForbidden})
			return
		}
	}

	members, err := h.groups.MembersOf(ctx, groupID)
	if err != nil {
		h.writeError(c, err, groupID)
		return
	}
	c.JSON(http.StatusOK, MembersResponse{GroupID: groupID, Members: members})
}

// AddMember records an accepted participant.
// POST /api/groups/:id/members
func (h *GroupHandlers) AddMember(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok || !h.authorizeManage(c, groupID) {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid add member request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: core.ErrCodeBadRequest})
		return
	}

	if err := h.groups.Accept(c.Request.Context(), groupID, req.UserID); err != nil {
		h.writeError(c, err, groupID)
		return
	}

	h.log.Info().Int64("group_id", groupID).Int64("user_id", req.UserID).Msg("member accepted")
	c.Status(http.StatusNoContent)
}

// RemoveMember revokes a participant's membership.
// DELETE /api/groups/:id/members/:user_id
func (h *GroupHandlers) RemoveMember(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok || !h.authorizeManage(c, groupID) {
		return
	}

	if err := h.groups.Remove(c.Request.Context(), groupID, userID); err != nil {
		h.writeError(c, err, groupID)
		return
	}

	h.log.Info().Int64("group_id", groupID).Int64("user_id", userID).Msg("member removed")
	c.Status(http.StatusNoContent)
}

// authorizeManage lets admins manage any group and instructors only the
// groups they teach. It writes the error response when it returns false.
func (h *GroupHandlers) authorizeManage(c *gin.Context, groupID int64) bool {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthenticated})
		return false
	}
	ctx := c.Request.Context()

	if _, err := h.groups.GetGroup(ctx, groupID); err != nil {
		h.writeError(c, err, groupID)
		return false
	}
	if identity.Role == auth.RoleAdmin {
		return true
	}

	role, err := h.groups.RoleOf(ctx, groupID, identity.UserID)
	if err != nil && !errors.Is(err, membership.ErrNotAMember) {
		h.writeError(c, err, groupID)
		return false
	}
	if role != store.MemberRoleInstructor {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not the instructor of this group", Code: core.ErrCodeForbidden})
		return false
	}
	return true
}

func (h *GroupHandlers) writeError(c *gin.Context, err error, groupID int64) {
	switch {
	case errors.Is(err, membership.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "group not found", Code: "not_found"})
	case errors.Is(err, membership.ErrNotAMember):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not a member of this group", Code: "not_found"})
	default:
		h.log.Error().Err(err).Int64("group_id", groupID).Msg("group request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: core.ErrCodeInternal})
	}
}
