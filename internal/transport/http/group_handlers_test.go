package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/proto"
	"github.com/vovakirdan/projectchat-server/internal/store"
)

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	e.ts.Config.Handler.ServeHTTP(resp, req)
	return resp
}

func TestCreateGroupRequiresInstructor(t *testing.T) {
	env := startTestEnv(t, testConfig())
	instructor := env.token(t, 100, "prof", auth.RoleInstructor)
	student := env.token(t, 1, "s1", auth.RoleStudent)

	resp := env.do(t, http.MethodPost, "/api/groups", student, CreateGroupRequest{ProjectID: 7, Name: "capstone"})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodPost, "/api/groups", "", CreateGroupRequest{ProjectID: 7, Name: "capstone"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.do(t, http.MethodPost, "/api/groups", instructor, map[string]any{"name": "no project"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.do(t, http.MethodPost, "/api/groups", instructor, CreateGroupRequest{ProjectID: 7, Name: "capstone"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var group GroupResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &group))
	assert.Equal(t, int64(7), group.ProjectID)
	assert.Equal(t, "capstone", group.Name)

	ok, err := env.groups.IsMember(context.Background(), group.ID, 100)
	require.NoError(t, err)
	assert.True(t, ok, "creator should be the group's instructor member")
}

func TestMemberManagement(t *testing.T) {
	env := startTestEnv(t, testConfig())
	instructor := env.token(t, 100, "prof", auth.RoleInstructor)
	student := env.token(t, 1, "s1", auth.RoleStudent)
	outsider := env.token(t, 9, "eve", auth.RoleStudent)
	groupID := env.group(t, 100)
	membersPath := fmt.Sprintf("/api/groups/%d/members", groupID)

	resp := env.do(t, http.MethodPost, membersPath, student, AddMemberRequest{UserID: 1})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodPost, membersPath, instructor, AddMemberRequest{UserID: 1})
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	resp = env.do(t, http.MethodGet, membersPath, student, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var members MembersResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &members))
	assert.ElementsMatch(t, []int64{100, 1}, members.Members)

	resp = env.do(t, http.MethodGet, membersPath, outsider, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodPost, "/api/groups/999/members", instructor, AddMemberRequest{UserID: 1})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.do(t, http.MethodDelete, membersPath+"/1", instructor, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = env.do(t, http.MethodDelete, membersPath+"/1", instructor, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.do(t, http.MethodGet, membersPath, student, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestMemberManagementIsScopedToOwnGroups(t *testing.T) {
	env := startTestEnv(t, testConfig())
	other := env.token(t, 200, "other-prof", auth.RoleInstructor)
	admin := env.token(t, 300, "root", auth.RoleAdmin)
	groupID := env.group(t, 100, 1)
	membersPath := fmt.Sprintf("/api/groups/%d/members", groupID)

	resp := env.do(t, http.MethodPost, membersPath, other, AddMemberRequest{UserID: 2})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodDelete, membersPath+"/1", other, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	// A participant of the group holding the instructor platform role is
	// still not the group's instructor.
	require.NoError(t, env.groups.Accept(context.Background(), groupID, 200))
	resp = env.do(t, http.MethodPost, membersPath, other, AddMemberRequest{UserID: 2})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodPost, membersPath, admin, AddMemberRequest{UserID: 2})
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	members, err := env.groups.MembersOf(context.Background(), groupID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{100, 1, 200, 2}, members)
}

func TestHistoryEndpoints(t *testing.T) {
	env := startTestEnv(t, testConfig())
	ctx := context.Background()
	groupID := env.group(t, 100)

	// The instructor's first message predates the student's acceptance.
	gid := groupID
	_, _, err := env.store.AppendMessage(ctx, &store.Message{SenderID: 100, SenderName: "prof", GroupID: &gid, Body: "Welcome"})
	require.NoError(t, err)
	require.NoError(t, env.groups.Accept(ctx, groupID, 3))

	student := env.token(t, 3, "s3", auth.RoleStudent)
	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/groups/%d/messages", groupID), student, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var history proto.GroupHistory
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "Welcome", history.Messages[0].Body)

	outsider := env.token(t, 9, "eve", auth.RoleStudent)
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/groups/%d/messages", groupID), outsider, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/groups/%d/messages?limit=abc", groupID), student, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	rid := int64(100)
	_, _, err = env.store.AppendMessage(ctx, &store.Message{SenderID: 3, RecipientID: &rid, Body: "Question about task"})
	require.NoError(t, err)

	resp = env.do(t, http.MethodGet, "/api/direct/100/messages", student, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var direct proto.DirectHistory
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &direct))
	require.Len(t, direct.Messages, 1)

	resp = env.do(t, http.MethodGet, "/api/direct/42/messages", student, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	direct = proto.DirectHistory{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &direct))
	assert.Empty(t, direct.Messages)

	resp = env.do(t, http.MethodGet, "/api/direct/3/messages", student, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := startTestEnv(t, testConfig())

	resp := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), "projectchat_active_connections"))
}
