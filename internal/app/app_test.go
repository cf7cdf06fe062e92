package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/chatclient"
	"github.com/vovakirdan/projectchat-server/internal/config"
	"github.com/vovakirdan/projectchat-server/internal/log"
)

func testAppConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "projectchat.db")
	cfg.JWTSecret = "app-test"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// The assembled handler must serve the WebSocket upgrade next to the gin routes.
func TestAppServesWebSocketAndREST(t *testing.T) {
	cfg := testAppConfig(t)
	a, err := New(&cfg, log.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(ctx)
		close(hubDone)
	}()
	ts := httptest.NewServer(a.server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-hubDone
		a.cleanup()
	})

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token, err := auth.GenerateToken(JWTConfig(&cfg), auth.Identity{UserID: 1, Username: "alice", Role: auth.RoleStudent})
	require.NoError(t, err)

	client, err := chatclient.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", token, chatclient.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.Equal(t, int64(1), client.UserID)
	assert.Equal(t, "alice", client.Username)
	go func() { _ = client.Run(ctx) }()

	_, err = client.SendDirect(ctx, 2, "ping")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		entries := client.Timeline(chatclient.Direct(2)).Entries()
		return len(entries) == 1 && entries[0].Status == chatclient.StatusConfirmed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAppRunStopsOnCancel(t *testing.T) {
	cfg := testAppConfig(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.Addr = l.Addr().String()
	require.NoError(t, l.Close())

	a, err := New(&cfg, log.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
