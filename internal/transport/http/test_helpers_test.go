package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/auth"
	"github.com/vovakirdan/projectchat-server/internal/config"
	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/proto"
	"github.com/vovakirdan/projectchat-server/internal/service/membership"
	"github.com/vovakirdan/projectchat-server/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	ts       *httptest.Server
	store    *sqlite.SQLiteStore
	groups   *membership.Service
	hub      *core.Hub
	resolver *auth.JWTResolver
	cfg      config.Config
}

func testConfig() config.Config {
	return config.Config{
		Addr:               ":0",
		ReadHeaderTimeout:  time.Second,
		ShutdownTimeout:    time.Second,
		JWTSecret:          testSecret,
		JWTIssuer:          "test",
		JWTAudience:        "test",
		JWTTTL:             time.Hour,
		MaxMessageBytes:    1 << 20,
		ClientBuffer:       64,
		RateLimitPerMinute: 0,
		MaxBodyLength:      1000,
		StoreTimeout:       time.Second,
	}
}

// startTestEnv runs a full server over an in-memory database.
func startTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.Nop()
	groups := membership.New(st, 0)
	reg := prometheus.NewRegistry()
	hub := core.NewHub(st, groups, core.RouterConfig{
		MaxBodyLength: cfg.MaxBodyLength,
		HistoryLimit:  cfg.HistoryLimit,
		StoreTimeout:  cfg.StoreTimeout,
	}, &disabledLogger, core.NewMetrics(reg))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	resolver := auth.NewJWTResolver(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	server := NewServer(Deps{Hub: hub, Resolver: resolver, Groups: groups, Gatherer: reg}, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})

	return &testEnv{ts: ts, store: st, groups: groups, hub: hub, resolver: resolver, cfg: cfg}
}

func (e *testEnv) token(t *testing.T, userID int64, username string, role auth.Role) string {
	t.Helper()

	token, err := e.resolver.Issue(auth.Identity{UserID: userID, Username: username, Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) group(t *testing.T, instructorID int64, participants ...int64) int64 {
	t.Helper()

	ctx := context.Background()
	g, err := e.groups.CreateGroup(ctx, 1, "capstone", instructorID)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	for _, id := range participants {
		if err := e.groups.Accept(ctx, g.ID, id); err != nil {
			t.Fatalf("accept %d: %v", id, err)
		}
	}
	return g.ID
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// dialWS connects with a bearer token and consumes the welcome frame.
func (e *testEnv) dialWS(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	welcome := readOutbound(ctx, t, conn, proto.OutboundTypeWelcome)
	var data proto.Welcome
	if err := json.Unmarshal(welcome.Data, &data); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if data.Protocol != proto.ProtocolVersion {
		t.Fatalf("unexpected protocol version %d", data.Protocol)
	}
	return conn
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readOutbound reads frames until one of the wanted type arrives.
func readOutbound(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string) rawOutbound {
	t.Helper()

	for {
		var out rawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read %s: %v", typ, err)
		}
		if out.Type == typ {
			return out
		}
	}
}

func sendInbound(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

func decodeMessage(t *testing.T, out rawOutbound) proto.Message {
	t.Helper()

	var msg proto.Message
	if err := json.Unmarshal(out.Data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}
