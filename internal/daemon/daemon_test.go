package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/matheus3301/opschat/internal/api"
	"github.com/matheus3301/opschat/internal/config"
	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// fakeChatServer serves the realtime socket on /ws and the REST API on /api.
type fakeChatServer struct {
	*httptest.Server

	chats []model.Chat
	push  []transport.Envelope

	mu       gosync.Mutex
	received []string
	tokens   []string
}

func newFakeChatServer(t *testing.T, chats []model.Chat, push ...transport.Envelope) *fakeChatServer {
	t.Helper()
	f := &fakeChatServer{chats: chats, push: push}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.serveWS)
	mux.HandleFunc("GET /api/chats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.chats)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeChatServer) serveWS(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.tokens = append(f.tokens, r.Header.Get("Authorization"))
	f.mu.Unlock()

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = c.CloseNow() }()
	ctx := r.Context()

	list, _ := transport.NewEnvelope(transport.TypeChatListResponse, transport.ChatList{Chats: f.chats})
	for {
		var env transport.Envelope
		if err := wsjson.Read(ctx, c, &env); err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, env.Type)
		f.mu.Unlock()

		if env.Type == transport.TypeRequestChatList {
			if err := wsjson.Write(ctx, c, list); err != nil {
				return
			}
			for _, p := range f.push {
				if err := wsjson.Write(ctx, c, p); err != nil {
					return
				}
			}
		}
	}
}

func (f *fakeChatServer) saw(typ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.received {
		if r == typ {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %s", what)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func testConfig(srv *httptest.Server) *config.Config {
	cfg := config.Default()
	cfg.UserID = "op-1"
	cfg.Token = "tok"
	cfg.ServerURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	cfg.APIURL = srv.URL + "/api"
	cfg.Reconnect.InitialInterval = 10 * time.Millisecond
	cfg.Reconnect.MaxInterval = 50 * time.Millisecond
	cfg.Network.ProbeInterval = time.Second
	return cfg
}

func shortSocket(t *testing.T) string {
	t.Helper()
	// Use a short path to avoid macOS 104-char Unix socket limit.
	dir, err := os.MkdirTemp("/tmp", "opschat-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}

func TestDaemonLifecycle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	now := time.Now().UTC()
	chats := []model.Chat{{
		ID:             "boiler-room",
		ParticipantIDs: []string{"op-1", "op-2"},
		Name:           "Boiler room",
	}}
	arrived, err := transport.NewEnvelope(transport.TypeMessageArrived, model.Message{
		ID:        "m-1",
		ChatID:    "boiler-room",
		SenderID:  "op-2",
		Content:   "pressure dropping on line 3",
		CreatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	fake := newFakeChatServer(t, chats, arrived)

	socketPath := shortSocket(t)
	app := fx.New(
		Module(Params{SessionName: "test", Config: testConfig(fake.Server), SocketPath: socketPath}),
		fx.NopLogger,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("app.Start() error = %v", err)
	}
	stopped := false
	defer func() {
		if !stopped {
			_ = app.Stop(context.Background())
		}
	}()

	client, err := api.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	waitFor(t, 5*time.Second, "connected state", func() bool {
		st, err := client.Status(ctx)
		return err == nil && st.State == "CONNECTED"
	})
	waitFor(t, 5*time.Second, "unread message", func() bool {
		list, err := client.Chats(ctx)
		return err == nil && len(list.Chats) == 1 && list.Chats[0].Unread == 1
	})
	waitFor(t, 5*time.Second, "delivery ack", func() bool {
		return fake.saw(transport.TypeDeliveryAck)
	})
	if !fake.saw(transport.TypeIdentityAnnounce) {
		t.Error("server never received identity-announce")
	}
	fake.mu.Lock()
	if len(fake.tokens) == 0 || fake.tokens[0] != "Bearer tok" {
		t.Errorf("Authorization headers = %v", fake.tokens)
	}
	fake.mu.Unlock()

	st, err := client.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Session != "test" || st.UserID != "op-1" || st.TotalUnread != 1 {
		t.Errorf("status = %+v", st)
	}

	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("app.Stop() error = %v", err)
	}
	stopped = true
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after stop: %v", err)
	}
}

func TestDaemonRequiresUserID(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	fake := newFakeChatServer(t, nil)
	cfg := testConfig(fake.Server)
	cfg.UserID = ""

	app := fx.New(
		Module(Params{SessionName: "test", Config: cfg, SocketPath: shortSocket(t)}),
		fx.NopLogger,
	)
	if app.Err() == nil {
		t.Fatal("expected construction error for missing user_id")
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
// Regression test: NewServer previously took a bare `string` param which fx
// cannot resolve, causing a silent startup crash ("missing type: string").
func TestFxModuleWiring(t *testing.T) {
	p := Params{SessionName: "fxtest", Config: config.Default(), SocketPath: shortSocket(t)}
	if err := fx.ValidateApp(Module(p), fx.NopLogger); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}

func TestServerSocketPermissions(t *testing.T) {
	socketPath := shortSocket(t)
	// A stale file at the socket path is replaced.
	if err := os.WriteFile(socketPath, []byte("stale"), 0600); err != nil {
		t.Fatal(err)
	}

	srv, err := Listen(socketPath, api.NewConsoleService("t", nil, nil, nil, zap.NewNop()), zap.NewNop())
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go func() { _ = srv.Start() }()

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permission = %o, want 0600", perm)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Error("stale file was not replaced by a socket")
	}

	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket not removed: %v", err)
	}
}
