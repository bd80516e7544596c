package sync

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/chatlist"
	"github.com/matheus3301/opschat/internal/connection"
	"github.com/matheus3301/opschat/internal/ledger"
	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/notify"
	"github.com/matheus3301/opschat/internal/router"
	"github.com/matheus3301/opschat/internal/status"
	"github.com/matheus3301/opschat/internal/store"
	"github.com/matheus3301/opschat/internal/transport"
	"github.com/matheus3301/opschat/internal/typing"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, _, err := store.OpenMigrated(filepath.Join(t.TempDir(), "client.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type sent struct {
	typ     string
	payload any
}

// fakeTransport records what the engine emits and lets tests push events.
type fakeTransport struct {
	events chan connection.Event

	mu       gosync.Mutex
	sent     []sent
	connects int
	logouts  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan connection.Event, 64)}
}

func (f *fakeTransport) Connect(context.Context, string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *fakeTransport) Logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
}

func (f *fakeTransport) Events() <-chan connection.Event { return f.events }

func (f *fakeTransport) Emit(_ context.Context, typ string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{typ: typ, payload: payload})
}

func (f *fakeTransport) Session() connection.Session {
	return connection.Session{UserID: "u1", State: status.Connected}
}

func (f *fakeTransport) count(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.typ == typ {
			n++
		}
	}
	return n
}

func (f *fakeTransport) logoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

func (f *fakeTransport) push(t *testing.T, epoch uint64, typ string, payload any) {
	t.Helper()
	env, err := transport.NewEnvelope(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	f.events <- connection.Event{Kind: connection.EventEnvelope, Epoch: epoch, Envelope: env}
}

// fakeBackend answers ListChats through respond, keyed by call index.
type fakeBackend struct {
	mu      gosync.Mutex
	respond func(call int) ([]model.Chat, error)
	calls   int
	history map[string][]model.Message
	reads   []string
}

func (b *fakeBackend) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	b.mu.Lock()
	call := b.calls
	b.calls++
	respond := b.respond
	b.mu.Unlock()
	if respond == nil {
		return nil, nil
	}
	return respond(call)
}

func (b *fakeBackend) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.history[chatID]), nil
}

func (b *fakeBackend) MarkChatRead(ctx context.Context, chatID, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads = append(b.reads, chatID)
	return nil
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *fakeBackend) setRespond(fn func(call int) ([]model.Chat, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.respond = fn
}

type toastSink struct {
	mu    gosync.Mutex
	items []notify.Notification
}

func (s *toastSink) Present(n notify.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
}

func (s *toastSink) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	engine  *Engine
	conn    *fakeTransport
	backend *fakeBackend
	ledger  *ledger.Ledger
	list    *chatlist.Projector
	tracker *typing.Tracker
	focus   *notify.Focus
	sink    *toastSink
	db      *store.DB
}

func newHarness(t *testing.T, respond func(call int) ([]model.Chat, error)) *harness {
	t.Helper()
	db := testDB(t)
	b := bus.New()
	h := &harness{
		conn:    newFakeTransport(),
		backend: &fakeBackend{respond: respond, history: map[string][]model.Message{}},
		ledger:  ledger.New(db, b, nil),
		list:    chatlist.New(db, b, nil),
		tracker: typing.NewTracker(b),
		focus:   notify.NewFocus(db, nil),
		sink:    &toastSink{},
		db:      db,
	}
	presenter := notify.NewPresenter(notify.Options{Capacity: 20}, h.focus, db, b, nil, h.sink)
	h.engine = NewEngine(Deps{
		Conn:        h.conn,
		Backend:     h.backend,
		Ledger:      h.ledger,
		List:        h.list,
		Typing:      h.tracker,
		Focus:       h.focus,
		Notifier:    presenter,
		Transcript:  router.NewTranscript(b),
		Bridge:      router.NewBridge(b),
		Bus:         b,
		QuietPeriod: time.Hour,
	}, nil)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.engine.Init("u1", "tok")
	h.engine.Start(context.Background())
	t.Cleanup(h.engine.Dispose)
}

func (h *harness) connect(epoch uint64) {
	h.conn.events <- connection.Event{Kind: connection.EventConnected, Epoch: epoch}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func chat(id string, latest *model.Message) model.Chat {
	return model.Chat{ID: id, ParticipantIDs: []string{"u1", "u2"}, LatestMessage: latest}
}

func msg(id, chatID, sender string, at int64) model.Message {
	return model.Message{ID: id, ChatID: chatID, SenderID: sender, Content: "text " + id, CreatedAt: time.UnixMilli(at)}
}

func ids(chats []model.Chat) []string {
	var out []string
	for _, c := range chats {
		out = append(out, c.ID)
	}
	return out
}

func TestExampleScenario(t *testing.T) {
	m2 := msg("m2", "c3", "u2", 300)
	var mu gosync.Mutex
	server := []model.Chat{chat("c1", nil), chat("c2", nil)}
	h := newHarness(t, func(int) ([]model.Chat, error) {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(server), nil
	})
	h.start(t)
	ctx := context.Background()

	h.connect(1)
	waitFor(t, "initial list", func() bool { return h.list.Len() == 2 })

	if _, err := h.engine.OpenChat(ctx, "c2"); err != nil {
		t.Fatal(err)
	}

	// m1 arrives for c1 while c2 is open.
	h.conn.push(t, 1, transport.TypeMessageArrived, msg("m1", "c1", "u2", 100))
	waitFor(t, "m1 recorded", func() bool { return h.ledger.Count("c1") == 1 })
	if h.ledger.Total() != 1 || h.sink.count(notify.KindMessage) != 1 {
		t.Fatalf("total=%d toasts=%d", h.ledger.Total(), h.sink.count(notify.KindMessage))
	}

	// Same m1 through the secondary path.
	h.conn.push(t, 1, transport.TypeMessageReemit, msg("m1", "c1", "u2", 100))
	waitFor(t, "second ack", func() bool { return h.conn.count(transport.TypeDeliveryAck) == 2 })
	if h.ledger.Count("c1") != 1 || h.ledger.Total() != 1 || h.sink.count(notify.KindMessage) != 1 {
		t.Fatalf("after redelivery count=%d total=%d toasts=%d", h.ledger.Count("c1"), h.ledger.Total(), h.sink.count(notify.KindMessage))
	}

	// Opening c1 clears it.
	cleared, err := h.engine.OpenChat(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if cleared != 1 || h.ledger.Count("c1") != 0 || h.ledger.Total() != 0 {
		t.Fatalf("cleared=%d count=%d total=%d", cleared, h.ledger.Count("c1"), h.ledger.Total())
	}

	// m2 for unlisted c3 triggers exactly one resync.
	mu.Lock()
	server = append(server, chat("c3", &m2))
	mu.Unlock()
	before := h.backend.callCount()
	h.conn.push(t, 1, transport.TypeMessageArrived, m2)
	waitFor(t, "c3 listed", func() bool { return h.list.Contains("c3") })
	head := h.list.Chats()[0]
	if head.ID != "c3" || head.LatestMessage == nil || head.LatestMessage.ID != "m2" {
		t.Fatalf("head = %+v", head)
	}
	if n := slices.Index(ids(h.list.Chats()), "c3"); n != 0 || h.list.Len() != 3 {
		t.Errorf("list = %v", ids(h.list.Chats()))
	}
	if got := h.backend.callCount() - before; got != 1 {
		t.Errorf("resyncs = %d, want 1", got)
	}

	// Drop and reconnect: list refreshed, ledger untouched.
	counts, total := h.engine.Unread()
	h.conn.events <- connection.Event{Kind: connection.EventDropped, Epoch: 1}
	before = h.backend.callCount()
	h.connect(2)
	waitFor(t, "reconnect resync", func() bool { return h.backend.callCount() == before+1 })
	gotCounts, gotTotal := h.engine.Unread()
	if gotTotal != total || len(gotCounts) != len(counts) {
		t.Errorf("ledger changed across reconnect: %v/%d -> %v/%d", counts, total, gotCounts, gotTotal)
	}
}

func TestUnknownChatStillMissingIsDropped(t *testing.T) {
	h := newHarness(t, func(int) ([]model.Chat, error) {
		return []model.Chat{chat("c1", nil)}, nil
	})
	h.start(t)
	h.connect(1)
	waitFor(t, "initial list", func() bool { return h.list.Len() == 1 })

	h.conn.push(t, 1, transport.TypeMessageArrived, msg("m9", "c9", "u2", 10))
	h.conn.push(t, 1, transport.TypeMessageReemit, msg("m9", "c9", "u2", 10))
	waitFor(t, "resync", func() bool { return h.backend.callCount() == 2 })
	waitFor(t, "acks", func() bool { return h.conn.count(transport.TypeDeliveryAck) == 2 })

	time.Sleep(20 * time.Millisecond)
	if n := h.backend.callCount(); n != 2 {
		t.Errorf("ListChats calls = %d, want 2", n)
	}
	if h.list.Contains("c9") {
		t.Error("list should not synthesize c9")
	}
	if h.ledger.Count("c9") != 1 {
		t.Errorf("Count(c9) = %d, want 1", h.ledger.Count("c9"))
	}
}

func TestStaleResyncDiscarded(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(call int) ([]model.Chat, error) {
		<-release
		return []model.Chat{chat("old", nil)}, nil
	})
	h.start(t)
	h.connect(1)
	waitFor(t, "resync in flight", func() bool { return h.backend.callCount() == 1 })

	// A fresher list arrives over the transport while REST is still pending.
	h.conn.push(t, 1, transport.TypeChatListResponse, transport.ChatList{Chats: []model.Chat{chat("c1", nil), chat("c2", nil)}})
	waitFor(t, "pushed list", func() bool { return h.list.Len() == 2 })

	close(release)
	time.Sleep(30 * time.Millisecond)
	if got := ids(h.list.Chats()); slices.Contains(got, "old") {
		t.Errorf("stale resync overwrote newer list: %v", got)
	}
}

func TestPushedListDuringOrphanResyncRefetches(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(call int) ([]model.Chat, error) {
		switch call {
		case 0:
			return []model.Chat{chat("c1", nil)}, nil
		case 1:
			<-release
		}
		return []model.Chat{chat("c1", nil), chat("c3", nil)}, nil
	})
	h.start(t)
	h.connect(1)
	waitFor(t, "initial list", func() bool { return h.list.Len() == 1 })

	h.conn.push(t, 1, transport.TypeMessageArrived, msg("m2", "c3", "u2", 20))
	waitFor(t, "unknown-chat resync", func() bool { return h.backend.callCount() == 2 })

	// An older list is pushed while the fetch for c3 is still pending.
	h.conn.push(t, 1, transport.TypeChatListResponse, transport.ChatList{Chats: []model.Chat{chat("c1", nil)}})
	time.Sleep(10 * time.Millisecond)
	close(release)

	waitFor(t, "c3 listed", func() bool { return h.list.Contains("c3") })
	got := ids(h.list.Chats())
	if len(got) != 2 || got[0] != "c3" {
		t.Fatalf("list = %v, want c3 once at head", got)
	}
	c3, _ := h.list.Get("c3")
	if c3.LatestMessage == nil || c3.LatestMessage.ID != "m2" {
		t.Errorf("c3 latest = %+v, want m2", c3.LatestMessage)
	}
	if n := h.backend.callCount(); n != 3 {
		t.Errorf("ListChats calls = %d, want 3", n)
	}
}

func TestResyncAcrossReconnectDiscarded(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(call int) ([]model.Chat, error) {
		if call == 0 {
			<-release
			return []model.Chat{chat("old", nil)}, nil
		}
		return []model.Chat{chat("fresh", nil)}, nil
	})
	h.start(t)
	h.connect(1)
	waitFor(t, "first resync", func() bool { return h.backend.callCount() == 1 })

	h.conn.events <- connection.Event{Kind: connection.EventDropped, Epoch: 1}
	h.connect(2)
	time.Sleep(10 * time.Millisecond)
	close(release)

	waitFor(t, "coalesced resync", func() bool { return h.backend.callCount() == 2 })
	waitFor(t, "fresh list", func() bool { return h.list.Contains("fresh") })
	if h.list.Contains("old") {
		t.Error("resync from the previous connection was applied")
	}
}

func TestTerminationGuard(t *testing.T) {
	h := newHarness(t, func(int) ([]model.Chat, error) {
		return []model.Chat{chat("c1", nil), chat("c2", nil)}, nil
	})
	h.start(t)
	h.connect(1)
	waitFor(t, "initial list", func() bool { return h.list.Len() == 2 })

	if _, err := h.engine.OpenChat(context.Background(), "c2"); err != nil {
		t.Fatal(err)
	}
	h.conn.push(t, 1, transport.TypeMessageArrived, msg("m1", "c1", "u2", 10))
	waitFor(t, "m1 recorded", func() bool { return h.ledger.Total() == 1 })

	h.conn.push(t, 1, transport.TypeSessionTerminatedBroadcast, transport.SessionTerminated{UserIDs: []string{"u7"}})
	h.conn.push(t, 1, transport.TypeSessionTerminated, transport.SessionTerminated{Reason: "signed in elsewhere"})
	h.conn.push(t, 1, transport.TypeSessionTerminatedBroadcast, transport.SessionTerminated{})
	waitFor(t, "termination", func() bool { return h.engine.Status().Terminated })
	time.Sleep(20 * time.Millisecond)

	if n := h.sink.count(notify.KindNotice); n != 1 {
		t.Errorf("notices = %d, want 1", n)
	}
	if n := h.conn.logoutCount(); n != 1 {
		t.Errorf("logouts = %d, want 1", n)
	}
	if h.ledger.Total() != 0 || h.list.Len() != 0 {
		t.Error("in-memory state not cleared")
	}
	if _, ok, _ := h.db.Get(store.KeyOpenChat); ok {
		t.Error("open chat marker not removed")
	}

	// Nothing delivered after teardown reaches the session.
	late := msg("m5", "c2", "u2", 50)
	if err := h.engine.Inject(&late); !errors.Is(err, ErrTerminated) {
		t.Errorf("Inject after termination = %v, want ErrTerminated", err)
	}
	own := msg("m6", "c2", "u1", 60)
	h.engine.bridge.Inject(&late)
	h.engine.bridge.Inject(&own)
	h.conn.push(t, 1, transport.TypeMessageArrived, msg("m7", "c1", "u2", 70))
	time.Sleep(30 * time.Millisecond)
	if h.ledger.Total() != 0 {
		t.Errorf("in-memory total after late deliveries = %d, want 0", h.ledger.Total())
	}
	if n := h.sink.count(notify.KindMessage); n != 1 {
		t.Errorf("message toasts = %d, want 1 (only m1)", n)
	}

	// The durable ledger survives for the next session.
	next := ledger.New(h.db, nil, nil)
	next.Load()
	if next.Count("c1") != 1 || next.Count("c2") != 0 || next.Total() != 1 {
		t.Errorf("durable ledger c1=%d c2=%d total=%d, want 1/0/1", next.Count("c1"), next.Count("c2"), next.Total())
	}

	if _, err := h.engine.OpenChat(context.Background(), "c1"); !errors.Is(err, ErrTerminated) {
		t.Errorf("OpenChat after termination = %v, want ErrTerminated", err)
	}
}

func TestUndecodableTerminationUsesDefaultReason(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.connect(1)

	h.conn.push(t, 1, transport.TypeSessionTerminated, "not an object")
	waitFor(t, "termination", func() bool { return h.engine.Status().Terminated })

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	var bodies []string
	for _, it := range h.sink.items {
		if it.Kind == notify.KindNotice {
			bodies = append(bodies, it.Body)
		}
	}
	if len(bodies) != 1 || bodies[0] != "Your session was ended by the server." {
		t.Errorf("notices = %q, want the default reason once", bodies)
	}
}

func TestInboundTyping(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.connect(1)

	h.conn.push(t, 1, transport.TypeTypingStart, transport.Typing{ChatID: "c1", UserID: "u2"})
	h.conn.push(t, 1, transport.TypeTypingStart, transport.Typing{ChatID: "c1", UserID: "u1"})
	waitFor(t, "u2 typing", func() bool { return h.tracker.IsTyping("c1", "u2") })

	h.conn.push(t, 1, transport.TypeTypingStop, transport.Typing{ChatID: "c1", UserID: "u2"})
	waitFor(t, "u2 stopped", func() bool { return !h.tracker.IsTyping("c1", "u2") })
	if h.tracker.IsTyping("c1", "u1") {
		t.Error("local user's own typing echo should be ignored")
	}
}

func TestOutboundTyping(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.engine.Keystroke("c1")
	h.engine.Keystroke("c1")
	h.engine.Sent("c1")
	if got := h.conn.count(transport.TypeTypingStart); got != 2 {
		t.Errorf("typing-start = %d, want 2", got)
	}
	if got := h.conn.count(transport.TypeTypingStop); got != 1 {
		t.Errorf("typing-stop = %d, want 1", got)
	}
}

func TestMalformedMessageNotAcked(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.connect(1)

	h.conn.push(t, 1, transport.TypeMessageArrived, msg("", "c1", "u2", 1))
	h.conn.push(t, 1, transport.TypeMessageArrived, msg("ok1", "c/1", "u2", 1))
	waitFor(t, "ack for valid id", func() bool { return h.conn.count(transport.TypeDeliveryAck) == 1 })
	time.Sleep(10 * time.Millisecond)
	if h.ledger.Total() != 0 {
		t.Error("malformed messages reached the ledger")
	}
}

func TestBridgeDelivery(t *testing.T) {
	h := newHarness(t, func(int) ([]model.Chat, error) {
		return []model.Chat{chat("c1", nil)}, nil
	})
	h.start(t)
	h.connect(1)
	waitFor(t, "initial list", func() bool { return h.list.Len() == 1 })

	m := msg("m1", "c1", "u2", 10)
	if err := h.engine.Inject(&m); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "bridge message", func() bool { return h.ledger.Count("c1") == 1 })

	h.conn.push(t, 1, transport.TypeMessageArrived, m)
	waitFor(t, "ack", func() bool { return h.conn.count(transport.TypeDeliveryAck) == 1 })
	if h.ledger.Count("c1") != 1 || h.sink.count(notify.KindMessage) != 1 {
		t.Error("transport redelivery of a bridged message had an effect")
	}
}

func TestOpenChatLoadsHistory(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.history["c1"] = []model.Message{msg("h2", "c1", "u2", 20), msg("h1", "c1", "u2", 10)}
	h.start(t)

	if _, err := h.engine.OpenChat(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "history", func() bool {
		_, msgs := h.engine.Transcript()
		return len(msgs) == 2
	})
	chatID, msgs := h.engine.Transcript()
	if chatID != "c1" || msgs[0].ID != "h1" || msgs[1].ID != "h2" {
		t.Errorf("transcript %s = %+v", chatID, msgs)
	}
	if h.conn.count(transport.TypeJoinChat) != 1 {
		t.Error("join-chat not emitted")
	}
	waitFor(t, "mark read", func() bool {
		h.backend.mu.Lock()
		defer h.backend.mu.Unlock()
		return slices.Equal(h.backend.reads, []string{"c1"})
	})
}

func TestCallsRequireRunningLoop(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.engine.OpenChat(context.Background(), "c1"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("OpenChat before Start = %v, want ErrNotRunning", err)
	}
	h.start(t)
	if _, err := h.engine.OpenChat(context.Background(), "bad id"); !errors.Is(err, model.ErrInvalidChatID) {
		t.Errorf("OpenChat(bad id) = %v, want ErrInvalidChatID", err)
	}
}

func TestInitRehydratesBeforeEvents(t *testing.T) {
	h := newHarness(t, nil)
	seed := ledger.New(h.db, nil, nil)
	m := msg("m1", "c1", "u2", 10)
	seed.Record("c1", &m)

	h.start(t)
	if h.ledger.Total() != 1 {
		t.Fatalf("Total after Init = %d, want 1", h.ledger.Total())
	}

	// The same message redelivered after a reload must not double count.
	h.connect(1)
	h.conn.push(t, 1, transport.TypeMessageArrived, m)
	waitFor(t, "ack", func() bool { return h.conn.count(transport.TypeDeliveryAck) == 1 })
	time.Sleep(10 * time.Millisecond)
	if h.ledger.Total() != 1 {
		t.Errorf("Total = %d, want 1", h.ledger.Total())
	}
}
