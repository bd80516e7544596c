package router

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/chatlist"
	"github.com/matheus3301/opschat/internal/ledger"
	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/notify"
)

type countingSink struct {
	mu  sync.Mutex
	ids []string
}

func (c *countingSink) Present(n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, n.MessageID)
}

func (c *countingSink) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ids)
}

type fixture struct {
	router     *Router
	focus      *notify.Focus
	transcript *Transcript
	ledger     *ledger.Ledger
	list       *chatlist.Projector
	sink       *countingSink
	unknown    []string
}

func newFixture(t *testing.T, chats ...string) *fixture {
	t.Helper()
	f := &fixture{
		focus:      notify.NewFocus(nil, nil),
		transcript: NewTranscript(nil),
		ledger:     ledger.New(nil, nil, nil),
		list:       chatlist.New(nil, nil, nil),
		sink:       &countingSink{},
	}
	var list []model.Chat
	for _, id := range chats {
		list = append(list, model.Chat{ID: id, ParticipantIDs: []string{"u1", "u2"}})
	}
	f.list.Replace(list)

	presenter := notify.NewPresenter(notify.Options{}, f.focus, nil, nil, nil, f.sink)
	presenter.Init("u1")

	f.router = New(Deps{
		Focus:      f.focus,
		Transcript: f.transcript,
		Ledger:     f.ledger,
		List:       f.list,
		Notifier:   presenter,
	}, nil)
	f.router.SetLocalUser("u1")
	f.router.OnUnknownChat(func(m *model.Message) { f.unknown = append(f.unknown, m.ChatID) })
	return f
}

func (f *fixture) open(chatID string) {
	f.focus.SetOpenChat(chatID)
	f.focus.SetPageActive(true)
	f.transcript.Reset(chatID)
}

func msg(id, chatID, sender string, at int64) *model.Message {
	return &model.Message{ID: id, ChatID: chatID, SenderID: sender, Content: "text " + id, CreatedAt: time.UnixMilli(at)}
}

func TestRouteRejectsMalformed(t *testing.T) {
	f := newFixture(t, "c1")
	tests := []struct {
		name string
		m    *model.Message
	}{
		{"nil", nil},
		{"missing id", msg("", "c1", "u2", 1)},
		{"blank id", msg("  ", "c1", "u2", 1)},
		{"missing chat", msg("m1", "", "u2", 1)},
		{"bad chat shape", msg("m1", "c/1", "u2", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.router.Route(Delivery{Path: PathTransport, Message: tt.m})
			if !res.Rejected {
				t.Errorf("Route() = %+v, want rejected", res)
			}
		})
	}
	if f.ledger.Total() != 0 || len(f.sink.all()) != 0 {
		t.Error("malformed messages changed state")
	}
}

func TestRouteNotOpenChat(t *testing.T) {
	f := newFixture(t, "c1", "c2")
	f.open("c2")

	res := f.router.Route(Delivery{Path: PathTransport, Message: msg("m1", "c1", "u2", 10)})
	if !res.Listed || !res.Recorded || !res.Notified || res.Appended {
		t.Errorf("Route() = %+v", res)
	}
	if f.ledger.Count("c1") != 1 || f.ledger.Total() != 1 {
		t.Errorf("ledger count=%d total=%d", f.ledger.Count("c1"), f.ledger.Total())
	}
	if head := f.list.Chats()[0]; head.ID != "c1" || head.LatestMessage.ID != "m1" {
		t.Errorf("head = %+v", head)
	}
}

func TestRouteOpenChatAppendsTranscript(t *testing.T) {
	f := newFixture(t, "c1")
	f.open("c1")

	res := f.router.Route(Delivery{Path: PathTransport, Message: msg("m1", "c1", "u2", 10)})
	if !res.Appended || res.Recorded || res.Notified {
		t.Errorf("Route() = %+v", res)
	}
	if f.transcript.Len() != 1 || f.ledger.Total() != 0 || len(f.sink.all()) != 0 {
		t.Error("open chat message should reach only transcript and list")
	}
}

func TestRouteSelfMessage(t *testing.T) {
	f := newFixture(t, "c1", "c2")
	f.open("c2")

	res := f.router.Route(Delivery{Path: PathLoopback, Message: msg("m1", "c1", "u1", 10)})
	if res.Recorded || res.Notified || !res.Listed {
		t.Errorf("Route() = %+v", res)
	}

	// Local echo in the open chat still lands in the transcript.
	res = f.router.Route(Delivery{Path: PathBridge, Message: msg("m2", "c2", "u1", 11)})
	if !res.Appended {
		t.Errorf("self message in open chat not appended: %+v", res)
	}
	if f.ledger.Total() != 0 || len(f.sink.all()) != 0 {
		t.Error("self messages must not count or notify")
	}
}

func TestRouteDedupAcrossPaths(t *testing.T) {
	paths := []string{PathTransport, PathLoopback, PathBridge}
	for _, openChat := range []string{"c1", "c2"} {
		t.Run("open "+openChat, func(t *testing.T) {
			once := newFixture(t, "c1", "c2")
			twice := newFixture(t, "c1", "c2")
			once.open(openChat)
			twice.open(openChat)

			m := msg("m1", "c1", "u2", 10)
			once.router.Route(Delivery{Path: PathTransport, Message: m})
			for _, p := range paths {
				twice.router.Route(Delivery{Path: p, Message: m})
			}

			if once.transcript.Len() != twice.transcript.Len() {
				t.Errorf("transcript %d vs %d", once.transcript.Len(), twice.transcript.Len())
			}
			if once.ledger.Total() != twice.ledger.Total() {
				t.Errorf("ledger %d vs %d", once.ledger.Total(), twice.ledger.Total())
			}
			if !slices.Equal(once.sink.all(), twice.sink.all()) {
				t.Errorf("notifications %v vs %v", once.sink.all(), twice.sink.all())
			}
		})
	}
}

func TestRouteOpenChatWhilePageInactive(t *testing.T) {
	f := newFixture(t, "c1")
	f.open("c1")
	f.focus.SetPageActive(false)

	res := f.router.Route(Delivery{Path: PathTransport, Message: msg("m1", "c1", "u2", 10)})
	if !res.Appended || res.Recorded || res.Notified {
		t.Errorf("Route() = %+v, want appended only", res)
	}
	if got := f.sink.all(); len(got) != 0 {
		t.Errorf("notifications = %v, want none", got)
	}
}

func TestRouteAlreadyUnreadDoesNotNotify(t *testing.T) {
	// State after a restart: the durable ledger still holds m1, but the
	// routed-id window and the notification cache start empty.
	f := newFixture(t, "c1")
	f.ledger.Record("c1", msg("m1", "c1", "u2", 10))

	res := f.router.Route(Delivery{Path: PathTransport, Message: msg("m1", "c1", "u2", 10)})
	if res.Recorded || res.Notified {
		t.Errorf("redelivered unread message: %+v", res)
	}
	if got := f.sink.all(); len(got) != 0 {
		t.Errorf("notifications = %v, want none", got)
	}
	if f.ledger.Count("c1") != 1 {
		t.Errorf("Count(c1) = %d, want 1", f.ledger.Count("c1"))
	}

	f.router.Route(Delivery{Path: PathTransport, Message: msg("m2", "c1", "u2", 20)})
	if got := f.sink.all(); !slices.Equal(got, []string{"m2"}) {
		t.Errorf("notifications = %v, want [m2]", got)
	}
}

func TestRouteUnknownChat(t *testing.T) {
	f := newFixture(t, "c1")

	res := f.router.Route(Delivery{Path: PathTransport, Message: msg("m2", "c3", "u2", 10)})
	if !res.UnknownChat || res.Listed {
		t.Errorf("Route() = %+v", res)
	}
	f.router.Route(Delivery{Path: PathLoopback, Message: msg("m2", "c3", "u2", 10)})

	if !slices.Equal(f.unknown, []string{"c3"}) {
		t.Errorf("unknown callbacks = %v, want exactly [c3]", f.unknown)
	}
	if f.list.Contains("c3") {
		t.Error("router must not synthesize a partial chat entry")
	}
	if f.ledger.Count("c3") != 1 {
		t.Error("unknown chat message should still be counted")
	}
}

// TestNotificationProperty routes random traffic over random paths and
// checks that each eligible id notifies exactly once and nothing else does.
func TestNotificationProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 9))
	chats := []string{"c1", "c2", "c3"}
	senders := []string{"u1", "u2", "u3"}
	paths := []string{PathTransport, PathLoopback, PathBridge}

	f := newFixture(t, chats...)
	f.open("c2")

	eligible := map[string]bool{}
	var all []*model.Message
	for i := range 40 {
		m := msg(fmt.Sprintf("m%d", i), chats[rng.IntN(len(chats))], senders[rng.IntN(len(senders))], int64(i))
		all = append(all, m)
		eligible[m.ID] = m.SenderID != "u1" && m.ChatID != "c2"
	}
	for range 200 {
		m := all[rng.IntN(len(all))]
		f.router.Route(Delivery{Path: paths[rng.IntN(len(paths))], Message: m})
	}

	counts := map[string]int{}
	for _, id := range f.sink.all() {
		counts[id]++
	}
	for id, n := range counts {
		if !eligible[id] {
			t.Errorf("%s notified but should be suppressed", id)
		}
		if n != 1 {
			t.Errorf("%s notified %d times", id, n)
		}
	}
	for _, m := range all {
		if eligible[m.ID] && f.router.Seen(m.ID) && counts[m.ID] != 1 {
			t.Errorf("%s routed but notified %d times", m.ID, counts[m.ID])
		}
	}
}

func TestListOrderingAfterRouting(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 1))
	chats := []string{"c1", "c2", "c3", "c4"}
	f := newFixture(t, chats...)

	for i := range 60 {
		at := rng.Int64N(1000)
		f.router.Route(Delivery{Path: PathTransport, Message: msg(fmt.Sprintf("m%d", i), chats[rng.IntN(len(chats))], "u2", at)})
	}
	list := f.list.Chats()
	for i := 1; i < len(list); i++ {
		if list[i-1].LatestAt() < list[i].LatestAt() {
			t.Fatalf("list not sorted at %d: %d < %d", i, list[i-1].LatestAt(), list[i].LatestAt())
		}
	}
}

func TestTranscriptMerge(t *testing.T) {
	b := bus.New()
	events, unsub := b.Subscribe(10, "transcript.")
	defer unsub()

	tr := NewTranscript(b)
	tr.Reset("c1")
	tr.Append(msg("m3", "c1", "u2", 30))

	added := tr.Merge([]model.Message{
		*msg("m1", "c1", "u2", 10),
		*msg("m3", "c1", "u2", 30),
		*msg("m2", "c1", "u2", 20),
		*msg("x1", "c9", "u2", 5),
	})
	if added != 2 {
		t.Errorf("Merge() = %d, want 2", added)
	}
	var ids []string
	for _, m := range tr.Messages() {
		ids = append(ids, m.ID)
	}
	if !slices.Equal(ids, []string{"m1", "m2", "m3"}) {
		t.Errorf("transcript = %v", ids)
	}
	if tr.Append(msg("m9", "c2", "u2", 1)) {
		t.Error("Append accepted a message for another chat")
	}

	for range 2 {
		select {
		case <-events:
		case <-time.After(time.Second):
			t.Fatal("missing transcript event")
		}
	}
}

func TestBridgeInject(t *testing.T) {
	b := bus.New()
	br := NewBridge(b)
	ch, unsub := br.Subscribe(4)
	defer unsub()

	br.Inject(msg("m1", "c1", "u2", 1))
	select {
	case evt := <-ch:
		d, ok := evt.Payload.(Delivery)
		if !ok || d.Path != PathBridge || d.Message.ID != "m1" {
			t.Errorf("payload = %#v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("bridge delivery not received")
	}
}
