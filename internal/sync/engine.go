// Package sync runs the synchronization core of one signed-in session: a
// single goroutine that owns every mutation of the transcript, the unread
// ledger, the chat list, typing state and notifications.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/chatlist"
	"github.com/matheus3301/opschat/internal/connection"
	"github.com/matheus3301/opschat/internal/ledger"
	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/notify"
	"github.com/matheus3301/opschat/internal/router"
	"github.com/matheus3301/opschat/internal/status"
	"github.com/matheus3301/opschat/internal/transport"
	"github.com/matheus3301/opschat/internal/typing"
	"go.uber.org/zap"
)

var (
	// ErrNotRunning is returned by calls made while the loop is not running.
	ErrNotRunning = errors.New("sync: engine not running")
	// ErrTerminated is returned once the server has ended the session.
	ErrTerminated = errors.New("sync: session terminated")
)

const (
	fetchTimeout = 15 * time.Second
	bridgeBuffer = 256
)

// Transport is the connection the engine drives.
type Transport interface {
	Connect(ctx context.Context, userID, token string)
	Logout()
	Events() <-chan connection.Event
	Emit(ctx context.Context, typ string, payload any)
	Session() connection.Session
}

// Backend is the REST collaborator.
type Backend interface {
	ListChats(ctx context.Context, userID string) ([]model.Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
	MarkChatRead(ctx context.Context, chatID, userID string) error
}

// Deps are the components the engine owns for the session.
type Deps struct {
	Conn        Transport
	Backend     Backend
	Ledger      *ledger.Ledger
	List        *chatlist.Projector
	Typing      *typing.Tracker
	Focus       *notify.Focus
	Notifier    *notify.Presenter
	Transcript  *router.Transcript
	Bridge      *router.Bridge
	Bus         *bus.Bus
	QuietPeriod time.Duration
}

// Status is a point-in-time view of the session.
type Status struct {
	UserID            string
	State             status.State
	TransportID       string
	ReconnectAttempts int
	Epoch             uint64
	OpenChat          string
	PageActive        bool
	TotalUnread       int
	Chats             int
	Terminated        bool
}

// Engine is the session's event loop.
type Engine struct {
	conn       Transport
	backend    Backend
	ledger     *ledger.Ledger
	list       *chatlist.Projector
	typing     *typing.Tracker
	focus      *notify.Focus
	notifier   *notify.Presenter
	transcript *router.Transcript
	bridge     *router.Bridge
	bus        *bus.Bus
	router     *router.Router
	debouncer  *typing.Debouncer
	logger     *zap.Logger

	calls   chan func()
	results chan func()

	mu      gosync.Mutex
	loopCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	userID     string
	token      string
	terminated atomic.Bool

	// Owned by the loop goroutine.
	epoch          uint64
	resyncSeq      uint64
	appliedSeq     uint64
	resyncInFlight bool
	resyncPending  bool
	orphans        map[string][]*model.Message
}

// NewEngine wires the session components together.
func NewEngine(deps Deps, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		conn:       deps.Conn,
		backend:    deps.Backend,
		ledger:     deps.Ledger,
		list:       deps.List,
		typing:     deps.Typing,
		focus:      deps.Focus,
		notifier:   deps.Notifier,
		transcript: deps.Transcript,
		bridge:     deps.Bridge,
		bus:        deps.Bus,
		logger:     logger.Named("sync"),
		calls:      make(chan func()),
		results:    make(chan func(), 64),
		orphans:    make(map[string][]*model.Message),
	}
	e.router = router.New(router.Deps{
		Focus:      deps.Focus,
		Transcript: deps.Transcript,
		Ledger:     deps.Ledger,
		List:       deps.List,
		Notifier:   deps.Notifier,
	}, logger)
	e.router.OnUnknownChat(e.unknownChat)
	e.debouncer = typing.NewDebouncer(deps.QuietPeriod, typingEmitter{e})
	e.notifier.SetOpener(func(chatID string) {
		if _, err := e.OpenChat(context.Background(), chatID); err != nil {
			e.logger.Warn("open from notification failed", zap.String("chat", chatID), zap.Error(err))
		}
	})
	return e
}

// Init binds the engine to userID and rehydrates durable state. It must run
// before Start so no transport event is processed against an empty ledger.
func (e *Engine) Init(userID, token string) {
	e.mu.Lock()
	e.userID = userID
	e.token = token
	e.mu.Unlock()
	e.terminated.Store(false)

	e.ledger.Load()
	e.list.Load()
	e.focus.Load()
	e.notifier.Init(userID)
	e.router.SetLocalUser(userID)
	e.transcript.Reset(e.focus.OpenChat())

	e.logger.Info("session initialized",
		zap.String("user", userID),
		zap.Int("unread", e.ledger.Total()),
		zap.Int("chats", e.list.Len()),
		zap.String("open_chat", e.focus.OpenChat()),
	)
}

// Start runs the loop and connects the transport.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.loopCtx = loopCtx
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	userID, token := e.userID, e.token
	e.mu.Unlock()

	bridgeCh, unsub := e.bridge.Subscribe(bridgeBuffer)
	go func() {
		defer close(done)
		defer unsub()
		e.loop(loopCtx, bridgeCh)
	}()

	if open := e.focus.OpenChat(); open != "" {
		e.post(func() { e.loadHistory(open) })
	}
	e.conn.Connect(loopCtx, userID, token)
}

// Dispose logs the transport out, stops the loop and discards in-memory
// state. Durable state stays for the next session.
func (e *Engine) Dispose() {
	e.conn.Logout()

	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	e.debouncer.Stop()
	e.notifier.Dispose()
	e.discard()
	e.logger.Info("session disposed")
}

func (e *Engine) loop(ctx context.Context, bridgeCh <-chan bus.Event) {
	events := e.conn.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			e.handleConn(ctx, evt)
		case evt := <-bridgeCh:
			if e.terminated.Load() {
				continue
			}
			if d, ok := evt.Payload.(router.Delivery); ok {
				e.router.Route(d)
			}
		case fn := <-e.results:
			fn()
		case fn := <-e.calls:
			fn()
		}
	}
}

// do runs fn on the loop and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	e.mu.Lock()
	loopCtx := e.loopCtx
	running := e.cancel != nil
	e.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	finished := make(chan struct{})
	select {
	case e.calls <- func() { fn(); close(finished) }:
	case <-loopCtx.Done():
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-loopCtx.Done():
		return ErrNotRunning
	}
}

// post hands a completion back to the loop.
func (e *Engine) post(fn func()) {
	e.mu.Lock()
	loopCtx := e.loopCtx
	e.mu.Unlock()
	if loopCtx == nil {
		return
	}
	select {
	case e.results <- fn:
	case <-loopCtx.Done():
	}
}

func (e *Engine) handleConn(ctx context.Context, evt connection.Event) {
	switch evt.Kind {
	case connection.EventConnected:
		e.epoch = evt.Epoch
		if open := e.focus.OpenChat(); open != "" {
			e.conn.Emit(ctx, transport.TypeJoinChat, transport.JoinChat{ChatID: open})
		}
		e.resync("connected")
	case connection.EventDropped:
		e.logger.Info("transport dropped, waiting for reconnect", zap.Uint64("epoch", evt.Epoch))
	case connection.EventEnvelope:
		if e.terminated.Load() {
			e.logger.Debug("ignoring envelope after termination", zap.String("type", evt.Envelope.Type))
			return
		}
		if evt.Epoch != e.epoch {
			e.logger.Debug("ignoring envelope from old connection", zap.Uint64("epoch", evt.Epoch))
			return
		}
		e.handleEnvelope(ctx, evt.Envelope)
	}
}

func (e *Engine) handleEnvelope(ctx context.Context, env transport.Envelope) {
	switch env.Type {
	case transport.TypeMessageArrived, transport.TypeMessageReemit:
		var m model.Message
		if err := env.Decode(&m); err != nil {
			e.logger.Warn("dropping undecodable message", zap.String("type", env.Type), zap.Error(err))
			return
		}
		if model.ValidateID(m.ID) == nil {
			e.conn.Emit(ctx, transport.TypeDeliveryAck, transport.DeliveryAck{MessageID: m.ID})
		}
		path := router.PathTransport
		if env.Type == transport.TypeMessageReemit {
			path = router.PathLoopback
		}
		e.router.Route(router.Delivery{Path: path, Message: &m})

	case transport.TypeTypingStart, transport.TypeTypingStop:
		var p transport.Typing
		if err := env.Decode(&p); err != nil || p.ChatID == "" || p.UserID == "" {
			e.logger.Warn("dropping malformed typing signal", zap.String("type", env.Type), zap.Error(err))
			return
		}
		if p.UserID == e.userID {
			return
		}
		if env.Type == transport.TypeTypingStart {
			e.typing.SetTyping(p.ChatID, p.UserID)
		} else {
			e.typing.ClearTyping(p.ChatID, p.UserID)
		}

	case transport.TypeChatListRefreshRequest, transport.TypeReconnected:
		e.resync(env.Type)

	case transport.TypeChatListResponse:
		var p transport.ChatList
		if err := env.Decode(&p); err != nil {
			e.logger.Warn("dropping undecodable chat list", zap.Error(err))
			return
		}
		e.appliedSeq = e.resyncSeq
		e.applyList(p.Chats, !e.resyncInFlight && !e.resyncPending)
		if e.resyncInFlight && len(e.orphans) > 0 {
			// The in-flight fetch now counts as stale; queue another for the orphans.
			e.resyncPending = true
		}

	case transport.TypeSessionTerminated:
		var p transport.SessionTerminated
		if err := env.Decode(&p); err != nil {
			e.logger.Warn("undecodable termination signal, using default reason", zap.Error(err))
		}
		e.terminate(p.Reason)

	case transport.TypeSessionTerminatedBroadcast:
		var p transport.SessionTerminated
		if err := env.Decode(&p); err != nil {
			e.logger.Warn("undecodable termination broadcast, treating as addressed to everyone", zap.Error(err))
			p = transport.SessionTerminated{}
		}
		if !p.Applies(e.userID) {
			return
		}
		e.terminate(p.Reason)

	default:
		e.logger.Debug("ignoring envelope", zap.String("type", env.Type))
	}
}

func (e *Engine) unknownChat(m *model.Message) {
	e.orphans[m.ChatID] = append(e.orphans[m.ChatID], m)
	e.resync("unknown-chat")
}

// resync fetches the server's chat list. Requests made while one is in
// flight coalesce into a single follow-up.
func (e *Engine) resync(reason string) {
	if e.terminated.Load() {
		return
	}
	if e.resyncInFlight {
		e.resyncPending = true
		return
	}
	e.resyncSeq++
	seq, epoch := e.resyncSeq, e.epoch
	e.resyncInFlight = true
	userID := e.userID
	e.logger.Debug("resync started", zap.String("reason", reason), zap.Uint64("seq", seq), zap.Uint64("epoch", epoch))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		chats, err := e.backend.ListChats(ctx, userID)
		e.post(func() { e.finishResync(seq, epoch, chats, err) })
	}()
}

func (e *Engine) finishResync(seq, epoch uint64, chats []model.Chat, err error) {
	e.resyncInFlight = false
	switch {
	case e.terminated.Load():
		return
	case err != nil:
		e.logger.Warn("resync failed, keeping cached list", zap.Uint64("seq", seq), zap.Error(err))
	case epoch != e.epoch || seq <= e.appliedSeq:
		e.logger.Info("discarding stale resync", zap.Uint64("seq", seq), zap.Uint64("epoch", epoch), zap.Uint64("current_epoch", e.epoch))
	default:
		e.appliedSeq = seq
		e.applyList(chats, !e.resyncPending)
	}
	if e.resyncPending {
		e.resyncPending = false
		e.resync("coalesced")
	}
}

// applyList replaces the list with server truth and re-applies messages
// that arrived for chats it did not know. When final, orphans whose chat is
// still missing are dropped.
func (e *Engine) applyList(chats []model.Chat, final bool) {
	e.list.Replace(chats)
	for chatID, msgs := range e.orphans {
		if !e.list.Contains(chatID) {
			if final {
				e.logger.Warn("chat still unknown after resync, dropping", zap.String("chat", chatID), zap.Int("messages", len(msgs)))
				delete(e.orphans, chatID)
			}
			continue
		}
		for _, m := range msgs {
			e.list.Apply(m)
		}
		delete(e.orphans, chatID)
	}
	e.logger.Info("chat list resynced", zap.Int("chats", e.list.Len()))
}

func (e *Engine) terminate(reason string) {
	if e.terminated.Swap(true) {
		return
	}
	if reason == "" {
		reason = "Your session was ended by the server."
	}
	e.logger.Warn("session terminated", zap.String("reason", reason))
	e.notifier.Notice("Session ended", reason)
	e.notifier.Dispose()
	e.bus.Emit(bus.KindSessionTerminated, reason)

	e.conn.Logout()
	e.debouncer.Stop()
	e.focus.SetOpenChat("")
	e.discard()
}

// discard drops in-memory session state. Storage is untouched.
func (e *Engine) discard() {
	e.ledger.Reset()
	e.list.Reset()
	e.typing.Reset()
	e.router.Reset()
	e.transcript.Reset("")
	e.focus.Reset()
	e.orphans = make(map[string][]*model.Message)
	e.resyncInFlight = false
	e.resyncPending = false
}

func (e *Engine) loadHistory(chatID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		msgs, err := e.backend.ListMessages(ctx, chatID)
		if err != nil {
			e.logger.Warn("failed to load history", zap.String("chat", chatID), zap.Error(err))
			return
		}
		e.post(func() {
			if e.transcript.ChatID() != chatID {
				return
			}
			added := e.transcript.Merge(msgs)
			e.logger.Debug("history merged", zap.String("chat", chatID), zap.Int("added", added))
		})
	}()
}

func (e *Engine) markRead(chatID string) {
	userID := e.userID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		if err := e.backend.MarkChatRead(ctx, chatID, userID); err != nil {
			e.logger.Warn("failed to mark chat read", zap.String("chat", chatID), zap.Error(err))
		}
	}()
}

type typingEmitter struct{ e *Engine }

func (t typingEmitter) EmitTypingStart(chatID string) {
	t.e.conn.Emit(context.Background(), transport.TypeTypingStart, transport.Typing{ChatID: chatID, UserID: t.e.UserID()})
}

func (t typingEmitter) EmitTypingStop(chatID string) {
	t.e.conn.Emit(context.Background(), transport.TypeTypingStop, transport.Typing{ChatID: chatID, UserID: t.e.UserID()})
}
