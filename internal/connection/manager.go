// Package connection owns the real-time transport session of the signed-in
// user: connect, indefinite capped-backoff reconnect, identity announce.
package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/matheus3301/opschat/internal/status"
	"github.com/matheus3301/opschat/internal/transport"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Send while no transport session is up.
var ErrNotConnected = errors.New("connection: not connected")

// Default backoff bounds.
const (
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 30 * time.Second

	writeTimeout = 5 * time.Second
	eventBuffer  = 256
)

// Event kinds delivered to the session loop.
const (
	EventConnected = "connected"
	EventDropped   = "dropped"
	EventEnvelope  = "envelope"
)

// Event is something that happened on the transport. Epoch identifies the
// connection it happened on; it grows by one on every successful connect.
type Event struct {
	Kind     string
	Epoch    uint64
	Envelope transport.Envelope
}

// Session is a snapshot of the transport session.
type Session struct {
	UserID            string
	TransportID       string
	State             status.State
	ReconnectAttempts int
	Epoch             uint64
}

// Options configures the retry policy.
type Options struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Manager keeps exactly one live transport session per user.
type Manager struct {
	dialer  transport.Dialer
	machine *status.Machine
	opts    Options
	logger  *zap.Logger

	events chan Event
	wake   chan struct{}

	mu          sync.Mutex
	conn        transport.Conn
	userID      string
	token       string
	transportID string
	attempts    int
	epoch       uint64
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewManager creates a manager in the Disconnected state.
func NewManager(dialer transport.Dialer, machine *status.Machine, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	return &Manager{
		dialer:  dialer,
		machine: machine,
		opts:    opts,
		logger:  logger.Named("connection"),
		events:  make(chan Event, eventBuffer),
		wake:    make(chan struct{}, 1),
	}
}

// Events is the stream the session loop consumes.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Connect starts the session for userID. Without a token the manager stays
// Disconnected and nothing is reported to the caller. Calling Connect while
// a session runs is a no-op.
func (m *Manager) Connect(ctx context.Context, userID, token string) {
	if token == "" {
		m.logger.Warn("no auth token, staying disconnected", zap.String("user", userID))
		return
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.userID = userID
	m.token = token
	m.attempts = 0
	done := m.done
	m.mu.Unlock()

	if err := m.machine.Transition(status.Connecting); err != nil {
		m.logger.Warn("unexpected state on connect", zap.Error(err))
	}
	go func() {
		defer close(done)
		m.run(runCtx)
	}()
}

// Logout cancels the retry loop, closes the transport and waits for the
// loop to exit. The state ends Disconnected.
func (m *Manager) Logout() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	conn := m.conn
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done

	m.mu.Lock()
	m.conn = nil
	m.token = ""
	m.transportID = ""
	m.attempts = 0
	m.mu.Unlock()
	m.machine.Reset()
	m.logger.Info("logged out")
}

// NetworkChanged forces an immediate attempt when connectivity returns
// while the session is down.
func (m *Manager) NetworkChanged(online bool) {
	if !online {
		return
	}
	switch m.machine.Current() {
	case status.Connecting, status.Reconnecting:
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// Send writes env on the live session.
func (m *Manager) Send(ctx context.Context, env transport.Envelope) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, env)
}

// Emit builds and sends an envelope, logging failures. Fire-and-forget.
func (m *Manager) Emit(ctx context.Context, typ string, payload any) {
	env, err := transport.NewEnvelope(typ, payload)
	if err != nil {
		m.logger.Error("failed to encode envelope", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := m.Send(ctx, env); err != nil {
		m.logger.Debug("envelope not sent", zap.String("type", typ), zap.Error(err))
	}
}

// Session returns a snapshot of the transport session.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Session{
		UserID:            m.userID,
		TransportID:       m.transportID,
		State:             m.machine.Current(),
		ReconnectAttempts: m.attempts,
		Epoch:             m.epoch,
	}
}

// Epoch returns the current connection epoch.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.InitialInterval
	b.MaxInterval = m.opts.MaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.Reset()
	return b
}

func (m *Manager) run(ctx context.Context) {
	b := m.newBackOff()
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	for {
		conn, err := m.dialer.Dial(ctx, token)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			m.mu.Lock()
			m.attempts++
			attempt := m.attempts
			m.mu.Unlock()
			if m.machine.Current() == status.Connecting {
				_ = m.machine.Transition(status.Reconnecting)
			}
			delay := b.NextBackOff()
			m.logger.Warn("connect failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			if !m.sleep(ctx, delay) {
				return
			}
			continue
		}

		b.Reset()
		epoch := m.attach(conn)
		if err := m.machine.Transition(status.Connected); err != nil {
			m.logger.Warn("unexpected state on connected", zap.Error(err))
		}
		m.announce(ctx)
		if !m.deliver(ctx, Event{Kind: EventConnected, Epoch: epoch}) {
			return
		}

		err = m.readLoop(ctx, conn, epoch)
		m.detach(conn)
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("transport dropped", zap.Uint64("epoch", epoch), zap.Error(err))
		_ = m.machine.Transition(status.Reconnecting)
		if !m.deliver(ctx, Event{Kind: EventDropped, Epoch: epoch}) {
			return
		}
		if !m.sleep(ctx, b.NextBackOff()) {
			return
		}
	}
}

func (m *Manager) attach(conn transport.Conn) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = conn
	m.epoch++
	m.attempts = 0
	m.transportID = uuid.NewString()
	m.logger.Info("connected",
		zap.String("user", m.userID),
		zap.String("transport_id", m.transportID),
		zap.Uint64("epoch", m.epoch),
	)
	return m.epoch
}

func (m *Manager) detach(conn transport.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
}

// announce re-binds the session to the user and asks for the chat list.
// Both are safe to repeat on every connect.
func (m *Manager) announce(ctx context.Context) {
	m.mu.Lock()
	userID, token := m.userID, m.token
	m.mu.Unlock()
	m.Emit(ctx, transport.TypeIdentityAnnounce, transport.IdentityAnnounce{UserID: userID, AuthToken: token})
	m.Emit(ctx, transport.TypeRequestChatList, transport.RequestChatList{UserID: userID})
}

func (m *Manager) readLoop(ctx context.Context, conn transport.Conn, epoch uint64) error {
	for {
		env, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !m.deliver(ctx, Event{Kind: EventEnvelope, Epoch: epoch, Envelope: env}) {
			return ctx.Err()
		}
	}
}

func (m *Manager) deliver(ctx context.Context, evt Event) bool {
	select {
	case m.events <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep waits for d, a network wake-up or cancellation.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	case <-m.wake:
		m.logger.Info("network back, retrying now")
		return true
	}
}
