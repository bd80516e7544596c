// Package notify decides whether a new message is surfaced to the user and
// suppresses duplicate notifications.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/dedup"
	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/store"
	"go.uber.org/zap"
)

// DefaultCapacity is the size of the recent-notification cache.
const DefaultCapacity = 20

// Notification kinds.
const (
	KindMessage = "message"
	KindNotice  = "notice"
)

// Notification is one user-facing toast.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ChatID    string    `json:"chatId,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	SenderID  string    `json:"senderId,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Sound     bool      `json:"sound"`
	CreatedAt time.Time `json:"createdAt"`

	open func()
}

// Open asks the host to open the notification's chat. No-op for notices.
func (n Notification) Open() {
	if n.open != nil {
		n.open()
	}
}

// Storage persists the recent-notification cache.
type Storage interface {
	GetJSON(key string, v any) (bool, error)
	PutJSON(key string, v any) error
}

// Options configures a Presenter.
type Options struct {
	Capacity int
	Sound    bool
}

// Presenter is the per-session notification service. It is inert until
// Init and after Dispose.
type Presenter struct {
	mu          sync.Mutex
	recent      *dedup.Window
	localUserID string
	active      bool
	opener      func(chatID string)

	opts    Options
	focus   *Focus
	storage Storage
	bus     *bus.Bus
	sinks   []Sink
	logger  *zap.Logger
}

// NewPresenter creates a presenter. focus, storage and b may be nil.
func NewPresenter(opts Options, focus *Focus, storage Storage, b *bus.Bus, logger *zap.Logger, sinks ...Sink) *Presenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	return &Presenter{
		recent:  dedup.NewWindow(opts.Capacity),
		opts:    opts,
		focus:   focus,
		storage: storage,
		bus:     b,
		sinks:   sinks,
		logger:  logger.Named("notify"),
	}
}

// Init binds the presenter to the session's user and restores the cache.
func (p *Presenter) Init(localUserID string) {
	var ids []string
	if p.storage != nil {
		if _, err := p.storage.GetJSON(store.KeyRecentNotifications, &ids); err != nil {
			p.logger.Warn("failed to load recent notifications", zap.Error(err))
			ids = nil
		}
	}

	p.mu.Lock()
	p.localUserID = localUserID
	p.recent.Restore(ids)
	p.active = true
	p.mu.Unlock()
}

// Dispose detaches the presenter from the session and drops its memory.
func (p *Presenter) Dispose() {
	p.mu.Lock()
	p.active = false
	p.localUserID = ""
	p.recent.Reset()
	p.mu.Unlock()
}

// SetOpener installs the callback a notification's Open invokes.
func (p *Presenter) SetOpener(fn func(chatID string)) {
	p.mu.Lock()
	p.opener = fn
	p.mu.Unlock()
}

// MaybeNotify surfaces m unless it is the user's own message, belongs to the
// focused chat, or was already notified. Returns whether a notification
// went out.
func (p *Presenter) MaybeNotify(m *model.Message) bool {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return false
	}
	if m.SenderID == p.localUserID {
		p.mu.Unlock()
		return false
	}
	if p.focus != nil && p.focus.Focused(m.ChatID) {
		p.mu.Unlock()
		return false
	}
	if !p.recent.Add(m.ID) {
		p.mu.Unlock()
		return false
	}
	ids := p.recent.IDs()
	chatID := m.ChatID
	n := Notification{
		ID:        uuid.NewString(),
		Kind:      KindMessage,
		ChatID:    chatID,
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Title:     "New message from " + m.SenderID,
		Body:      m.Preview(),
		Sound:     p.opts.Sound,
		CreatedAt: time.Now(),
		open:      func() { p.open(chatID) },
	}
	p.mu.Unlock()

	p.persist(ids)
	p.present(n)
	return true
}

// Notice surfaces a session-level message that is not tied to a chat.
func (p *Presenter) Notice(title, body string) {
	p.present(Notification{
		ID:        uuid.NewString(),
		Kind:      KindNotice,
		Title:     title,
		Body:      body,
		Sound:     p.opts.Sound,
		CreatedAt: time.Now(),
	})
}

// Open runs the opener for chatID as if a notification was clicked.
func (p *Presenter) Open(chatID string) {
	p.open(chatID)
}

// Recent returns the cached notified ids, oldest first.
func (p *Presenter) Recent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recent.IDs()
}

func (p *Presenter) open(chatID string) {
	p.mu.Lock()
	opener := p.opener
	p.mu.Unlock()

	p.bus.Emit(bus.KindNotifyOpen, chatID)
	if opener != nil {
		opener(chatID)
	}
}

func (p *Presenter) present(n Notification) {
	for _, s := range p.sinks {
		s.Present(n)
	}
}

func (p *Presenter) persist(ids []string) {
	if p.storage == nil {
		return
	}
	if err := p.storage.PutJSON(store.KeyRecentNotifications, ids); err != nil {
		p.logger.Warn("failed to persist recent notifications", zap.Error(err))
	}
}
