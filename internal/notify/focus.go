package notify

import (
	"sync"

	"github.com/matheus3301/opschat/internal/store"
	"go.uber.org/zap"
)

// MarkerStorage persists the open-chat marker and the page-active flag.
type MarkerStorage interface {
	Get(key string) (string, bool, error)
	Put(key, value string) error
	Delete(key string) error
}

// Focus tracks which chat is open and whether the messages page has focus.
// The router reads it to pick the transcript; the presenter reads it to
// suppress notifications for the chat in front of the user.
type Focus struct {
	mu         sync.RWMutex
	openChat   string
	pageActive bool

	storage MarkerStorage
	logger  *zap.Logger
}

// NewFocus creates a focus with no chat open. storage may be nil.
func NewFocus(storage MarkerStorage, logger *zap.Logger) *Focus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Focus{storage: storage, logger: logger.Named("focus")}
}

// Load restores the markers from storage.
func (f *Focus) Load() {
	if f.storage == nil {
		return
	}
	open, _, err := f.storage.Get(store.KeyOpenChat)
	if err != nil {
		f.logger.Warn("failed to load open chat marker", zap.Error(err))
	}
	active, _, err := f.storage.Get(store.KeyMessagesPageActive)
	if err != nil {
		f.logger.Warn("failed to load page active flag", zap.Error(err))
	}

	f.mu.Lock()
	f.openChat = open
	f.pageActive = active == "true"
	f.mu.Unlock()
}

// OpenChat returns the id of the open chat, or "" when none is open.
func (f *Focus) OpenChat() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.openChat
}

// PageActive reports whether the messages page has focus.
func (f *Focus) PageActive() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pageActive
}

// Focused reports whether chatID is open and its page has focus.
func (f *Focus) Focused(chatID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return chatID != "" && f.openChat == chatID && f.pageActive
}

// SetOpenChat records chatID as the open chat. An empty id closes it.
func (f *Focus) SetOpenChat(chatID string) {
	f.mu.Lock()
	f.openChat = chatID
	f.mu.Unlock()

	if f.storage == nil {
		return
	}
	var err error
	if chatID == "" {
		err = f.storage.Delete(store.KeyOpenChat)
	} else {
		err = f.storage.Put(store.KeyOpenChat, chatID)
	}
	if err != nil {
		f.logger.Warn("failed to persist open chat marker", zap.Error(err))
	}
}

// SetPageActive records whether the messages page has focus.
func (f *Focus) SetPageActive(active bool) {
	f.mu.Lock()
	f.pageActive = active
	f.mu.Unlock()

	if f.storage == nil {
		return
	}
	value := "false"
	if active {
		value = "true"
	}
	if err := f.storage.Put(store.KeyMessagesPageActive, value); err != nil {
		f.logger.Warn("failed to persist page active flag", zap.Error(err))
	}
}

// Reset clears the in-memory markers without touching storage.
func (f *Focus) Reset() {
	f.mu.Lock()
	f.openChat = ""
	f.pageActive = false
	f.mu.Unlock()
}
