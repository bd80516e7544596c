// Package chatlist projects the most-recent-first list of chat summaries.
package chatlist

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/store"
	"go.uber.org/zap"
)

// Storage caches the last known list.
type Storage interface {
	GetJSON(key string, v any) (bool, error)
	PutJSON(key string, v any) error
}

// Fetcher returns the server's truth for a user's chat list.
type Fetcher interface {
	ListChats(ctx context.Context, userID string) ([]model.Chat, error)
}

// Change reasons.
const (
	ReasonMessage = "message"
	ReasonReplace = "replace"
	ReasonCache   = "cache"
)

// Change is the payload published when the list changes.
type Change struct {
	Reason string
	ChatID string
	Len    int
}

// Projector holds the ordered chat list. Mutations come from a single
// goroutine; reads are safe from any.
type Projector struct {
	mu    sync.RWMutex
	chats []model.Chat

	storage Storage
	bus     *bus.Bus
	logger  *zap.Logger
}

// New creates an empty projector. storage and b may be nil.
func New(storage Storage, b *bus.Bus, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		storage: storage,
		bus:     b,
		logger:  logger.Named("chatlist"),
	}
}

// Load seeds the list from the cached copy so views have something to show
// before the first fetch returns.
func (p *Projector) Load() {
	if p.storage == nil {
		return
	}
	var cached []model.Chat
	ok, err := p.storage.GetJSON(store.KeyChatList, &cached)
	if err != nil {
		p.logger.Warn("failed to load cached chat list", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	p.set(cached, ReasonCache, false)
	p.logger.Info("cached chat list loaded", zap.Int("chats", len(cached)))
}

// Apply records m as the latest message of its chat and moves the chat to
// its ordered position, normally the head. Returns false when the chat is
// not in the list; the caller is then expected to resync.
func (p *Projector) Apply(m *model.Message) bool {
	p.mu.Lock()
	idx := p.indexLocked(m.ChatID)
	if idx < 0 {
		p.mu.Unlock()
		return false
	}

	chat := p.chats[idx]
	if chat.LatestMessage != nil {
		if chat.LatestMessage.ID == m.ID || m.CreatedAt.Before(chat.LatestMessage.CreatedAt) {
			p.mu.Unlock()
			return true
		}
	}
	latest := *m
	chat.LatestMessage = &latest

	p.chats = slices.Delete(p.chats, idx, idx+1)
	at := sort.Search(len(p.chats), func(i int) bool {
		return p.chats[i].LatestAt() <= chat.LatestAt()
	})
	p.chats = slices.Insert(p.chats, at, chat)
	snapshot := p.snapshotLocked()
	p.mu.Unlock()

	p.persist(snapshot)
	p.bus.Emit(bus.KindChatListChanged, Change{Reason: ReasonMessage, ChatID: m.ChatID, Len: len(snapshot)})
	return true
}

// Replace swaps the whole list for chats, the server's truth.
func (p *Projector) Replace(chats []model.Chat) {
	p.set(chats, ReasonReplace, true)
}

func (p *Projector) set(chats []model.Chat, reason string, persist bool) {
	seen := make(map[string]struct{}, len(chats))
	clean := make([]model.Chat, 0, len(chats))
	for _, c := range chats {
		if err := model.ValidateChatID(c.ID); err != nil {
			p.logger.Warn("dropping chat with invalid id", zap.String("chat_id", c.ID))
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		clean = append(clean, c)
	}
	sort.SliceStable(clean, func(i, j int) bool {
		return clean[i].LatestAt() > clean[j].LatestAt()
	})

	p.mu.Lock()
	p.chats = clean
	snapshot := p.snapshotLocked()
	p.mu.Unlock()

	if persist {
		p.persist(snapshot)
	}
	p.bus.Emit(bus.KindChatListChanged, Change{Reason: reason, Len: len(snapshot)})
}

// Chats returns a copy of the ordered list.
func (p *Projector) Chats() []model.Chat {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

// Get returns the chat with the given id.
func (p *Projector) Get(chatID string) (model.Chat, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx := p.indexLocked(chatID)
	if idx < 0 {
		return model.Chat{}, false
	}
	return p.chats[idx], true
}

// Contains reports whether chatID is in the list.
func (p *Projector) Contains(chatID string) bool {
	_, ok := p.Get(chatID)
	return ok
}

// Len returns the number of chats.
func (p *Projector) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.chats)
}

// Reset drops the in-memory list without touching the cache.
func (p *Projector) Reset() {
	p.mu.Lock()
	p.chats = nil
	p.mu.Unlock()
}

func (p *Projector) indexLocked(chatID string) int {
	return slices.IndexFunc(p.chats, func(c model.Chat) bool { return c.ID == chatID })
}

func (p *Projector) snapshotLocked() []model.Chat {
	out := make([]model.Chat, len(p.chats))
	copy(out, p.chats)
	return out
}

func (p *Projector) persist(snapshot []model.Chat) {
	if p.storage == nil {
		return
	}
	if err := p.storage.PutJSON(store.KeyChatList, snapshot); err != nil {
		p.logger.Warn("failed to cache chat list", zap.Error(err))
	}
}
