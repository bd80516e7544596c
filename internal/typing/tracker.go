// Package typing tracks who is composing in which chat and debounces the
// local user's own typing signals.
package typing

import (
	"sort"
	"sync"

	"github.com/matheus3301/opschat/internal/bus"
)

// Change is the payload published when a chat's typing set changes.
type Change struct {
	ChatID  string
	UserIDs []string
}

// Tracker holds the ephemeral per-chat set of composing users. Nothing is
// persisted. Entries only leave on an explicit stop signal.
type Tracker struct {
	mu    sync.RWMutex
	chats map[string]map[string]struct{}
	bus   *bus.Bus
}

// NewTracker creates an empty tracker.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{
		chats: make(map[string]map[string]struct{}),
		bus:   b,
	}
}

// SetTyping adds userID to chatID's set. Returns false if already present.
func (t *Tracker) SetTyping(chatID, userID string) bool {
	t.mu.Lock()
	users, ok := t.chats[chatID]
	if !ok {
		users = make(map[string]struct{})
		t.chats[chatID] = users
	}
	if _, present := users[userID]; present {
		t.mu.Unlock()
		return false
	}
	users[userID] = struct{}{}
	change := Change{ChatID: chatID, UserIDs: sortedKeys(users)}
	t.mu.Unlock()

	t.bus.Emit(bus.KindTypingChanged, change)
	return true
}

// ClearTyping removes userID from chatID's set. Returns false if absent.
func (t *Tracker) ClearTyping(chatID, userID string) bool {
	t.mu.Lock()
	users := t.chats[chatID]
	if _, present := users[userID]; !present {
		t.mu.Unlock()
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.chats, chatID)
	}
	change := Change{ChatID: chatID, UserIDs: sortedKeys(users)}
	t.mu.Unlock()

	t.bus.Emit(bus.KindTypingChanged, change)
	return true
}

// Typing returns the sorted ids of users composing in chatID.
func (t *Tracker) Typing(chatID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.chats[chatID])
}

// IsTyping reports whether userID is composing in chatID.
func (t *Tracker) IsTyping(chatID, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.chats[chatID][userID]
	return ok
}

// Reset forgets everything.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.chats = make(map[string]map[string]struct{})
	t.mu.Unlock()
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
