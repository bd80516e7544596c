// Package ledger keeps the per-chat record of messages the user has not
// seen yet, plus the derived total.
package ledger

import (
	"sort"
	"sync"

	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/store"
	"go.uber.org/zap"
)

// Storage is the durable key/value storage the ledger persists into.
type Storage interface {
	GetJSON(key string, v any) (bool, error)
	PutJSON(key string, v any) error
}

// Change is the payload published on every ledger mutation.
type Change struct {
	ChatID string
	Count  int
	Total  int
}

// Ledger maps chat ids to the ordered stubs of their unread messages.
// Mutations come from a single goroutine; reads are safe from any.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string][]model.Stub
	total   int

	storage Storage
	bus     *bus.Bus
	logger  *zap.Logger
}

// New creates an empty ledger. storage and b may be nil.
func New(storage Storage, b *bus.Bus, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		entries: make(map[string][]model.Stub),
		storage: storage,
		bus:     b,
		logger:  logger.Named("ledger"),
	}
}

// Load rehydrates the ledger from storage. Read failures are logged and
// leave the ledger empty.
func (l *Ledger) Load() {
	if l.storage == nil {
		return
	}
	var stored map[string][]model.Stub
	ok, err := l.storage.GetJSON(store.KeyUnreadLedger, &stored)
	if err != nil {
		l.logger.Warn("failed to load unread ledger", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	l.mu.Lock()
	l.entries = make(map[string][]model.Stub, len(stored))
	for chatID, stubs := range stored {
		seen := make(map[string]struct{}, len(stubs))
		var kept []model.Stub
		for _, s := range stubs {
			if s.ID == "" {
				continue
			}
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			kept = append(kept, s)
		}
		if len(kept) > 0 {
			l.entries[chatID] = kept
		}
	}
	l.recompute()
	total := l.total
	l.mu.Unlock()

	l.logger.Info("unread ledger loaded", zap.Int("chats", len(stored)), zap.Int("total", total))
}

// Record appends a stub for m to chatID's entry unless a stub with the
// same id is already there. Returns whether the ledger changed.
func (l *Ledger) Record(chatID string, m *model.Message) bool {
	l.mu.Lock()
	for _, s := range l.entries[chatID] {
		if s.ID == m.ID {
			l.mu.Unlock()
			return false
		}
	}
	stub := model.StubOf(m)
	stub.ChatID = chatID
	l.entries[chatID] = append(l.entries[chatID], stub)
	l.recompute()
	change := Change{ChatID: chatID, Count: len(l.entries[chatID]), Total: l.total}
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(snapshot)
	l.bus.Emit(bus.KindLedgerChanged, change)
	return true
}

// Clear removes chatID's entry and returns how many stubs it held.
func (l *Ledger) Clear(chatID string) int {
	l.mu.Lock()
	removed := len(l.entries[chatID])
	if removed == 0 {
		l.mu.Unlock()
		return 0
	}
	delete(l.entries, chatID)
	l.recompute()
	change := Change{ChatID: chatID, Count: 0, Total: l.total}
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(snapshot)
	l.bus.Emit(bus.KindLedgerChanged, change)
	return removed
}

// Count returns the number of unread stubs for chatID.
func (l *Ledger) Count(chatID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries[chatID])
}

// Total returns the number of unread stubs across all chats.
func (l *Ledger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Stubs returns a copy of chatID's stubs in arrival order.
func (l *Ledger) Stubs(chatID string) []model.Stub {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Stub, len(l.entries[chatID]))
	copy(out, l.entries[chatID])
	return out
}

// Counts returns the per-chat unread counts.
func (l *Ledger) Counts() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.entries))
	for chatID, stubs := range l.entries {
		out[chatID] = len(stubs)
	}
	return out
}

// ChatIDs returns the ids of chats with unread messages, sorted.
func (l *Ledger) ChatIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset discards the in-memory state without touching storage.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.entries = make(map[string][]model.Stub)
	l.total = 0
	l.mu.Unlock()
}

// recompute derives the total from the entries. Caller holds mu.
func (l *Ledger) recompute() {
	total := 0
	for _, stubs := range l.entries {
		total += len(stubs)
	}
	l.total = total
}

func (l *Ledger) snapshotLocked() map[string][]model.Stub {
	out := make(map[string][]model.Stub, len(l.entries))
	for chatID, stubs := range l.entries {
		cp := make([]model.Stub, len(stubs))
		copy(cp, stubs)
		out[chatID] = cp
	}
	return out
}

// persist writes the snapshot. Failures are logged; memory stays authoritative.
func (l *Ledger) persist(snapshot map[string][]model.Stub) {
	if l.storage == nil {
		return
	}
	if err := l.storage.PutJSON(store.KeyUnreadLedger, snapshot); err != nil {
		l.logger.Warn("failed to persist unread ledger", zap.Error(err))
	}
}
