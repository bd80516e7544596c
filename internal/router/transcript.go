package router

import (
	"sort"
	"sync"

	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/model"
)

// TranscriptChange is the payload published when the open transcript grows.
type TranscriptChange struct {
	ChatID    string
	MessageID string
	Len       int
}

// Transcript holds the messages of the open chat, at most once per id.
type Transcript struct {
	mu       sync.RWMutex
	chatID   string
	messages []model.Message
	ids      map[string]struct{}
	bus      *bus.Bus
}

// NewTranscript creates an empty transcript with no chat bound.
func NewTranscript(b *bus.Bus) *Transcript {
	return &Transcript{ids: make(map[string]struct{}), bus: b}
}

// Reset binds the transcript to chatID and drops its messages. An empty id
// unbinds it.
func (t *Transcript) Reset(chatID string) {
	t.mu.Lock()
	t.chatID = chatID
	t.messages = nil
	t.ids = make(map[string]struct{})
	t.mu.Unlock()
}

// ChatID returns the bound chat id.
func (t *Transcript) ChatID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chatID
}

// Append adds m if it belongs to the bound chat and its id is not present.
func (t *Transcript) Append(m *model.Message) bool {
	t.mu.Lock()
	if t.chatID == "" || m.ChatID != t.chatID {
		t.mu.Unlock()
		return false
	}
	if _, ok := t.ids[m.ID]; ok {
		t.mu.Unlock()
		return false
	}
	t.ids[m.ID] = struct{}{}
	t.messages = append(t.messages, *m)
	change := TranscriptChange{ChatID: t.chatID, MessageID: m.ID, Len: len(t.messages)}
	t.mu.Unlock()

	t.bus.Emit(bus.KindTranscript, change)
	return true
}

// Merge adds history for the bound chat, skipping ids already present, and
// keeps the transcript ordered by creation time. Returns how many were added.
func (t *Transcript) Merge(history []model.Message) int {
	t.mu.Lock()
	added := 0
	for _, m := range history {
		if t.chatID == "" || m.ChatID != t.chatID || m.ID == "" {
			continue
		}
		if _, ok := t.ids[m.ID]; ok {
			continue
		}
		t.ids[m.ID] = struct{}{}
		t.messages = append(t.messages, m)
		added++
	}
	if added == 0 {
		t.mu.Unlock()
		return 0
	}
	sort.SliceStable(t.messages, func(i, j int) bool {
		return t.messages[i].CreatedAt.Before(t.messages[j].CreatedAt)
	})
	change := TranscriptChange{ChatID: t.chatID, Len: len(t.messages)}
	t.mu.Unlock()

	t.bus.Emit(bus.KindTranscript, change)
	return added
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []model.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Contains reports whether id is in the transcript.
func (t *Transcript) Contains(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.ids[id]
	return ok
}

// Len returns the number of messages held.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
