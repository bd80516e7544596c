package model

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/matheus3301/opschat/internal/api"
	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/notify"
)

// Daemon is the subset of the console client the TUI drives.
type Daemon interface {
	Status(ctx context.Context) (api.StatusView, error)
	Chats(ctx context.Context) (api.ChatListView, error)
	OpenChat(ctx context.Context, chatID string) (int, error)
	CloseChat(ctx context.Context) error
	SetPageActive(ctx context.Context, active bool) error
	Transcript(ctx context.Context) (api.TranscriptView, error)
	Typing(ctx context.Context, chatID string) (api.TypingView, error)
}

// Refresh is a set of views an event invalidates.
type Refresh uint8

const (
	RefreshStatus Refresh = 1 << iota
	RefreshChats
	RefreshTranscript
	RefreshTyping
)

// Has reports whether r includes f.
func (r Refresh) Has(f Refresh) bool { return r&f != 0 }

// RefreshFor maps a daemon event kind to the views it invalidates.
func RefreshFor(kind string) Refresh {
	ns, _, _ := strings.Cut(kind, ".")
	switch ns {
	case "connection", "session":
		return RefreshStatus | RefreshChats
	case "ledger", "chatlist":
		return RefreshChats | RefreshStatus
	case "typing":
		return RefreshTyping | RefreshChats
	case "transcript":
		return RefreshTranscript
	}
	return 0
}

// Toast decodes a notify.toast event.
func Toast(evt api.EventView) (notify.Notification, bool) {
	if evt.Kind != bus.KindNotifyToast || len(evt.Payload) == 0 {
		return notify.Notification{}, false
	}
	var n notify.Notification
	if err := json.Unmarshal(evt.Payload, &n); err != nil {
		return notify.Notification{}, false
	}
	return n, true
}

// ViewModel caches daemon state for rendering.
type ViewModel struct {
	mu sync.RWMutex

	client     Daemon
	status     *api.StatusView
	chats      api.ChatListView
	transcript api.TranscriptView
	typing     []string
	activeChat string
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c Daemon) *ViewModel {
	return &ViewModel{client: c}
}

// LoadStatus fetches the connection status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = &st
	vm.mu.Unlock()
	return nil
}

// LoadChats fetches the chat list with unread badges.
func (vm *ViewModel) LoadChats(ctx context.Context) error {
	list, err := vm.client.Chats(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.chats = list
	vm.mu.Unlock()
	return nil
}

// OpenChat opens chatID on the daemon and loads its transcript.
func (vm *ViewModel) OpenChat(ctx context.Context, chatID string) (int, error) {
	cleared, err := vm.client.OpenChat(ctx, chatID)
	if err != nil {
		return 0, err
	}
	vm.mu.Lock()
	vm.activeChat = chatID
	vm.typing = nil
	vm.mu.Unlock()
	return cleared, vm.LoadTranscript(ctx)
}

// CloseChat closes the open chat.
func (vm *ViewModel) CloseChat(ctx context.Context) error {
	vm.mu.Lock()
	vm.activeChat = ""
	vm.transcript = api.TranscriptView{}
	vm.typing = nil
	vm.mu.Unlock()
	return vm.client.CloseChat(ctx)
}

// SetPageActive reports the messages page focus to the daemon.
func (vm *ViewModel) SetPageActive(ctx context.Context, active bool) error {
	return vm.client.SetPageActive(ctx, active)
}

// LoadTranscript fetches the open chat's messages.
func (vm *ViewModel) LoadTranscript(ctx context.Context) error {
	t, err := vm.client.Transcript(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.transcript = t
	vm.mu.Unlock()
	return nil
}

// LoadTyping fetches who is composing in the active chat.
func (vm *ViewModel) LoadTyping(ctx context.Context) error {
	chatID := vm.ActiveChat()
	if chatID == "" {
		return nil
	}
	t, err := vm.client.Typing(ctx, chatID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.typing = t.UserIDs
	vm.mu.Unlock()
	return nil
}

// Reload fetches every view in r.
func (vm *ViewModel) Reload(ctx context.Context, r Refresh) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.Has(RefreshStatus) {
		keep(vm.LoadStatus(ctx))
	}
	if r.Has(RefreshChats) {
		keep(vm.LoadChats(ctx))
	}
	if vm.ActiveChat() != "" {
		if r.Has(RefreshTranscript) {
			keep(vm.LoadTranscript(ctx))
		}
		if r.Has(RefreshTyping) {
			keep(vm.LoadTyping(ctx))
		}
	}
	return firstErr
}

// GetChats returns a snapshot of the current chat list.
func (vm *ViewModel) GetChats() api.ChatListView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.chats
}

// ChatName returns chatID's display name, falling back to the id.
func (vm *ViewModel) ChatName(chatID string) string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.chats.Chats {
		if c.ID == chatID && c.DisplayName != "" {
			return c.DisplayName
		}
	}
	return chatID
}

// GetTranscript returns a snapshot of the open chat's messages.
func (vm *ViewModel) GetTranscript() api.TranscriptView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.transcript
}

// GetTyping returns who is typing in the active chat.
func (vm *ViewModel) GetTyping() []string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]string(nil), vm.typing...)
}

// GetStatus returns a snapshot of the connection status.
func (vm *ViewModel) GetStatus() *api.StatusView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// ActiveChat returns the chat the TUI has open.
func (vm *ViewModel) ActiveChat() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeChat
}
