package sync

import (
	"context"

	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/transport"
	"go.uber.org/zap"
)

// OpenChat makes chatID the open chat: its unread entry is cleared, the
// transport joins its room and its history is loaded. Returns how many
// unread messages were cleared.
func (e *Engine) OpenChat(ctx context.Context, chatID string) (int, error) {
	if err := model.ValidateChatID(chatID); err != nil {
		return 0, err
	}
	var cleared int
	var terminated bool
	err := e.do(ctx, func() {
		if e.terminated.Load() {
			terminated = true
			return
		}
		e.focus.SetOpenChat(chatID)
		e.focus.SetPageActive(true)
		e.transcript.Reset(chatID)
		cleared = e.ledger.Clear(chatID)
		e.conn.Emit(e.loopCtx, transport.TypeJoinChat, transport.JoinChat{ChatID: chatID})
		e.markRead(chatID)
		e.loadHistory(chatID)
		e.logger.Info("chat opened", zap.String("chat", chatID), zap.Int("cleared", cleared))
	})
	if err == nil && terminated {
		err = ErrTerminated
	}
	return cleared, err
}

// CloseChat leaves the open chat.
func (e *Engine) CloseChat(ctx context.Context) error {
	return e.do(ctx, func() {
		e.focus.SetOpenChat("")
		e.transcript.Reset("")
	})
}

// SetPageActive records whether the messages page has focus.
func (e *Engine) SetPageActive(ctx context.Context, active bool) error {
	return e.do(ctx, func() {
		e.focus.SetPageActive(active)
	})
}

// Inject delivers m through the in-process bridge path. It fails once the
// session has been terminated.
func (e *Engine) Inject(m *model.Message) error {
	if e.terminated.Load() {
		return ErrTerminated
	}
	e.bridge.Inject(m)
	return nil
}

// Keystroke reports local typing in chatID.
func (e *Engine) Keystroke(chatID string) {
	e.debouncer.Keystroke(chatID)
}

// Sent reports that the local user sent a message in chatID.
func (e *Engine) Sent(chatID string) {
	e.debouncer.Sent(chatID)
}

// Status returns a snapshot of the session.
func (e *Engine) Status() Status {
	s := e.conn.Session()
	e.mu.Lock()
	userID := e.userID
	e.mu.Unlock()
	return Status{
		UserID:            userID,
		State:             s.State,
		TransportID:       s.TransportID,
		ReconnectAttempts: s.ReconnectAttempts,
		Epoch:             s.Epoch,
		OpenChat:          e.focus.OpenChat(),
		PageActive:        e.focus.PageActive(),
		TotalUnread:       e.ledger.Total(),
		Chats:             e.list.Len(),
		Terminated:        e.terminated.Load(),
	}
}

// Chats returns the ordered chat list.
func (e *Engine) Chats() []model.Chat {
	return e.list.Chats()
}

// Unread returns per-chat unread counts and the total.
func (e *Engine) Unread() (map[string]int, int) {
	return e.ledger.Counts(), e.ledger.Total()
}

// UnreadStubs returns chatID's unread stubs in arrival order.
func (e *Engine) UnreadStubs(chatID string) []model.Stub {
	return e.ledger.Stubs(chatID)
}

// Transcript returns the open chat's id and messages.
func (e *Engine) Transcript() (string, []model.Message) {
	return e.transcript.ChatID(), e.transcript.Messages()
}

// Typing returns who is composing in chatID.
func (e *Engine) Typing(chatID string) []string {
	return e.typing.Typing(chatID)
}

// UserID returns the session's user.
func (e *Engine) UserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}
