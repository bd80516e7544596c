// Package router turns "a message arrived" into application state changes,
// exactly once per message identity regardless of how many delivery paths
// carried it.
package router

import (
	"github.com/matheus3301/opschat/internal/dedup"
	"github.com/matheus3301/opschat/internal/model"
	"go.uber.org/zap"
)

// SeenCapacity bounds the window of routed message ids.
const SeenCapacity = 1024

// Ledger records unread messages.
type Ledger interface {
	Record(chatID string, m *model.Message) bool
}

// Projector keeps the chat list ordered. Apply returns false for a chat
// the list does not know.
type Projector interface {
	Apply(m *model.Message) bool
	Contains(chatID string) bool
}

// Notifier decides whether a message is surfaced to the user.
type Notifier interface {
	MaybeNotify(m *model.Message) bool
}

// Focus reports the open chat.
type Focus interface {
	OpenChat() string
}

// Result describes what a Route call changed.
type Result struct {
	Rejected    bool
	Duplicate   bool
	Appended    bool
	Listed      bool
	UnknownChat bool
	Recorded    bool
	Notified    bool
}

// Router is the single entry point for arriving messages. It is driven from
// one goroutine.
type Router struct {
	seen        *dedup.Window
	localUserID string

	focus      Focus
	transcript *Transcript
	ledger     Ledger
	list       Projector
	notifier   Notifier

	onUnknownChat func(m *model.Message)
	logger        *zap.Logger
}

// Deps are the collaborators a Router fans out to.
type Deps struct {
	Focus      Focus
	Transcript *Transcript
	Ledger     Ledger
	List       Projector
	Notifier   Notifier
}

// New creates a router.
func New(deps Deps, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		seen:       dedup.NewWindow(SeenCapacity),
		focus:      deps.Focus,
		transcript: deps.Transcript,
		ledger:     deps.Ledger,
		list:       deps.List,
		notifier:   deps.Notifier,
		logger:     logger.Named("router"),
	}
}

// SetLocalUser binds the router to the session's user.
func (r *Router) SetLocalUser(userID string) {
	r.localUserID = userID
}

// OnUnknownChat installs the callback run when a message names a chat the
// list does not contain.
func (r *Router) OnUnknownChat(fn func(m *model.Message)) {
	r.onUnknownChat = fn
}

// Route applies m. Routing the same id again has no further effect.
func (r *Router) Route(d Delivery) Result {
	m := d.Message
	if m == nil {
		r.logger.Warn("dropping empty delivery", zap.String("path", d.Path))
		return Result{Rejected: true}
	}
	if err := m.Validate(); err != nil {
		r.logger.Warn("dropping malformed message",
			zap.String("path", d.Path),
			zap.String("id", m.ID),
			zap.String("chat", m.ChatID),
			zap.Error(err),
		)
		return Result{Rejected: true}
	}
	if !r.seen.Add(m.ID) {
		r.logger.Debug("duplicate delivery", zap.String("path", d.Path), zap.String("id", m.ID))
		return Result{Duplicate: true}
	}

	var res Result
	chatID := m.ChatID
	openChat := ""
	if r.focus != nil {
		openChat = r.focus.OpenChat()
	}

	if chatID == openChat && r.transcript != nil {
		res.Appended = r.transcript.Append(m)
	}

	if r.list != nil {
		if r.list.Contains(chatID) {
			res.Listed = r.list.Apply(m)
		} else {
			res.UnknownChat = true
			if r.onUnknownChat != nil {
				r.onUnknownChat(m)
			}
		}
	}

	if chatID != openChat && m.SenderID != r.localUserID {
		fresh := true
		if r.ledger != nil {
			res.Recorded = r.ledger.Record(chatID, m)
			fresh = res.Recorded
		}
		// An id already in the ledger was announced when it was recorded.
		if r.notifier != nil && fresh {
			res.Notified = r.notifier.MaybeNotify(m)
		}
	}

	r.logger.Debug("routed",
		zap.String("path", d.Path),
		zap.String("id", m.ID),
		zap.String("chat", chatID),
		zap.Bool("appended", res.Appended),
		zap.Bool("unknown_chat", res.UnknownChat),
		zap.Bool("recorded", res.Recorded),
		zap.Bool("notified", res.Notified),
	)
	return res
}

// Seen reports whether id was already routed.
func (r *Router) Seen(id string) bool {
	return r.seen.Contains(id)
}

// Reset forgets routed ids and the local user.
func (r *Router) Reset() {
	r.seen.Reset()
	r.localUserID = ""
}
