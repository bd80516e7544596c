package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
	FlashToast
)

const (
	infoTTL  = 5 * time.Second
	warnTTL  = 8 * time.Second
	errTTL   = 10 * time.Second
	toastTTL = 6 * time.Second
)

// FlashMessage is a flash notification with a level and expiry. ChatID is
// set for toasts raised by an incoming message.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	ChatID  string
	Expires time.Time
}

// FlashModel holds the current transient message. A new message replaces
// the previous one.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	now     func() time.Time
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{now: time.Now}
}

// Info sets an info-level flash message.
func (f *FlashModel) Info(msg string) {
	f.set(FlashMessage{Text: msg, Level: FlashInfo}, infoTTL)
}

// Warn sets a warn-level flash message.
func (f *FlashModel) Warn(msg string) {
	f.set(FlashMessage{Text: msg, Level: FlashWarn}, warnTTL)
}

// Err sets an error-level flash message.
func (f *FlashModel) Err(err error) {
	f.set(FlashMessage{Text: err.Error(), Level: FlashErr}, errTTL)
}

// Toast shows a notification for a chat.
func (f *FlashModel) Toast(title, body, chatID string) {
	text := title
	if body != "" {
		text += ": " + body
	}
	f.set(FlashMessage{Text: text, Level: FlashToast, ChatID: chatID}, toastTTL)
}

func (f *FlashModel) set(fm FlashMessage, ttl time.Duration) {
	f.mu.Lock()
	fm.Expires = f.now().Add(ttl)
	f.current = fm
	f.mu.Unlock()
}

// GetMessage returns the current flash message, or nil if expired.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.now().Before(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// LastToastChat returns the chat of the visible toast, if any.
func (f *FlashModel) LastToastChat() string {
	if m := f.GetMessage(); m != nil && m.Level == FlashToast {
		return m.ChatID
	}
	return ""
}

// FlashBar is the UI component that displays flash notifications.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders a flash message on the bar.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}

	color := fb.theme.FlashInfoColor
	prefix := ""
	switch msg.Level {
	case FlashWarn:
		color = fb.theme.FlashWarnColor
	case FlashErr:
		color = fb.theme.FlashErrColor
	case FlashToast:
		color = fb.theme.FlashToastColor
		prefix = "✉ "
	}
	_, _ = fmt.Fprintf(fb, " %s%s%s[-]", Tag(color), prefix, tview.Escape(msg.Text))
	if msg.Level == FlashToast && msg.ChatID != "" {
		_, _ = fmt.Fprintf(fb, "  %s<o>[-] open", Tag(fb.theme.MenuKeyColor))
	}
}
