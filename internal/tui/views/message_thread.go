package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays the transcript of the open chat.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	typing   *tview.TextView
	chatName string
	chatID   string
	selfID   string
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().
		SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)
	typing.SetTextColor(theme.TypingColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typing, 1, 0, false)

	return &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		typing:   typing,
	}
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.chatName != "" {
		return mt.chatName
	}
	return "Messages"
}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetChat binds the thread to chatID, titled name.
func (mt *MessageThread) SetChat(chatID, name string) {
	mt.chatID = chatID
	mt.chatName = name
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(singleLine(name))))
	mt.messages.Clear()
	mt.typing.Clear()
}

// SetSelf sets the local user id so own messages render as "You".
func (mt *MessageThread) SetSelf(userID string) {
	mt.selfID = userID
}

// ChatID returns the current chat id.
func (mt *MessageThread) ChatID() string {
	return mt.chatID
}

// Update refreshes the message view. msgs are in chronological order.
func (mt *MessageThread) Update(msgs []model.Message) {
	mt.messages.Clear()
	for _, m := range msgs {
		sender, senderColor := m.SenderID, mt.theme.TitleColor
		if sender == mt.selfID && sender != "" {
			sender, senderColor = "You", mt.theme.SelfColor
		}
		body := m.Content
		if body == "" && len(m.Attachments) > 0 {
			body = fmt.Sprintf("[%d attachment(s)]", len(m.Attachments))
		}
		line := fmt.Sprintf("%s[::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
			ui.Tag(senderColor), tview.Escape(singleLine(sender)), formatTimestamp(m.CreatedAt),
			tview.Escape(sanitizeForTerminal(body)))
		_, _ = fmt.Fprint(mt.messages, line)
	}
	mt.messages.ScrollToEnd()
}

// SetTyping renders who is composing.
func (mt *MessageThread) SetTyping(userIDs []string) {
	mt.typing.Clear()
	if len(userIDs) == 0 {
		return
	}
	_, _ = fmt.Fprintf(mt.typing, " %s typing...", tview.Escape(strings.Join(userIDs, ", ")))
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}
