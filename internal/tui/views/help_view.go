package views

import (
	"fmt"

	"github.com/matheus3301/opschat/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := fmt.Sprintf("#%06x", hv.theme.MenuKeyColor.Hex())

	help := fmt.Sprintf(`
  [::b]Global Keys[-:-:-]

  [%[1]s]:[-:-:-]    Command mode        [%[1]s]Esc[-:-:-]   Cancel / Go back
  [%[1]s]/[-:-:-]    Filter mode         [%[1]s]?[-:-:-]     Help
  [%[1]s]q[-:-:-]    Quit                [%[1]s]Ctrl-C[-:-:-] Quit immediately
  [%[1]s]o[-:-:-]    Open notified chat  [%[1]s]Up/Down[-:-:-] Command history

  [::b]Conversation List[-:-:-]

  [%[1]s]Enter[-:-:-]  Open and mark read  [%[1]s]0[-:-:-]     Clear filter
  [%[1]s]1-9[-:-:-]    Jump to Nth chat    [%[1]s]j/k[-:-:-]   Move down / up

  [::b]Message Thread[-:-:-]

  [%[1]s]Esc[-:-:-]  Close chat

  [::b]Commands (: mode)[-:-:-]

  [%[1]s]:open <chat-id>[-:-:-] / [%[1]s]:o[-:-:-]  Open chat by id
  [%[1]s]:close[-:-:-] / [%[1]s]:c[-:-:-]           Close the open chat
  [%[1]s]:away[-:-:-] / [%[1]s]:back[-:-:-]    Mark the messages page inactive / active
  [%[1]s]:help[-:-:-] / [%[1]s]:h[-:-:-]       Show this help
  [%[1]s]:quit[-:-:-] / [%[1]s]:q[-:-:-]       Quit application
`, kc)

	_, _ = fmt.Fprint(hv, help)
}
