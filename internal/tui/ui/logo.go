package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

var logoBanner = []string{
	"┏━┓┏━┓┏━┓",
	"┃ ┃┣━┛┗━┓",
	"┗━┛╹  ┗━┛",
}

// Logo shows the banner with a connection indicator underneath.
type Logo struct {
	*tview.TextView
	theme *Theme
	state string
}

// NewLogo creates a new logo component.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)

	l := &Logo{
		TextView: tv,
		theme:    theme,
	}
	l.render()
	return l
}

// SetState colors the indicator for the daemon's connection state.
func (l *Logo) SetState(state string) {
	if state == l.state {
		return
	}
	l.state = state
	l.render()
}

func (l *Logo) render() {
	l.Clear()
	title := Tag(l.theme.TitleColor)
	var b strings.Builder
	for _, line := range logoBanner {
		fmt.Fprintf(&b, "%s%s[-]\n", title, line)
	}
	dot := "○"
	if l.state != "" {
		dot = "●"
	}
	fmt.Fprintf(&b, "%s%s[-] %sopschat[-]", Tag(l.theme.StateColor(l.state)), dot, Tag(l.theme.FgColor))
	_, _ = fmt.Fprint(l, b.String())
}
