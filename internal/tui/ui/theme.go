package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds the colors used by the console views.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	UnreadColor       tcell.Color
	TypingColor       tcell.Color
	SelfColor         tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	FlashToastColor   tcell.Color
	PromptBorderColor tcell.Color

	// Connection state colors, keyed by the daemon's state name.
	States map[string]tcell.Color
}

// DefaultTheme returns the dark console theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorOrange,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorAqua,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		NumericKeyColor:   tcell.ColorFuchsia,
		TitleColor:        tcell.ColorFuchsia,
		CounterColor:      tcell.ColorPapayaWhip,
		UnreadColor:       tcell.ColorGold,
		TypingColor:       tcell.ColorLightGreen,
		SelfColor:         tcell.ColorLightSkyBlue,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		FlashToastColor:   tcell.ColorGold,
		PromptBorderColor: tcell.ColorDodgerBlue,
		States: map[string]tcell.Color{
			"CONNECTED":    tcell.ColorLimeGreen,
			"CONNECTING":   tcell.ColorYellow,
			"RECONNECTING": tcell.ColorOrange,
			"DISCONNECTED": tcell.ColorOrangeRed,
		},
	}
}

// StateColor returns the color for a connection state, falling back to
// CounterColor for unknown states.
func (t *Theme) StateColor(state string) tcell.Color {
	if c, ok := t.States[state]; ok {
		return c
	}
	return t.CounterColor
}

// colorName returns a tview color tag value for c.
func colorName(c tcell.Color) string {
	if !c.Valid() {
		return "-"
	}
	return fmt.Sprintf("#%06x", c.Hex())
}

// Tag returns a tview style tag for the given foreground color.
func Tag(c tcell.Color) string {
	return "[" + colorName(c) + "]"
}
