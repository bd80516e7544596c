package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"q", Command{Name: "quit"}},
		{"EXIT", Command{Name: "quit"}},
		{"h", Command{Name: "help"}},
		{"  OPEN boiler-room ", Command{Name: "open", Args: "boiler-room"}},
		{"o   line-3  ", Command{Name: "open", Args: "line-3"}},
		{"away", Command{Name: "away"}},
		{"", Command{Name: ""}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestCommandKnown(t *testing.T) {
	for _, in := range []string{"quit", "c", "back", "help"} {
		if !ParseCommand(in).Known() {
			t.Errorf("%q should be known", in)
		}
	}
	for _, in := range []string{"", "send hi", "reboot"} {
		if ParseCommand(in).Known() {
			t.Errorf("%q should be unknown", in)
		}
	}
}
