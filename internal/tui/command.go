package tui

import "strings"

// Command represents a parsed ':' command.
type Command struct {
	Name string
	Args string
}

var commandAliases = map[string]string{
	"q":    "quit",
	"exit": "quit",
	"h":    "help",
	"o":    "open",
	"c":    "close",
}

var knownCommands = map[string]bool{
	"quit":  true,
	"help":  true,
	"open":  true,
	"close": true,
	"away":  true,
	"back":  true,
}

// ParseCommand parses a command string (without the leading ':'). Aliases
// resolve to their canonical name.
func ParseCommand(input string) Command {
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	name = strings.ToLower(name)
	if canonical, ok := commandAliases[name]; ok {
		name = canonical
	}
	return Command{Name: name, Args: strings.TrimSpace(args)}
}

// Known reports whether the command name is handled by the app.
func (c Command) Known() bool {
	return knownCommands[c.Name]
}
