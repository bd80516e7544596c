package keys

import (
	"github.com/gdamore/tcell/v2"

	"github.com/matheus3301/opschat/internal/tui/ui"
)

// Action represents a keybinding action.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Label   string
	Handler func()
	Visible bool
	Numeric bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// KeyName is the label shown for the action's key in the menu.
func (a *Action) KeyName() string {
	if a.Key == tcell.KeyRune {
		return string(a.Rune)
	}
	if name, ok := tcell.KeyNames[a.Key]; ok {
		return name
	}
	return "?"
}

type binding struct {
	name   string
	action *Action
}

// Registry holds keybindings in registration order, global and per view.
// Registering a name twice in the same scope replaces the earlier action.
type Registry struct {
	global []binding
	views  map[string][]binding
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]binding)}
}

// AddGlobal registers a global keybinding.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global = upsert(r.global, name, action)
}

// AddView registers a view-specific keybinding.
func (r *Registry) AddView(view, name string, action *Action) {
	r.views[view] = upsert(r.views[view], name, action)
}

func upsert(list []binding, name string, action *Action) []binding {
	for i := range list {
		if list[i].name == name {
			list[i].action = action
			return list
		}
	}
	return append(list, binding{name: name, action: action})
}

// Hints appends the visible bindings for view to base. View bindings come
// before global ones and keys already present in base are skipped.
func (r *Registry) Hints(view string, base []ui.MenuHint) []ui.MenuHint {
	seen := make(map[string]bool, len(base))
	hints := make([]ui.MenuHint, 0, len(base)+len(r.global))
	for _, h := range base {
		seen[h.Key] = true
		hints = append(hints, h)
	}
	for _, list := range [][]binding{r.views[view], r.global} {
		for _, b := range list {
			if !b.action.Visible {
				continue
			}
			key := b.action.KeyName()
			if seen[key] {
				continue
			}
			seen[key] = true
			hints = append(hints, ui.MenuHint{Key: key, Description: b.action.Label, Numeric: b.action.Numeric})
		}
	}
	return hints
}

// HandleEvent dispatches a key event to the first matching action, view
// bindings first. Returns true if a handler matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	for _, list := range [][]binding{r.views[view], r.global} {
		for _, b := range list {
			if b.action.Matches(ev) {
				if b.action.Handler != nil {
					b.action.Handler()
				}
				return true
			}
		}
	}
	return false
}
