package ui

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // true for 0-9 shortcuts (displayed in a different color)
}

// Component is a page that can sit on the page stack.
type Component interface {
	// Name is the label shown in the breadcrumb trail.
	Name() string
	// Hints lists the page's own shortcuts.
	Hints() []MenuHint
}
