package ui

import "github.com/rivo/tview"

type page struct {
	comp  Component
	focus tview.Primitive
}

// Pages is a stack of registered components over tview.Pages. Each page
// names the primitive that takes focus when it comes to the top.
type Pages struct {
	*tview.Pages
	pages    map[string]page
	stack    []string
	onChange func(stack []string)
}

// NewPages creates a new stack-based page manager.
func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
		pages: make(map[string]page),
	}
}

// Add registers a page. content is what gets drawn, focus receives input
// and defaults to content.
func (p *Pages) Add(name string, comp Component, content, focus tview.Primitive) {
	if focus == nil {
		focus = content
	}
	p.pages[name] = page{comp: comp, focus: focus}
	p.AddPage(name, content, true, false)
}

// SetOnChange sets a callback that fires when the stack changes.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows name on top of the stack. Pushing the current page is a
// no-op and returns false.
func (p *Pages) Push(name string) bool {
	if p.Current() == name {
		return false
	}
	if len(p.stack) > 0 {
		p.HidePage(p.stack[len(p.stack)-1])
	}
	p.stack = append(p.stack, name)
	p.show(name)
	return true
}

// Pop removes the top page unless it is the last one and returns its name.
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.show(p.stack[len(p.stack)-1])
	return top
}

// Reset clears the stack and shows only the given page.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.show(name)
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}

// Current returns the name of the current (top) page.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Top returns the component on top of the stack, or nil.
func (p *Pages) Top() Component {
	return p.pages[p.Current()].comp
}

// FocusTarget returns the primitive that should hold focus for the top page.
func (p *Pages) FocusTarget() tview.Primitive {
	return p.pages[p.Current()].focus
}

// Trail returns the component names along the stack, bottom first.
func (p *Pages) Trail() []string {
	names := make([]string, 0, len(p.stack))
	for _, n := range p.stack {
		if c := p.pages[n].comp; c != nil {
			names = append(names, c.Name())
		} else {
			names = append(names, n)
		}
	}
	return names
}

// Stack returns a copy of the current page stack.
func (p *Pages) Stack() []string {
	s := make([]string, len(p.stack))
	copy(s, p.stack)
	return s
}

// Depth returns the current stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}
