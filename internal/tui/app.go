package tui

import (
	"context"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/opschat/internal/api"
	"github.com/matheus3301/opschat/internal/tui/keys"
	"github.com/matheus3301/opschat/internal/tui/model"
	"github.com/matheus3301/opschat/internal/tui/ui"
	"github.com/matheus3301/opschat/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageChats = "chats"
	pageChat  = "chat"
	pageHelp  = "help"
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	screen   tcell.Screen
	root     *tview.Flex
	pages    *ui.Pages
	theme    *ui.Theme
	vm       *model.ViewModel
	client   *api.Client
	registry *keys.Registry

	info     *ui.SessionInfo
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	logo     *ui.Logo
	flash    *ui.FlashModel
	flashBar *ui.FlashBar
	prompt   *ui.Prompt

	chatList *views.ConversationList
	thread   *views.MessageThread
	help     *views.HelpView

	sessionName string
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *api.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		pages:       ui.NewPages(),
		theme:       theme,
		vm:          model.NewViewModel(c),
		client:      c,
		registry:    keys.NewRegistry(),
		info:        ui.NewSessionInfo(theme),
		menu:        ui.NewMenu(theme),
		crumbs:      ui.NewCrumbs(theme),
		logo:        ui.NewLogo(theme),
		flash:       ui.NewFlashModel(),
		flashBar:    ui.NewFlashBar(theme),
		prompt:      ui.NewPrompt(theme),
		chatList:    views.NewConversationList(theme),
		thread:      views.NewMessageThread(theme),
		help:        views.NewHelpView(theme),
		sessionName: sessionName,
		ctx:         ctx,
		cancel:      cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Label: "Quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Label: "Help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Label: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal("notification", &keys.Action{
		Rune: 'o', Key: tcell.KeyRune,
		Label: "Open notified", Visible: true,
		Handler: func() {
			if id := a.flash.LastToastChat(); id != "" {
				a.openChat(id)
			}
		},
	})
	a.registry.AddView(pageChats, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Label: "Filter", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageChats, "clear", &keys.Action{
		Rune: '0', Key: tcell.KeyRune,
		Label: "All", Visible: true, Numeric: true,
		Handler: func() { a.chatList.ClearFilter() },
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageChats, "jump"+strconv.Itoa(n), &keys.Action{
			Rune: rune('0' + n), Key: tcell.KeyRune,
			Handler: func() {
				if id := a.chatList.ChatByIndex(n); id != "" {
					a.openChat(id)
				}
			},
		})
	}
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		if id := a.chatList.SelectedChat(); id != "" {
			a.openChat(id)
		}
	})

	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(a.pages.Trail())
		a.menu.Update(a.registry.Hints(a.pages.Current(), a.pages.Top().Hints()))
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.chatList.SetFilter(text)
			return
		}
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		AddItem(a.info, 0, 1, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(a.logo, 14, 0, false)

	a.pages.Add(pageChats, a.chatList, a.chatList, nil)
	a.pages.Add(pageChat, a.thread, a.thread, a.thread.Messages())
	a.pages.Add(pageHelp, a.help, a.help, nil)
	a.pages.Reset(pageChats)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.root, true).SetFocus(a.chatList)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		current := a.pages.Current()

		// Let text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyEscape {
			switch current {
			case pageChat:
				a.closeChat()
				return nil
			case pageHelp:
				a.pop()
				return nil
			}
		}

		if a.registry.HandleEvent(current, event) {
			return nil
		}
		return event
	})
}

func (a *App) runCommand(cmd Command) {
	if !cmd.Known() {
		a.flash.Warn("unknown command: " + cmd.Name)
		return
	}
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.push(pageHelp)
	case "open":
		if cmd.Args == "" {
			a.flash.Warn("usage: :open <chat-id>")
			return
		}
		a.openChat(cmd.Args)
	case "close":
		a.closeChat()
	case "away", "back":
		active := cmd.Name == "back"
		go func() {
			if err := a.vm.SetPageActive(a.ctx, active); err != nil {
				a.flash.Err(err)
				return
			}
			if active {
				a.flash.Info("Messages page active")
			} else {
				a.flash.Info("Messages page inactive")
			}
		}()
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) push(name string) {
	if a.pages.Push(name) {
		a.app.SetFocus(a.pages.FocusTarget())
	}
}

func (a *App) pop() {
	a.pages.Pop()
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	if f := a.pages.FocusTarget(); f != nil {
		a.app.SetFocus(f)
	}
}

func (a *App) openChat(chatID string) {
	go func() {
		cleared, err := a.vm.OpenChat(a.ctx, chatID)
		if err != nil {
			a.flash.Err(err)
			a.app.QueueUpdateDraw(a.renderFlash)
			return
		}
		_ = a.vm.Reload(a.ctx, model.RefreshChats|model.RefreshStatus|model.RefreshTyping)
		if cleared > 0 {
			a.flash.Info("Marked " + strconv.Itoa(cleared) + " message(s) read")
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.SetChat(chatID, a.vm.ChatName(chatID))
			a.render(model.RefreshStatus | model.RefreshChats | model.RefreshTranscript | model.RefreshTyping)
			a.pages.Reset(pageChats)
			a.push(pageChat)
		})
	}()
}

func (a *App) closeChat() {
	a.pages.Reset(pageChats)
	a.app.SetFocus(a.chatList)
	go func() {
		if err := a.vm.CloseChat(a.ctx); err != nil {
			a.flash.Err(err)
		}
	}()
}

// render pushes cached view model state into the widgets. Must run on the UI goroutine.
func (a *App) render(r model.Refresh) {
	if r.Has(model.RefreshStatus) {
		if st := a.vm.GetStatus(); st != nil {
			a.thread.SetSelf(st.UserID)
			a.info.Update(&ui.SessionData{
				Session:  a.sessionName,
				User:     st.UserID,
				Status:   st.State,
				Attempts: st.ReconnectAttempts,
				Chats:    st.Chats,
				Unread:   st.TotalUnread,
				Uptime:   time.Duration(st.UptimeMs) * time.Millisecond,
			})
			a.crumbs.SetUnread(st.TotalUnread)
			a.logo.SetState(st.State)
		}
	}
	if r.Has(model.RefreshChats) {
		a.chatList.Update(a.vm.GetChats())
	}
	if r.Has(model.RefreshTranscript) {
		a.thread.Update(a.vm.GetTranscript().Messages)
	}
	if r.Has(model.RefreshTyping) {
		a.thread.SetTyping(a.vm.GetTyping())
	}
	a.renderFlash()
}

func (a *App) renderFlash() {
	a.flashBar.Update(a.flash.GetMessage())
}

// Run starts the TUI application.
func (a *App) Run() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	a.screen = screen
	a.app.SetScreen(screen)

	go func() {
		all := model.RefreshStatus | model.RefreshChats
		if err := a.vm.Reload(a.ctx, all); err != nil {
			a.flash.Err(err)
		}
		a.app.QueueUpdateDraw(func() { a.render(all) })

		a.watchEvents()
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// watchEvents streams daemon events and refreshes the affected views.
func (a *App) watchEvents() {
	events, errs, err := a.client.Watch(a.ctx, "")
	if err != nil {
		a.flash.Warn("live updates unavailable: " + err.Error())
		return
	}
	go func() {
		for evt := range events {
			if n, ok := model.Toast(evt); ok {
				a.flash.Toast(n.Title, n.Body, n.ChatID)
				if n.Sound && a.screen != nil {
					_ = a.screen.Beep()
				}
			}
			r := model.RefreshFor(evt.Kind)
			if r == 0 {
				a.app.QueueUpdateDraw(a.renderFlash)
				continue
			}
			_ = a.vm.Reload(a.ctx, r)
			a.app.QueueUpdateDraw(func() { a.render(r) })
		}
		select {
		case err := <-errs:
			a.flash.Err(err)
			a.app.QueueUpdateDraw(a.renderFlash)
		default:
		}
	}()
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for {
			select {
			case <-ticker.C:
				r := model.RefreshStatus | model.RefreshChats
				_ = a.vm.Reload(a.ctx, r)
				a.app.QueueUpdateDraw(func() { a.render(r) })
			case <-a.ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
