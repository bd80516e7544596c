package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/opschat/internal/api"
	"github.com/matheus3301/opschat/internal/lock"
	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName, err := session.Resolve(*sessionFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := session.SocketPath(sessionName)
	c, err := api.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		prefix := ""
		if len(args) >= 2 {
			prefix = args[1]
		}
		cmdWatch(c, prefix, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, sessionName, *jsonFlag)
	case "chats":
		cmdChats(ctx, c, *jsonFlag)
	case "unread":
		chatID := ""
		if len(args) >= 2 {
			chatID = args[1]
		}
		cmdUnread(ctx, c, chatID, *jsonFlag)
	case "open":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: opschatctl open <chat-id>")
			os.Exit(1)
		}
		cmdOpen(ctx, c, args[1], *jsonFlag)
	case "close":
		if err := c.CloseChat(ctx); err != nil {
			fail(err)
		}
	case "focus":
		if len(args) < 2 || (args[1] != "on" && args[1] != "off") {
			fmt.Fprintln(os.Stderr, "usage: opschatctl focus <on|off>")
			os.Exit(1)
		}
		if err := c.SetPageActive(ctx, args[1] == "on"); err != nil {
			fail(err)
		}
	case "transcript":
		cmdTranscript(ctx, c, *jsonFlag)
	case "typing":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: opschatctl typing <chat-id>")
			os.Exit(1)
		}
		cmdTyping(ctx, c, args[1], *jsonFlag)
	case "keystroke", "sent":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "usage: opschatctl %s <chat-id>\n", args[0])
			os.Exit(1)
		}
		report := c.Keystroke
		if args[0] == "sent" {
			report = c.MessageSent
		}
		if err := report(ctx, args[1]); err != nil {
			fail(err)
		}
	case "inject":
		if len(args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: opschatctl inject <chat-id> <sender-id> <text>")
			os.Exit(1)
		}
		cmdInject(ctx, c, args[1], args[2], strings.Join(args[3:], " "))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: opschatctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show connection status")
	fmt.Fprintln(os.Stderr, "  chats                          List chats with unread badges")
	fmt.Fprintln(os.Stderr, "  unread [chat-id]               Show unread counts")
	fmt.Fprintln(os.Stderr, "  open <chat-id>                 Open a chat and mark it read")
	fmt.Fprintln(os.Stderr, "  close                          Close the open chat")
	fmt.Fprintln(os.Stderr, "  focus <on|off>                 Mark the messages page active or inactive")
	fmt.Fprintln(os.Stderr, "  transcript                     Show the open chat's messages")
	fmt.Fprintln(os.Stderr, "  typing <chat-id>               Show who is typing")
	fmt.Fprintln(os.Stderr, "  keystroke <chat-id>            Report local typing (debounced typing-start/stop)")
	fmt.Fprintln(os.Stderr, "  sent <chat-id>                 Report a sent message, ending local typing")
	fmt.Fprintln(os.Stderr, "  inject <chat> <sender> <text>  Deliver a message through the local bridge")
	fmt.Fprintln(os.Stderr, "  watch [prefix]                 Stream daemon events")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *api.Client, sessionName string, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		if h, ok, _ := lock.Inspect(session.Dir(sessionName)); ok {
			fmt.Fprintf(os.Stderr, "daemon lock held by PID %d for user %s since %s\n", h.PID, h.UserID, h.Since.Format(time.RFC3339))
		} else {
			fmt.Fprintf(os.Stderr, "no daemon running for session %q\n", sessionName)
		}
		fail(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Session:   %s\n", st.Session)
	fmt.Printf("User:      %s\n", st.UserID)
	fmt.Printf("State:     %s (since %s)\n", st.State, st.StateSince.Format(time.RFC3339))
	if st.ReconnectAttempts > 0 {
		fmt.Printf("Attempts:  %d\n", st.ReconnectAttempts)
	}
	fmt.Printf("Chats:     %d\n", st.Chats)
	fmt.Printf("Unread:    %d\n", st.TotalUnread)
	if st.OpenChat != "" {
		fmt.Printf("Open chat: %s (active=%v)\n", st.OpenChat, st.PageActive)
	}
	if st.Terminated {
		fmt.Println("Session was terminated by the server.")
	}
	fmt.Printf("Uptime:    %dms\n", st.UptimeMs)
}

func cmdChats(ctx context.Context, c *api.Client, jsonOut bool) {
	list, err := c.Chats(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(list)
		return
	}
	if len(list.Chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, ch := range list.Chats {
		badge := ""
		if ch.Unread > 0 {
			badge = fmt.Sprintf("(%d)", ch.Unread)
		}
		preview := ""
		if ch.Latest != nil {
			preview = ch.Latest.Preview
		}
		fmt.Printf("%-24s %-6s %s\n", ch.DisplayName, badge, preview)
	}
	fmt.Printf("\nTotal unread: %d\n", list.TotalUnread)
}

func cmdUnread(ctx context.Context, c *api.Client, chatID string, jsonOut bool) {
	v, err := c.Unread(ctx, chatID)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(v)
		return
	}
	if chatID != "" {
		for _, s := range v.Stubs {
			fmt.Printf("%s  %-12s %s\n", s.CreatedAt.Local().Format("15:04:05"), s.SenderID, s.Preview)
		}
		fmt.Printf("%s: %d unread\n", chatID, len(v.Stubs))
		return
	}
	for id, n := range v.Counts {
		fmt.Printf("%-24s %d\n", id, n)
	}
	fmt.Printf("Total: %d\n", v.Total)
}

func cmdOpen(ctx context.Context, c *api.Client, chatID string, jsonOut bool) {
	cleared, err := c.OpenChat(ctx, chatID)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(map[string]any{"chatId": chatID, "cleared": cleared})
		return
	}
	fmt.Printf("Opened %s, cleared %d unread.\n", chatID, cleared)
}

func cmdTranscript(ctx context.Context, c *api.Client, jsonOut bool) {
	v, err := c.Transcript(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(v)
		return
	}
	if v.ChatID == "" {
		fmt.Println("No chat open.")
		return
	}
	for _, m := range v.Messages {
		fmt.Printf("%s  %-12s %s\n", m.CreatedAt.Local().Format("15:04:05"), m.SenderID, m.Content)
	}
}

func cmdTyping(ctx context.Context, c *api.Client, chatID string, jsonOut bool) {
	v, err := c.Typing(ctx, chatID)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(v)
		return
	}
	if len(v.UserIDs) == 0 {
		fmt.Println("Nobody is typing.")
		return
	}
	fmt.Printf("%s typing\n", strings.Join(v.UserIDs, ", "))
}

func cmdInject(ctx context.Context, c *api.Client, chatID, senderID, text string) {
	m := model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.Inject(ctx, m); err != nil {
		fail(err)
	}
	fmt.Printf("Injected %s\n", m.ID)
}

func cmdWatch(c *api.Client, prefix string, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events, errs, err := c.Watch(ctx, prefix)
	if err != nil {
		fail(err)
	}
	for evt := range events {
		if jsonOut {
			data, _ := json.Marshal(evt)
			fmt.Println(string(data))
			continue
		}
		fmt.Printf("%s  %-24s %s\n", evt.At.Local().Format("15:04:05.000"), evt.Kind, evt.Payload)
	}
	select {
	case err := <-errs:
		fail(err)
	default:
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
