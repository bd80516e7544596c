package api

import (
	"context"
	"fmt"

	"github.com/matheus3301/opschat/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to a daemon's Console service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out proto.Message) error {
	return c.conn.Invoke(ctx, fullMethod(method), in, out)
}

func (c *Client) view(ctx context.Context, method string, in proto.Message, v any) error {
	out := &structpb.Struct{}
	if err := c.invoke(ctx, method, in, out); err != nil {
		return err
	}
	return fromStruct(out, v)
}

// Status returns the session status.
func (c *Client) Status(ctx context.Context) (StatusView, error) {
	var v StatusView
	err := c.view(ctx, "GetStatus", &emptypb.Empty{}, &v)
	return v, err
}

// Chats returns the projected chat list.
func (c *Client) Chats(ctx context.Context) (ChatListView, error) {
	var v ChatListView
	err := c.view(ctx, "ListChats", &emptypb.Empty{}, &v)
	return v, err
}

// Unread returns unread counts, with stubs for chatID when it is set.
func (c *Client) Unread(ctx context.Context, chatID string) (UnreadView, error) {
	var v UnreadView
	err := c.view(ctx, "GetUnread", wrapperspb.String(chatID), &v)
	return v, err
}

// OpenChat opens chatID and returns how many unread messages it cleared.
func (c *Client) OpenChat(ctx context.Context, chatID string) (int, error) {
	out := &wrapperspb.Int64Value{}
	if err := c.invoke(ctx, "OpenChat", wrapperspb.String(chatID), out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

// CloseChat closes the open chat.
func (c *Client) CloseChat(ctx context.Context) error {
	return c.invoke(ctx, "CloseChat", &emptypb.Empty{}, &emptypb.Empty{})
}

// SetPageActive reports whether the messages page has focus.
func (c *Client) SetPageActive(ctx context.Context, active bool) error {
	return c.invoke(ctx, "SetPageActive", wrapperspb.Bool(active), &emptypb.Empty{})
}

// Inject delivers m through the daemon's in-process bridge.
func (c *Client) Inject(ctx context.Context, m model.Message) error {
	in, err := toStruct(m)
	if err != nil {
		return err
	}
	return c.invoke(ctx, "InjectMessage", in, &emptypb.Empty{})
}

// Transcript returns the open chat's messages.
func (c *Client) Transcript(ctx context.Context) (TranscriptView, error) {
	var v TranscriptView
	err := c.view(ctx, "GetTranscript", &emptypb.Empty{}, &v)
	return v, err
}

// Typing returns who is composing in chatID.
func (c *Client) Typing(ctx context.Context, chatID string) (TypingView, error) {
	var v TypingView
	err := c.view(ctx, "GetTyping", wrapperspb.String(chatID), &v)
	return v, err
}

// Keystroke reports local typing in chatID.
func (c *Client) Keystroke(ctx context.Context, chatID string) error {
	return c.invoke(ctx, "Keystroke", wrapperspb.String(chatID), &emptypb.Empty{})
}

// MessageSent reports that the local user sent a message in chatID.
func (c *Client) MessageSent(ctx context.Context, chatID string) error {
	return c.invoke(ctx, "MessageSent", wrapperspb.String(chatID), &emptypb.Empty{})
}

// Watch streams events whose kind starts with prefix until ctx ends.
func (c *Client) Watch(ctx context.Context, prefix string) (<-chan EventView, <-chan error, error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("WatchEvents"))
	if err != nil {
		return nil, nil, fmt.Errorf("open event stream: %w", err)
	}
	cs := &grpc.GenericClientStream[wrapperspb.StringValue, structpb.Struct]{ClientStream: stream}
	if err := cs.SendMsg(wrapperspb.String(prefix)); err != nil {
		return nil, nil, fmt.Errorf("send watch request: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, nil, fmt.Errorf("close watch request: %w", err)
	}

	events := make(chan EventView, 64)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			msg, err := cs.Recv()
			if err != nil {
				if ctx.Err() == nil {
					errs <- err
				}
				return
			}
			var v EventView
			if err := fromStruct(msg, &v); err != nil {
				continue
			}
			select {
			case events <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, errs, nil
}
