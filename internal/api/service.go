// Package api exposes a running session to the ctl and the tui over gRPC.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/model"
	"github.com/matheus3301/opschat/internal/status"
	intsync "github.com/matheus3301/opschat/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Engine is the session the service reads from and drives.
type Engine interface {
	Status() intsync.Status
	Chats() []model.Chat
	Unread() (map[string]int, int)
	UnreadStubs(chatID string) []model.Stub
	Transcript() (string, []model.Message)
	Typing(chatID string) []string
	OpenChat(ctx context.Context, chatID string) (int, error)
	CloseChat(ctx context.Context) error
	SetPageActive(ctx context.Context, active bool) error
	Inject(m *model.Message) error
	Keystroke(chatID string)
	Sent(chatID string)
}

// ConsoleService implements ConsoleServer on top of an Engine.
type ConsoleService struct {
	engine      Engine
	machine     *status.Machine
	bus         *bus.Bus
	sessionName string
	startedAt   time.Time
	logger      *zap.Logger
}

// NewConsoleService creates the service.
func NewConsoleService(sessionName string, engine Engine, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *ConsoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleService{
		engine:      engine,
		machine:     machine,
		bus:         b,
		sessionName: sessionName,
		startedAt:   time.Now(),
		logger:      logger.Named("api"),
	}
}

func (s *ConsoleService) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.engine.Status()
	view := StatusView{
		Session:           s.sessionName,
		UserID:            st.UserID,
		State:             string(st.State),
		TransportID:       st.TransportID,
		ReconnectAttempts: st.ReconnectAttempts,
		Epoch:             st.Epoch,
		OpenChat:          st.OpenChat,
		PageActive:        st.PageActive,
		TotalUnread:       st.TotalUnread,
		Chats:             st.Chats,
		Terminated:        st.Terminated,
		UptimeMs:          time.Since(s.startedAt).Milliseconds(),
	}
	if s.machine != nil {
		view.StateSince = s.machine.Since()
	}
	return encode(view)
}

func (s *ConsoleService) ListChats(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	userID := s.engine.Status().UserID
	counts, total := s.engine.Unread()
	chats := s.engine.Chats()

	view := ChatListView{Chats: make([]ChatView, 0, len(chats)), TotalUnread: total}
	for _, c := range chats {
		row := ChatView{
			ID:          c.ID,
			DisplayName: c.DisplayName(userID),
			IsGroup:     c.IsGroup,
			Unread:      counts[c.ID],
			Typing:      s.engine.Typing(c.ID),
		}
		if c.LatestMessage != nil {
			stub := model.StubOf(c.LatestMessage)
			row.Latest = &stub
		}
		view.Chats = append(view.Chats, row)
	}
	return encode(view)
}

func (s *ConsoleService) GetUnread(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	counts, total := s.engine.Unread()
	view := UnreadView{Counts: counts, Total: total}
	if chatID := strings.TrimSpace(req.GetValue()); chatID != "" {
		view.ChatID = chatID
		view.Stubs = s.engine.UnreadStubs(chatID)
	}
	return encode(view)
}

func (s *ConsoleService) OpenChat(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	cleared, err := s.engine.OpenChat(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(int64(cleared)), nil
}

func (s *ConsoleService) CloseChat(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.engine.CloseChat(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ConsoleService) SetPageActive(ctx context.Context, req *wrapperspb.BoolValue) (*emptypb.Empty, error) {
	if err := s.engine.SetPageActive(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *ConsoleService) InjectMessage(_ context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	var m model.Message
	if err := fromStruct(req, &m); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "decode message: %v", err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if err := m.Validate(); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if err := s.engine.Inject(&m); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Keystroke feeds the outbound typing debounce for the local user.
func (s *ConsoleService) Keystroke(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := model.ValidateChatID(req.GetValue()); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	s.engine.Keystroke(req.GetValue())
	return &emptypb.Empty{}, nil
}

// MessageSent ends the local typing indicator for a chat immediately.
func (s *ConsoleService) MessageSent(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := model.ValidateChatID(req.GetValue()); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	s.engine.Sent(req.GetValue())
	return &emptypb.Empty{}, nil
}

func (s *ConsoleService) GetTranscript(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	chatID, msgs := s.engine.Transcript()
	if msgs == nil {
		msgs = []model.Message{}
	}
	return encode(TranscriptView{ChatID: chatID, Messages: msgs})
}

func (s *ConsoleService) GetTyping(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	chatID := req.GetValue()
	if err := model.ValidateChatID(chatID); err != nil {
		return nil, toStatus(err)
	}
	return encode(TypingView{ChatID: chatID, UserIDs: s.engine.Typing(chatID)})
}

// WatchEvents streams bus events whose kind starts with the requested
// prefix. An empty prefix streams everything but bridge traffic.
func (s *ConsoleService) WatchEvents(req *wrapperspb.StringValue, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	prefix := req.GetValue()
	ch, unsub := s.bus.Subscribe(256, prefix)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if prefix == "" && strings.HasPrefix(evt.Kind, "bridge.") {
				continue
			}
			out, err := s.eventStruct(evt)
			if err != nil {
				s.logger.Warn("skipping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *ConsoleService) eventStruct(evt bus.Event) (*structpb.Struct, error) {
	var payload json.RawMessage
	if evt.Payload != nil {
		data, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, err
		}
		payload = data
	}
	return toStruct(EventView{
		ID:      uuid.NewString(),
		Session: s.sessionName,
		Kind:    evt.Kind,
		At:      evt.Timestamp,
		Payload: payload,
	})
}

func encode(v any) (*structpb.Struct, error) {
	s, err := toStruct(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return s, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidChatID), errors.Is(err, model.ErrMissingChatID):
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	case errors.Is(err, intsync.ErrNotRunning):
		return grpcstatus.Errorf(codes.Unavailable, "%v", err)
	case errors.Is(err, intsync.ErrTerminated):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%v", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.FromContextError(err).Err()
	default:
		return grpcstatus.Errorf(codes.Internal, "%v", err)
	}
}
