package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/opschat/internal/model"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// StatusView is the GetStatus payload.
type StatusView struct {
	Session           string    `json:"session"`
	UserID            string    `json:"userId"`
	State             string    `json:"state"`
	StateSince        time.Time `json:"stateSince"`
	TransportID       string    `json:"transportId,omitempty"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	Epoch             uint64    `json:"epoch"`
	OpenChat          string    `json:"openChat,omitempty"`
	PageActive        bool      `json:"pageActive"`
	TotalUnread       int       `json:"totalUnread"`
	Chats             int       `json:"chats"`
	Terminated        bool      `json:"terminated"`
	UptimeMs          int64     `json:"uptimeMs"`
}

// ChatView is one row of the projected chat list.
type ChatView struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	IsGroup     bool        `json:"isGroup"`
	Unread      int         `json:"unread"`
	Latest      *model.Stub `json:"latest,omitempty"`
	Typing      []string    `json:"typing,omitempty"`
}

// ChatListView is the ListChats payload, most recent first.
type ChatListView struct {
	Chats       []ChatView `json:"chats"`
	TotalUnread int        `json:"totalUnread"`
}

// UnreadView is the GetUnread payload. Stubs is set when a chat was named.
type UnreadView struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
	ChatID string         `json:"chatId,omitempty"`
	Stubs  []model.Stub   `json:"stubs,omitempty"`
}

// TranscriptView is the GetTranscript payload.
type TranscriptView struct {
	ChatID   string          `json:"chatId,omitempty"`
	Messages []model.Message `json:"messages"`
}

// TypingView is the GetTyping payload.
type TypingView struct {
	ChatID  string   `json:"chatId"`
	UserIDs []string `json:"userIds"`
}

// EventView is one WatchEvents item.
type EventView struct {
	ID      string          `json:"id"`
	Session string          `json:"session"`
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// toStruct converts a JSON-encodable view into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode view: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("convert view: %w", err)
	}
	return s, nil
}

// fromStruct decodes a Struct into a view.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("convert struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode view: %w", err)
	}
	return nil
}
