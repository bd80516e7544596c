// Package transport defines the real-time wire envelope and the websocket
// connection the session runs over.
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/opschat/internal/model"
)

// Inbound envelope types.
const (
	TypeMessageArrived             = "message-arrived"
	TypeMessageReemit              = "message-reemit"
	TypeTypingStart                = "typing-start"
	TypeTypingStop                 = "typing-stop"
	TypeChatListRefreshRequest     = "chat-list-refresh-request"
	TypeChatListResponse           = "chat-list-response"
	TypeSessionTerminated          = "session-terminated"
	TypeSessionTerminatedBroadcast = "session-terminated-broadcast"
	TypeReconnected                = "reconnected"
)

// Outbound envelope types. Typing signals reuse the inbound names.
const (
	TypeIdentityAnnounce = "identity-announce"
	TypeJoinChat         = "join-chat"
	TypeRequestChatList  = "request-chat-list"
	TypeDeliveryAck      = "message-delivery-ack"
)

// Envelope is one JSON text frame.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewEnvelope builds an envelope with a fresh request id.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	env := Envelope{Type: typ, RequestID: uuid.NewString()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		env.Payload = data
	}
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// IdentityAnnounce binds the transport session to a user.
type IdentityAnnounce struct {
	UserID    string `json:"userId"`
	AuthToken string `json:"authToken"`
}

// JoinChat subscribes the session to a chat's room.
type JoinChat struct {
	ChatID string `json:"chatId"`
}

// Typing is the payload of typing-start and typing-stop.
type Typing struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// RequestChatList asks the remote side for the user's chat list.
type RequestChatList struct {
	UserID string `json:"userId"`
}

// DeliveryAck acknowledges a received message.
type DeliveryAck struct {
	MessageID string `json:"messageId"`
}

// ChatList is the payload of chat-list-response.
type ChatList struct {
	Chats []model.Chat `json:"chats"`
}

// SessionTerminated ends the session. A broadcast names the users it
// applies to; an empty list applies to everyone.
type SessionTerminated struct {
	Reason  string   `json:"reason,omitempty"`
	UserIDs []string `json:"userIds,omitempty"`
}

// Applies reports whether the termination addresses userID.
func (s SessionTerminated) Applies(userID string) bool {
	if len(s.UserIDs) == 0 {
		return true
	}
	for _, id := range s.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
