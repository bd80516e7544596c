package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	ErrMissingID     = errors.New("message id is missing")
	ErrMalformedID   = errors.New("message id is malformed")
	ErrMissingChatID = errors.New("chat id is missing")
	ErrInvalidChatID = errors.New("chat id is invalid")
)

const (
	maxMessageIDLen   = 128
	attachmentPreview = "[attachment]"
)

var chatIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Attachment is a file carried by a message.
type Attachment struct {
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Message is one unit of content delivered into a chat. Once delivered it
// only ever grows its ReadBy set.
type Message struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chatId"`
	SenderID    string       `json:"senderId"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	ReadBy      []string     `json:"readBy,omitempty"`
}

// Validate checks the fields every consumer relies on. It is called once at
// the router boundary.
func (m *Message) Validate() error {
	if m == nil {
		return ErrMissingID
	}
	if err := ValidateID(m.ID); err != nil {
		return err
	}
	if m.ChatID == "" {
		return ErrMissingChatID
	}
	return ValidateChatID(m.ChatID)
}

// ValidateID reports whether id can identify a message.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingID
	}
	if len(id) > maxMessageIDLen || !utf8.ValidString(id) || strings.ContainsFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) {
		return fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
	return nil
}

// ValidateChatID reports whether id has the shape the server issues.
func ValidateChatID(id string) error {
	if id == "" {
		return ErrMissingChatID
	}
	if !chatIDRegexp.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidChatID, id)
	}
	return nil
}

// IsReadBy reports whether userID is in the ReadBy set.
func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkReadBy adds userID to ReadBy. Returns false when already present.
func (m *Message) MarkReadBy(userID string) bool {
	if m.IsReadBy(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}

// Preview returns a short single-line summary of the message.
func (m *Message) Preview() string {
	if m.Content == "" && len(m.Attachments) > 0 {
		return attachmentPreview
	}
	return truncate(strings.Join(strings.Fields(m.Content), " "), 100)
}

// Stub is the denormalized copy of a message kept in the unread ledger.
type Stub struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Preview   string    `json:"preview,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// StubOf builds the ledger stub for m.
func StubOf(m *Message) Stub {
	return Stub{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Preview:   m.Preview(),
		CreatedAt: m.CreatedAt,
	}
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
