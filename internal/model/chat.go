package model

// Chat is a conversation between two or more users.
type Chat struct {
	ID             string   `json:"id"`
	IsGroup        bool     `json:"isGroup"`
	ParticipantIDs []string `json:"participantIds"`
	Name           string   `json:"name,omitempty"`
	LatestMessage  *Message `json:"latestMessage,omitempty"`
}

// DisplayName resolves the name shown for the chat. Group chats use their
// own name; 1:1 chats are named after the other participant.
func (c *Chat) DisplayName(localUserID string) string {
	if c.IsGroup {
		if c.Name != "" {
			return c.Name
		}
		return c.ID
	}
	for _, p := range c.ParticipantIDs {
		if p != localUserID {
			return p
		}
	}
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// HasParticipant reports whether userID takes part in the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.ParticipantIDs {
		if p == userID {
			return true
		}
	}
	return false
}

// LatestAt returns the creation time of the latest message in unix millis,
// or 0 when the chat has none.
func (c *Chat) LatestAt() int64 {
	if c.LatestMessage == nil {
		return 0
	}
	return c.LatestMessage.CreatedAt.UnixMilli()
}
