package models

// MessageType classifies chat messages.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
	MessageFile   MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageSystem, MessageFile:
		return true
	}
	return false
}

// ChatMessage is a message posted in a team's chat.
type ChatMessage struct {
	ID        int64       `json:"id"`
	TeamID    int64       `json:"team_id"`
	UserID    int64       `json:"user_id"`
	Body      string      `json:"body"`
	Type      MessageType `json:"type"`
	ReplyTo   *int64      `json:"reply_to,omitempty"`
	IsEdited  bool        `json:"is_edited"`
	EditedAt  *int64      `json:"edited_at,omitempty"`
	CreatedAt int64       `json:"created_at"`
	UpdatedAt int64       `json:"updated_at"`

	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsRead    bool   `json:"is_read"`
}

// MessagePage is a window of chat history plus the caller's unread count.
type MessagePage struct {
	Messages    []ChatMessage `json:"messages"`
	UnreadCount int           `json:"unread_count"`
	Limit       int           `json:"limit"`
	Offset      int           `json:"offset"`
}
