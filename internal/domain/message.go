package domain

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeFile  MessageType = "FILE"
	MessageTypeVideo MessageType = "VIDEO"
)

// ReadReceipt records that a user has seen a message.
type ReadReceipt struct {
	UserID int64     `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

type Message struct {
	ID             int64         `json:"id"`
	ConversationID int64         `json:"conversationId"`
	SenderID       int64         `json:"senderId"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"messageType"`
	CreatedAt      time.Time     `json:"createdAt"`
	ReadReceipts   []ReadReceipt `json:"readReceipts,omitempty"`
}

func NewTextMessage(id, conversationID, senderID int64, content string, createdAt time.Time) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           MessageTypeText,
		CreatedAt:      createdAt,
	}
}

// ReadBy reports whether the given user has a read receipt for the message.
// Receipts are append-only and may contain duplicates, so this scans.
func (m *Message) ReadBy(userID int64) bool {
	for _, r := range m.ReadReceipts {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Preview returns the text shown in conversation lists for the message.
func (m *Message) Preview() string {
	if m.Type == MessageTypeText {
		return m.Content
	}
	return "[" + string(m.Type) + "]"
}
