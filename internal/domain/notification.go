package domain

import "time"

type NotificationType string

const (
	NotificationNewMessage       NotificationType = "NEW_MESSAGE"
	NotificationMention          NotificationType = "MENTION"
	NotificationSystem           NotificationType = "SYSTEM"
	NotificationPerformanceAlert NotificationType = "PERFORMANCE_ALERT"
)

type Notification struct {
	ID        int64            `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// TypingState is a transient presence signal: a user composing a message in
// a conversation. Entries expire shortly after the last refresh.
type TypingState struct {
	UserID         int64  `json:"userId"`
	Username       string `json:"username"`
	ConversationID int64  `json:"conversationId"`
}
