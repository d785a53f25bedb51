package ws

import "encoding/json"

// Server -> client event names.
const (
	eventNewMessage          = "new_message"
	eventMessagesRead        = "messages_read"
	eventUserTyping          = "user_typing"
	eventUserStoppedTyping   = "user_stopped_typing"
	eventNewNotification     = "new_notification"
	eventMessageError        = "message_error"
	eventConversationsJoined = "conversations_joined"
)

// Client -> server command names.
const (
	commandJoinConversations = "join_conversations"
	commandSendMessage       = "send_message"
	commandMarkMessagesRead  = "mark_messages_read"
	commandTypingStart       = "typing_start"
	commandTypingStop        = "typing_stop"
)

// envelope frames every message on the wire: a named event with a JSON payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type MessagesReadPayload struct {
	UserID         int64   `json:"userId"`
	MessageIDs     []int64 `json:"messageIds"`
	ConversationID int64   `json:"conversationId"`
}

type UserTypingPayload struct {
	UserID         int64  `json:"userId"`
	Username       string `json:"username"`
	ConversationID int64  `json:"conversationId"`
}

type UserStoppedTypingPayload struct {
	UserID         int64 `json:"userId"`
	ConversationID int64 `json:"conversationId"`
}

type messageErrorPayload struct {
	Error string `json:"error"`
}

type sendMessagePayload struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
}

type markMessagesReadPayload struct {
	ConversationID int64   `json:"conversationId"`
	MessageIDs     []int64 `json:"messageIds"`
}

type typingPayload struct {
	ConversationID int64 `json:"conversationId"`
}
