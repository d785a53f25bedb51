package archive

import (
	"time"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

type MessageRecord struct {
	ID             int64     `gorm:"primaryKey;column:id"`
	ConversationID int64     `gorm:"column:conversation_id;index:idx_conv_created"`
	SenderID       int64     `gorm:"column:sender_id"`
	Type           string    `gorm:"column:type"`
	Content        string    `gorm:"column:content"`
	CreatedAt      time.Time `gorm:"column:created_at;index:idx_conv_created"`
	ArchivedAt     time.Time `gorm:"column:archived_at"`
}

func (MessageRecord) TableName() string { return "messages" }

type ConversationRecord struct {
	ID              int64     `gorm:"primaryKey;column:id"`
	IsGroup         bool      `gorm:"column:is_group"`
	Name            string    `gorm:"column:name"`
	LastMessageText string    `gorm:"column:last_message_text"`
	LastMessageAt   time.Time `gorm:"column:last_message_at;index"`
	ArchivedAt      time.Time `gorm:"column:archived_at"`
}

func (ConversationRecord) TableName() string { return "conversations" }

// Conversion functions
func MessageRecordToDomain(r *MessageRecord) *domain.Message {
	if r == nil {
		return nil
	}
	return &domain.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Type:           domain.MessageType(r.Type),
		Content:        r.Content,
		CreatedAt:      r.CreatedAt,
	}
}

func MessageDomainToRecord(msg *domain.Message) *MessageRecord {
	if msg == nil {
		return nil
	}
	return &MessageRecord{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Type:           string(msg.Type),
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		ArchivedAt:     time.Now(),
	}
}

func ConversationDomainToRecord(conv *domain.Conversation) *ConversationRecord {
	if conv == nil {
		return nil
	}
	rec := &ConversationRecord{
		ID:         conv.ID,
		IsGroup:    conv.IsGroup,
		Name:       conv.Name,
		ArchivedAt: time.Now(),
	}
	if conv.LastMessage != nil {
		rec.LastMessageText = conv.LastMessage.Preview()
		rec.LastMessageAt = conv.LastMessage.CreatedAt
	} else if !conv.UpdatedAt.IsZero() {
		rec.LastMessageAt = conv.UpdatedAt
	}
	return rec
}

func ConversationRecordToDomain(r *ConversationRecord) *domain.Conversation {
	if r == nil {
		return nil
	}
	return &domain.Conversation{
		ID:        r.ID,
		IsGroup:   r.IsGroup,
		Name:      r.Name,
		UpdatedAt: r.LastMessageAt,
	}
}
