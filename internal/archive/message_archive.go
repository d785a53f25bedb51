package archive

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

type gormMessageArchive struct {
	db *gorm.DB
}

func NewMessageArchive(db *gorm.DB) MessageArchive {
	return &gormMessageArchive{db: db}
}

// Save archives a message, ignoring duplicates so a server replay of the
// same message id stays an at-most-once record.
func (a *gormMessageArchive) Save(ctx context.Context, msg *domain.Message) error {
	record := MessageDomainToRecord(msg)
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record).Error
}

func (a *gormMessageArchive) ByConversation(ctx context.Context, conversationID int64, limit, offset int) ([]*domain.Message, error) {
	var records []MessageRecord
	err := a.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	messages := make([]*domain.Message, len(records))
	for i := range records {
		messages[i] = MessageRecordToDomain(&records[i])
	}
	return messages, nil
}

func (a *gormMessageArchive) Search(ctx context.Context, query string, limit int) ([]*domain.Message, error) {
	// Escape LIKE special characters to prevent SQL injection
	escapedQuery := strings.ReplaceAll(query, "%", "\\%")
	escapedQuery = strings.ReplaceAll(escapedQuery, "_", "\\_")
	likePattern := "%" + escapedQuery + "%"

	var records []MessageRecord
	err := a.db.WithContext(ctx).
		Where("content LIKE ? ESCAPE '\\'", likePattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	messages := make([]*domain.Message, len(records))
	for i := range records {
		messages[i] = MessageRecordToDomain(&records[i])
	}
	return messages, nil
}
