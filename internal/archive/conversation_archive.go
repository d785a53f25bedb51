package archive

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

type gormConversationArchive struct {
	db *gorm.DB
}

func NewConversationArchive(db *gorm.DB) ConversationArchive {
	return &gormConversationArchive{db: db}
}

func (a *gormConversationArchive) Upsert(ctx context.Context, conv *domain.Conversation) error {
	record := ConversationDomainToRecord(conv)
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(record).Error
}

func (a *gormConversationArchive) All(ctx context.Context, limit, offset int) ([]*domain.Conversation, error) {
	var records []ConversationRecord
	query := a.db.WithContext(ctx).Order("last_message_at DESC")

	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	conversations := make([]*domain.Conversation, len(records))
	for i := range records {
		conversations[i] = ConversationRecordToDomain(&records[i])
	}
	return conversations, nil
}
