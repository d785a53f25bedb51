// Package archive is a write-behind local log of messages and conversations
// as they arrive, backing the CLI history/search tools. It is never read
// back into the live stores: the in-memory projections are rebuilt from the
// server on every session.
package archive

import (
	"context"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

type MessageArchive interface {
	Save(ctx context.Context, msg *domain.Message) error
	ByConversation(ctx context.Context, conversationID int64, limit, offset int) ([]*domain.Message, error)
	Search(ctx context.Context, query string, limit int) ([]*domain.Message, error)
}

type ConversationArchive interface {
	Upsert(ctx context.Context, conv *domain.Conversation) error
	All(ctx context.Context, limit, offset int) ([]*domain.Conversation, error)
}
