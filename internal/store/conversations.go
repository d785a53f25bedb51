// Package store holds the in-memory projections the bridge keeps in sync
// with the messaging server: conversations and their message lists,
// the notification feed, and transient typing state.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

// ConversationStore projects conversations ordered by recency and owns the
// per-conversation message lists. Messages are appended in arrival order and
// never reordered.
type ConversationStore struct {
	mu            sync.RWMutex
	currentUserID int64
	byID          map[int64]*domain.Conversation
	order         []int64
	messages      map[int64][]*domain.Message
	loaded        map[int64]bool
}

func NewConversationStore(currentUserID int64) *ConversationStore {
	return &ConversationStore{
		currentUserID: currentUserID,
		byID:          make(map[int64]*domain.Conversation),
		messages:      make(map[int64][]*domain.Message),
		loaded:        make(map[int64]bool),
	}
}

// List returns conversations ordered by UpdatedAt descending. Equal
// timestamps preserve relative insertion order.
func (s *ConversationStore) List() []*domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *ConversationStore) Get(id int64) (*domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Upsert adds a conversation, or returns the existing entry when one with
// the same id is already present. The keep-existing rule resolves the race
// between a local create and the same conversation arriving over transport;
// the server-assigned id is ground truth either way.
func (s *ConversationStore) Upsert(conv *domain.Conversation) *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[conv.ID]; ok {
		return existing
	}
	s.byID[conv.ID] = conv
	s.order = append([]int64{conv.ID}, s.order...)
	s.sortLocked()
	return conv
}

// ApplyIncomingMessage appends the message to its conversation, updates the
// preview and recency, and bumps the unread counter when the sender is
// someone else. A placeholder conversation is created if the message
// addresses one not yet in the store.
func (s *ConversationStore) ApplyIncomingMessage(msg *domain.Message) *domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[msg.ConversationID]
	if !ok {
		conv = &domain.Conversation{ID: msg.ConversationID}
		s.byID[conv.ID] = conv
		s.order = append([]int64{conv.ID}, s.order...)
	}

	s.messages[conv.ID] = append(s.messages[conv.ID], msg)
	conv.LastMessage = msg
	if msg.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = msg.CreatedAt
	}
	if msg.SenderID != s.currentUserID {
		conv.UnreadCount++
	}
	s.sortLocked()
	return conv
}

// ApplyReadReceipt attaches receipts for the given message ids and, when the
// reader is the current user, decrements the conversation's unread counter
// by the batch size, floored at zero.
func (s *ConversationStore) ApplyReadReceipt(conversationID, readerID int64, messageIDs []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[int64]bool, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = true
	}

	now := time.Now()
	for _, msg := range s.messages[conversationID] {
		if ids[msg.ID] {
			msg.ReadReceipts = append(msg.ReadReceipts, domain.ReadReceipt{UserID: readerID, ReadAt: now})
		}
	}

	if readerID == s.currentUserID {
		if conv, ok := s.byID[conversationID]; ok {
			conv.UnreadCount -= len(messageIDs)
			if conv.UnreadCount < 0 {
				conv.UnreadCount = 0
			}
		}
	}
}

// SetMessages replaces a conversation's message list with a fetched page and
// marks the conversation loaded.
func (s *ConversationStore) SetMessages(conversationID int64, msgs []*domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = msgs
	s.loaded[conversationID] = true
}

func (s *ConversationStore) Messages(conversationID int64) []*domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]*domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (s *ConversationStore) HasLoadedMessages(conversationID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded[conversationID]
}

// TotalUnread sums unread counters across all conversations.
func (s *ConversationStore) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.byID {
		total += c.UnreadCount
	}
	return total
}

func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[int64]*domain.Conversation)
	s.order = nil
	s.messages = make(map[int64][]*domain.Message)
	s.loaded = make(map[int64]bool)
}

func (s *ConversationStore) sortLocked() {
	sort.SliceStable(s.order, func(i, j int) bool {
		return s.byID[s.order[i]].UpdatedAt.After(s.byID[s.order[j]].UpdatedAt)
	})
}
