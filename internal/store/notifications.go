package store

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
	"github.com/njahi98/textile-chat-bridge/internal/notify"
)

// NotificationStore projects the user's notification feed. The feed is
// keyed by notification id internally, so inbound duplicates update in
// place instead of appending; the unread counter is maintained
// incrementally and only moves when an entry's read state genuinely
// changes.
type NotificationStore struct {
	mu      sync.Mutex
	byID    map[int64]*domain.Notification
	order   []int64
	unread  int
	alerter notify.Alerter
	log     zerolog.Logger
}

func NewNotificationStore(alerter notify.Alerter, log zerolog.Logger) *NotificationStore {
	if alerter == nil {
		alerter = notify.Noop()
	}
	return &NotificationStore{
		byID:    make(map[int64]*domain.Notification),
		alerter: alerter,
		log:     log,
	}
}

// SetInitial replaces the feed with a fetched page, trusting the
// server-reported unread count.
func (s *NotificationStore) SetInitial(list []*domain.Notification, unreadCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[int64]*domain.Notification, len(list))
	s.order = s.order[:0]
	for _, n := range list {
		if _, ok := s.byID[n.ID]; ok {
			continue
		}
		s.byID[n.ID] = n
		s.order = append(s.order, n.ID)
	}
	s.unread = unreadCount
}

// Apply upserts an inbound notification. An existing entry is replaced in
// place, preserving its position; a new entry is prepended. Fresh
// NEW_MESSAGE notifications also raise a desktop alert, best-effort.
func (s *NotificationStore) Apply(n *domain.Notification) {
	s.mu.Lock()

	if existing, ok := s.byID[n.ID]; ok {
		if existing.IsRead && !n.IsRead {
			s.unread++
		} else if !existing.IsRead && n.IsRead {
			s.unread--
		}
		s.byID[n.ID] = n
		s.mu.Unlock()
		return
	}

	s.byID[n.ID] = n
	s.order = append([]int64{n.ID}, s.order...)
	if !n.IsRead {
		s.unread++
	}
	s.mu.Unlock()

	if n.Type == domain.NotificationNewMessage && !n.IsRead {
		if err := s.alerter.Alert(n.Title, n.Content); err != nil {
			s.log.Debug().Err(err).Msg("desktop alert failed")
		}
	}
}

// MarkRead marks the given entries read, decrementing the counter only for
// entries that were actually unread. Idempotent against double-marking.
func (s *NotificationStore) MarkRead(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if n, ok := s.byID[id]; ok && !n.IsRead {
			n.IsRead = true
			s.unread--
		}
	}
	if s.unread < 0 {
		s.unread = 0
	}
}

// MarkAllRead marks every entry read and zeroes the counter unconditionally.
func (s *NotificationStore) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.byID {
		n.IsRead = true
	}
	s.unread = 0
}

// List returns the feed in display order, newest first.
func (s *NotificationStore) List() []*domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Notification, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *NotificationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[int64]*domain.Notification)
	s.order = nil
	s.unread = 0
}
