package store

import (
	"sync"
	"time"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

// DefaultTypingTTL is how long a typing indicator lives without a refresh.
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	UserID         int64
	ConversationID int64
}

type typingEntry struct {
	state domain.TypingState
	timer *time.Timer
	gen   uint64
}

// TypingTracker holds short-lived "user X is typing in conversation Y"
// state. Entries expire on a local timer, so the view self-heals when a
// stopped-typing event is lost. At most one live entry per
// (user, conversation) pair.
type TypingTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	entries  map[typingKey]*typingEntry
	gen      uint64
	onChange func(conversationID int64)
}

func NewTypingTracker(ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		ttl:     ttl,
		entries: make(map[typingKey]*typingEntry),
	}
}

// SetOnChange registers a callback invoked after every insertion, removal,
// or expiry, with the affected conversation id. Called outside the lock.
func (t *TypingTracker) SetOnChange(fn func(conversationID int64)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Start inserts or refreshes the entry for the pair, restarting its expiry
// timer. Each restart bumps the entry's generation; a timer that already
// fired before the refresh finds its generation stale and leaves the entry
// alone.
func (t *TypingTracker) Start(userID, conversationID int64, username string) {
	key := typingKey{UserID: userID, ConversationID: conversationID}

	t.mu.Lock()
	t.gen++
	gen := t.gen
	if e, ok := t.entries[key]; ok {
		e.state.Username = username
		e.timer.Stop()
		e.gen = gen
		e.timer = time.AfterFunc(t.ttl, func() { t.expire(key, gen) })
		t.mu.Unlock()
		t.notify(conversationID)
		return
	}
	t.entries[key] = &typingEntry{
		state: domain.TypingState{
			UserID:         userID,
			Username:       username,
			ConversationID: conversationID,
		},
		gen:   gen,
		timer: time.AfterFunc(t.ttl, func() { t.expire(key, gen) }),
	}
	t.mu.Unlock()
	t.notify(conversationID)
}

// Stop removes the entry immediately and cancels its timer.
func (t *TypingTracker) Stop(userID, conversationID int64) {
	key := typingKey{UserID: userID, ConversationID: conversationID}

	t.mu.Lock()
	e, ok := t.entries[key]
	if ok {
		e.timer.Stop()
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if ok {
		t.notify(conversationID)
	}
}

// ListTypingIn returns the live entries for a conversation, excluding the
// given user so the local user's own typing state is not echoed back.
func (t *TypingTracker) ListTypingIn(conversationID, excludingUserID int64) []domain.TypingState {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []domain.TypingState
	for key, e := range t.entries {
		if key.ConversationID == conversationID && key.UserID != excludingUserID {
			out = append(out, e.state)
		}
	}
	return out
}

// Clear cancels every pending timer and wipes the tracker. Used on session
// teardown; no change notifications fire.
func (t *TypingTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, key)
	}
}

func (t *TypingTracker) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if ok && e.gen == gen {
		delete(t.entries, key)
	} else {
		ok = false
	}
	t.mu.Unlock()

	if ok {
		t.notify(key.ConversationID)
	}
}

func (t *TypingTracker) notify(conversationID int64) {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(conversationID)
	}
}
