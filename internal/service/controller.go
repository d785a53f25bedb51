// Package service wires inbound transport events into the stores and
// exposes the command surface of the messaging layer.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/njahi98/textile-chat-bridge/internal/api"
	"github.com/njahi98/textile-chat-bridge/internal/archive"
	"github.com/njahi98/textile-chat-bridge/internal/domain"
	"github.com/njahi98/textile-chat-bridge/internal/notify"
	"github.com/njahi98/textile-chat-bridge/internal/store"
	"github.com/njahi98/textile-chat-bridge/internal/transport/ws"
)

const (
	defaultPageSize = 20
	messagePageSize = 50
	callTimeout     = 15 * time.Second
)

// State is the connectivity state of the synchronized session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Transport is the duplex session the controller drives. *ws.Session
// satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	RemoveAllListeners()
	JoinConversations(ids []int64)
	SendMessage(conversationID int64, content string, messageType domain.MessageType)
	MarkMessagesRead(conversationID int64, messageIDs []int64)
	StartTyping(conversationID int64)
	StopTyping(conversationID int64)
	OnConnect(fn func())
	OnDisconnect(fn func())
	OnConnectError(fn func(reason string))
	OnNewMessage(fn func(*domain.Message))
	OnMessagesRead(fn func(ws.MessagesReadPayload))
	OnUserTyping(fn func(ws.UserTypingPayload))
	OnUserStoppedTyping(fn func(ws.UserStoppedTypingPayload))
	OnNewNotification(fn func(*domain.Notification))
	OnMessageError(fn func(errMsg string))
}

// API is the authenticated HTTP collaborator. *api.Client satisfies it.
type API interface {
	ListConversations(ctx context.Context, page, limit int) ([]*domain.Conversation, error)
	CreateConversation(ctx context.Context, participantIDs []int64, name string, isGroup bool) (*domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID int64, page, limit int) ([]*domain.Message, error)
	SearchUsers(ctx context.Context, query string) ([]domain.User, error)
	ListNotifications(ctx context.Context, page, limit int) (*api.NotificationPage, error)
	MarkNotificationsRead(ctx context.Context, ids []int64, markAll bool) error
}

// Controller keeps the local view of conversations, messages, typing state
// and notifications consistent with the server while commands race inbound
// events. Sends and mark-reads are applied only on the server echo; there
// is no optimistic local state to roll back.
type Controller struct {
	log         zerolog.Logger
	transport   Transport
	api         API
	bus         domain.EventBus
	currentUser domain.User

	convs  *store.ConversationStore
	notifs *store.NotificationStore
	typing *store.TypingTracker

	msgArchive  archive.MessageArchive
	convArchive archive.ConversationArchive

	mu               sync.Mutex
	state            State
	epoch            uint64
	loading          bool
	loadFailed       bool
	lastConnectError string
}

func NewController(
	user domain.User,
	transport Transport,
	apiClient API,
	bus domain.EventBus,
	alerter notify.Alerter,
	msgArchive archive.MessageArchive,
	convArchive archive.ConversationArchive,
	log zerolog.Logger,
) *Controller {
	c := &Controller{
		log:         log,
		transport:   transport,
		api:         apiClient,
		bus:         bus,
		currentUser: user,
		convs:       store.NewConversationStore(user.ID),
		notifs:      store.NewNotificationStore(alerter, log),
		typing:      store.NewTypingTracker(store.DefaultTypingTTL),
		msgArchive:  msgArchive,
		convArchive: convArchive,
	}

	c.typing.SetOnChange(func(conversationID int64) {
		c.bus.Publish(domain.TypingChangedEvent{
			ConversationID: conversationID,
			EventTime:      time.Now(),
		})
	})

	return c
}

// Start registers this session's listeners and connects. Idempotent while a
// session is connecting or connected. Listener registration replaces any
// stale set from a previous session before the new connection exists.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.lastConnectError = ""
	c.loadFailed = false
	c.mu.Unlock()

	c.transport.RemoveAllListeners()
	c.transport.OnConnect(c.handleConnected)
	c.transport.OnDisconnect(c.handleDisconnected)
	c.transport.OnConnectError(c.handleConnectError)
	c.transport.OnNewMessage(c.handleNewMessage)
	c.transport.OnMessagesRead(c.handleMessagesRead)
	c.transport.OnUserTyping(c.handleUserTyping)
	c.transport.OnUserStoppedTyping(c.handleUserStoppedTyping)
	c.transport.OnNewNotification(c.handleNewNotification)
	c.transport.OnMessageError(c.handleMessageError)

	if err := c.transport.Connect(ctx); err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Stop tears the session down: listeners detach before the disconnect so a
// stale session cannot double-apply events, stores are cleared, and pending
// typing timers are cancelled. In-flight HTTP completions from the old
// session observe the epoch bump and become no-ops.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.epoch++
	c.state = StateDisconnected
	c.mu.Unlock()

	c.transport.RemoveAllListeners()
	c.transport.Disconnect()

	c.convs.Clear()
	c.notifs.Clear()
	c.typing.Clear()

	c.bus.Publish(domain.ConnectionStatusEvent{
		Connected: false,
		Reason:    "session closed",
		EventTime: time.Now(),
	})
}

// --- inbound event application ---

func (c *Controller) handleConnected() {
	c.mu.Lock()
	c.state = StateConnected
	epoch := c.epoch
	c.mu.Unlock()

	c.bus.Publish(domain.ConnectionStatusEvent{Connected: true, EventTime: time.Now()})
	go c.initialLoad(epoch)
}

func (c *Controller) handleDisconnected() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()

	c.bus.Publish(domain.ConnectionStatusEvent{
		Connected: false,
		Reason:    "disconnected",
		EventTime: time.Now(),
	})
}

func (c *Controller) handleConnectError(reason string) {
	c.mu.Lock()
	c.state = StateDisconnected
	c.lastConnectError = reason
	c.mu.Unlock()

	c.log.Warn().Str("reason", reason).Msg("connection failed")
	c.bus.Publish(domain.ConnectionStatusEvent{
		Connected: false,
		Reason:    reason,
		EventTime: time.Now(),
	})
}

// initialLoad fetches the first page of conversations and notifications,
// then joins transport rooms for every loaded conversation.
func (c *Controller) initialLoad(epoch uint64) {
	c.setLoading(true)
	defer c.setLoading(false)

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var joinIDs []int64
	convs, err := c.api.ListConversations(ctx, 1, defaultPageSize)
	if err != nil {
		c.log.Error().Err(err).Msg("initial conversation load failed")
		c.setLoadFailed()
	} else if c.alive(epoch) {
		for _, conv := range convs {
			c.convs.Upsert(conv)
			joinIDs = append(joinIDs, conv.ID)
			c.archiveConversation(conv)
		}
	}

	page, err := c.api.ListNotifications(ctx, 1, defaultPageSize)
	if err != nil {
		c.log.Error().Err(err).Msg("initial notification load failed")
		c.setLoadFailed()
	} else if c.alive(epoch) {
		c.notifs.SetInitial(page.Notifications, page.UnreadCount)
	}

	if len(joinIDs) > 0 && c.alive(epoch) {
		c.transport.JoinConversations(joinIDs)
	}
}

func (c *Controller) handleNewMessage(msg *domain.Message) {
	conv := c.convs.ApplyIncomingMessage(msg)
	c.archiveMessage(msg)
	c.archiveConversation(conv)

	now := time.Now()
	c.bus.Publish(domain.MessageReceivedEvent{Message: msg, EventTime: now})
	c.bus.Publish(domain.ConversationUpdatedEvent{Conversation: conv, EventTime: now})
}

func (c *Controller) handleMessagesRead(p ws.MessagesReadPayload) {
	c.convs.ApplyReadReceipt(p.ConversationID, p.UserID, p.MessageIDs)
	c.bus.Publish(domain.ReadReceiptsAppliedEvent{
		ConversationID: p.ConversationID,
		ReaderID:       p.UserID,
		MessageIDs:     p.MessageIDs,
		EventTime:      time.Now(),
	})
}

func (c *Controller) handleUserTyping(p ws.UserTypingPayload) {
	c.typing.Start(p.UserID, p.ConversationID, p.Username)
}

func (c *Controller) handleUserStoppedTyping(p ws.UserStoppedTypingPayload) {
	c.typing.Stop(p.UserID, p.ConversationID)
}

func (c *Controller) handleNewNotification(n *domain.Notification) {
	c.notifs.Apply(n)
	c.bus.Publish(domain.NotificationReceivedEvent{Notification: n, EventTime: time.Now()})
}

// handleMessageError logs a server-rejected command. Nothing rolls back:
// no optimistic state was applied, so the worst case is a message that
// never appears.
func (c *Controller) handleMessageError(errMsg string) {
	c.log.Warn().Str("error", errMsg).Msg("server rejected command")
}

// --- commands ---

// SendMessage emits a send over the transport. The message reaches the
// conversation store only when the server echoes it back as a new_message
// event. No-op when the content is blank or the session is not connected.
func (c *Controller) SendMessage(conversationID int64, content string, messageType domain.MessageType) {
	if strings.TrimSpace(content) == "" {
		return
	}
	if c.State() != StateConnected {
		return
	}
	if messageType == "" {
		messageType = domain.MessageTypeText
	}
	c.log.Debug().Int64("conversation", conversationID).Msg("sending message")
	c.transport.SendMessage(conversationID, content, messageType)
}

// CreateConversation creates a conversation over HTTP and merges the result
// into the store. When a concurrent transport push already added the same
// conversation, the existing entry wins: the server-assigned id is ground
// truth.
func (c *Controller) CreateConversation(ctx context.Context, participantIDs []int64, name string, isGroup bool) (*domain.Conversation, error) {
	epoch := c.currentEpoch()

	conv, err := c.api.CreateConversation(ctx, participantIDs, name, isGroup)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if !c.alive(epoch) {
		return conv, nil
	}

	merged := c.convs.Upsert(conv)
	c.archiveConversation(merged)
	c.transport.JoinConversations([]int64{merged.ID})
	c.bus.Publish(domain.ConversationUpdatedEvent{Conversation: merged, EventTime: time.Now()})
	return merged, nil
}

// MarkMessagesAsRead emits the mark-read command. Local counters update
// only when the server echoes the read receipt event back, keeping a single
// source of truth for what has been read.
func (c *Controller) MarkMessagesAsRead(conversationID int64, messageIDs []int64) {
	if len(messageIDs) == 0 {
		return
	}
	if c.State() != StateConnected {
		return
	}
	c.transport.MarkMessagesRead(conversationID, messageIDs)
}

// MarkNotificationsAsRead marks notifications read over HTTP, then mutates
// the local feed on success.
func (c *Controller) MarkNotificationsAsRead(ctx context.Context, ids []int64, markAll bool) error {
	epoch := c.currentEpoch()

	if err := c.api.MarkNotificationsRead(ctx, ids, markAll); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	if !c.alive(epoch) {
		return nil
	}

	if markAll {
		c.notifs.MarkAllRead()
	} else {
		c.notifs.MarkRead(ids)
	}
	return nil
}

// SelectConversation lazily loads the first page of messages if not cached,
// then issues one batched mark-read for the visible messages sent by others
// that the current user has not read yet.
func (c *Controller) SelectConversation(ctx context.Context, conversationID int64) ([]*domain.Message, error) {
	epoch := c.currentEpoch()

	if !c.convs.HasLoadedMessages(conversationID) {
		msgs, err := c.api.ListMessages(ctx, conversationID, 1, messagePageSize)
		if err != nil {
			return nil, fmt.Errorf("load messages: %w", err)
		}
		if !c.alive(epoch) {
			return msgs, nil
		}
		c.convs.SetMessages(conversationID, msgs)
	}

	msgs := c.convs.Messages(conversationID)

	var unreadIDs []int64
	for _, msg := range msgs {
		if msg.SenderID != c.currentUser.ID && !msg.ReadBy(c.currentUser.ID) {
			unreadIDs = append(unreadIDs, msg.ID)
		}
	}
	if len(unreadIDs) > 0 {
		c.MarkMessagesAsRead(conversationID, unreadIDs)
	}

	return msgs, nil
}

// SearchUsers is best-effort: any failure degrades to an empty result.
func (c *Controller) SearchUsers(ctx context.Context, query string) []domain.User {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	users, err := c.api.SearchUsers(ctx, query)
	if err != nil {
		c.log.Warn().Err(err).Msg("user search failed")
		return nil
	}
	return users
}

func (c *Controller) StartTyping(conversationID int64) {
	if c.State() != StateConnected {
		return
	}
	c.transport.StartTyping(conversationID)
}

func (c *Controller) StopTyping(conversationID int64) {
	if c.State() != StateConnected {
		return
	}
	c.transport.StopTyping(conversationID)
}

// --- view state ---

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsConnected() bool {
	return c.State() == StateConnected && c.transport.IsConnected()
}

func (c *Controller) CurrentUser() domain.User {
	return c.currentUser
}

func (c *Controller) Conversations() []*domain.Conversation {
	return c.convs.List()
}

func (c *Controller) Conversation(id int64) (*domain.Conversation, bool) {
	return c.convs.Get(id)
}

func (c *Controller) Messages(conversationID int64) []*domain.Message {
	return c.convs.Messages(conversationID)
}

func (c *Controller) Notifications() []*domain.Notification {
	return c.notifs.List()
}

func (c *Controller) NotificationUnreadCount() int {
	return c.notifs.UnreadCount()
}

func (c *Controller) TotalUnreadMessages() int {
	return c.convs.TotalUnread()
}

// TypingIn lists who is typing in a conversation, excluding the current
// user so local typing state is never echoed back into the view.
func (c *Controller) TypingIn(conversationID int64) []domain.TypingState {
	return c.typing.ListTypingIn(conversationID, c.currentUser.ID)
}

func (c *Controller) ConversationDisplayName(conv *domain.Conversation) string {
	return conv.DisplayName(c.currentUser.ID)
}

func (c *Controller) Bus() domain.EventBus {
	return c.bus
}

// Status is a point-in-time summary for the CLI and MCP surfaces.
type Status struct {
	State               string `json:"state"`
	Connected           bool   `json:"connected"`
	Loading             bool   `json:"loading"`
	LoadFailed          bool   `json:"load_failed"`
	LastConnectError    string `json:"last_connect_error,omitempty"`
	Conversations       int    `json:"conversations"`
	UnreadMessages      int    `json:"unread_messages"`
	UnreadNotifications int    `json:"unread_notifications"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	state := c.state
	loading := c.loading
	loadFailed := c.loadFailed
	lastErr := c.lastConnectError
	c.mu.Unlock()

	return Status{
		State:               state.String(),
		Connected:           state == StateConnected,
		Loading:             loading,
		LoadFailed:          loadFailed,
		LastConnectError:    lastErr,
		Conversations:       c.convs.Len(),
		UnreadMessages:      c.convs.TotalUnread(),
		UnreadNotifications: c.notifs.UnreadCount(),
	}
}

// --- archive access ---

var errArchiveDisabled = fmt.Errorf("archive is disabled")

// History reads a conversation's archived messages, newest first.
func (c *Controller) History(ctx context.Context, conversationID int64, limit int) ([]*domain.Message, error) {
	if c.msgArchive == nil {
		return nil, errArchiveDisabled
	}
	return c.msgArchive.ByConversation(ctx, conversationID, limit, 0)
}

// SearchArchive searches archived message content.
func (c *Controller) SearchArchive(ctx context.Context, query string, limit int) ([]*domain.Message, error) {
	if c.msgArchive == nil {
		return nil, errArchiveDisabled
	}
	return c.msgArchive.Search(ctx, query, limit)
}

// --- internals ---

func (c *Controller) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// alive reports whether the session that observed the given epoch is still
// the active one. Async completions check it before mutating stores so a
// stale in-flight request resolving after teardown becomes a no-op.
func (c *Controller) alive(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

func (c *Controller) setLoadFailed() {
	c.mu.Lock()
	c.loadFailed = true
	c.mu.Unlock()
}

func (c *Controller) archiveMessage(msg *domain.Message) {
	if c.msgArchive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := c.msgArchive.Save(ctx, msg); err != nil {
		c.log.Warn().Err(err).Int64("message", msg.ID).Msg("failed to archive message")
	}
}

func (c *Controller) archiveConversation(conv *domain.Conversation) {
	if c.convArchive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := c.convArchive.Upsert(ctx, conv); err != nil {
		c.log.Warn().Err(err).Int64("conversation", conv.ID).Msg("failed to archive conversation")
	}
}
