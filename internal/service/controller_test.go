package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njahi98/textile-chat-bridge/internal/api"
	"github.com/njahi98/textile-chat-bridge/internal/domain"
	"github.com/njahi98/textile-chat-bridge/internal/transport/ws"
)

// fakeTransport records registered handlers and emitted commands so tests
// can drive the controller as if server events arrived.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool

	onConnect           func()
	onDisconnect        func()
	onConnectError      func(string)
	onNewMessage        func(*domain.Message)
	onMessagesRead      func(ws.MessagesReadPayload)
	onUserTyping        func(ws.UserTypingPayload)
	onUserStoppedTyping func(ws.UserStoppedTypingPayload)
	onNewNotification   func(*domain.Notification)
	onMessageError      func(string)

	joined    [][]int64
	sent      []sentMessage
	markReads []markRead
	typing    []int64
	stopped   []int64
}

type sentMessage struct {
	ConversationID int64
	Content        string
	Type           domain.MessageType
}

type markRead struct {
	ConversationID int64
	MessageIDs     []int64
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connected = true
	fn := f.onConnect
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) RemoveAllListeners() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = nil
	f.onDisconnect = nil
	f.onConnectError = nil
	f.onNewMessage = nil
	f.onMessagesRead = nil
	f.onUserTyping = nil
	f.onUserStoppedTyping = nil
	f.onNewNotification = nil
	f.onMessageError = nil
}

func (f *fakeTransport) JoinConversations(ids []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, ids)
}

func (f *fakeTransport) SendMessage(conversationID int64, content string, messageType domain.MessageType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{conversationID, content, messageType})
}

func (f *fakeTransport) MarkMessagesRead(conversationID int64, messageIDs []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, markRead{conversationID, messageIDs})
}

func (f *fakeTransport) StartTyping(conversationID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, conversationID)
}

func (f *fakeTransport) StopTyping(conversationID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, conversationID)
}

func (f *fakeTransport) OnConnect(fn func())    { f.mu.Lock(); f.onConnect = fn; f.mu.Unlock() }
func (f *fakeTransport) OnDisconnect(fn func()) { f.mu.Lock(); f.onDisconnect = fn; f.mu.Unlock() }
func (f *fakeTransport) OnConnectError(fn func(string)) {
	f.mu.Lock()
	f.onConnectError = fn
	f.mu.Unlock()
}
func (f *fakeTransport) OnNewMessage(fn func(*domain.Message)) {
	f.mu.Lock()
	f.onNewMessage = fn
	f.mu.Unlock()
}
func (f *fakeTransport) OnMessagesRead(fn func(ws.MessagesReadPayload)) {
	f.mu.Lock()
	f.onMessagesRead = fn
	f.mu.Unlock()
}
func (f *fakeTransport) OnUserTyping(fn func(ws.UserTypingPayload)) {
	f.mu.Lock()
	f.onUserTyping = fn
	f.mu.Unlock()
}
func (f *fakeTransport) OnUserStoppedTyping(fn func(ws.UserStoppedTypingPayload)) {
	f.mu.Lock()
	f.onUserStoppedTyping = fn
	f.mu.Unlock()
}
func (f *fakeTransport) OnNewNotification(fn func(*domain.Notification)) {
	f.mu.Lock()
	f.onNewNotification = fn
	f.mu.Unlock()
}
func (f *fakeTransport) OnMessageError(fn func(string)) {
	f.mu.Lock()
	f.onMessageError = fn
	f.mu.Unlock()
}

func (f *fakeTransport) fireNewMessage(msg *domain.Message) {
	f.mu.Lock()
	fn := f.onNewMessage
	f.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (f *fakeTransport) fireMessagesRead(p ws.MessagesReadPayload) {
	f.mu.Lock()
	fn := f.onMessagesRead
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (f *fakeTransport) fireUserTyping(p ws.UserTypingPayload) {
	f.mu.Lock()
	fn := f.onUserTyping
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (f *fakeTransport) fireNewNotification(n *domain.Notification) {
	f.mu.Lock()
	fn := f.onNewNotification
	f.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) markReadCalls() []markRead {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]markRead, len(f.markReads))
	copy(out, f.markReads)
	return out
}

func (f *fakeTransport) joinedRooms() [][]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]int64, len(f.joined))
	copy(out, f.joined)
	return out
}

// fakeAPI serves canned pages.
type fakeAPI struct {
	mu            sync.Mutex
	conversations []*domain.Conversation
	messages      map[int64][]*domain.Message
	notifications *api.NotificationPage
	users         []domain.User
	created       *domain.Conversation
	createBlock   chan struct{}
	createEntered chan struct{}
	notifCalls    int

	listConversationsErr error
	markReadErr          error
}

func (f *fakeAPI) ListConversations(ctx context.Context, page, limit int) ([]*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listConversationsErr != nil {
		return nil, f.listConversationsErr
	}
	return f.conversations, nil
}

func (f *fakeAPI) CreateConversation(ctx context.Context, participantIDs []int64, name string, isGroup bool) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.created == nil {
		return nil, errors.New("no canned conversation")
	}
	if f.createEntered != nil {
		close(f.createEntered)
		f.createEntered = nil
	}
	if f.createBlock != nil {
		block := f.createBlock
		f.mu.Unlock()
		<-block
		f.mu.Lock()
	}
	return f.created, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID int64, page, limit int) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[conversationID], nil
}

func (f *fakeAPI) SearchUsers(ctx context.Context, query string) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users, nil
}

func (f *fakeAPI) ListNotifications(ctx context.Context, page, limit int) (*api.NotificationPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifCalls++
	if f.notifications == nil {
		return &api.NotificationPage{}, nil
	}
	return f.notifications, nil
}

func (f *fakeAPI) notificationsFetched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notifCalls > 0
}

func (f *fakeAPI) MarkNotificationsRead(ctx context.Context, ids []int64, markAll bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markReadErr
}

var testUser = domain.User{ID: 7, Username: "admin", FirstName: "Nidhal"}

func newTestController(t *testing.T) (*Controller, *fakeTransport, *fakeAPI) {
	transport := &fakeTransport{}
	apiClient := &fakeAPI{messages: make(map[int64][]*domain.Message)}
	ctrl := NewController(testUser, transport, apiClient, domain.NewEventBus(), nil, nil, nil, zerolog.Nop())
	return ctrl, transport, apiClient
}

// startController connects and waits for the initial load to finish, using
// the notification fetch as the completion signal since it is the last API
// call the load makes.
func startController(t *testing.T, ctrl *Controller, apiClient *fakeAPI, wantConvs int) {
	require.NoError(t, ctrl.Start(context.Background()))
	require.Eventually(t, func() bool {
		return apiClient.notificationsFetched() &&
			!ctrl.Status().Loading &&
			len(ctrl.Conversations()) >= wantConvs
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartLoadsInitialState(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)

	now := time.Now()
	apiClient.conversations = []*domain.Conversation{
		{ID: 1, UpdatedAt: now.Add(-time.Hour)},
		{ID: 2, UpdatedAt: now},
	}
	apiClient.notifications = &api.NotificationPage{
		Notifications: []*domain.Notification{{ID: 1, Type: domain.NotificationSystem}},
		UnreadCount:   3,
	}

	startController(t, ctrl, apiClient, 2)

	assert.Equal(t, StateConnected, ctrl.State())
	assert.True(t, ctrl.IsConnected())

	convs := ctrl.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, int64(2), convs[0].ID)

	assert.Equal(t, 3, ctrl.NotificationUnreadCount())

	require.Eventually(t, func() bool {
		return len(transport.joinedRooms()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []int64{1, 2}, transport.joinedRooms()[0])
}

func TestStartIsIdempotentWhileConnected(t *testing.T) {
	ctrl, _, apiClient := newTestController(t)
	startController(t, ctrl, apiClient, 0)

	require.NoError(t, ctrl.Start(context.Background()))
	assert.Equal(t, StateConnected, ctrl.State())
}

func TestInitialLoadFailureSetsFlag(t *testing.T) {
	ctrl, _, apiClient := newTestController(t)
	apiClient.listConversationsErr = errors.New("boom")

	require.NoError(t, ctrl.Start(context.Background()))

	require.Eventually(t, func() bool {
		return ctrl.Status().LoadFailed
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, ctrl.Conversations())
}

func TestNewMessageEchoUpdatesStoreAndOrder(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)

	now := time.Now()
	apiClient.conversations = []*domain.Conversation{
		{ID: 1, UpdatedAt: now.Add(-time.Hour)},
		{ID: 2, UpdatedAt: now},
	}
	startController(t, ctrl, apiClient, 2)

	events := ctrl.Bus().Subscribe([]domain.EventType{domain.EventTypeMessageReceived})
	defer ctrl.Bus().Unsubscribe(events)

	// sender 9 is someone else, so the conversation gains an unread
	transport.fireNewMessage(domain.NewTextMessage(100, 1, 9, "loom 4 is down", now.Add(time.Minute)))

	conv, ok := ctrl.Conversation(1)
	require.True(t, ok)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, "loom 4 is down", conv.LastMessage.Content)

	assert.Equal(t, int64(1), ctrl.Conversations()[0].ID)
	assert.Equal(t, 1, ctrl.TotalUnreadMessages())

	select {
	case e := <-events:
		received, ok := e.(domain.MessageReceivedEvent)
		require.True(t, ok)
		assert.Equal(t, int64(100), received.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("MessageReceivedEvent never published")
	}
}

func TestOwnEchoDoesNotIncrementUnread(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)
	apiClient.conversations = []*domain.Conversation{{ID: 1, UpdatedAt: time.Now()}}
	startController(t, ctrl, apiClient, 1)

	transport.fireNewMessage(domain.NewTextMessage(100, 1, testUser.ID, "done", time.Now()))

	conv, _ := ctrl.Conversation(1)
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestSendMessageEmitsOnly(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)
	startController(t, ctrl, apiClient, 0)

	ctrl.SendMessage(5, "hello", "")

	sent := transport.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(5), sent[0].ConversationID)
	assert.Equal(t, domain.MessageTypeText, sent[0].Type)

	// nothing lands locally before the echo
	assert.Empty(t, ctrl.Messages(5))
}

func TestSendMessageNoOps(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)

	// disconnected
	ctrl.SendMessage(5, "hello", domain.MessageTypeText)
	assert.Empty(t, transport.sentMessages())

	startController(t, ctrl, apiClient, 0)

	// blank content
	ctrl.SendMessage(5, "   ", domain.MessageTypeText)
	assert.Empty(t, transport.sentMessages())
}

func TestMarkReadEchoDecrementsUnread(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)

	now := time.Now()
	conv := &domain.Conversation{ID: 1, UnreadCount: 2, UpdatedAt: now}
	apiClient.conversations = []*domain.Conversation{conv}
	startController(t, ctrl, apiClient, 1)

	ctrl.MarkMessagesAsRead(1, []int64{10, 11})
	calls := transport.markReadCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []int64{10, 11}, calls[0].MessageIDs)

	// counter moves only on the echo
	got, _ := ctrl.Conversation(1)
	assert.Equal(t, 2, got.UnreadCount)

	transport.fireMessagesRead(ws.MessagesReadPayload{
		UserID:         testUser.ID,
		MessageIDs:     []int64{10, 11},
		ConversationID: 1,
	})

	got, _ = ctrl.Conversation(1)
	assert.Equal(t, 0, got.UnreadCount)
}

func TestSelectConversationLoadsAndMarksUnread(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)

	now := time.Now()
	apiClient.conversations = []*domain.Conversation{{ID: 1, UpdatedAt: now}}
	read := domain.NewTextMessage(10, 1, 9, "seen already", now)
	read.ReadReceipts = []domain.ReadReceipt{{UserID: testUser.ID, ReadAt: now}}
	apiClient.messages[1] = []*domain.Message{
		read,
		domain.NewTextMessage(11, 1, 9, "unseen", now),
		domain.NewTextMessage(12, 1, testUser.ID, "mine", now),
	}
	startController(t, ctrl, apiClient, 1)

	msgs, err := ctrl.SelectConversation(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	// only the unseen foreign message is marked, in one batch
	calls := transport.markReadCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []int64{11}, calls[0].MessageIDs)

	// second select serves the cache and re-marks nothing new
	transport.fireMessagesRead(ws.MessagesReadPayload{
		UserID:         testUser.ID,
		MessageIDs:     []int64{11},
		ConversationID: 1,
	})
	_, err = ctrl.SelectConversation(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, transport.markReadCalls(), 1)
}

func TestCreateConversationMergesAndJoins(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)
	startController(t, ctrl, apiClient, 0)

	apiClient.mu.Lock()
	apiClient.created = &domain.Conversation{ID: 9, IsGroup: true, Name: "Night Shift", UpdatedAt: time.Now()}
	apiClient.mu.Unlock()

	conv, err := ctrl.CreateConversation(context.Background(), []int64{2, 3}, "Night Shift", true)
	require.NoError(t, err)
	assert.Equal(t, int64(9), conv.ID)

	stored, ok := ctrl.Conversation(9)
	require.True(t, ok)
	assert.Same(t, conv, stored)

	rooms := transport.joinedRooms()
	require.NotEmpty(t, rooms)
	assert.Equal(t, []int64{9}, rooms[len(rooms)-1])
}

func TestTypingEventsTrackAndExclude(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)
	startController(t, ctrl, apiClient, 0)

	transport.fireUserTyping(ws.UserTypingPayload{UserID: 9, Username: "amira", ConversationID: 5})
	transport.fireUserTyping(ws.UserTypingPayload{UserID: testUser.ID, Username: "admin", ConversationID: 5})

	states := ctrl.TypingIn(5)
	require.Len(t, states, 1)
	assert.Equal(t, "amira", states[0].Username)
}

func TestNotificationEcho(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)
	startController(t, ctrl, apiClient, 0)

	transport.fireNewNotification(&domain.Notification{ID: 1, Type: domain.NotificationSystem})
	assert.Equal(t, 1, ctrl.NotificationUnreadCount())
	assert.Len(t, ctrl.Notifications(), 1)
}

func TestMarkNotificationsAsRead(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)
	startController(t, ctrl, apiClient, 0)

	transport.fireNewNotification(&domain.Notification{ID: 1})
	transport.fireNewNotification(&domain.Notification{ID: 2})

	require.NoError(t, ctrl.MarkNotificationsAsRead(context.Background(), []int64{1}, false))
	assert.Equal(t, 1, ctrl.NotificationUnreadCount())

	require.NoError(t, ctrl.MarkNotificationsAsRead(context.Background(), nil, true))
	assert.Equal(t, 0, ctrl.NotificationUnreadCount())
}

func TestMarkNotificationsAsReadFailureLeavesState(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)
	startController(t, ctrl, apiClient, 0)

	transport.fireNewNotification(&domain.Notification{ID: 1})
	apiClient.mu.Lock()
	apiClient.markReadErr = errors.New("boom")
	apiClient.mu.Unlock()

	require.Error(t, ctrl.MarkNotificationsAsRead(context.Background(), []int64{1}, false))
	assert.Equal(t, 1, ctrl.NotificationUnreadCount())
}

func TestStopClearsEverything(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)

	now := time.Now()
	apiClient.conversations = []*domain.Conversation{{ID: 1, UnreadCount: 2, UpdatedAt: now}}
	apiClient.notifications = &api.NotificationPage{
		Notifications: []*domain.Notification{{ID: 1}},
		UnreadCount:   1,
	}
	startController(t, ctrl, apiClient, 1)

	transport.fireUserTyping(ws.UserTypingPayload{UserID: 9, Username: "amira", ConversationID: 1})

	ctrl.Stop()

	assert.Equal(t, StateDisconnected, ctrl.State())
	assert.False(t, ctrl.IsConnected())
	assert.Empty(t, ctrl.Conversations())
	assert.Empty(t, ctrl.Notifications())
	assert.Equal(t, 0, ctrl.NotificationUnreadCount())
	assert.Equal(t, 0, ctrl.TotalUnreadMessages())
	assert.Empty(t, ctrl.TypingIn(1))

	// handlers are gone: a late event must not resurrect state
	transport.fireNewMessage(domain.NewTextMessage(100, 1, 9, "late", now))
	assert.Empty(t, ctrl.Conversations())
}

func TestStaleCreateCompletionAfterStopIsDiscarded(t *testing.T) {
	ctrl, transport, apiClient := newTestController(t)
	startController(t, ctrl, apiClient, 0)

	block := make(chan struct{})
	entered := make(chan struct{})
	apiClient.mu.Lock()
	apiClient.created = &domain.Conversation{ID: 9, UpdatedAt: time.Now()}
	apiClient.createBlock = block
	apiClient.createEntered = entered
	apiClient.mu.Unlock()

	done := make(chan *domain.Conversation, 1)
	go func() {
		conv, err := ctrl.CreateConversation(context.Background(), []int64{2}, "", false)
		assert.NoError(t, err)
		done <- conv
	}()

	// teardown lands while the HTTP call is in flight
	<-entered
	ctrl.Stop()
	close(block)

	select {
	case conv := <-done:
		assert.Equal(t, int64(9), conv.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("create never completed")
	}

	// the stale completion must not repopulate the cleared store
	_, ok := ctrl.Conversation(9)
	assert.False(t, ok)
	assert.Empty(t, transport.joinedRooms())
}

func TestStatusSummary(t *testing.T) {
	ctrl, _, apiClient := newTestController(t)

	apiClient.conversations = []*domain.Conversation{{ID: 1, UnreadCount: 2, UpdatedAt: time.Now()}}
	apiClient.notifications = &api.NotificationPage{UnreadCount: 4}
	startController(t, ctrl, apiClient, 1)

	status := ctrl.Status()
	assert.Equal(t, "connected", status.State)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.Conversations)
	assert.Equal(t, 2, status.UnreadMessages)
	assert.Equal(t, 4, status.UnreadNotifications)
}

func TestHistoryWithoutArchive(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	_, err := ctrl.History(context.Background(), 1, 10)
	assert.Error(t, err)
	_, err = ctrl.SearchArchive(context.Background(), "loom", 10)
	assert.Error(t, err)
}
