package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

var upgrader = websocket.Upgrader{}

// testServer is a minimal websocket peer: it records the Authorization
// header, exposes inbound frames on a channel, and lets tests push frames
// to the session.
type testServer struct {
	srv      *httptest.Server
	connCh   chan *websocket.Conn
	frames   chan envelope
	authSeen chan string
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{
		connCh:   make(chan *websocket.Conn, 1),
		frames:   make(chan envelope, 16),
		authSeen: make(chan string, 1),
	}

	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.authSeen <- r.Header.Get("Authorization")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.connCh <- conn

		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ts.frames <- env
		}
	}))
	t.Cleanup(ts.srv.Close)

	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) conn(t *testing.T) *websocket.Conn {
	select {
	case c := <-ts.connCh:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("server connection never arrived")
		return nil
	}
}

func (ts *testServer) push(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(envelope{Event: event, Data: raw}))
}

func (ts *testServer) nextFrame(t *testing.T) envelope {
	select {
	case f := <-ts.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from session")
		return envelope{}
	}
}

func newTestSession(ts *testServer) *Session {
	return NewSession(Config{URL: ts.url(), Token: "tok-abc"}, zerolog.Nop())
}

func TestConnectSendsBearerToken(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(ts)

	connected := make(chan struct{})
	s.OnConnect(func() { close(connected) })

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()

	assert.Equal(t, "Bearer tok-abc", <-ts.authSeen)

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("OnConnect never fired")
	}
	assert.True(t, s.IsConnected())

	// second Connect is a no-op
	require.NoError(t, s.Connect(context.Background()))
}

func TestConnectFailureFiresOnConnectError(t *testing.T) {
	s := NewSession(Config{URL: "ws://127.0.0.1:1/ws", HandshakeTimeout: 200 * time.Millisecond}, zerolog.Nop())

	reasonCh := make(chan string, 1)
	s.OnConnectError(func(reason string) { reasonCh <- reason })

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, s.IsConnected())

	select {
	case reason := <-reasonCh:
		assert.NotEmpty(t, reason)
	case <-time.After(time.Second):
		t.Fatal("OnConnectError never fired")
	}
}

func TestDispatchNewMessage(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(ts)

	msgCh := make(chan *domain.Message, 1)
	s.OnNewMessage(func(m *domain.Message) { msgCh <- m })

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()

	conn := ts.conn(t)
	ts.push(t, conn, "new_message", domain.NewTextMessage(100, 5, 9, "loom 4 is down", time.Now()))

	select {
	case m := <-msgCh:
		assert.Equal(t, int64(100), m.ID)
		assert.Equal(t, int64(5), m.ConversationID)
		assert.Equal(t, "loom 4 is down", m.Content)
	case <-time.After(time.Second):
		t.Fatal("message never dispatched")
	}
}

func TestDispatchMessagesReadAndTyping(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(ts)

	readCh := make(chan MessagesReadPayload, 1)
	typingCh := make(chan UserTypingPayload, 1)
	stoppedCh := make(chan UserStoppedTypingPayload, 1)
	s.OnMessagesRead(func(p MessagesReadPayload) { readCh <- p })
	s.OnUserTyping(func(p UserTypingPayload) { typingCh <- p })
	s.OnUserStoppedTyping(func(p UserStoppedTypingPayload) { stoppedCh <- p })

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()

	conn := ts.conn(t)
	ts.push(t, conn, "messages_read", MessagesReadPayload{UserID: 7, MessageIDs: []int64{10, 11}, ConversationID: 5})
	ts.push(t, conn, "user_typing", UserTypingPayload{UserID: 9, Username: "amira", ConversationID: 5})
	ts.push(t, conn, "user_stopped_typing", UserStoppedTypingPayload{UserID: 9, ConversationID: 5})

	select {
	case p := <-readCh:
		assert.Equal(t, []int64{10, 11}, p.MessageIDs)
	case <-time.After(time.Second):
		t.Fatal("messages_read never dispatched")
	}
	select {
	case p := <-typingCh:
		assert.Equal(t, "amira", p.Username)
	case <-time.After(time.Second):
		t.Fatal("user_typing never dispatched")
	}
	select {
	case p := <-stoppedCh:
		assert.Equal(t, int64(9), p.UserID)
	case <-time.After(time.Second):
		t.Fatal("user_stopped_typing never dispatched")
	}
}

func TestDispatchMessageError(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(ts)

	errCh := make(chan string, 1)
	s.OnMessageError(func(msg string) { errCh <- msg })

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()

	conn := ts.conn(t)
	ts.push(t, conn, "message_error", map[string]string{"error": "conversation not found"})

	select {
	case msg := <-errCh:
		assert.Equal(t, "conversation not found", msg)
	case <-time.After(time.Second):
		t.Fatal("message_error never dispatched")
	}
}

func TestMalformedFrameIsIgnored(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(ts)

	msgCh := make(chan *domain.Message, 1)
	s.OnNewMessage(func(m *domain.Message) { msgCh <- m })

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()

	conn := ts.conn(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ts.push(t, conn, "new_message", domain.NewTextMessage(100, 5, 9, "still alive", time.Now()))

	select {
	case m := <-msgCh:
		assert.Equal(t, int64(100), m.ID)
	case <-time.After(time.Second):
		t.Fatal("session stopped dispatching after malformed frame")
	}
}

func TestCommandsCarryEnvelopes(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(ts)

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()
	ts.conn(t)

	s.JoinConversations([]int64{1, 2})
	f := ts.nextFrame(t)
	assert.Equal(t, "join_conversations", f.Event)
	var ids []int64
	require.NoError(t, json.Unmarshal(f.Data, &ids))
	assert.Equal(t, []int64{1, 2}, ids)

	s.SendMessage(5, "hello", domain.MessageTypeText)
	f = ts.nextFrame(t)
	assert.Equal(t, "send_message", f.Event)
	var sent sendMessagePayload
	require.NoError(t, json.Unmarshal(f.Data, &sent))
	assert.Equal(t, int64(5), sent.ConversationID)
	assert.Equal(t, "hello", sent.Content)
	assert.Equal(t, "TEXT", sent.MessageType)

	s.MarkMessagesRead(5, []int64{10, 11})
	f = ts.nextFrame(t)
	assert.Equal(t, "mark_messages_read", f.Event)

	s.StartTyping(5)
	assert.Equal(t, "typing_start", ts.nextFrame(t).Event)

	s.StopTyping(5)
	assert.Equal(t, "typing_stop", ts.nextFrame(t).Event)
}

func TestEmitWhileDisconnectedIsDropped(t *testing.T) {
	s := NewSession(Config{URL: "ws://127.0.0.1:1/ws"}, zerolog.Nop())

	// must not panic or block
	s.SendMessage(5, "hello", domain.MessageTypeText)
	s.JoinConversations([]int64{1})
	s.Disconnect()
}

func TestServerCloseFiresOnDisconnect(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(ts)

	dropped := make(chan struct{})
	s.OnDisconnect(func() { close(dropped) })

	require.NoError(t, s.Connect(context.Background()))
	conn := ts.conn(t)

	conn.Close()

	select {
	case <-dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect never fired")
	}
	assert.False(t, s.IsConnected())
}

func TestExplicitDisconnectDoesNotFireOnDisconnect(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(ts)

	fired := make(chan struct{}, 1)
	s.OnDisconnect(func() { fired <- struct{}{} })

	require.NoError(t, s.Connect(context.Background()))
	ts.conn(t)

	s.Disconnect()

	select {
	case <-fired:
		t.Fatal("OnDisconnect fired on explicit disconnect")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRemoveAllListeners(t *testing.T) {
	ts := newTestServer(t)
	s := newTestSession(ts)

	msgCh := make(chan *domain.Message, 1)
	s.OnNewMessage(func(m *domain.Message) { msgCh <- m })

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()
	conn := ts.conn(t)

	s.RemoveAllListeners()
	ts.push(t, conn, "new_message", domain.NewTextMessage(100, 5, 9, "hi", time.Now()))

	select {
	case <-msgCh:
		t.Fatal("handler fired after RemoveAllListeners")
	case <-time.After(200 * time.Millisecond):
	}
}
