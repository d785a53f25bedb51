// Package ws owns the single duplex connection to the messaging server.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	defaultHandshakeTimeout = 10 * time.Second
)

type Config struct {
	// URL is the websocket endpoint, e.g. ws://host:port/ws.
	URL string
	// Token is the bearer token of the authenticated session. It travels on
	// the dial the same way it does on the HTTP collaborator.
	Token string
	// HandshakeTimeout bounds the dial; zero means the default.
	HandshakeTimeout time.Duration
}

// handlers is the listener set of the currently-active session. It is
// replaced wholesale by RemoveAllListeners during teardown.
type handlers struct {
	onConnect           func()
	onDisconnect        func()
	onConnectError      func(reason string)
	onNewMessage        func(*domain.Message)
	onMessagesRead      func(MessagesReadPayload)
	onUserTyping        func(UserTypingPayload)
	onUserStoppedTyping func(UserStoppedTypingPayload)
	onNewNotification   func(*domain.Notification)
	onMessageError      func(errMsg string)
}

// Session manages exactly one live connection to the messaging server.
// It performs no automatic reconnect: callers re-invoke Connect on a new
// session start. Commands emitted while disconnected are silently dropped.
type Session struct {
	cfg Config
	log zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{}

	writeMu sync.Mutex

	hmu sync.RWMutex
	h   handlers
}

func NewSession(cfg Config, log zerolog.Logger) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Session{cfg: cfg, log: log}
}

// Connect establishes the connection. Idempotent if already connected.
// Dial failures are also reported through the OnConnectError handler.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		s.mu.Unlock()
		if fn := s.snapshot().onConnectError; fn != nil {
			fn(err.Error())
		}
		return err
	}

	s.conn = conn
	s.connected = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.readPump(conn)
	go s.pingLoop(conn, done)

	s.log.Debug().Str("url", s.cfg.URL).Msg("connected")
	if fn := s.snapshot().onConnect; fn != nil {
		fn()
	}
	return nil
}

// Disconnect tears the connection down. Safe to call when not connected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	wasConnected := s.connected
	s.conn = nil
	s.connected = false
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if wasConnected {
		s.log.Debug().Msg("disconnected")
	}
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// RemoveAllListeners detaches every registered handler. It must run before
// Disconnect during session teardown so a stale session's handlers cannot
// fire against the next one.
func (s *Session) RemoveAllListeners() {
	s.hmu.Lock()
	s.h = handlers{}
	s.hmu.Unlock()
}

func (s *Session) OnConnect(fn func())    { s.hmu.Lock(); s.h.onConnect = fn; s.hmu.Unlock() }
func (s *Session) OnDisconnect(fn func()) { s.hmu.Lock(); s.h.onDisconnect = fn; s.hmu.Unlock() }
func (s *Session) OnConnectError(fn func(string)) {
	s.hmu.Lock()
	s.h.onConnectError = fn
	s.hmu.Unlock()
}
func (s *Session) OnNewMessage(fn func(*domain.Message)) {
	s.hmu.Lock()
	s.h.onNewMessage = fn
	s.hmu.Unlock()
}
func (s *Session) OnMessagesRead(fn func(MessagesReadPayload)) {
	s.hmu.Lock()
	s.h.onMessagesRead = fn
	s.hmu.Unlock()
}
func (s *Session) OnUserTyping(fn func(UserTypingPayload)) {
	s.hmu.Lock()
	s.h.onUserTyping = fn
	s.hmu.Unlock()
}
func (s *Session) OnUserStoppedTyping(fn func(UserStoppedTypingPayload)) {
	s.hmu.Lock()
	s.h.onUserStoppedTyping = fn
	s.hmu.Unlock()
}
func (s *Session) OnNewNotification(fn func(*domain.Notification)) {
	s.hmu.Lock()
	s.h.onNewNotification = fn
	s.hmu.Unlock()
}
func (s *Session) OnMessageError(fn func(string)) {
	s.hmu.Lock()
	s.h.onMessageError = fn
	s.hmu.Unlock()
}

// JoinConversations subscribes the session to the given conversation rooms.
func (s *Session) JoinConversations(ids []int64) {
	s.emit(commandJoinConversations, ids)
}

func (s *Session) SendMessage(conversationID int64, content string, messageType domain.MessageType) {
	s.emit(commandSendMessage, sendMessagePayload{
		ConversationID: conversationID,
		Content:        content,
		MessageType:    string(messageType),
	})
}

func (s *Session) MarkMessagesRead(conversationID int64, messageIDs []int64) {
	s.emit(commandMarkMessagesRead, markMessagesReadPayload{
		ConversationID: conversationID,
		MessageIDs:     messageIDs,
	})
}

func (s *Session) StartTyping(conversationID int64) {
	s.emit(commandTypingStart, typingPayload{ConversationID: conversationID})
}

func (s *Session) StopTyping(conversationID int64) {
	s.emit(commandTypingStop, typingPayload{ConversationID: conversationID})
}

func (s *Session) snapshot() handlers {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	return s.h
}

func (s *Session) emit(event string, data interface{}) {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()

	if !connected || conn == nil {
		s.log.Debug().Str("event", event).Msg("not connected, dropping command")
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("failed to encode command")
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(envelope{Event: event, Data: raw}); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("failed to write command")
	}
}

func (s *Session) readPump(conn *websocket.Conn) {
	defer s.dropped(conn)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("read error")
			}
			return
		}
		s.dispatch(raw)
	}
}

// dispatch routes one inbound frame to its typed handler. Frames are handled
// strictly in delivery order on the read pump goroutine.
func (s *Session) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn().Err(err).Msg("malformed frame")
		return
	}

	h := s.snapshot()

	switch env.Event {
	case eventNewMessage:
		var msg domain.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			s.log.Warn().Err(err).Str("event", env.Event).Msg("malformed payload")
			return
		}
		if h.onNewMessage != nil {
			h.onNewMessage(&msg)
		}
	case eventMessagesRead:
		var p MessagesReadPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.log.Warn().Err(err).Str("event", env.Event).Msg("malformed payload")
			return
		}
		if h.onMessagesRead != nil {
			h.onMessagesRead(p)
		}
	case eventUserTyping:
		var p UserTypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.log.Warn().Err(err).Str("event", env.Event).Msg("malformed payload")
			return
		}
		if h.onUserTyping != nil {
			h.onUserTyping(p)
		}
	case eventUserStoppedTyping:
		var p UserStoppedTypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.log.Warn().Err(err).Str("event", env.Event).Msg("malformed payload")
			return
		}
		if h.onUserStoppedTyping != nil {
			h.onUserStoppedTyping(p)
		}
	case eventNewNotification:
		var n domain.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			s.log.Warn().Err(err).Str("event", env.Event).Msg("malformed payload")
			return
		}
		if h.onNewNotification != nil {
			h.onNewNotification(&n)
		}
	case eventMessageError:
		var p messageErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			s.log.Warn().Err(err).Str("event", env.Event).Msg("malformed payload")
			return
		}
		if h.onMessageError != nil {
			h.onMessageError(p.Error)
		}
	case eventConversationsJoined:
		// Acknowledgement only.
		s.log.Debug().RawJSON("data", env.Data).Msg("joined conversations")
	default:
		s.log.Debug().Str("event", env.Event).Msg("unhandled event")
	}
}

// dropped marks the session disconnected after the read pump exits, whether
// from an explicit Disconnect or a transport failure.
func (s *Session) dropped(conn *websocket.Conn) {
	_ = conn.Close()

	s.mu.Lock()
	wasConnected := s.connected && s.conn == conn
	if wasConnected {
		s.conn = nil
		s.connected = false
		if s.done != nil {
			close(s.done)
			s.done = nil
		}
	}
	s.mu.Unlock()

	if wasConnected {
		if fn := s.snapshot().onDisconnect; fn != nil {
			fn()
		}
	}
}

func (s *Session) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
