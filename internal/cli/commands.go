package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
	"github.com/njahi98/textile-chat-bridge/internal/service"
)

// CommandHandler handles CLI commands
type CommandHandler struct {
	ctrl *service.Controller
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(ctrl *service.Controller) *CommandHandler {
	return &CommandHandler{ctrl: ctrl}
}

// Command represents a parsed command
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a command string (e.g., "/send 5 Hello there")
func ParseCommand(input string) (*Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty command")
	}

	if !strings.HasPrefix(input, "/") {
		return nil, fmt.Errorf("commands must start with /")
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	name := strings.TrimPrefix(parts[0], "/")
	args := parts[1:]

	return &Command{Name: name, Args: args}, nil
}

// SubscribeEvents subscribes to domain events for real-time display.
func (h *CommandHandler) SubscribeEvents(eventTypes []domain.EventType) <-chan domain.Event {
	return h.ctrl.Bus().Subscribe(eventTypes)
}

// Execute executes a command and returns the result
func (h *CommandHandler) Execute(ctx context.Context, cmd *Command) (interface{}, error) {
	switch cmd.Name {
	case "help", "h":
		return h.cmdHelp()
	case "status", "s":
		return h.cmdStatus()
	case "connect", "c":
		return h.cmdConnect(ctx)
	case "disconnect", "d":
		return h.cmdDisconnect()
	case "conversations", "ls":
		return h.cmdConversations()
	case "open", "messages", "msg":
		return h.cmdOpen(ctx, cmd.Args)
	case "send":
		return h.cmdSend(cmd.Args)
	case "read":
		return h.cmdRead(cmd.Args)
	case "create":
		return h.cmdCreate(ctx, cmd.Args)
	case "typing":
		return h.cmdTyping(cmd.Args)
	case "users":
		return h.cmdUsers(ctx, cmd.Args)
	case "notifications", "nf":
		return h.cmdNotifications()
	case "notif-read", "nr":
		return h.cmdNotifRead(ctx, cmd.Args)
	case "history":
		return h.cmdHistory(ctx, cmd.Args)
	case "find":
		return h.cmdFind(ctx, cmd.Args)
	case "quit", "exit", "q":
		return map[string]bool{"quit": true}, nil
	default:
		return nil, fmt.Errorf("unknown command: %s. Type /help for available commands", cmd.Name)
	}
}

func (h *CommandHandler) cmdHelp() (interface{}, error) {
	help := `Available commands:

Connection:
  /status, /s               Show session status
  /connect, /c              Connect to the messaging server
  /disconnect, /d           Disconnect and clear the session

Conversations:
  /conversations, /ls       List conversations (most recent first)
  /open, /msg <id>          Open a conversation and mark it read
  /send <id> <text>         Send a text message
  /read <id> <msg_ids...>   Mark specific messages as read
  /create <name|-> <group|direct> <user_ids...>  Create a conversation
  /typing <id> start|stop   Send a typing indicator

Users & notifications:
  /users <query>            Search users
  /notifications, /nf       List notifications
  /notif-read, /nr all|<ids...>  Mark notifications as read

Archive:
  /history <id> [limit]     Archived messages for a conversation
  /find <query> [limit]     Search the local message archive

Other:
  /help, /h                 Show this help
  /quit, /exit, /q          Exit the CLI`

	return map[string]string{"help": help}, nil
}

func (h *CommandHandler) cmdStatus() (interface{}, error) {
	return h.ctrl.Status(), nil
}

func (h *CommandHandler) cmdConnect(ctx context.Context) (interface{}, error) {
	if err := h.ctrl.Start(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"message": "connected"}, nil
}

func (h *CommandHandler) cmdDisconnect() (interface{}, error) {
	h.ctrl.Stop()
	return map[string]string{"message": "disconnected"}, nil
}

func (h *CommandHandler) cmdConversations() (interface{}, error) {
	convs := h.ctrl.Conversations()
	infos := make([]ConversationInfo, 0, len(convs))
	for _, conv := range convs {
		infos = append(infos, h.conversationInfo(conv))
	}
	return infos, nil
}

func (h *CommandHandler) cmdOpen(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /open <conversation_id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %s", args[0])
	}

	msgs, err := h.ctrl.SelectConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return h.messageInfos(msgs), nil
}

func (h *CommandHandler) cmdSend(args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: /send <conversation_id> <text>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %s", args[0])
	}
	if !h.ctrl.IsConnected() {
		return nil, fmt.Errorf("not connected")
	}

	text := strings.Join(args[1:], " ")
	h.ctrl.SendMessage(id, text, domain.MessageTypeText)
	return map[string]string{"message": "sent (will appear on server echo)"}, nil
}

func (h *CommandHandler) cmdRead(args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: /read <conversation_id> <message_ids...>")
	}
	convID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %s", args[0])
	}
	msgIDs, err := parseIDs(args[1:])
	if err != nil {
		return nil, err
	}
	if !h.ctrl.IsConnected() {
		return nil, fmt.Errorf("not connected")
	}

	h.ctrl.MarkMessagesAsRead(convID, msgIDs)
	return map[string]string{"message": "mark-read sent"}, nil
}

func (h *CommandHandler) cmdCreate(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("usage: /create <name|-> <group|direct> <user_ids...>")
	}
	name := args[0]
	if name == "-" {
		name = ""
	}
	isGroup := args[1] == "group"
	userIDs, err := parseIDs(args[2:])
	if err != nil {
		return nil, err
	}

	conv, err := h.ctrl.CreateConversation(ctx, userIDs, name, isGroup)
	if err != nil {
		return nil, err
	}
	return h.conversationInfo(conv), nil
}

func (h *CommandHandler) cmdTyping(args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: /typing <conversation_id> start|stop")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %s", args[0])
	}

	switch args[1] {
	case "start":
		h.ctrl.StartTyping(id)
	case "stop":
		h.ctrl.StopTyping(id)
	default:
		return nil, fmt.Errorf("usage: /typing <conversation_id> start|stop")
	}
	return map[string]string{"message": "typing " + args[1] + " sent"}, nil
}

func (h *CommandHandler) cmdUsers(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /users <query>")
	}

	users := h.ctrl.SearchUsers(ctx, strings.Join(args, " "))
	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, UserInfo{ID: u.ID, Username: u.Username, Name: u.DisplayName()})
	}
	return infos, nil
}

func (h *CommandHandler) cmdNotifications() (interface{}, error) {
	notifs := h.ctrl.Notifications()
	infos := make([]NotificationInfo, 0, len(notifs))
	for _, n := range notifs {
		infos = append(infos, NotificationInfo{
			ID:        n.ID,
			Type:      string(n.Type),
			Title:     n.Title,
			Content:   n.Content,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		})
	}
	return infos, nil
}

func (h *CommandHandler) cmdNotifRead(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /notif-read all|<ids...>")
	}

	if args[0] == "all" {
		if err := h.ctrl.MarkNotificationsAsRead(ctx, nil, true); err != nil {
			return nil, err
		}
		return map[string]string{"message": "all notifications marked read"}, nil
	}

	ids, err := parseIDs(args)
	if err != nil {
		return nil, err
	}
	if err := h.ctrl.MarkNotificationsAsRead(ctx, ids, false); err != nil {
		return nil, err
	}
	return map[string]string{"message": fmt.Sprintf("%d notification(s) marked read", len(ids))}, nil
}

func (h *CommandHandler) cmdHistory(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /history <conversation_id> [limit]")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %s", args[0])
	}
	limit := parseLimit(args, 1, 50)

	msgs, err := h.ctrl.History(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	return h.messageInfos(msgs), nil
}

func (h *CommandHandler) cmdFind(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /find <query> [limit]")
	}

	limit := 20
	query := strings.Join(args, " ")
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[len(args)-1]); err == nil {
			limit = n
			query = strings.Join(args[:len(args)-1], " ")
		}
	}

	msgs, err := h.ctrl.SearchArchive(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return h.messageInfos(msgs), nil
}

func (h *CommandHandler) conversationInfo(conv *domain.Conversation) ConversationInfo {
	info := ConversationInfo{
		ID:          conv.ID,
		Name:        h.ctrl.ConversationDisplayName(conv),
		IsGroup:     conv.IsGroup,
		UnreadCount: conv.UnreadCount,
		UpdatedAt:   conv.UpdatedAt,
	}
	if conv.LastMessage != nil {
		info.LastMessage = conv.LastMessage.Preview()
	}
	return info
}

func (h *CommandHandler) messageInfos(msgs []*domain.Message) []MessageInfo {
	me := h.ctrl.CurrentUser().ID
	infos := make([]MessageInfo, 0, len(msgs))
	for _, msg := range msgs {
		infos = append(infos, MessageInfo{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Type:           string(msg.Type),
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt,
			IsFromMe:       msg.SenderID == me,
			ReadByMe:       msg.ReadBy(me),
		})
	}
	return infos
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id: %s", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseLimit(args []string, index, fallback int) int {
	if len(args) > index {
		if n, err := strconv.Atoi(args[index]); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
