package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/njahi98/textile-chat-bridge/internal/domain"
)

func (s *Server) handleListConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	me := s.ctrl.CurrentUser()
	conversations := s.ctrl.Conversations()

	if len(conversations) == 0 {
		return mcp.NewToolResultText("No conversations found. Make sure the bridge is connected and has synced."), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d conversation(s):\n\n", len(conversations)))

	for i, conv := range conversations {
		kind := "Direct"
		if conv.IsGroup {
			kind = "Group"
		}

		result.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, conv.DisplayName(me.ID), kind))
		result.WriteString(fmt.Sprintf("   ID: %d\n", conv.ID))

		if conv.UnreadCount > 0 {
			result.WriteString(fmt.Sprintf("   Unread: %d message(s)\n", conv.UnreadCount))
		}

		if conv.LastMessage != nil {
			result.WriteString(fmt.Sprintf("   Last: %s\n", conv.LastMessage.Preview()))
			if !conv.LastMessage.CreatedAt.IsZero() {
				result.WriteString(fmt.Sprintf("   Time: %s\n", conv.LastMessage.CreatedAt.Format("2006-01-02 15:04")))
			}
		}
		result.WriteString("\n")
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (s *Server) handleOpenConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID := int64(request.GetInt("conversation_id", 0))
	if conversationID <= 0 {
		return mcp.NewToolResultError("conversation_id is required"), nil
	}

	messages, err := s.ctrl.SelectConversation(ctx, conversationID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open conversation: %v", err)), nil
	}
	if len(messages) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No messages in conversation %d", conversationID)), nil
	}

	me := s.ctrl.CurrentUser()

	name := fmt.Sprintf("conversation %d", conversationID)
	var conv *domain.Conversation
	if c, ok := s.ctrl.Conversation(conversationID); ok {
		conv = c
		name = s.ctrl.ConversationDisplayName(conv)
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Messages in %s (%d):\n\n", name, len(messages)))

	for _, msg := range messages {
		sender := senderName(conv, msg.SenderID, me.ID)

		timestamp := msg.CreatedAt.Format("2006-01-02 15:04")
		result.WriteString(fmt.Sprintf("[%s] %s:\n", timestamp, sender))

		switch msg.Type {
		case domain.MessageTypeText:
			result.WriteString(fmt.Sprintf("  %s\n", msg.Content))
		default:
			result.WriteString(fmt.Sprintf("  [%s] %s\n", msg.Type, msg.Content))
		}
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conversationID := int64(request.GetInt("conversation_id", 0))
	if conversationID <= 0 {
		return mcp.NewToolResultError("conversation_id is required"), nil
	}

	text := request.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}

	if !s.ctrl.IsConnected() {
		return mcp.NewToolResultError("Not connected to the chat server"), nil
	}

	s.ctrl.SendMessage(conversationID, text, domain.MessageTypeText)

	return mcp.NewToolResultText(fmt.Sprintf("Message submitted to conversation %d. It will appear once the server confirms delivery.", conversationID)), nil
}

func (s *Server) handleSearchUsers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(request.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	users := s.ctrl.SearchUsers(ctx, query)
	if len(users) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No users matching %q", query)), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d user(s):\n\n", len(users)))

	for i, u := range users {
		result.WriteString(fmt.Sprintf("%d. %s (@%s)\n", i+1, u.DisplayName(), u.Username))
		result.WriteString(fmt.Sprintf("   ID: %d\n", u.ID))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (s *Server) handleListNotifications(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notifications := s.ctrl.Notifications()
	if len(notifications) == 0 {
		return mcp.NewToolResultText("No notifications."), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("%d notification(s), %d unread:\n\n", len(notifications), s.ctrl.NotificationUnreadCount()))

	for i, n := range notifications {
		marker := " "
		if !n.IsRead {
			marker = "*"
		}
		result.WriteString(fmt.Sprintf("%s %d. [%s] %s\n", marker, i+1, n.Type, n.Title))
		if n.Content != "" {
			result.WriteString(fmt.Sprintf("     %s\n", n.Content))
		}
		result.WriteString(fmt.Sprintf("     ID: %d  Time: %s\n", n.ID, n.CreatedAt.Format("2006-01-02 15:04")))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (s *Server) handleSearchArchive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(request.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	limit := request.GetInt("limit", 20)
	if limit > 100 {
		limit = 100
	}
	if limit <= 0 {
		limit = 20
	}

	messages, err := s.ctrl.SearchArchive(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Archive search failed: %v", err)), nil
	}

	if len(messages) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No archived messages matching %q", query)), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d archived message(s):\n\n", len(messages)))

	for _, msg := range messages {
		timestamp := msg.CreatedAt.Format("2006-01-02 15:04")
		result.WriteString(fmt.Sprintf("[%s] sender %d (conversation %d):\n", timestamp, msg.SenderID, msg.ConversationID))
		result.WriteString(fmt.Sprintf("  %s\n", msg.Content))
	}

	return mcp.NewToolResultText(result.String()), nil
}

func senderName(conv *domain.Conversation, senderID, currentUserID int64) string {
	if senderID == currentUserID {
		return "Me"
	}
	if conv != nil {
		for _, p := range conv.Participants {
			if p.User.ID == senderID {
				return p.User.DisplayName()
			}
		}
	}
	return fmt.Sprintf("user %d", senderID)
}

func (s *Server) handleConnectionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.ctrl.Status()

	var result strings.Builder
	result.WriteString(fmt.Sprintf("State: %s\n", status.State))
	result.WriteString(fmt.Sprintf("User: %s (ID %d)\n", s.ctrl.CurrentUser().DisplayName(), s.ctrl.CurrentUser().ID))
	result.WriteString(fmt.Sprintf("Conversations: %d\n", status.Conversations))
	result.WriteString(fmt.Sprintf("Unread messages: %d\n", status.UnreadMessages))
	result.WriteString(fmt.Sprintf("Unread notifications: %d\n", status.UnreadNotifications))

	if status.Loading {
		result.WriteString("Initial load in progress\n")
	}
	if status.LoadFailed {
		result.WriteString("Initial load failed; data may be incomplete\n")
	}
	if status.LastConnectError != "" {
		result.WriteString(fmt.Sprintf("Last connect error: %s\n", status.LastConnectError))
	}

	return mcp.NewToolResultText(result.String()), nil
}
