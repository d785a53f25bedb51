package mcp

import (
	"context"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/njahi98/textile-chat-bridge/internal/service"
)

type ServerConfig struct {
	Address string
}

type Server struct {
	mcpServer  *server.MCPServer
	sseServer  *server.SSEServer
	httpServer *http.Server
	ctrl       *service.Controller
	config     ServerConfig
}

func NewServer(ctrl *service.Controller, config ServerConfig) *Server {
	s := &Server{
		ctrl:   ctrl,
		config: config,
	}

	s.mcpServer = server.NewMCPServer(
		"chat-bridge",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	s.sseServer = server.NewSSEServer(s.mcpServer,
		server.WithKeepAliveInterval(30*time.Second),
	)

	return s
}

func (s *Server) registerTools() {
	// List conversations tool
	s.mcpServer.AddTool(
		mcp.NewTool("chat_list_conversations",
			mcp.WithDescription("List conversations sorted by most recent activity"),
		),
		s.handleListConversations,
	)

	// Open conversation tool
	s.mcpServer.AddTool(
		mcp.NewTool("chat_open_conversation",
			mcp.WithDescription("Open a conversation: load its first page of messages and mark the unread ones as read"),
			mcp.WithNumber("conversation_id",
				mcp.Required(),
				mcp.Description("Numeric id of the conversation"),
			),
		),
		s.handleOpenConversation,
	)

	// Send message tool
	s.mcpServer.AddTool(
		mcp.NewTool("chat_send_message",
			mcp.WithDescription("Send a text message to a conversation. The message appears once the server echoes it back."),
			mcp.WithNumber("conversation_id",
				mcp.Required(),
				mcp.Description("Numeric id of the conversation"),
			),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("Message text to send"),
			),
		),
		s.handleSendMessage,
	)

	// Search users tool
	s.mcpServer.AddTool(
		mcp.NewTool("chat_search_users",
			mcp.WithDescription("Search factory users by name or username"),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Search query text"),
			),
		),
		s.handleSearchUsers,
	)

	// List notifications tool
	s.mcpServer.AddTool(
		mcp.NewTool("chat_list_notifications",
			mcp.WithDescription("List the user's notification feed, newest first"),
		),
		s.handleListNotifications,
	)

	// Archive search tool
	s.mcpServer.AddTool(
		mcp.NewTool("chat_search_archive",
			mcp.WithDescription("Search archived message content across all conversations"),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Search query text"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum results to return (default 20, max 100)"),
			),
		),
		s.handleSearchArchive,
	)

	// Connection status tool
	s.mcpServer.AddTool(
		mcp.NewTool("chat_connection_status",
			mcp.WithDescription("Get the current session status"),
		),
		s.handleConnectionStatus,
	)
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.Handle("/sse", s.sseServer.SSEHandler())
	mux.Handle("/message", s.sseServer.MessageHandler())

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{
		Addr:    s.config.Address,
		Handler: mux,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
