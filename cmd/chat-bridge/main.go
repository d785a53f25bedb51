package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/njahi98/textile-chat-bridge/internal/api"
	"github.com/njahi98/textile-chat-bridge/internal/archive"
	"github.com/njahi98/textile-chat-bridge/internal/cli"
	"github.com/njahi98/textile-chat-bridge/internal/config"
	"github.com/njahi98/textile-chat-bridge/internal/domain"
	"github.com/njahi98/textile-chat-bridge/internal/logger"
	"github.com/njahi98/textile-chat-bridge/internal/notify"
	"github.com/njahi98/textile-chat-bridge/internal/service"
	mcpTransport "github.com/njahi98/textile-chat-bridge/internal/transport/mcp"
	"github.com/njahi98/textile-chat-bridge/internal/transport/ws"
)

// RunMode defines how the application runs
type RunMode string

const (
	RunModeServer      RunMode = "server"
	RunModeInteractive RunMode = "interactive"
	RunModeHeadless    RunMode = "headless"
)

func main() {
	cfg := config.Load()

	// CLI modes own stdout, so logs go to stderr there
	if RunMode(cfg.Mode) == RunModeServer {
		logger.Init(cfg.LogLevel)
	} else {
		logger.Console(cfg.LogLevel)
	}
	log := logger.Module("main")

	if cfg.AuthToken == "" {
		log.Fatal().Msg("No auth token configured. Set CHAT_AUTH_TOKEN or pass -token.")
	}

	apiClient := api.NewClient(cfg.APIBaseURL, cfg.AuthToken, nil)

	// The session belongs to exactly one user; resolve it up front so a bad
	// token fails here rather than mid-session.
	bootCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	user, err := apiClient.Me(bootCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve authenticated user")
	}
	log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("Authenticated")

	var msgArchive archive.MessageArchive
	var convArchive archive.ConversationArchive
	if cfg.ArchivePath != "" {
		db, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.ArchivePath).Msg("Failed to open archive")
		}
		msgArchive = archive.NewMessageArchive(db)
		convArchive = archive.NewConversationArchive(db)
	} else {
		log.Info().Msg("Archive disabled")
	}

	session := ws.NewSession(ws.Config{
		URL:   cfg.ServerURL,
		Token: cfg.AuthToken,
	}, logger.Module("ws"))

	eventBus := domain.NewEventBus()

	alerter := notify.Noop()
	if cfg.DesktopAlerts && RunMode(cfg.Mode) == RunModeServer {
		alerter = notify.Desktop()
	}

	ctrl := service.NewController(
		*user,
		session,
		apiClient,
		eventBus,
		alerter,
		msgArchive,
		convArchive,
		logger.Module("controller"),
	)

	ctx := context.Background()

	switch RunMode(cfg.Mode) {
	case RunModeInteractive:
		runInteractiveMode(ctx, ctrl)
	case RunModeHeadless:
		runHeadlessMode(ctx, ctrl)
	default:
		runServerMode(ctx, cfg, ctrl)
	}
}

func runServerMode(ctx context.Context, cfg *config.Config, ctrl *service.Controller) {
	log := logger.Module("server")

	log.Info().
		Str("server", cfg.ServerURL).
		Str("api", cfg.APIBaseURL).
		Str("mcp", cfg.MCPAddress).
		Msg("Chat bridge starting")

	mcpServer := mcpTransport.NewServer(ctrl, mcpTransport.ServerConfig{
		Address: cfg.MCPAddress,
	})

	errCh := make(chan error, 1)

	go func() {
		log.Info().Str("address", cfg.MCPAddress).Msg("Starting MCP SSE server")
		if err := mcpServer.Start(); err != nil {
			errCh <- fmt.Errorf("MCP server error: %w", err)
		}
	}()

	if err := ctrl.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial connect failed, will retry on demand")
	}

	// Print ready message for subprocess coordination
	fmt.Println("ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ctrl.Stop()

	if err := mcpServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("MCP server stop error")
	}

	log.Info().Msg("Shutdown complete")
}

func runInteractiveMode(ctx context.Context, ctrl *service.Controller) {
	log := logger.Module("interactive")

	if err := ctrl.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Connect failed, use /connect to retry")
	}

	handler := cli.NewCommandHandler(ctrl)
	interactiveCLI := cli.NewInteractiveCLI(handler)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	if err := interactiveCLI.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("CLI error")
	}

	ctrl.Stop()
}

func runHeadlessMode(ctx context.Context, ctrl *service.Controller) {
	log := logger.Module("headless")

	if err := ctrl.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Connect failed, commands will report disconnected state")
	}

	handler := cli.NewCommandHandler(ctrl)
	headlessCLI := cli.NewHeadlessCLI(handler)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	if err := headlessCLI.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("Headless CLI error")
	}

	ctrl.Stop()
}
