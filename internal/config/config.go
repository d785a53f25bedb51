package config

import (
	"flag"
	"os"
	"path/filepath"
)

type Config struct {
	Mode          string
	ServerURL     string
	APIBaseURL    string
	AuthToken     string
	ArchivePath   string
	MCPAddress    string
	LogLevel      string
	DesktopAlerts bool
}

func Load() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".chat-bridge")

	cfg := &Config{}

	flag.StringVar(&cfg.Mode, "mode", "server", "Run mode: server, interactive, or headless")
	flag.StringVar(&cfg.ServerURL, "server", getEnv("CHAT_SERVER_URL", "ws://127.0.0.1:5000/ws"), "Messaging server websocket URL")
	flag.StringVar(&cfg.APIBaseURL, "api", getEnv("CHAT_API_URL", "http://127.0.0.1:5000"), "REST API base URL")
	flag.StringVar(&cfg.AuthToken, "token", os.Getenv("CHAT_AUTH_TOKEN"), "Bearer token for the authenticated session")
	flag.StringVar(&cfg.ArchivePath, "archive", getEnv("CHAT_ARCHIVE_PATH", filepath.Join(dataDir, "archive.db")), "Message archive file path (empty to disable)")
	flag.StringVar(&cfg.MCPAddress, "mcp-port", getEnv("CHAT_MCP_ADDRESS", "127.0.0.1:8080"), "MCP SSE server address")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("CHAT_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.BoolVar(&cfg.DesktopAlerts, "alerts", true, "Raise desktop alerts for new-message notifications")

	flag.Parse()

	if cfg.ArchivePath != "" {
		os.MkdirAll(filepath.Dir(cfg.ArchivePath), 0755)
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
