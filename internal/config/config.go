package config

import (
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds configuration for the ferryd binary.
type ServerConfig struct {
	Addr     string
	FilesDir string
	APIKey   string
	LogLevel string
}

// AgentConfig holds configuration for the ferry-agent binary.
type AgentConfig struct {
	ServerURL         string
	Addr              string
	FilesDir          string
	APIKey            string
	LogLevel          string
	ReconnectInterval time.Duration
}

// ParseServerConfig parses server configuration from flags and environment
// variables. Flags take precedence over environment variables. A .env file
// in the working directory is loaded first if present.
func ParseServerConfig() ServerConfig {
	_ = godotenv.Load()
	return parseServerConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseServerConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseServerConfigWithFlagSet(fs *flag.FlagSet, args []string) ServerConfig {
	cfg := ServerConfig{
		Addr:     ":8000",
		FilesDir: "files",
		LogLevel: "info",
	}

	// Read from environment first
	if addr := os.Getenv("FERRY_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if dir := os.Getenv("FERRY_FILES_DIR"); dir != "" {
		cfg.FilesDir = dir
	}
	if key := os.Getenv("FERRY_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if logLevel := os.Getenv("FERRY_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Flags override environment
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "server address")
	fs.StringVar(&cfg.FilesDir, "files-dir", cfg.FilesDir, "catalog directory")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "shared agent API key")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.Parse(args)

	return cfg
}

// ParseAgentConfig parses agent configuration from flags and environment
// variables. Flags take precedence over environment variables. A .env file
// in the working directory is loaded first if present.
func ParseAgentConfig() AgentConfig {
	_ = godotenv.Load()
	return parseAgentConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseAgentConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseAgentConfigWithFlagSet(fs *flag.FlagSet, args []string) AgentConfig {
	cfg := AgentConfig{
		ServerURL:         "http://localhost:8000",
		Addr:              ":8001",
		FilesDir:          "files",
		LogLevel:          "info",
		ReconnectInterval: 5 * time.Second,
	}

	// Read from environment first
	if serverURL := os.Getenv("FERRY_SERVER_URL"); serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if addr := os.Getenv("FERRY_AGENT_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if dir := os.Getenv("FERRY_FILES_DIR"); dir != "" {
		cfg.FilesDir = dir
	}
	if key := os.Getenv("FERRY_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if logLevel := os.Getenv("FERRY_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if interval := os.Getenv("FERRY_RECONNECT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil && d > 0 {
			cfg.ReconnectInterval = d
		}
	}

	// Flags override environment
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "public server URL")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "agent local address")
	fs.StringVar(&cfg.FilesDir, "files-dir", cfg.FilesDir, "download destination directory")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "shared agent API key")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.DurationVar(&cfg.ReconnectInterval, "reconnect-interval", cfg.ReconnectInterval, "wait between reconnect attempts")
	fs.Parse(args)

	return cfg
}
