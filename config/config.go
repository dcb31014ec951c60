package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. CODEROOM_SANDBOX_TIMEOUT_SEC.
const EnvPrefix = "CODEROOM"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox"`
	Languages map[string]Language `mapstructure:"languages"`
	Session   SessionConfig       `mapstructure:"session"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	MCP       MCPConfig           `mapstructure:"mcp"`
}

// ServerConfig holds HTTP and WebSocket listener configuration
type ServerConfig struct {
	HTTPPort          int      `mapstructure:"http_port"`
	WSPath            string   `mapstructure:"ws_path"`
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	MaxMessageKB      int      `mapstructure:"max_message_kb"`
	SendBuffer        int      `mapstructure:"send_buffer"`
	MessagesPerSecond float64  `mapstructure:"messages_per_second"`
	MessageBurst      int      `mapstructure:"message_burst"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend            string `mapstructure:"backend"`
	TimeoutSec         int    `mapstructure:"timeout_sec"`
	MemoryMB           int    `mapstructure:"memory_mb"`
	NetworkEnabled     bool   `mapstructure:"network_enabled"`
	EnableLocalBackend bool   `mapstructure:"enable_local_backend"`
	WorkDir            string `mapstructure:"work_dir"`
	MaxOutputKB        int    `mapstructure:"max_output_kb"`
	MaxConcurrentRuns  int    `mapstructure:"max_concurrent_runs"`
	User               string `mapstructure:"user"`
}

// Language holds the toolchain and editor defaults of one supported language.
// Compiler is used by compiled languages, Interpreter by interpreted ones.
type Language struct {
	Compiler    string   `mapstructure:"compiler"`
	Interpreter string   `mapstructure:"interpreter"`
	Args        []string `mapstructure:"args"`
	Image       string   `mapstructure:"image"`
	Boilerplate string   `mapstructure:"boilerplate"`
}

// SessionConfig bounds protocol payloads
type SessionConfig struct {
	MaxCodeKB  int `mapstructure:"max_code_kb"`
	MaxNameLen int `mapstructure:"max_name_len"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// MCPConfig holds configuration of the optional MCP operator endpoint
type MCPConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	HTTPPort int  `mapstructure:"http_port"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	// A missing .env file is fine; anything else is worth reporting.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	return Load(v)
}

// Load reads configuration through the given viper instance, which may
// already carry an explicit config file.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 3000)
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_message_kb", 1024)
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("server.messages_per_second", 100)
	v.SetDefault("server.message_burst", 200)

	v.SetDefault("sandbox.backend", "local")
	v.SetDefault("sandbox.timeout_sec", 10)
	v.SetDefault("sandbox.memory_mb", 256)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.enable_local_backend", true)
	v.SetDefault("sandbox.work_dir", "")
	v.SetDefault("sandbox.max_output_kb", 64)
	v.SetDefault("sandbox.max_concurrent_runs", 8)
	v.SetDefault("sandbox.user", "")

	v.SetDefault("languages.c.compiler", "gcc")
	v.SetDefault("languages.c.image", "gcc:13")
	v.SetDefault("languages.cpp.compiler", "g++")
	v.SetDefault("languages.cpp.image", "gcc:13")
	v.SetDefault("languages.python.interpreter", "python3")
	v.SetDefault("languages.python.image", "python:3.11-slim")

	v.SetDefault("session.max_code_kb", 256)
	v.SetDefault("session.max_name_len", 64)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.http_port", 3001)
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // Flat list of independent checks
func (c *Config) validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("invalid server.ws_path: %q, must start with '/'", c.Server.WSPath)
	}

	if c.Server.MaxMessageKB <= 0 {
		return fmt.Errorf("server.max_message_kb must be positive, got: %d", c.Server.MaxMessageKB)
	}

	if c.Server.SendBuffer <= 0 {
		return fmt.Errorf("server.send_buffer must be positive, got: %d", c.Server.SendBuffer)
	}

	if c.Server.MessagesPerSecond <= 0 || c.Server.MessageBurst <= 0 {
		return fmt.Errorf("server.messages_per_second and server.message_burst must be positive")
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.MaxOutputKB <= 0 {
		return fmt.Errorf("sandbox.max_output_kb must be positive, got: %d", c.Sandbox.MaxOutputKB)
	}

	if c.Sandbox.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("sandbox.max_concurrent_runs must be positive, got: %d", c.Sandbox.MaxConcurrentRuns)
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"local":  c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Session.MaxCodeKB <= 0 {
		return fmt.Errorf("session.max_code_kb must be positive, got: %d", c.Session.MaxCodeKB)
	}

	if c.Session.MaxNameLen <= 0 {
		return fmt.Errorf("session.max_name_len must be positive, got: %d", c.Session.MaxNameLen)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.MCP.Enabled && (c.MCP.HTTPPort <= 0 || c.MCP.HTTPPort == c.Server.HTTPPort) {
		return fmt.Errorf("invalid mcp.http_port: %d, must be positive and differ from server.http_port", c.MCP.HTTPPort)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// ListenAddr returns the address of the collaboration listener
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.HTTPPort)
}
