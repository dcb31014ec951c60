package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:          3000,
			WSPath:            "/ws",
			AllowedOrigins:    []string{"*"},
			MaxMessageKB:      1024,
			SendBuffer:        256,
			MessagesPerSecond: 100,
			MessageBurst:      200,
		},
		Sandbox: SandboxConfig{
			Backend:            "docker",
			TimeoutSec:         10,
			MemoryMB:           256,
			MaxOutputKB:        64,
			MaxConcurrentRuns:  4,
			NetworkEnabled:     false,
			EnableLocalBackend: false,
		},
		Session: SessionConfig{
			MaxCodeKB:  256,
			MaxNameLen: 64,
		},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		Languages: map[string]Language{
			"python": {Interpreter: "python3"},
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		require.NoError(t, validConfig().validate())
	})

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"InvalidHTTPPort", func(c *Config) { c.Server.HTTPPort = 0 }, "invalid server.http_port"},
		{"InvalidWSPath", func(c *Config) { c.Server.WSPath = "ws" }, "invalid server.ws_path"},
		{"InvalidMaxMessage", func(c *Config) { c.Server.MaxMessageKB = 0 }, "server.max_message_kb must be positive"},
		{"InvalidSendBuffer", func(c *Config) { c.Server.SendBuffer = -1 }, "server.send_buffer must be positive"},
		{"InvalidRate", func(c *Config) { c.Server.MessagesPerSecond = 0 }, "server.messages_per_second"},
		{"InvalidSandboxTimeout", func(c *Config) { c.Sandbox.TimeoutSec = 0 }, "sandbox.timeout_sec must be positive"},
		{"InvalidSandboxMemory", func(c *Config) { c.Sandbox.MemoryMB = 0 }, "sandbox.memory_mb must be positive"},
		{"InvalidOutputCap", func(c *Config) { c.Sandbox.MaxOutputKB = 0 }, "sandbox.max_output_kb must be positive"},
		{"InvalidConcurrency", func(c *Config) { c.Sandbox.MaxConcurrentRuns = 0 }, "sandbox.max_concurrent_runs must be positive"},
		{"UnknownBackend", func(c *Config) { c.Sandbox.Backend = "kubernetes" }, "unsupported sandbox.backend"},
		{"InvalidBackendWhenLocalNotEnabled", func(c *Config) { c.Sandbox.Backend = "local" }, "unsupported sandbox.backend"},
		{"InvalidMaxCode", func(c *Config) { c.Session.MaxCodeKB = 0 }, "session.max_code_kb must be positive"},
		{"InvalidMaxName", func(c *Config) { c.Session.MaxNameLen = 0 }, "session.max_name_len must be positive"},
		{"InvalidLoggingMode", func(c *Config) { c.Logging.Mode = "invalid_mode" }, "invalid logging.mode"},
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "invalid_level" }, "invalid logging.level"},
		{"MCPPortClash", func(c *Config) { c.MCP = MCPConfig{Enabled: true, HTTPPort: 3000} }, "invalid mcp.http_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("ValidBackendWhenLocalEnabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sandbox.Backend = "local"
		cfg.Sandbox.EnableLocalBackend = true
		require.NoError(t, cfg.validate())
	})

	t.Run("MCPDisabledIgnoresPort", func(t *testing.T) {
		cfg := validConfig()
		cfg.MCP = MCPConfig{Enabled: false, HTTPPort: 3000}
		require.NoError(t, cfg.validate())
	})
}

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	v.AddConfigPath(t.TempDir())
	v.SetConfigName("config")
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.HTTPPort)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, "local", cfg.Sandbox.Backend)
	assert.Equal(t, 10*time.Second, cfg.GetTimeout())
	assert.Equal(t, ":3000", cfg.ListenAddr())
	assert.Equal(t, "gcc", cfg.Languages["c"].Compiler)
	assert.Equal(t, "g++", cfg.Languages["cpp"].Compiler)
	assert.Equal(t, "python3", cfg.Languages["python"].Interpreter)
	assert.False(t, cfg.MCP.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	doc := map[string]any{
		"server": map[string]any{
			"http_port": 4100,
		},
		"sandbox": map[string]any{
			"backend":     "podman",
			"timeout_sec": 3,
		},
		"languages": map[string]any{
			"python": map[string]any{
				"interpreter": "/usr/local/bin/python3.12",
				"boilerplate": "print('custom')\n",
			},
		},
		"logging": map[string]any{
			"mode":  "development",
			"level": "debug",
		},
	}

	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	v := viper.New()
	v.SetConfigFile(path)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.Server.HTTPPort)
	assert.Equal(t, "podman", cfg.Sandbox.Backend)
	assert.Equal(t, 3*time.Second, cfg.GetTimeout())
	assert.Equal(t, "/usr/local/bin/python3.12", cfg.Languages["python"].Interpreter)
	assert.Equal(t, "print('custom')\n", cfg.Languages["python"].Boilerplate)
	assert.Equal(t, "gcc", cfg.Languages["c"].Compiler, "defaults survive for languages absent from the file")
	assert.Equal(t, "development", cfg.Logging.Mode)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CODEROOM_SANDBOX_TIMEOUT_SEC", "42")
	t.Setenv("CODEROOM_SERVER_HTTP_PORT", "8088")

	v := viper.New()
	v.AddConfigPath(t.TempDir())
	v.SetConfigName("config")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Sandbox.TimeoutSec)
	assert.Equal(t, 8088, cfg.Server.HTTPPort)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sandbox:\n  timeout_sec: 0\n"), 0o600))

	v := viper.New()
	v.SetConfigFile(path)

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandbox.timeout_sec must be positive")
}
