package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderoom/config"
)

func factoryConfig(backend string, enableLocal bool) *config.Config {
	return &config.Config{
		Sandbox: config.SandboxConfig{
			Backend:            backend,
			TimeoutSec:         7,
			MemoryMB:           128,
			EnableLocalBackend: enableLocal,
			WorkDir:            "/tmp/coderoom-factory",
			MaxOutputKB:        4,
			MaxConcurrentRuns:  3,
		},
		Languages: map[string]config.Language{
			"python": {Interpreter: "python3.12"},
		},
	}
}

func TestNewExecutor(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Docker", func(t *testing.T) {
		executor, err := NewExecutor(logger, factoryConfig(EngineDocker, false))
		require.NoError(t, err)
		c, ok := executor.(*ContainerExecutor)
		require.True(t, ok)
		assert.Equal(t, EngineDocker, c.engine)
		assert.Equal(t, 7*time.Second, c.config.Timeout)
		assert.Equal(t, 4*BytesPerKB, c.config.MaxOutputBytes)
	})

	t.Run("Podman", func(t *testing.T) {
		executor, err := NewExecutor(logger, factoryConfig(EnginePodman, false))
		require.NoError(t, err)
		c, ok := executor.(*ContainerExecutor)
		require.True(t, ok)
		assert.Equal(t, EnginePodman, c.engine)
	})

	t.Run("Local", func(t *testing.T) {
		executor, err := NewExecutor(logger, factoryConfig("local", true))
		require.NoError(t, err)
		l, ok := executor.(*LocalExecutor)
		require.True(t, ok)
		assert.Equal(t, "/tmp/coderoom-factory", l.config.WorkDir)
		assert.Equal(t, []string{"python3.12", PlaceholderSource}, l.toolchains["python"].Run)
	})

	t.Run("LocalDisabled", func(t *testing.T) {
		_, err := NewExecutor(logger, factoryConfig("local", false))
		assert.ErrorContains(t, err, "local backend is disabled")
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := NewExecutor(logger, factoryConfig("firecracker", true))
		assert.ErrorContains(t, err, "unsupported backend: firecracker")
	})
}

func TestNewDispatcherFromConfig(t *testing.T) {
	d := NewDispatcherFromConfig(zaptest.NewLogger(t), nil, factoryConfig("local", true))
	t.Cleanup(d.Close)
	assert.Equal(t, 3, cap(d.slots))
	assert.Zero(t, d.Active())
}
