package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/coderoom/config"
)

// NewExecutor creates an appropriate sandbox executor based on the configuration
func NewExecutor(logger *zap.Logger, cfg *config.Config) (Executor, error) {
	executorConfig := Config{
		Timeout:        cfg.GetTimeout(),
		WorkDir:        cfg.Sandbox.WorkDir,
		MemoryMB:       cfg.Sandbox.MemoryMB,
		NetworkEnabled: cfg.Sandbox.NetworkEnabled,
		MaxOutputBytes: cfg.Sandbox.MaxOutputKB * BytesPerKB,
		User:           cfg.Sandbox.User,
	}
	toolchains := ToolchainsFromConfig(cfg)
	logger = logger.Named("sandbox").With(zap.String("backend", cfg.Sandbox.Backend))

	switch cfg.Sandbox.Backend {
	case EngineDocker, EnginePodman:
		return NewContainerExecutor(logger, cfg.Sandbox.Backend, &executorConfig,
			WithContainerToolchains(toolchains)), nil
	case "local":
		if !cfg.Sandbox.EnableLocalBackend {
			return nil, fmt.Errorf("local backend is disabled")
		}
		logger.Warn("local backend runs untrusted code without isolation")
		return NewLocalExecutor(logger, &executorConfig, WithLocalToolchains(toolchains)), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}

// NewDispatcherFromConfig creates a Dispatcher bounded by sandbox.max_concurrent_runs
func NewDispatcherFromConfig(logger *zap.Logger, executor Executor, cfg *config.Config) *Dispatcher {
	return NewDispatcher(logger.Named("dispatcher"), executor, cfg.Sandbox.MaxConcurrentRuns)
}
