package sandbox

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Container engines
const (
	EngineDocker = "docker"
	EnginePodman = "podman"
)

// containerWorkDir is where the shared work dir is mounted inside containers
const containerWorkDir = "/sandbox"

// killTimeout bounds the forced removal of a container after a deadline
const killTimeout = 5 * time.Second

// ContainerExecutor runs every step of an execution in a throwaway
// container of the language image, started through the docker or podman
// CLI with resource limits, no network and all capabilities dropped.
type ContainerExecutor struct {
	engine     string
	logger     *zap.Logger
	config     *Config
	toolchains Toolchains
	cmdRunner  CommandRunner
	fs         FileSystem
}

// ContainerExecutorOption defines a functional option for ContainerExecutor
type ContainerExecutorOption func(*ContainerExecutor)

// WithContainerCommandRunner sets the CommandRunner for ContainerExecutor
func WithContainerCommandRunner(cmdRunner CommandRunner) ContainerExecutorOption {
	return func(c *ContainerExecutor) {
		c.cmdRunner = cmdRunner
	}
}

// WithContainerFileSystem sets the FileSystem for ContainerExecutor
func WithContainerFileSystem(fs FileSystem) ContainerExecutorOption {
	return func(c *ContainerExecutor) {
		c.fs = fs
	}
}

// WithContainerToolchains sets the Toolchains for ContainerExecutor
func WithContainerToolchains(toolchains Toolchains) ContainerExecutorOption {
	return func(c *ContainerExecutor) {
		c.toolchains = toolchains
	}
}

// NewContainerExecutor creates a ContainerExecutor for engine ("docker" or "podman")
func NewContainerExecutor(logger *zap.Logger, engine string, config *Config, opts ...ContainerExecutorOption) *ContainerExecutor {
	executor := &ContainerExecutor{
		engine:     engine,
		logger:     logger,
		config:     config,
		toolchains: DefaultToolchains(),
		cmdRunner:  RealCommandRunner{MaxOutputBytes: config.MaxOutputBytes, PassEnv: engineEnv},
		fs:         RealFileSystem{},
	}

	for _, opt := range opts {
		opt(executor)
	}
	executor.config.WorkDir = resolveWorkDir(executor.config.WorkDir)

	return executor
}

// NewDockerExecutor creates a ContainerExecutor backed by docker
func NewDockerExecutor(logger *zap.Logger, config *Config, opts ...ContainerExecutorOption) *ContainerExecutor {
	return NewContainerExecutor(logger, EngineDocker, config, opts...)
}

// NewPodmanExecutor creates a ContainerExecutor backed by podman
func NewPodmanExecutor(logger *zap.Logger, config *Config, opts ...ContainerExecutorOption) *ContainerExecutor {
	return NewContainerExecutor(logger, EnginePodman, config, opts...)
}

// Run compiles (when needed) and runs the source in containers
func (c *ContainerExecutor) Run(ctx context.Context, req Request) (Result, error) {
	tc, err := c.toolchains.Lookup(req.Language)
	if err != nil {
		return Result{}, err
	}

	art := newArtifacts(c.config.WorkDir, tc.Extension)
	defer cleanupArtifacts(c.logger, c.fs, art)

	if err := c.fs.MkdirAll(c.config.WorkDir, DirPermission); err != nil {
		return Result{}, fmt.Errorf("failed to create work dir: %w", err)
	}
	if err := c.fs.WriteFile(art.Source, []byte(req.Source), FilePermission); err != nil {
		return Result{}, fmt.Errorf("failed to write user code: %w", err)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	runner := &containerRunner{executor: c, image: tc.Image}
	inner := art.In(containerWorkDir)

	started := time.Now()
	res, err := runSteps(ctxWithTimeout, runner, planSteps(tc, inner), c.config.Timeout, containerWorkDir, tc.Env, req.Source, func(s string) string {
		return inner.scrub(art.scrub(s))
	})
	res.Duration = time.Since(started)
	if err != nil {
		return res, err
	}

	c.logger.Debug("container execution finished",
		zap.String("engine", c.engine),
		zap.String("language", req.Language),
		zap.Bool("success", res.Success),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration))

	return res, nil
}

// runArgs builds the engine invocation for one step
func (c *ContainerExecutor) runArgs(name, image string, cmd Command) []string {
	args := []string{
		c.engine, "run",
		"--name", name,
		"--rm",
		"-v", fmt.Sprintf("%s:%s", c.config.WorkDir, containerWorkDir),
		"--workdir", cmd.Dir,
		"--memory", fmt.Sprintf("%dm", c.config.MemoryMB),
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL",
		"--user", c.user(),
	}

	if c.config.NetworkEnabled {
		args = append(args, "--network", "bridge")
	} else {
		args = append(args, "--network", "none")
	}

	for _, kv := range cmd.Env {
		args = append(args, "-e", kv)
	}

	args = append(args, image)
	return append(args, cmd.Args...)
}

// user returns the configured container user or the server's own uid:gid so
// the compiled binary stays removable from the host.
func (c *ContainerExecutor) user() string {
	if c.config.User != "" {
		return c.config.User
	}
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}

// kill force-removes a container left behind by an interrupted step
func (c *ContainerExecutor) kill(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()

	_, stderr, code, err := c.cmdRunner.RunCommand(ctx, Command{Args: []string{c.engine, "rm", "-f", name}})
	if err != nil || code != 0 {
		c.logger.Warn("failed to remove container after interruption",
			zap.String("container", name),
			zap.String("stderr", stderr),
			zap.Error(err))
	}
}

// containerRunner adapts steps to container invocations
type containerRunner struct {
	executor *ContainerExecutor
	image    string
}

func (r *containerRunner) RunCommand(ctx context.Context, cmd Command) (stdout, stderr string, exitCode int, err error) {
	name := transientName("coderoom")

	stdout, stderr, exitCode, err = r.executor.cmdRunner.RunCommand(ctx, Command{
		Args: r.executor.runArgs(name, r.image, cmd),
	})
	if ctx.Err() != nil {
		r.executor.kill(name)
	}
	return stdout, stderr, exitCode, err
}
