package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config holds configuration shared by the executors
type Config struct {
	Timeout        time.Duration
	WorkDir        string
	MemoryMB       int
	NetworkEnabled bool
	MaxOutputBytes int
	// User is the container user; empty means the server's uid:gid
	User string
}

// LocalExecutor runs toolchains directly on the host inside a shared work
// directory. It applies a deadline and process-group kill but no further
// isolation, so it is meant for development and trusted deployments.
type LocalExecutor struct {
	logger     *zap.Logger
	config     *Config
	toolchains Toolchains
	cmdRunner  CommandRunner
	fs         FileSystem
}

// LocalExecutorOption defines a functional option for LocalExecutor
type LocalExecutorOption func(*LocalExecutor)

// WithLocalCommandRunner sets the CommandRunner for LocalExecutor
func WithLocalCommandRunner(cmdRunner CommandRunner) LocalExecutorOption {
	return func(l *LocalExecutor) {
		l.cmdRunner = cmdRunner
	}
}

// WithLocalFileSystem sets the FileSystem for LocalExecutor
func WithLocalFileSystem(fs FileSystem) LocalExecutorOption {
	return func(l *LocalExecutor) {
		l.fs = fs
	}
}

// WithLocalToolchains sets the Toolchains for LocalExecutor
func WithLocalToolchains(toolchains Toolchains) LocalExecutorOption {
	return func(l *LocalExecutor) {
		l.toolchains = toolchains
	}
}

// NewLocalExecutor creates a new LocalExecutor with default implementations and optional interfaces
func NewLocalExecutor(logger *zap.Logger, config *Config, opts ...LocalExecutorOption) *LocalExecutor {
	executor := &LocalExecutor{
		logger:     logger,
		config:     config,
		toolchains: DefaultToolchains(),
		cmdRunner:  RealCommandRunner{MaxOutputBytes: config.MaxOutputBytes},
		fs:         RealFileSystem{},
	}

	for _, opt := range opts {
		opt(executor)
	}
	executor.config.WorkDir = resolveWorkDir(executor.config.WorkDir)

	return executor
}

// Run compiles (when needed) and runs the source on the host
func (l *LocalExecutor) Run(ctx context.Context, req Request) (Result, error) {
	tc, err := l.toolchains.Lookup(req.Language)
	if err != nil {
		return Result{}, err
	}

	art := newArtifacts(l.config.WorkDir, tc.Extension)
	defer cleanupArtifacts(l.logger, l.fs, art)

	if err := l.fs.MkdirAll(l.config.WorkDir, DirPermission); err != nil {
		return Result{}, fmt.Errorf("failed to create work dir: %w", err)
	}
	if err := l.fs.WriteFile(art.Source, []byte(req.Source), FilePermission); err != nil {
		return Result{}, fmt.Errorf("failed to write user code: %w", err)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	started := time.Now()
	steps := planSteps(tc, art)
	res, err := runSteps(ctxWithTimeout, l.cmdRunner, steps, l.config.Timeout, l.config.WorkDir, tc.Env, req.Source, art.scrub)
	res.Duration = time.Since(started)
	if err != nil {
		return res, err
	}

	l.logger.Debug("local execution finished",
		zap.String("language", req.Language),
		zap.Bool("success", res.Success),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration))

	return res, nil
}

// step is one process of a run: the compile step or the program itself
type step struct {
	name string
	args []string
}

// planSteps lists the steps of a run with paths as seen by the process
func planSteps(tc Toolchain, in artifacts) []step {
	var steps []step
	if tc.Compiled() {
		steps = append(steps, step{name: "compile", args: tc.CompileArgs(in.Source, in.Binary)})
	}
	return append(steps, step{name: "run", args: tc.RunArgs(in.Source, in.Binary)})
}

// runSteps executes steps in order like "compile && run". Stderr of every
// executed step counts towards classification, so compiler warnings make a
// run fail the same way runtime errors do.
func runSteps(
	ctx context.Context,
	runner CommandRunner,
	steps []step,
	timeout time.Duration,
	dir string,
	env []string,
	source string,
	scrub func(string) string,
) (Result, error) {
	var stdout, stderr string
	exitCode := 0

	for _, s := range steps {
		out, errOut, code, err := runner.RunCommand(ctx, Command{Args: s.args, Dir: dir, Env: env})
		stdout += scrub(out)
		stderr += scrub(errOut)
		exitCode = code

		if ctxErr := ctx.Err(); ctxErr != nil {
			return interrupted(stdout, stderr, timeout, ctxErr), nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to execute %s step: %w", s.name, err)
		}
		if code != 0 {
			break
		}
	}

	return classify(source, stdout, stderr, exitCode), nil
}

// interrupted builds the result of a run cut short by its deadline or a cancel
func interrupted(stdout, stderr string, timeout time.Duration, ctxErr error) Result {
	res := Result{Stdout: stdout, Stderr: stderr, ExitCode: -1}
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		res.TimedOut = true
		res.Output = fmt.Sprintf("%s%s\nExecution timed out after %s", stdout, stderr, timeout)
	} else {
		res.Output = stdout + stderr + "\nExecution cancelled"
	}
	return res
}
