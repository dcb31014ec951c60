//go:generate go run go.uber.org/mock/mockgen -source=interface.go -destination=../mocks/mock_sandbox.go -package=mocks
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Request represents the parameters for code execution
type Request struct {
	Language string
	Source   string
}

// Result represents the classified outcome of an execution
type Result struct {
	// Success is false for compile errors, runtime errors, any stderr
	// output and timeouts
	Success bool
	// Output is the text shown to participants
	Output string

	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Executor defines the interface for sandbox execution
type Executor interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Command describes one process invocation. Args[0] is the program; no shell
// is involved.
type Command struct {
	Args []string
	Dir  string
	Env  []string
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, cmd Command) (stdout, stderr string, exitCode int, err error)
}

// File permission and size constants
const (
	DirPermission  = 0o700
	FilePermission = 0o600
	BytesPerKB     = 1024

	// killGrace bounds how long a killed process may hold its output pipes
	killGrace = 2 * time.Second

	truncatedMarker = "\n[output truncated]"
)

// baseEnv lists the host variables every command inherits. Nothing else from
// the server environment reaches user code.
var baseEnv = []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR"}

// engineEnv lists the host variables a container engine CLI needs to reach
// its daemon
var engineEnv = []string{"DOCKER_HOST", "DOCKER_CONTEXT", "DOCKER_CONFIG", "CONTAINER_HOST", "XDG_RUNTIME_DIR"}

// RealCommandRunner implements CommandRunner using actual exec commands.
// Each stream is capped at MaxOutputBytes when positive. Commands see only
// baseEnv, the PassEnv names and the command's own Env.
type RealCommandRunner struct {
	MaxOutputBytes int
	PassEnv        []string
}

// environ builds the minimal environment for one command
func (r RealCommandRunner) environ(extra []string) []string {
	env := make([]string, 0, len(baseEnv)+len(r.PassEnv)+len(extra))
	for _, names := range [][]string{baseEnv, r.PassEnv} {
		for _, name := range names {
			if value, ok := os.LookupEnv(name); ok {
				env = append(env, name+"="+value)
			}
		}
	}
	return append(env, extra...)
}

// RunCommand executes the given command with arguments
func (r RealCommandRunner) RunCommand(ctx context.Context, c Command) (stdout, stderr string, exitCode int, err error) {
	if len(c.Args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...) //nolint:gosec // Argument list, never a shell string
	cmd.Dir = c.Dir
	cmd.Env = r.environ(c.Env)
	cmd.WaitDelay = killGrace
	killProcessGroupOnCancel(cmd)

	stdoutBuf := &limitedBuffer{limit: r.MaxOutputBytes}
	stderrBuf := &limitedBuffer{limit: r.MaxOutputBytes}
	cmd.Stdout = stdoutBuf
	cmd.Stderr = stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return stdoutBuf.String(), stderrBuf.String(), -1, err
		}
		exitCode = exitError.ExitCode()
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// limitedBuffer keeps the first limit bytes written and silently discards
// the rest so a chatty program cannot exhaust memory.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	if room := b.limit - b.buf.Len(); room < len(p) {
		if room > 0 {
			b.buf.Write(p[:room])
		}
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + truncatedMarker
	}
	return b.buf.String()
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
	FileExists(path string) (bool, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (RealFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}
