package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func requireProgram(t *testing.T, name string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping toolchain test in short mode")
	}
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func newRealLocalExecutor(t *testing.T, timeout time.Duration) (*LocalExecutor, string) {
	t.Helper()
	dir := t.TempDir()
	return NewLocalExecutor(zaptest.NewLogger(t), &Config{
		Timeout:        timeout,
		WorkDir:        dir,
		MaxOutputBytes: 64 * BytesPerKB,
	}), dir
}

func assertWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalPython(t *testing.T) {
	requireProgram(t, "python3")
	executor, dir := newRealLocalExecutor(t, 10*time.Second)

	t.Run("Hello", func(t *testing.T) {
		res, err := executor.Run(context.Background(), Request{
			Language: LanguagePython,
			Source:   "# Start coding here...\nprint(\"Hello from Python!\")\n",
		})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "Hello from Python!\n", res.Output)
		assertWorkDirEmpty(t, dir)
	})

	t.Run("NameErrorEchoesLine", func(t *testing.T) {
		res, err := executor.Run(context.Background(), Request{
			Language: LanguagePython,
			Source:   "a = 1\nprint(b)\n",
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.True(t, strings.HasPrefix(res.Output, "Compilation Error:\nError at Line 2: "), res.Output)
		assert.Contains(t, res.Output, "NameError")
		assert.Contains(t, res.Output, "Code: print(b)\n")
		assert.NotContains(t, res.Output, dir)
		assertWorkDirEmpty(t, dir)
	})

	t.Run("NoOutput", func(t *testing.T) {
		res, err := executor.Run(context.Background(), Request{Language: LanguagePython, Source: "x = 1\n"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "No output", res.Output)
	})

	t.Run("RelativeWorkDir", func(t *testing.T) {
		root := t.TempDir()
		t.Chdir(root)

		relative := NewLocalExecutor(zaptest.NewLogger(t), &Config{
			Timeout:        10 * time.Second,
			WorkDir:        "rel",
			MaxOutputBytes: 64 * BytesPerKB,
		})
		res, err := relative.Run(context.Background(), Request{Language: LanguagePython, Source: "print(\"hi\")\n"})
		require.NoError(t, err)
		assert.True(t, res.Success, res.Output)
		assert.Equal(t, "hi\n", res.Output)
		assertWorkDirEmpty(t, filepath.Join(root, "rel"))
	})
}

func TestLocalPythonTimeout(t *testing.T) {
	requireProgram(t, "python3")
	executor, dir := newRealLocalExecutor(t, 500*time.Millisecond)

	started := time.Now()
	res, err := executor.Run(context.Background(), Request{Language: LanguagePython, Source: "while True:\n    pass\n"})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Success)
	assert.Less(t, time.Since(started), 5*time.Second)
	assertWorkDirEmpty(t, dir)
}

func TestLocalC(t *testing.T) {
	requireProgram(t, "gcc")
	executor, dir := newRealLocalExecutor(t, 20*time.Second)

	t.Run("Hello", func(t *testing.T) {
		res, err := executor.Run(context.Background(), Request{
			Language: LanguageC,
			Source:   "#include <stdio.h>\nint main() {\n    printf(\"Hello from C!\\n\");\n    return 0;\n}\n",
		})
		require.NoError(t, err)
		assert.True(t, res.Success, res.Output)
		assert.Equal(t, "Hello from C!\n", res.Output)
		assertWorkDirEmpty(t, dir)
	})

	t.Run("CompileError", func(t *testing.T) {
		res, err := executor.Run(context.Background(), Request{
			Language: LanguageC,
			Source:   "#include <stdio.h>\nint main() {\n    printf(\"x\")\n    return 0;\n}\n",
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.True(t, strings.HasPrefix(res.Output, "Compilation Error:\n"), res.Output)
		assert.Contains(t, res.Output, "error")
		assert.NotContains(t, res.Output, dir)
		assertWorkDirEmpty(t, dir)
	})

	t.Run("ConcurrentRunsDoNotCollide", func(t *testing.T) {
		const n = 4
		var wg sync.WaitGroup
		results := make([]Result, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = executor.Run(context.Background(), Request{
					Language: LanguageC,
					Source:   fmt.Sprintf("#include <stdio.h>\nint main() { printf(\"%d\\n\"); return 0; }\n", i),
				})
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, fmt.Sprintf("%d\n", i), results[i].Output)
		}
		assertWorkDirEmpty(t, dir)
	})
}
