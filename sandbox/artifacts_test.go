package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewArtifacts(t *testing.T) {
	a := newArtifacts("/work", ".c")

	assert.True(t, strings.HasPrefix(filepath.Base(a.Binary), "code-"))
	assert.Equal(t, a.Binary+".c", a.Source)
	assert.Equal(t, "/work", filepath.Dir(a.Source))
	assert.Equal(t, []string{a.Source, a.Binary, a.Binary + ".exe"}, a.paths())

	in := a.In("/sandbox")
	assert.Equal(t, "/sandbox/"+filepath.Base(a.Source), in.Source)
	assert.Equal(t, "/sandbox/"+filepath.Base(a.Binary), in.Binary)
}

func TestArtifactNamesAreUnique(t *testing.T) {
	const n = 200
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		names = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := newArtifacts("/work", ".py")
			mu.Lock()
			names[a.Source] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, names, n)
}

func TestScrub(t *testing.T) {
	a := newArtifacts("/work", ".cpp")
	text := a.Source + ":3:1: error: x\n" + "collect2: " + a.Binary + " failed"
	assert.Equal(t, "main.cpp:3:1: error: x\ncollect2: main failed", a.scrub(text))
}

func TestCleanupArtifacts(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("RemovesExistingFiles", func(t *testing.T) {
		dir := t.TempDir()
		a := newArtifacts(dir, ".c")
		require.NoError(t, os.WriteFile(a.Source, []byte("x"), FilePermission))
		require.NoError(t, os.WriteFile(a.Binary, []byte("x"), FilePermission))

		cleanupArtifacts(logger, RealFileSystem{}, a)

		for _, path := range a.paths() {
			_, err := os.Stat(path)
			assert.True(t, os.IsNotExist(err), path)
		}
	})

	t.Run("MissingFilesAreFine", func(t *testing.T) {
		a := newArtifacts(t.TempDir(), ".py")
		assert.NotPanics(t, func() { cleanupArtifacts(logger, RealFileSystem{}, a) })
	})

	t.Run("ErrorsDoNotStopCleanup", func(t *testing.T) {
		a := newArtifacts("/work", ".c")
		fs := &MockFileSystem{
			files:           map[string][]byte{a.Source: nil, a.Binary: nil, a.Binary + ".exe": nil},
			removeAllErrors: map[string]error{a.Source: errors.New("busy")},
		}

		cleanupArtifacts(logger, fs, a)
		assert.Equal(t, a.paths(), fs.removed)
	})
}

func TestResolveWorkDir(t *testing.T) {
	assert.Equal(t, "/srv/runs", resolveWorkDir("/srv/runs"))
	assert.Equal(t, filepath.Join(os.TempDir(), DefaultWorkDirName), resolveWorkDir(""))

	t.Run("Relative", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)

		got := resolveWorkDir("rel/runs")
		assert.True(t, filepath.IsAbs(got))
		assert.Equal(t, filepath.Join(dir, "rel", "runs"), got)
		assert.Equal(t, filepath.Join(dir, "runs"), resolveWorkDir("./x/../runs"))
	})
}
