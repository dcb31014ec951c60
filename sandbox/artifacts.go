package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultWorkDirName is created under os.TempDir when no work dir is configured
const DefaultWorkDirName = "coderoom-sandbox"

// displayName replaces transient file names in diagnostics
const displayName = "main"

var transientSeq atomic.Uint64

// artifacts names the transient files of one run. The base name combines a
// nanosecond timestamp with a process-wide sequence so concurrent runs never
// share a file.
type artifacts struct {
	dir    string
	base   string
	ext    string
	Source string
	Binary string
}

// transientName returns a unique name with the given prefix
func transientName(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), transientSeq.Add(1))
}

func newArtifacts(dir, ext string) artifacts {
	base := transientName("code")
	return artifacts{
		dir:    dir,
		base:   base,
		ext:    ext,
		Source: filepath.Join(dir, base+ext),
		Binary: filepath.Join(dir, base),
	}
}

// In returns the same artifacts as seen from another mount point
func (a artifacts) In(dir string) artifacts {
	return artifacts{
		dir:    dir,
		base:   a.base,
		ext:    a.ext,
		Source: filepath.ToSlash(filepath.Join(dir, a.base+a.ext)),
		Binary: filepath.ToSlash(filepath.Join(dir, a.base)),
	}
}

// paths lists every file a run may leave behind, including the
// platform-specific executable suffix variant of the binary.
func (a artifacts) paths() []string {
	return []string{a.Source, a.Binary, a.Binary + ".exe"}
}

// scrub rewrites transient paths in toolchain output to a stable name
func (a artifacts) scrub(text string) string {
	text = strings.ReplaceAll(text, a.Source, displayName+a.ext)
	text = strings.ReplaceAll(text, a.Binary, displayName)
	return text
}

// cleanupArtifacts removes every transient file of a run. Missing files are
// expected; other failures are logged and otherwise ignored.
func cleanupArtifacts(logger *zap.Logger, fs FileSystem, a artifacts) {
	for _, path := range a.paths() {
		exists, err := fs.FileExists(path)
		if err != nil {
			logger.Warn("failed to stat transient file", zap.String("path", path), zap.Error(err))
			continue
		}
		if !exists {
			continue
		}
		if err := fs.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove transient file", zap.String("path", path), zap.Error(err))
		}
	}
}

// resolveWorkDir returns the configured work dir, or the default one, as an
// absolute path. Toolchains run with the work dir as their cwd and container
// engines only mount absolute host paths.
func resolveWorkDir(dir string) string {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), DefaultWorkDirName)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	return abs
}
