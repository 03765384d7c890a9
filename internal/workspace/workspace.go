// Package workspace manages the ephemeral per-task working directories that
// hold local git checkouts. A directory lives exactly as long as one task's
// processing and is removed on every exit path.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// Manager hands out isolated task directories under a common base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a workspace manager. An empty baseDir falls back to the
// system temp directory.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// Workspace is one task's working directory.
type Workspace struct {
	Path string
}

// Acquire creates a fresh directory for the task. The uuid suffix keeps
// directories collision-free even if the same task id is submitted twice.
func (m *Manager) Acquire(taskID string) (*Workspace, error) {
	name := fmt.Sprintf("pagesmith-%s-%s", sanitize(taskID), uuid.NewString()[:8])
	dir := filepath.Join(m.baseDir, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, ferrors.FileSystemError("failed to create workspace directory").
			WithCause(err).
			WithContext("path", dir).Build()
	}
	slog.Debug("Created workspace", logfields.TaskID(taskID), logfields.Path(dir))
	return &Workspace{Path: dir}, nil
}

// Remove deletes the workspace directory. Safe to call more than once.
func (w *Workspace) Remove() error {
	if w == nil || w.Path == "" {
		return nil
	}
	if err := os.RemoveAll(w.Path); err != nil {
		return ferrors.FileSystemError("failed to cleanup workspace").
			WithCause(err).
			WithContext("path", w.Path).Build()
	}
	slog.Debug("Cleaned up workspace", logfields.Path(w.Path))
	w.Path = ""
	return nil
}

// sanitize maps a task id onto a filesystem-safe directory fragment.
func sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, s)
	if mapped == "" {
		return "task"
	}
	return mapped
}
