package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
)

// Manager handles workspace operations (both temporary and persistent)
type Manager struct {
	baseDir    string
	root       string
	persistent bool
}

// NewManager creates a new workspace manager with ephemeral timestamped directories
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// NewPersistentManager creates a workspace manager rooted at a fixed directory
// that is not removed on Cleanup.
func NewPersistentManager(dir string) *Manager {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "latexbuilder")
	}
	return &Manager{baseDir: dir, root: dir, persistent: true}
}

// Create creates the workspace directory.
func (m *Manager) Create() error {
	if m.persistent {
		if err := os.MkdirAll(m.root, 0o750); err != nil {
			return fmt.Errorf("failed to create persistent workspace directory: %w", err)
		}
		slog.Debug("Using persistent workspace", logfields.Path(m.root))
		return nil
	}

	timestamp := time.Now().Format("20060102-150405")
	dir, err := os.MkdirTemp(m.baseDir, fmt.Sprintf("latexbuilder-%s-", timestamp))
	if err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	m.root = dir
	slog.Debug("Created workspace", logfields.Path(dir))
	return nil
}

// GetPath returns the path to the workspace directory
func (m *Manager) GetPath() string {
	return m.root
}

// Cleanup removes an ephemeral workspace; persistent workspaces are kept.
func (m *Manager) Cleanup() error {
	if m.root == "" || m.persistent {
		return nil
	}
	if err := os.RemoveAll(m.root); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Debug("Cleaned up workspace", logfields.Path(m.root))
	m.root = ""
	return nil
}

// CreateSubdir creates a fresh, empty subdirectory within the workspace.
func (m *Manager) CreateSubdir(name string) (string, error) {
	subdir, err := m.subdirPath(name)
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(subdir); err != nil {
		return "", fmt.Errorf("failed to reset subdirectory: %w", err)
	}
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}
	return subdir, nil
}

// RemoveSubdir deletes a subdirectory previously created with CreateSubdir.
func (m *Manager) RemoveSubdir(name string) error {
	subdir, err := m.subdirPath(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(subdir); err != nil {
		return fmt.Errorf("failed to remove subdirectory: %w", err)
	}
	return nil
}

func (m *Manager) subdirPath(name string) (string, error) {
	if m.root == "" {
		return "", fmt.Errorf("workspace not created")
	}
	clean := filepath.Clean(name)
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid subdirectory name %q", name)
	}
	return filepath.Join(m.root, clean), nil
}
