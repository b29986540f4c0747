package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
)

const (
	runsDir   = "runs"
	sourceDir = "src"
)

// Workspace is a single run's directory tree.
type Workspace struct {
	RunID string
	// Root is the scratch directory owned by the run.
	Root string

	source   string
	attached bool
}

// SourceDir returns the checkout directory.
func (w *Workspace) SourceDir() string {
	return w.source
}

// Attached reports whether the source tree is an existing directory that
// checkout must leave untouched.
func (w *Workspace) Attached() bool {
	return w.attached
}

// Subdir creates and returns a directory inside the scratch root.
func (w *Workspace) Subdir(name string) (string, error) {
	dir := filepath.Join(w.Root, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}
	return dir, nil
}

// Manager creates and removes run workspaces below a base directory.
type Manager struct {
	baseDir string
	keep    bool
}

// NewManager creates a workspace manager rooted at baseDir/runs.
// With keep set, Cleanup leaves directories in place for inspection.
func NewManager(baseDir string, keep bool) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: filepath.Join(baseDir, runsDir), keep: keep}
}

// Create makes a fresh workspace for runID. An existing directory for the
// same run is an error: workspaces are never reused.
func (m *Manager) Create(runID string) (*Workspace, error) {
	root, err := m.mkRoot(runID)
	if err != nil {
		return nil, err
	}
	ws := &Workspace{RunID: runID, Root: root, source: filepath.Join(root, sourceDir)}
	slog.Info("Created workspace", logfields.RunID(runID), logfields.Path(root))
	return ws, nil
}

// Attach makes a workspace whose source tree is an existing directory.
func (m *Manager) Attach(runID, source string) (*Workspace, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryProvision, "invalid source directory").
			WithContext("path", source).
			Build()
	}
	if fi, statErr := os.Stat(abs); statErr != nil || !fi.IsDir() {
		return nil, errors.ProvisionError("source directory does not exist").
			WithContext("path", abs).
			Build()
	}
	root, err := m.mkRoot(runID)
	if err != nil {
		return nil, err
	}
	slog.Info("Attached workspace", logfields.RunID(runID), logfields.Path(abs))
	return &Workspace{RunID: runID, Root: root, source: abs, attached: true}, nil
}

func (m *Manager) mkRoot(runID string) (string, error) {
	if runID == "" || filepath.Base(runID) != runID {
		return "", errors.ValidationError("invalid run id for workspace").
			WithContext("run_id", runID).
			Build()
	}
	root := filepath.Join(m.baseDir, runID)
	if _, err := os.Stat(root); err == nil {
		return "", errors.ProvisionError("workspace already exists").
			WithContext("path", root).
			Build()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return "", errors.WrapError(err, errors.CategoryProvision, "failed to create workspace directory").
			WithContext("path", root).
			Build()
	}
	return root, nil
}

// Cleanup removes the workspace scratch tree, including a cloned source.
// Attached source trees are never removed.
func (m *Manager) Cleanup(ws *Workspace) error {
	if ws == nil || ws.Root == "" {
		return nil
	}
	if m.keep {
		slog.Debug("Keeping workspace", logfields.RunID(ws.RunID), logfields.Path(ws.Root))
		return nil
	}
	if err := os.RemoveAll(ws.Root); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Info("Cleaned up workspace", logfields.RunID(ws.RunID), logfields.Path(ws.Root))
	ws.Root = ""
	return nil
}
