package controls

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Repository fetches the control list for a framework.
type Repository interface {
	ListControls(ctx context.Context, frameworkID string) ([]Control, error)
}

// controlFile is the YAML document format for a framework control set.
type controlFile struct {
	FrameworkID string    `yaml:"framework_id"`
	Controls    []Control `yaml:"controls"`
}

// FileRepository loads controls from YAML files under a directory tree.
// Files are discovered with a doublestar glob so frameworks can be split
// across nested directories. The loaded set is cached in memory; Reload
// replaces it atomically.
type FileRepository struct {
	dir     string
	pattern string
	logger  *slog.Logger

	mu          sync.RWMutex
	byFramework map[string][]Control
}

// NewFileRepository creates a repository over dir using the given glob
// pattern (e.g. "**/*.yaml") and performs an initial load.
func NewFileRepository(dir, pattern string, logger *slog.Logger) (*FileRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &FileRepository{
		dir:         dir,
		pattern:     pattern,
		logger:      logger,
		byFramework: make(map[string][]Control),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// ListControls returns the cached controls for a framework.
func (r *FileRepository) ListControls(_ context.Context, frameworkID string) ([]Control, error) {
	if !ValidFramework(frameworkID) {
		return nil, fmt.Errorf("unknown framework: %s", frameworkID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ctrls := r.byFramework[frameworkID]
	out := make([]Control, len(ctrls))
	copy(out, ctrls)
	return out, nil
}

// Reload re-reads every control file under the directory and replaces the
// cached set. Individual malformed files are skipped with a warning so one
// bad file cannot knock out every framework.
func (r *FileRepository) Reload() error {
	matches, err := doublestar.Glob(os.DirFS(r.dir), r.pattern)
	if err != nil {
		return fmt.Errorf("glob control files: %w", err)
	}

	loaded := make(map[string][]Control)
	for _, match := range matches {
		path := filepath.Join(r.dir, match)
		ctrls, frameworkID, err := loadControlFile(path)
		if err != nil {
			r.logger.Warn("Skipping control file", "path", path, "error", err)
			continue
		}
		loaded[frameworkID] = append(loaded[frameworkID], ctrls...)
	}

	r.mu.Lock()
	r.byFramework = loaded
	r.mu.Unlock()

	total := 0
	for fw, ctrls := range loaded {
		total += len(ctrls)
		r.logger.Debug("Loaded controls", "framework", fw, "count", len(ctrls))
	}
	r.logger.Info("Controls loaded", "files", len(matches), "controls", total)

	return nil
}

// loadControlFile parses one YAML control file and validates its entries.
func loadControlFile(path string) ([]Control, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read control file: %w", err)
	}

	var file controlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, "", fmt.Errorf("parse control file: %w", err)
	}

	if !ValidFramework(file.FrameworkID) {
		return nil, "", fmt.Errorf("unknown framework: %q", file.FrameworkID)
	}

	ctrls := make([]Control, 0, len(file.Controls))
	for i := range file.Controls {
		c := file.Controls[i]
		c.FrameworkID = file.FrameworkID
		c.Severity = NormalizeSeverity(c.Severity)
		if err := c.Validate(); err != nil {
			return nil, "", err
		}
		ctrls = append(ctrls, c)
	}

	return ctrls, file.FrameworkID, nil
}
