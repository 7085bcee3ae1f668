// Package files materializes the result files of completed tasks. The
// orchestration core only depends on the Uploader interface; blob-storage
// backends live behind it.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Uploader stores one result file and returns a URL for it.
type Uploader interface {
	Upload(ctx context.Context, owner, taskID, name string, content []byte) (string, error)
}

// Local is an Uploader that writes files under a root directory, laid out
// as <root>/<owner>/<taskID>/<name>.
type Local struct {
	root string
}

// NewLocal creates a local-disk uploader rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// pathComponent flattens a caller-supplied value to a single safe path
// segment. Base alone is not enough: Base("..") is still "..", which would
// resolve one level above the root.
func pathComponent(s, fallback string) string {
	s = filepath.Base(s)
	if s == "" || s == "." || s == ".." || s == string(filepath.Separator) {
		return fallback
	}
	return s
}

// Upload writes the file and returns a file:// URL to it. Every path
// component is flattened to a single segment so task content cannot escape
// the root.
func (l *Local) Upload(ctx context.Context, owner, taskID, name string, content []byte) (string, error) {
	dir := filepath.Join(l.root, pathComponent(owner, "anonymous"), pathComponent(taskID, "unknown"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	path := filepath.Join(dir, pathComponent(name, "file"))
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve file path: %w", err)
	}
	return "file://" + abs, nil
}
