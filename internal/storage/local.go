package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local stores files under a directory on the local filesystem. Suitable
// for development and single-node deployments.
type Local struct {
	basePath string
}

// NewLocal creates a local filesystem storage rooted at basePath.
func NewLocal(basePath string) *Local {
	return &Local{basePath: basePath}
}

func (l *Local) Put(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	dest := filepath.Join(l.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", key, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating file %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("writing file %s: %w", key, err)
	}

	return dest, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	path := filepath.Join(l.basePath, filepath.FromSlash(key))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file %s: %w", key, err)
	}
	return nil
}
