// Package storage keeps the original files of catalog imports so a rate
// change can be traced back to the upload that caused it.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Storage abstracts file storage operations. Implementations handle the
// local filesystem or S3-compatible object storage (CEPH, MinIO, etc.).
type Storage interface {
	// Put uploads content and returns where it was stored.
	Put(ctx context.Context, key string, body io.Reader, contentType string) (location string, err error)

	// Delete removes the object at key. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
}

// ImportKey returns the object key for an import of kind uploaded at t,
// e.g. "imports/tax-rates/2026/03/01/101500-<uuid>.csv".
func ImportKey(kind string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("imports/%s/%s/%s-%s.csv", kind, t.Format("2006/01/02"), t.Format("150405"), uuid.NewString())
}
