package object

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"statements-backend/internal/shared/util"
)

// PutOptions describes the object being written. Metadata keys are stored
// lower-cased as user metadata next to the object.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore stores exported blobs under caller-chosen keys. Keys are never
// overwritten by callers; Exists lets them check first.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// DatasetKey returns the storage key for a dataset export taken at the given time.
func DatasetKey(name string, at time.Time) (string, error) {
	clean, err := util.SanitizeKeySegment(name)
	if err != nil {
		return "", fmt.Errorf("dataset name: %w", err)
	}
	stamp := at.UTC().Format("20060102T150405Z")
	return path.Join("datasets", clean, stamp+".jsonl"), nil
}
