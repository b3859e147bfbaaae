package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"statements-backend/internal/shared/storage/object"
)

const metaSuffix = ".meta.json"

// Store keeps objects under a directory on the local filesystem. Content type
// and user metadata are written to a sidecar file next to the object.
type Store struct {
	baseDir string
}

// New creates a store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

type sidecar struct {
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Put writes r to key through a temporary file so readers never observe a
// partial object.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts object.PutOptions) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}

	written, err := writeAtomic(fullPath, func(w io.Writer) (int64, error) { return io.Copy(w, r) })
	if err != nil {
		return 0, err
	}

	if opts.ContentType != "" || len(opts.Metadata) > 0 {
		meta, err := json.Marshal(sidecar{ContentType: opts.ContentType, Metadata: lowerKeys(opts.Metadata)})
		if err != nil {
			return 0, fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := writeAtomic(fullPath+metaSuffix, func(w io.Writer) (int64, error) {
			n, err := w.Write(meta)
			return int64(n), err
		}); err != nil {
			return 0, err
		}
	}
	return written, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

// Exists reports whether key has been written.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Metadata returns the sidecar stored with key, if any.
func (s *Store) Metadata(key string) (object.PutOptions, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return object.PutOptions{}, err
	}
	raw, err := os.ReadFile(fullPath + metaSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return object.PutOptions{}, nil
	}
	if err != nil {
		return object.PutOptions{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return object.PutOptions{}, fmt.Errorf("decode metadata: %w", err)
	}
	return object.PutOptions{ContentType: meta.ContentType, Metadata: meta.Metadata}, nil
}

func (s *Store) resolve(key string) (string, error) {
	clean := filepath.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) || strings.HasSuffix(clean, metaSuffix) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func writeAtomic(path string, write func(io.Writer) (int64, error)) (int64, error) {
	tmp := path + ".part"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	n, err := write(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("rename: %w", err)
	}
	return n, nil
}

func lowerKeys(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

var _ object.ObjectStore = (*Store)(nil)
