package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalConfig configures a directory-backed store.
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"`
	// PublicURL is the prefix the files are served under, e.g.
	// http://localhost:8080/files. Empty means GetURL returns file paths.
	PublicURL string `mapstructure:"public_url"`
}

// LocalStorage keeps objects as files under a base directory.
type LocalStorage struct {
	basePath  string
	publicURL string
}

func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	if cfg.BasePath == "" {
		cfg.BasePath = "./data"
	}

	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", cfg.BasePath, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", abs, err)
	}

	return &LocalStorage{
		basePath:  abs,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}, nil
}

// BasePath is the directory served under PublicURL.
func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// fullPath maps key into the base directory; ".." segments cannot escape it.
func (s *LocalStorage) fullPath(key string) string {
	return filepath.Join(s.basePath, filepath.Clean("/"+key))
}

// Write replaces the object atomically through a temp file in the same
// directory.
func (s *LocalStorage) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	dst := s.fullPath(key)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", key, err)
	}
	return nil
}

func (s *LocalStorage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.fullPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.fullPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return true, nil
}

// GetURL returns the public URL of the file, or its path when no public URL
// is configured. expires is ignored.
func (s *LocalStorage) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if s.publicURL == "" {
		return s.fullPath(key), nil
	}

	segments := strings.Split(strings.TrimPrefix(path.Clean("/"+key), "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicURL + "/" + strings.Join(segments, "/"), nil
}
