package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem keeps objects under a local directory. The web server exposes
// that directory at PublicBaseURL.
type Filesystem struct {
	dir     string
	baseURL string
	remote  *remoteFetcher
}

// NewFilesystem creates dir if needed.
func NewFilesystem(dir, baseURL string, remote *remoteFetcher) (*Filesystem, error) {
	if dir == "" {
		return nil, errors.New("storage dir is required")
	}
	if baseURL == "" {
		return nil, errors.New("storage public base url is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if remote == nil {
		remote = newRemoteFetcher(0)
	}
	return &Filesystem{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), remote: remote}, nil
}

// Dir is the root directory.
func (f *Filesystem) Dir() string { return f.dir }

func (f *Filesystem) Put(ctx context.Context, path string, content []byte) (string, error) {
	p, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	full := filepath.Join(f.dir, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create dir for %s: %w", p, err)
	}

	// Write to a temp file and rename so readers never see a partial file.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	return joinURL(f.baseURL, p), nil
}

func (f *Filesystem) Get(ctx context.Context, url string) ([]byte, error) {
	rel, ok := strings.CutPrefix(url, f.baseURL+"/")
	if !ok {
		return f.remote.Get(ctx, url)
	}
	p, err := cleanPath(rel)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(p)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return b, nil
}
