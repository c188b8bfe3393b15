// Package storage stores export files and reads import files.
//
// Objects are addressed by a slash-separated path on write and by the URL
// returned from Put on read. Get also accepts any http(s) URL, so import
// files hosted elsewhere can be fetched.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("file not found")

// BlobStore writes and reads whole objects.
type BlobStore interface {
	// Put stores content at path and returns the URL it can be read from.
	Put(ctx context.Context, path string, content []byte) (string, error)
	// Get returns the content behind url.
	Get(ctx context.Context, url string) ([]byte, error)
}

// Config selects and configures a backend.
type Config struct {
	Driver string // "filesystem" or "s3"

	// filesystem
	Dir string

	// s3
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool

	// PublicBaseURL prefixes returned URLs. Required for filesystem.
	PublicBaseURL string

	FetchTimeout time.Duration
}

// New builds the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config) (BlobStore, error) {
	fetch := newRemoteFetcher(cfg.FetchTimeout)
	switch strings.ToLower(cfg.Driver) {
	case "", "filesystem":
		fs, err := NewFilesystem(cfg.Dir, cfg.PublicBaseURL, fetch)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "s3":
		s3, err := NewS3(ctx, cfg, fetch)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// cleanPath rejects paths that could escape the store root.
func cleanPath(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", errors.New("path cannot be empty")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return "", fmt.Errorf("invalid path %q", p)
		}
	}
	return p, nil
}

func joinURL(base, p string) string {
	return strings.TrimRight(base, "/") + "/" + p
}

// remoteFetcher downloads objects that live outside the configured backend.
type remoteFetcher struct {
	http *resty.Client
}

func newRemoteFetcher(timeout time.Duration) *remoteFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &remoteFetcher{http: resty.New().SetTimeout(timeout)}
}

func (f *remoteFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unsupported file url %q", url)
	}
	resp, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("fetch %s: %w", url, ErrNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status())
	}
	return resp.Body(), nil
}
