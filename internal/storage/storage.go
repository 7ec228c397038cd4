// Package storage keeps uploaded images either on local disk or in S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dj-oyu/reefwatch/internal/logger"
)

// ErrInvalidName is returned for names that reduce to nothing after cleaning.
var ErrInvalidName = errors.New("invalid file name")

// Store saves an uploaded file and returns a URL it can be fetched from.
type Store interface {
	Save(ctx context.Context, name string, body io.Reader, contentType string) (string, error)
}

// CleanName strips directories and characters that do not belong in a file
// name. It returns ErrInvalidName when nothing usable remains.
func CleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidName
	}
	return name, nil
}

// LocalStore writes files under Dir and serves them below URLPrefix.
type LocalStore struct {
	Dir       string
	URLPrefix string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &LocalStore{Dir: dir, URLPrefix: urlPrefix}, nil
}

// Save writes body to Dir/name, replacing any file of the same name.
func (s *LocalStore) Save(ctx context.Context, name string, body io.Reader, _ string) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.Dir, name)
	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}

	logger.Debug("Storage", "Saved %s", dst)
	return s.URLPrefix + url.PathEscape(name), nil
}
