package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// LocalStore writes media payloads under a directory tree. Intended for
// development and single-node deployments without object storage.
type LocalStore struct {
	baseDir   string
	publicURL string
	logger    *logrus.Logger
}

func NewLocalStore(baseDir, publicURL string, logger *logrus.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	return &LocalStore{
		baseDir:   baseDir,
		publicURL: publicURL,
		logger:    logger,
	}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))

	// Object keys are built from sanitized segments, but never trust them.
	if !strings.HasPrefix(path, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return fmt.Errorf("object key escapes media directory: %s", key)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create media subdirectory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("failed to write media file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize media file: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"key":        key,
		"size_bytes": len(data),
	}).Debug("Media written to local store")

	return nil
}

func (s *LocalStore) PublicURL(key string) string {
	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(s.publicURL, "/"), key)
	}
	return "file://" + filepath.Join(s.baseDir, filepath.FromSlash(key))
}
