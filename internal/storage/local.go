package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheMichaelB/streamfs/internal/events"
)

// LocalObjectStore keeps objects as files under a base directory. Writes
// are atomic: data lands in a temp file that is renamed into place.
type LocalObjectStore struct {
	baseDir string
	logger  *events.Logger

	maxPathLength int
}

// NewLocalObjectStore creates a store rooted at baseDir.
func NewLocalObjectStore(baseDir string, logger *events.Logger) (*LocalObjectStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &LocalObjectStore{
		baseDir:       absPath,
		logger:        logger.WithField("component", "local_object_store"),
		maxPathLength: 1024,
	}, nil
}

// PutObject writes body atomically.
func (s *LocalObjectStore) PutObject(ctx context.Context, key string, body []byte) error {
	safePath, err := s.sanitizePath(key)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(body),
	}).Debug("Writing object")

	if err := os.MkdirAll(filepath.Dir(safePath), 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tempPath := fmt.Sprintf("%s.tmp.%d", safePath, time.Now().UnixNano())
	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		tempFile.Close()
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(body); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync file: %w", err)
	}
	tempFile.Close()

	if err := os.Rename(tempPath, safePath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}

// GetObject reads an object.
func (s *LocalObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	safePath, err := s.sanitizePath(key)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	data, err := os.ReadFile(safePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// DeleteObject removes an object and any directories it leaves empty.
func (s *LocalObjectStore) DeleteObject(ctx context.Context, key string) error {
	safePath, err := s.sanitizePath(key)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	if err := os.Remove(safePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("delete object: %w", err)
	}

	s.cleanEmptyDirs(filepath.Dir(safePath))
	return nil
}

// sanitizePath maps a key to a path under the base directory.
func (s *LocalObjectStore) sanitizePath(key string) (string, error) {
	if strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("path contains null bytes")
	}

	cleaned := filepath.Clean(filepath.FromSlash("/" + key))
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains '..'")
	}
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("empty key")
	}

	fullPath := filepath.Join(s.baseDir, cleaned)
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory")
	}

	if len(fullPath) > s.maxPathLength {
		return "", fmt.Errorf("path too long: %d characters (max: %d)", len(fullPath), s.maxPathLength)
	}

	return fullPath, nil
}

func (s *LocalObjectStore) cleanEmptyDirs(dirPath string) {
	for dirPath != s.baseDir && strings.HasPrefix(dirPath, s.baseDir) {
		entries, err := os.ReadDir(dirPath)
		if err != nil || len(entries) > 0 {
			break
		}

		if err := os.Remove(dirPath); err != nil {
			break
		}

		dirPath = filepath.Dir(dirPath)
	}
}
