package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
)

// LocalAudioStore persists uploaded audio on the local filesystem under
// one directory per user
type LocalAudioStore struct {
	baseDir string
	logger  *zap.Logger
}

var _ repositories.AudioStore = (*LocalAudioStore)(nil)

// NewLocalAudioStore creates a filesystem-backed audio store rooted at baseDir
func NewLocalAudioStore(baseDir string, logger *zap.Logger) (*LocalAudioStore, error) {
	if baseDir == "" {
		baseDir = "uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalAudioStore{
		baseDir: baseDir,
		logger:  logger,
	}, nil
}

// Save writes the audio under the user's directory. The stored name is
// derived from the upload timestamp plus a short unique suffix so two
// uploads of the same file never collide.
func (s *LocalAudioStore) Save(ctx context.Context, userID, filename string, r io.Reader) (string, int64, error) {
	userDir := filepath.Join(s.baseDir, userID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", 0, &entities.StorageError{Op: "mkdir", Err: err}
	}

	safeName := strings.ReplaceAll(filepath.Base(filename), " ", "_")
	stamp := time.Now().Format("20060102_150405")
	storedName := fmt.Sprintf("%s_%s_%s", stamp, uuid.NewString()[:8], safeName)
	path := filepath.Join(userDir, storedName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, &entities.StorageError{Op: "create", Err: err}
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(path)
		return "", 0, &entities.StorageError{Op: "write", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", 0, &entities.StorageError{Op: "close", Err: err}
	}

	s.logger.Debug("audio stored",
		zap.String("path", path),
		zap.Int64("size", size))

	return path, size, nil
}

// Remove deletes a previously stored file
func (s *LocalAudioStore) Remove(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return &entities.StorageError{Op: "remove", Err: err}
	}
	return nil
}
