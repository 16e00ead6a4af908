package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/veranemoloko/download-engine/internal/domain"
)

// Store manages one subdirectory per task id under a base download
// directory. The final artifact for a task lives at
// <base>/<task-id>/<file-name>. Every operation is serialized through a
// single mutex so concurrent transport completions never race on the
// filesystem; callers see each call as complete when it returns.
type Store struct {
	mu      sync.Mutex
	baseDir string
	logger  *slog.Logger
}

// New creates a Store rooted at baseDir, creating it if needed.
func New(baseDir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &Store{baseDir: baseDir, logger: logger}, nil
}

// TaskDir returns the directory for the given task id.
func (s *Store) TaskDir(id uuid.UUID) string {
	return filepath.Join(s.baseDir, id.String())
}

// FilePath returns where the task's final artifact lives (or will live).
func (s *Store) FilePath(task *domain.DownloadTask) string {
	return filepath.Join(s.TaskDir(task.ID), task.FileName)
}

// CreateDir ensures the task's directory exists. Idempotent.
func (s *Store) CreateDir(task *domain.DownloadTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.TaskDir(task.ID), 0o755); err != nil {
		return fmt.Errorf("create task directory: %w", err)
	}
	return nil
}

// SaveFile copies the completed transfer at srcPath into the task's
// directory under the task's file name, overwriting any existing
// destination. Idempotent.
func (s *Store) SaveFile(srcPath string, task *domain.DownloadTask) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.TaskDir(task.ID), 0o755); err != nil {
		return "", fmt.Errorf("create task directory: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open source file: %w", err)
	}
	defer src.Close()

	dstPath := s.FilePath(task)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("create destination file: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return "", fmt.Errorf("copy artifact: %w", err)
	}

	s.logger.Debug("artifact saved",
		"task_id", task.ID,
		"file_path", dstPath,
		"bytes", n,
	)
	return dstPath, nil
}

// FileExists reports whether the task's final artifact is on disk.
func (s *Store) FileExists(task *domain.DownloadTask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.FilePath(task))
	return err == nil && !info.IsDir()
}

// Remove deletes the task's directory and everything in it. Idempotent.
func (s *Store) Remove(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.TaskDir(id)); err != nil {
		return fmt.Errorf("remove task directory: %w", err)
	}
	return nil
}

// ClearAll wipes the base directory and recreates it empty.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.baseDir); err != nil {
		return fmt.Errorf("remove base directory: %w", err)
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("recreate base directory: %w", err)
	}
	return nil
}
