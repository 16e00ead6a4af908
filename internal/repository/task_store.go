package repository

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/veranemoloko/download-engine/internal/domain"
)

// TaskStore persists the task registry as a single JSON state file.
// Writes go through a temporary file and an atomic rename so a crash
// mid-write never leaves a truncated state file behind.
type TaskStore struct {
	mu   sync.Mutex
	file string
}

// Open creates a TaskStore backed by the given state file path.
func Open(filePath string) *TaskStore {
	return &TaskStore{file: filepath.Clean(filePath)}
}

// Load reads the persisted registry. A missing or empty state file is
// not an error and yields an empty slice.
func (s *TaskStore) Load() ([]*domain.DownloadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("state file does not exist, starting with empty state", "file_path", s.file)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if len(data) == 0 {
		slog.Warn("state file is empty", "file_path", s.file)
		return nil, nil
	}

	var tasks []*domain.DownloadTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state file: %w", err)
	}

	slog.Info("state loaded from file", "tasks_count", len(tasks), "file_path", s.file)
	return tasks, nil
}

// SaveAll replaces the persisted registry with the given tasks.
func (s *TaskStore) SaveAll(tasks []*domain.DownloadTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}

	tempFile := s.file + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, s.file); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	slog.Debug("state saved to file", "tasks_count", len(tasks), "file_path", s.file)
	return nil
}
