package repository

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/download-engine/internal/domain"
)

func TestTaskStore_SaveAndLoad(t *testing.T) {
	file := t.TempDir() + "/state.json"
	store := Open(file)

	task := domain.NewDownloadTask("https://example.com/a", "a.bin", domain.PriorityNormal)
	task.State = domain.StateCompleted

	err := store.SaveAll([]*domain.DownloadTask{task})
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, task.ID, loaded[0].ID)
	assert.Equal(t, domain.StateCompleted, loaded[0].State)
	assert.Equal(t, "a.bin", loaded[0].FileName)
}

func TestTaskStore_LoadMissingFile(t *testing.T) {
	store := Open(t.TempDir() + "/missing.json")

	tasks, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskStore_LoadEmptyFile(t *testing.T) {
	file := t.TempDir() + "/state.json"
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	store := Open(file)
	tasks, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskStore_LoadCorruptFile(t *testing.T) {
	file := t.TempDir() + "/state.json"
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0o644))

	store := Open(file)
	_, err := store.Load()
	assert.Error(t, err)
}

func TestTaskStore_SaveReplacesPrevious(t *testing.T) {
	file := t.TempDir() + "/state.json"
	store := Open(file)

	first := domain.NewDownloadTask("https://example.com/1", "1", domain.PriorityNormal)
	second := domain.NewDownloadTask("https://example.com/2", "2", domain.PriorityNormal)

	require.NoError(t, store.SaveAll([]*domain.DownloadTask{first, second}))
	require.NoError(t, store.SaveAll([]*domain.DownloadTask{second}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, second.ID, loaded[0].ID)
}
