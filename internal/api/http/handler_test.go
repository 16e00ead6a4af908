package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranemoloko/download-engine/internal/domain"
	errpkg "github.com/veranemoloko/download-engine/internal/errors"
	"github.com/veranemoloko/download-engine/internal/events"
	"github.com/veranemoloko/download-engine/internal/manager"
)

type mockService struct {
	paused    []uuid.UUID
	resumed   []uuid.UUID
	cancelled []uuid.UUID
	submitErr error
}

func (m *mockService) Download(_ context.Context, req manager.Request) (*domain.DownloadTask, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return domain.NewDownloadTask(req.URL, req.FileName, req.Priority), nil
}

func (m *mockService) DownloadMultiple(ctx context.Context, reqs []manager.Request) ([]*domain.DownloadTask, error) {
	tasks := make([]*domain.DownloadTask, 0, len(reqs))
	for _, req := range reqs {
		task, err := m.Download(ctx, req)
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (m *mockService) PauseDownload(id uuid.UUID) error {
	m.paused = append(m.paused, id)
	return nil
}

func (m *mockService) ResumeDownload(id uuid.UUID) error {
	m.resumed = append(m.resumed, id)
	return errpkg.ErrNotPaused
}

func (m *mockService) CancelDownload(id uuid.UUID) error {
	m.cancelled = append(m.cancelled, id)
	return nil
}

func (m *mockService) RemoveCompletedDownloads() error { return nil }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *events.Manager {
	t.Helper()
	bus, err := events.NewManager(nil, newTestLogger())
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return bus
}

func TestSubmit_Created(t *testing.T) {
	router := NewRouter(&mockService{}, newTestRegistry(t), newTestLogger())

	body, _ := json.Marshal(domain.SubmitRequest{URL: "https://example.com/file.zip", Priority: "high"})
	req := httptest.NewRequest(http.MethodPost, "/downloads", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp domain.TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "https://example.com/file.zip", resp.URL)
	assert.Equal(t, "high", resp.Priority)
	assert.Equal(t, domain.StateQueued, resp.State)
}

func TestSubmit_RejectsInsecureURL(t *testing.T) {
	router := NewRouter(&mockService{}, newTestRegistry(t), newTestLogger())

	body, _ := json.Marshal(domain.SubmitRequest{URL: "http://example.com/file.zip"})
	req := httptest.NewRequest(http.MethodPost, "/downloads", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmit_QueueFullMapsTo429(t *testing.T) {
	svc := &mockService{submitErr: errpkg.ErrQueueFull}
	router := NewRouter(svc, newTestRegistry(t), newTestLogger())

	body, _ := json.Marshal(domain.SubmitRequest{URL: "https://example.com/file.zip"})
	req := httptest.NewRequest(http.MethodPost, "/downloads", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestSubmitBatch_PartialFailure(t *testing.T) {
	router := NewRouter(&mockService{}, newTestRegistry(t), newTestLogger())

	body, _ := json.Marshal(domain.BatchRequest{Downloads: []domain.SubmitRequest{
		{URL: "https://example.com/1.zip"},
		{URL: "https://example.com/2.zip"},
	}})
	req := httptest.NewRequest(http.MethodPost, "/downloads/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Downloads []domain.TaskResponse `json:"downloads"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Downloads, 2)
}

func TestGet_NotFound(t *testing.T) {
	router := NewRouter(&mockService{}, newTestRegistry(t), newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/downloads/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGet_ReturnsRegistryTask(t *testing.T) {
	registry := newTestRegistry(t)
	task := domain.NewDownloadTask("https://example.com/file.zip", "file.zip", domain.PriorityNormal)
	registry.UpdateTasks([]*domain.DownloadTask{task})

	router := NewRouter(&mockService{}, registry, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/downloads/"+task.ID.String(), nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp domain.TaskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, task.ID, resp.ID)
}

func TestPauseResumeCancel_Routing(t *testing.T) {
	svc := &mockService{}
	router := NewRouter(svc, newTestRegistry(t), newTestLogger())

	id := uuid.New()

	for _, action := range []string{"pause", "cancel"} {
		req := httptest.NewRequest(http.MethodPost, "/downloads/"+id.String()+"/"+action, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, action)
	}

	req := httptest.NewRequest(http.MethodPost, "/downloads/"+id.String()+"/resume", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code, "ErrNotPaused maps to conflict")

	assert.Equal(t, []uuid.UUID{id}, svc.paused)
	assert.Equal(t, []uuid.UUID{id}, svc.resumed)
	assert.Equal(t, []uuid.UUID{id}, svc.cancelled)
}

func TestEvents_StreamsSSE(t *testing.T) {
	registry := newTestRegistry(t)
	router := NewRouter(&mockService{}, registry, newTestLogger())

	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	task := domain.NewDownloadTask("https://example.com/file.zip", "file.zip", domain.PriorityNormal)

	// Publish until the stream yields a data line; the subscription is
	// established asynchronously with the request.
	lines := make(chan string, 1)
	go func() {
		buf := make([]byte, 4096)
		var acc strings.Builder
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				acc.WriteString(string(buf[:n]))
				if strings.Contains(acc.String(), "data: ") {
					lines <- acc.String()
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	deadline := time.After(3 * time.Second)
	for {
		registry.Apply(task, domain.StateChangeEvent(task.ID, domain.StateQueued))
		select {
		case payload := <-lines:
			assert.Contains(t, payload, "state_change")
			assert.Contains(t, payload, task.ID.String())
			return
		case <-deadline:
			t.Fatal("timed out waiting for SSE payload")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
