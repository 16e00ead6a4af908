package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/veranemoloko/download-engine/internal/domain"
	errpkg "github.com/veranemoloko/download-engine/internal/errors"
	"github.com/veranemoloko/download-engine/internal/events"
	"github.com/veranemoloko/download-engine/internal/manager"
	"github.com/veranemoloko/download-engine/internal/validation"
)

// DownloadService is the engine surface the handlers drive.
type DownloadService interface {
	Download(ctx context.Context, req manager.Request) (*domain.DownloadTask, error)
	DownloadMultiple(ctx context.Context, reqs []manager.Request) ([]*domain.DownloadTask, error)
	PauseDownload(id uuid.UUID) error
	ResumeDownload(id uuid.UUID) error
	CancelDownload(id uuid.UUID) error
	RemoveCompletedDownloads() error
}

// Registry is the read side the handlers query.
type Registry interface {
	Task(id uuid.UUID) (*domain.DownloadTask, bool)
	AllTasks() []*domain.DownloadTask
	Subscribe() (<-chan domain.Event, func())
}

// DownloadHandler handles HTTP requests for downloads.
type DownloadHandler struct {
	service   DownloadService
	registry  Registry
	validator *validator.Validate
	logger    *slog.Logger
}

// NewDownloadHandler creates a handler over the given service and registry.
func NewDownloadHandler(service DownloadService, registry Registry, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		service:   service,
		registry:  registry,
		validator: validation.New(),
		logger:    logger,
	}
}

// Submit handles POST /downloads.
func (h *DownloadHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.service.Download(r.Context(), manager.Request{
		URL:      req.URL,
		FileName: req.FileName,
		Priority: domain.ParsePriority(req.Priority),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, domain.NewTaskResponse(task))
}

// SubmitBatch handles POST /downloads/batch.
func (h *DownloadHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reqs := make([]manager.Request, len(req.Downloads))
	for i, d := range req.Downloads {
		reqs[i] = manager.Request{
			URL:      d.URL,
			FileName: d.FileName,
			Priority: domain.ParsePriority(d.Priority),
		}
	}

	tasks, err := h.service.DownloadMultiple(r.Context(), reqs)

	responses := make([]domain.TaskResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = domain.NewTaskResponse(task)
	}

	// Accepted submissions are not rolled back on partial failure, so
	// the response always carries them alongside any error.
	body := map[string]any{"downloads": responses}
	status := http.StatusCreated
	if err != nil {
		body["error"] = err.Error()
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, body)
}

// List handles GET /downloads.
func (h *DownloadHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks := h.registry.AllTasks()
	responses := make([]domain.TaskResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = domain.NewTaskResponse(task)
	}
	writeJSON(w, http.StatusOK, map[string]any{"downloads": responses})
}

// Get handles GET /downloads/{taskID}.
func (h *DownloadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	task, found := h.registry.Task(id)
	if !found {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, domain.NewTaskResponse(task))
}

// Pause handles POST /downloads/{taskID}/pause.
func (h *DownloadHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.service.PauseDownload(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Resume handles POST /downloads/{taskID}/resume.
func (h *DownloadHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.service.ResumeDownload(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Cancel handles POST /downloads/{taskID}/cancel.
func (h *DownloadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.service.CancelDownload(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RemoveCompleted handles DELETE /downloads/completed.
func (h *DownloadHandler) RemoveCompleted(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveCompletedDownloads(); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *DownloadHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *DownloadHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errpkg.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errpkg.ErrInsufficientDisk):
		writeError(w, http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, errpkg.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, errpkg.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errpkg.ErrNotPaused), errors.Is(err, errpkg.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

var _ Registry = (*events.Manager)(nil)
