package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmitRequest represents the request body for submitting a download.
type SubmitRequest struct {
	URL      string `json:"url" validate:"required,secure_url"`
	FileName string `json:"file_name" validate:"omitempty,max=255"`
	Priority string `json:"priority" validate:"omitempty,oneof=low normal high"`
}

// BatchRequest represents the request body for submitting several
// downloads at once.
type BatchRequest struct {
	Downloads []SubmitRequest `json:"downloads" validate:"required,min=1,max=100,dive"`
}

// TaskResponse represents the response returned for a task.
type TaskResponse struct {
	ID        uuid.UUID `json:"task_id"`
	URL       string    `json:"url"`
	FileName  string    `json:"file_name"`
	Priority  string    `json:"priority"`
	State     State     `json:"state"`
	Progress  float64   `json:"progress"`
	Rate      int64     `json:"rate"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTaskResponse converts a task into its API representation.
func NewTaskResponse(t *DownloadTask) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		URL:       t.URL,
		FileName:  t.FileName,
		Priority:  t.Priority.String(),
		State:     t.State,
		Progress:  t.Progress,
		Rate:      t.Rate,
		Error:     t.Error,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
