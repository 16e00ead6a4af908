package domain

import (
	"time"

	"github.com/google/uuid"
)

// State represents the current lifecycle stage of a DownloadTask.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StatePaused      State = "paused"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Priority orders pending tasks in the queue. Higher values are
// scheduled first; equal priorities are served in submission order.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// ParsePriority maps a textual priority to its value. Unknown or empty
// input falls back to normal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// DownloadTask is one requested transfer. The manager owns the canonical
// copy held in the event registry; everything handed out to callers is a
// clone so concurrent readers never share mutable state.
type DownloadTask struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	FileName  string    `json:"file_name"`
	Priority  Priority  `json:"priority"`
	State     State     `json:"state"`
	Progress  float64   `json:"progress"`
	Rate      int64     `json:"rate"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDownloadTask creates a queued task for the given URL.
func NewDownloadTask(url, fileName string, priority Priority) *DownloadTask {
	now := time.Now()
	return &DownloadTask{
		ID:        uuid.New(),
		URL:       url,
		FileName:  fileName,
		Priority:  priority,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns an independent copy of the task.
func (t *DownloadTask) Clone() *DownloadTask {
	c := *t
	return &c
}
