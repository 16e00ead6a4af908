package queue

import (
	"sync"

	"github.com/google/uuid"

	"github.com/veranemoloko/download-engine/internal/domain"
	errpkg "github.com/veranemoloko/download-engine/internal/errors"
)

// Queue is the in-memory pending list, ordered by descending priority.
// A new task is inserted before the first existing entry of strictly
// lower priority, which keeps equal-priority entries in FIFO order.
// Capacity is bounded; enqueueing at capacity returns ErrQueueFull.
type Queue struct {
	mu      sync.Mutex
	tasks   []*domain.DownloadTask
	maxSize int
}

// New creates a queue holding at most maxSize pending tasks.
func New(maxSize int) *Queue {
	return &Queue{maxSize: maxSize}
}

// Enqueue inserts the task according to its priority.
func (q *Queue) Enqueue(task *domain.DownloadTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) >= q.maxSize {
		return errpkg.ErrQueueFull
	}

	idx := len(q.tasks)
	for i, t := range q.tasks {
		if t.Priority < task.Priority {
			idx = i
			break
		}
	}

	q.tasks = append(q.tasks, nil)
	copy(q.tasks[idx+1:], q.tasks[idx:])
	q.tasks[idx] = task
	return nil
}

// Dequeue removes and returns the head of the queue, or nil if empty.
func (q *Queue) Dequeue() *domain.DownloadTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}

	head := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return head
}

// Remove drops the task with the given id from the queue, if present.
// Returns true if a task was removed.
func (q *Queue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.tasks {
		if t.ID == id {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Update replaces the queued entry with the same id, keeping its position.
func (q *Queue) Update(task *domain.DownloadTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.tasks {
		if t.ID == task.ID {
			q.tasks[i] = task
			return true
		}
	}
	return false
}

// All returns the queued tasks in scheduling order.
func (q *Queue) All() []*domain.DownloadTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*domain.DownloadTask, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Clear drops every pending task.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = nil
}
