package manager

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/veranemoloko/download-engine/internal/config"
	"github.com/veranemoloko/download-engine/internal/connectivity"
	"github.com/veranemoloko/download-engine/internal/domain"
	errpkg "github.com/veranemoloko/download-engine/internal/errors"
	"github.com/veranemoloko/download-engine/internal/events"
	"github.com/veranemoloko/download-engine/internal/metrics"
	"github.com/veranemoloko/download-engine/internal/queue"
	"github.com/veranemoloko/download-engine/internal/sniff"
	"github.com/veranemoloko/download-engine/internal/storage"
	"github.com/veranemoloko/download-engine/internal/transport"
	"github.com/veranemoloko/download-engine/internal/validation"
)

// Request describes one download submission.
type Request struct {
	URL      string
	FileName string
	Priority domain.Priority

	// OnProgress, when set, receives every progress update for the task
	// in addition to the event bus.
	OnProgress func(ratio float64, rate int64)
}

// Manager ties the queue, event registry, persistent store, and
// transport together. It validates submissions, enforces the
// concurrency limit, drives the per-task state machine, reacts to
// connectivity changes, and reconciles persisted state at startup.
//
// All transport callbacks re-enter through the manager mutex before
// touching shared state; terminal transitions additionally re-check the
// registry under that mutex, so a task can never reach two terminal
// states even when cancellation races completion.
type Manager struct {
	cfg       *config.Config
	queue     *queue.Queue
	bus       *events.Manager
	store     *storage.Store
	transport transport.Transport
	conn      connectivity.Observer
	logger    *slog.Logger

	diskFree func(path string) (uint64, error)

	mu        sync.Mutex
	active    map[uuid.UUID]transport.Handle
	suspended map[uuid.UUID]transport.Handle
	lastBytes map[uuid.UUID]int64
	startedAt map[uuid.UUID]time.Time
	closed    bool

	done      chan struct{}
	wg        sync.WaitGroup
	unsubConn func()
}

// New wires a Manager. Call Restore and then Start before submitting.
func New(
	cfg *config.Config,
	q *queue.Queue,
	bus *events.Manager,
	store *storage.Store,
	tr transport.Transport,
	conn connectivity.Observer,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		cfg:       cfg,
		queue:     q,
		bus:       bus,
		store:     store,
		transport: tr,
		conn:      conn,
		logger:    logger,
		diskFree:  diskFree,
		active:    make(map[uuid.UUID]transport.Handle),
		suspended: make(map[uuid.UUID]transport.Handle),
		lastBytes: make(map[uuid.UUID]int64),
		startedAt: make(map[uuid.UUID]time.Time),
		done:      make(chan struct{}),
	}
}

// Start launches the scheduler loop and the connectivity watcher.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.schedulerLoop()

	if m.conn != nil {
		ch, unsub := m.conn.Subscribe()
		m.unsubConn = unsub
		m.wg.Add(1)
		go m.connectivityLoop(ch)
	}

	m.logger.Info("download manager started",
		"max_concurrent", m.cfg.MaxConcurrentDownloads,
		"max_queue_size", m.cfg.MaxQueueSize,
		"scheduler_interval", m.cfg.SchedulerInterval,
	)
}

// Close cancels every live transport handle and stops the manager's
// goroutines. The event bus is left to its owner.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for id, h := range m.active {
		h.Cancel()
		delete(m.active, id)
	}
	for id, h := range m.suspended {
		h.Cancel()
		delete(m.suspended, id)
	}
	m.mu.Unlock()

	close(m.done)
	if m.unsubConn != nil {
		m.unsubConn()
	}
	m.wg.Wait()
	m.logger.Info("download manager stopped")
}

// Download validates the request and queues a new task. Validation
// failures surface synchronously; everything after the task is queued
// is observable only through the event bus. Queuing is decoupled from
// transport start: the returned task is in state queued.
func (m *Manager) Download(ctx context.Context, req Request) (*domain.DownloadTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := validation.ValidateDownloadURL(req.URL); err != nil {
		return nil, err
	}

	free, err := m.diskFree(m.cfg.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("check free disk space: %w", err)
	}
	if free < m.cfg.MinFreeDiskSpace {
		return nil, fmt.Errorf("%w: %d bytes free, %d required",
			errpkg.ErrInsufficientDisk, free, m.cfg.MinFreeDiskSpace)
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = deriveFileName(req.URL)
	}

	task := domain.NewDownloadTask(req.URL, fileName, req.Priority)

	if err := m.store.CreateDir(task); err != nil {
		return nil, fmt.Errorf("create task storage: %w", err)
	}

	// Enqueue and the registry apply happen under the manager mutex so a
	// scheduler tick cannot start the task before its queued event is
	// recorded. The queue gets its own clone; the pointer returned to the
	// caller is never shared with the scheduler.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = m.store.Remove(task.ID)
		return nil, errpkg.ErrManagerClosed
	}

	if err := m.queue.Enqueue(task.Clone()); err != nil {
		m.mu.Unlock()
		_ = m.store.Remove(task.ID)
		return nil, err
	}

	m.bus.Apply(task,
		domain.StateChangeEvent(task.ID, domain.StateQueued),
		domain.QueueChangedEvent(),
	)
	queued := m.queue.Len()

	if req.OnProgress != nil {
		m.bridgeProgress(task.ID, req.OnProgress)
	}
	m.mu.Unlock()

	metrics.TasksSubmitted.Inc()
	metrics.QueuedTasks.Set(float64(queued))

	m.logger.Info("download queued",
		"task_id", task.ID,
		"url", task.URL,
		"priority", task.Priority.String(),
	)
	return task, nil
}

// DownloadMultiple submits every request concurrently and joins the
// results. A failed submission does not roll back the ones already
// accepted; the first error is returned alongside the tasks that were.
func (m *Manager) DownloadMultiple(ctx context.Context, reqs []Request) ([]*domain.DownloadTask, error) {
	tasks := make([]*domain.DownloadTask, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			task, err := m.Download(ctx, req)
			if err != nil {
				return fmt.Errorf("submit %q: %w", req.URL, err)
			}
			tasks[i] = task
			return nil
		})
	}
	err := g.Wait()

	accepted := tasks[:0]
	for _, task := range tasks {
		if task != nil {
			accepted = append(accepted, task)
		}
	}
	return accepted, err
}

// PauseDownload suspends the task's live transport handle, retaining
// it, and marks the task paused. Unknown ids and tasks without a live
// handle are a no-op.
func (m *Manager) PauseDownload(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle, ok := m.active[id]
	if !ok {
		return nil
	}

	handle.Suspend()
	delete(m.active, id)
	m.suspended[id] = handle
	metrics.ActiveDownloads.Set(float64(len(m.active)))

	task, ok := m.bus.Task(id)
	if !ok {
		return nil
	}
	task.State = domain.StatePaused
	task.Rate = 0
	task.UpdatedAt = time.Now()
	m.bus.Apply(task, domain.StateChangeEvent(id, domain.StatePaused))

	m.logger.Info("download paused", "task_id", id)
	return nil
}

// ResumeDownload re-enqueues a paused task. The task re-enters the
// pending queue rather than resuming its old handle: the transfer
// restarts from zero when the scheduler next picks it up.
func (m *Manager) ResumeDownload(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.bus.Task(id)
	if !ok {
		return errpkg.ErrTaskNotFound
	}
	if task.State != domain.StatePaused {
		return errpkg.ErrNotPaused
	}

	if handle, ok := m.suspended[id]; ok {
		handle.Cancel()
		delete(m.suspended, id)
	}

	task.State = domain.StateQueued
	task.Progress = 0
	task.Rate = 0
	task.UpdatedAt = time.Now()

	if err := m.queue.Enqueue(task); err != nil {
		return err
	}
	metrics.QueuedTasks.Set(float64(m.queue.Len()))

	m.bus.Apply(task,
		domain.StateChangeEvent(id, domain.StateQueued),
		domain.QueueChangedEvent(),
	)

	m.logger.Info("download resumed", "task_id", id)
	return nil
}

// CancelDownload cancels any live handle, removes the task's persisted
// directory, and marks it cancelled. A cancelled task cannot be
// resumed.
func (m *Manager) CancelDownload(id uuid.UUID) error {
	m.mu.Lock()

	task, ok := m.bus.Task(id)
	if !ok {
		m.mu.Unlock()
		return errpkg.ErrTaskNotFound
	}
	if task.State.Terminal() {
		m.mu.Unlock()
		return errpkg.ErrAlreadyTerminal
	}

	if handle, ok := m.active[id]; ok {
		handle.Cancel()
	}
	if handle, ok := m.suspended[id]; ok {
		handle.Cancel()
	}
	delete(m.active, id)
	delete(m.suspended, id)
	delete(m.lastBytes, id)
	delete(m.startedAt, id)
	m.queue.Remove(id)
	metrics.ActiveDownloads.Set(float64(len(m.active)))
	metrics.QueuedTasks.Set(float64(m.queue.Len()))

	task.State = domain.StateCancelled
	task.Rate = 0
	task.UpdatedAt = time.Now()
	m.bus.Apply(task,
		domain.StateChangeEvent(id, domain.StateCancelled),
		domain.QueueChangedEvent(),
	)
	m.mu.Unlock()

	metrics.TasksCancelled.Inc()
	m.logger.Info("download cancelled", "task_id", id)

	if err := m.store.Remove(id); err != nil {
		return fmt.Errorf("remove task storage: %w", err)
	}
	return nil
}

// RemoveCompletedDownloads deletes the persisted directory of every
// completed task and drops it from the registry.
func (m *Manager) RemoveCompletedDownloads() error {
	completed := m.bus.TasksInState(domain.StateCompleted)
	if len(completed) == 0 {
		return nil
	}

	var firstErr error
	ids := make([]uuid.UUID, 0, len(completed))
	for _, task := range completed {
		if err := m.store.Remove(task.ID); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove task storage: %w", err)
			}
			m.logger.Error("failed to remove completed download", "task_id", task.ID, "error", err)
			continue
		}
		ids = append(ids, task.ID)
	}

	m.bus.RemoveTasks(ids)
	m.logger.Info("completed downloads removed", "count", len(ids))
	return firstErr
}

// Restore reconciles the persisted registry against the filesystem.
// Tasks whose artifact exists are re-queued if they were in flight;
// cancelled and failed leftovers are purged. A completed task whose
// artifact disappeared is reset to queued and re-queued.
func (m *Manager) Restore() {
	for _, task := range m.bus.AllTasks() {
		exists := m.store.FileExists(task)

		switch {
		case exists:
			switch task.State {
			case domain.StateDownloading, domain.StateQueued:
				task.State = domain.StateQueued
				task.Rate = 0
				task.UpdatedAt = time.Now()
				m.requeueRestored(task)
				m.bus.UpdateTasks([]*domain.DownloadTask{task})
			case domain.StatePaused:
				// Re-queued for scheduling while the recorded state
				// stays paused.
				m.requeueRestored(task)
			case domain.StateCancelled, domain.StateFailed:
				if err := m.store.Remove(task.ID); err != nil {
					m.logger.Error("failed to purge task storage", "task_id", task.ID, "error", err)
				}
			}

		case task.State == domain.StateCompleted:
			// Self-healing: the artifact was deleted externally.
			task.State = domain.StateQueued
			task.Progress = 0
			task.Rate = 0
			task.UpdatedAt = time.Now()
			if err := m.store.CreateDir(task); err != nil {
				m.logger.Error("failed to recreate task storage", "task_id", task.ID, "error", err)
				continue
			}
			m.requeueRestored(task)
			m.bus.UpdateTasks([]*domain.DownloadTask{task})
			m.logger.Info("completed task missing its artifact, re-queued", "task_id", task.ID)
		}
	}

	metrics.QueuedTasks.Set(float64(m.queue.Len()))
}

func (m *Manager) requeueRestored(task *domain.DownloadTask) {
	if err := m.queue.Enqueue(task); err != nil {
		m.logger.Error("failed to re-queue restored task", "task_id", task.ID, "error", err)
	}
}

func (m *Manager) schedulerLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SchedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.fill()
		}
	}
}

// fill starts pending tasks while the active set is under the
// concurrency limit.
func (m *Manager) fill() {
	for {
		m.mu.Lock()
		if m.closed || len(m.active) >= m.cfg.MaxConcurrentDownloads {
			m.mu.Unlock()
			return
		}

		task := m.queue.Dequeue()
		if task == nil {
			m.mu.Unlock()
			return
		}
		metrics.QueuedTasks.Set(float64(m.queue.Len()))
		m.startTaskLocked(task)
		m.mu.Unlock()
	}
}

func (m *Manager) startTaskLocked(task *domain.DownloadTask) {
	// A handle suspended before a pause survives only until the task is
	// scheduled again; the new transfer starts from zero.
	if handle, ok := m.suspended[task.ID]; ok {
		handle.Cancel()
		delete(m.suspended, task.ID)
	}

	id := task.ID
	cb := transport.Callbacks{
		OnProgress: func(written, expected int64) { m.onProgress(id, written, expected) },
		OnError:    func(err error) { m.onError(id, err) },
		OnFinished: func(tempPath string) { m.onFinished(id, tempPath) },
	}

	handle, err := m.transport.Start(context.Background(), task.URL, cb)
	if err != nil {
		task.State = domain.StateFailed
		task.Error = err.Error()
		task.UpdatedAt = time.Now()
		m.bus.Apply(task,
			domain.ErrorEvent(id, task.Error),
			domain.StateChangeEvent(id, domain.StateFailed),
		)
		metrics.TasksFailed.Inc()
		m.logger.Error("failed to start transport", "task_id", id, "error", err)
		return
	}

	m.active[id] = handle
	m.lastBytes[id] = 0
	m.startedAt[id] = time.Now()
	metrics.ActiveDownloads.Set(float64(len(m.active)))

	task.State = domain.StateDownloading
	task.UpdatedAt = time.Now()
	m.bus.Apply(task, domain.StateChangeEvent(id, domain.StateDownloading))

	m.logger.Info("download started", "task_id", id, "url", task.URL)
}

func (m *Manager) onProgress(id uuid.UUID, written, expected int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[id]; !ok {
		return
	}

	task, ok := m.bus.Task(id)
	if !ok || task.State != domain.StateDownloading {
		return
	}

	// Rate is the delta for this single callback, not a windowed
	// average.
	rate := written - m.lastBytes[id]
	m.lastBytes[id] = written

	var ratio float64
	if expected > 0 {
		ratio = float64(written) / float64(expected)
	}

	task.Progress = ratio
	task.Rate = rate
	task.UpdatedAt = time.Now()
	m.bus.Apply(task, domain.ProgressEvent(id, ratio, rate))

	if rate > 0 {
		metrics.DownloadBytes.Add(float64(rate))
	}
}

func (m *Manager) onError(id uuid.UUID, err error) {
	m.mu.Lock()
	_, wasActive := m.active[id]
	_, wasSuspended := m.suspended[id]
	if !wasActive && !wasSuspended {
		// Stale callback from a handle we already cancelled.
		m.mu.Unlock()
		return
	}
	delete(m.active, id)
	delete(m.suspended, id)
	delete(m.lastBytes, id)
	delete(m.startedAt, id)
	metrics.ActiveDownloads.Set(float64(len(m.active)))

	task, ok := m.bus.Task(id)
	m.mu.Unlock()
	if !ok {
		return
	}

	m.failTask(task, err)
}

func (m *Manager) onFinished(id uuid.UUID, tempPath string) {
	m.mu.Lock()
	if _, ok := m.active[id]; !ok {
		m.mu.Unlock()
		os.Remove(tempPath)
		return
	}
	delete(m.active, id)
	delete(m.lastBytes, id)
	startedAt := m.startedAt[id]
	delete(m.startedAt, id)
	metrics.ActiveDownloads.Set(float64(len(m.active)))

	task, ok := m.bus.Task(id)
	m.mu.Unlock()
	if !ok {
		os.Remove(tempPath)
		return
	}

	// Stage the transport's output at a fresh temporary location before
	// it is persisted.
	staged, err := m.stage(tempPath)
	os.Remove(tempPath)
	if err != nil {
		m.failTask(task, fmt.Errorf("stage artifact: %w", err))
		return
	}

	if filepath.Ext(task.FileName) == "" {
		if ext, ok := sniff.Extension(staged); ok {
			task.FileName += ext
		}
	}

	savedPath, err := m.store.SaveFile(staged, task)
	os.Remove(staged)
	if err != nil {
		m.failTask(task, fmt.Errorf("save artifact: %w", err))
		return
	}

	task.State = domain.StateCompleted
	task.Progress = 1
	task.Rate = 0
	task.Error = ""
	task.UpdatedAt = time.Now()
	if !m.finalize(task, domain.StateChangeEvent(id, domain.StateCompleted)) {
		// Lost the race against a cancel; honor its cleanup contract.
		_ = m.store.Remove(id)
		return
	}

	metrics.TasksCompleted.Inc()
	if !startedAt.IsZero() {
		metrics.DownloadDuration.Observe(time.Since(startedAt).Seconds())
	}
	m.logger.Info("download completed", "task_id", id, "file_path", savedPath)
}

func (m *Manager) failTask(task *domain.DownloadTask, cause error) {
	task.State = domain.StateFailed
	task.Error = cause.Error()
	task.Rate = 0
	task.UpdatedAt = time.Now()

	if m.finalize(task,
		domain.ErrorEvent(task.ID, task.Error),
		domain.StateChangeEvent(task.ID, domain.StateFailed),
	) {
		metrics.TasksFailed.Inc()
		m.logger.Error("download failed", "task_id", task.ID, "error", cause)
	}
}

// finalize applies a terminal transition unless the task already
// reached a terminal state. Checking and applying under the manager
// mutex is what keeps cancel racing completion from producing two
// terminal states.
func (m *Manager) finalize(task *domain.DownloadTask, evs ...domain.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.bus.Task(task.ID)
	if !ok || current.State.Terminal() {
		return false
	}
	m.bus.Apply(task, evs...)
	return true
}

func (m *Manager) connectivityLoop(ch <-chan connectivity.Status) {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return
		case status, ok := <-ch:
			if !ok {
				return
			}
			switch status {
			case connectivity.Disconnected:
				m.pauseAllDownloading()
			case connectivity.Connected:
				m.resumeAllPaused()
			}
		}
	}
}

// pauseAllDownloading is best-effort: pause failures are swallowed.
func (m *Manager) pauseAllDownloading() {
	m.logger.Info("connectivity lost, pausing active downloads")
	for _, task := range m.bus.TasksInState(domain.StateDownloading) {
		_ = m.PauseDownload(task.ID)
	}
}

// resumeAllPaused does not distinguish a user-initiated pause from a
// network-induced one: every paused task re-enters the queue.
func (m *Manager) resumeAllPaused() {
	m.logger.Info("connectivity restored, resuming paused downloads")
	for _, task := range m.bus.TasksInState(domain.StatePaused) {
		_ = m.ResumeDownload(task.ID)
	}
}

// bridgeProgress must be called with m.mu held and m.closed false:
// registering with the wait group is only safe against Close's Wait
// while the closed flag has not been set.
func (m *Manager) bridgeProgress(id uuid.UUID, fn func(ratio float64, rate int64)) {
	ch, unsub := m.bus.Subscribe()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer unsub()

		for {
			select {
			case <-m.done:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.TaskID != id {
					continue
				}
				switch ev.Type {
				case domain.EventProgress:
					fn(ev.Progress, ev.Rate)
				case domain.EventStateChange:
					if ev.State.Terminal() {
						return
					}
				}
			}
		}
	}()
}

func (m *Manager) stage(srcPath string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(m.cfg.TempDir, "staged-*")
	if err != nil {
		return "", err
	}

	if _, err := dst.ReadFrom(src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func deriveFileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "download"
	}
	return base
}
