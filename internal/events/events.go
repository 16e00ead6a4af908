package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/veranemoloko/download-engine/internal/domain"
)

const (
	dispatchBuffer   = 256
	subscriberBuffer = 64
)

// Store is the durable backing for the task registry. The manager
// writes the full registry through on every mutation and reads it back
// once at startup.
type Store interface {
	Load() ([]*domain.DownloadTask, error)
	SaveAll(tasks []*domain.DownloadTask) error
}

// Manager owns the authoritative id -> task registry and broadcasts
// download events to any number of subscribers. Registry mutations are
// applied (and written through to the store) before the corresponding
// event enters the dispatch channel, so a subscriber never observes an
// event for a state the registry does not yet reflect. A single
// dispatcher goroutine drains the channel, which keeps per-task delivery
// in production order.
type Manager struct {
	mu       sync.RWMutex
	tasks    map[uuid.UUID]*domain.DownloadTask
	subs     map[int]*subscriber
	snapSubs map[int]chan []*domain.DownloadTask
	nextSub  int

	dispatch chan domain.Event
	store    Store
	logger   *slog.Logger

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	subWg     sync.WaitGroup
}

// subscriber pairs the delivery channel with an unbounded backlog for
// events that must not be dropped. The dispatcher stays non-blocking: a
// full channel overflows state_change and error events into the backlog
// and a per-subscriber pump goroutine delivers them as the consumer
// catches up. Progress and queue_changed events are simply dropped when
// the consumer falls behind.
type subscriber struct {
	out   chan domain.Event
	done  chan struct{} // cancel: stop immediately, discard backlog
	flush chan struct{} // close: deliver the backlog, then stop
	wake  chan struct{}

	mu      sync.Mutex
	backlog []domain.Event
	pumping bool
}

// deliver hands the event to the subscriber without blocking. Reports
// false when a droppable event was discarded.
func (s *subscriber) deliver(ev domain.Event, force bool) bool {
	s.mu.Lock()
	// Direct sends are only allowed while the backlog is idle, so pump
	// deliveries and direct deliveries never reorder.
	if len(s.backlog) == 0 && !s.pumping {
		select {
		case s.out <- ev:
			s.mu.Unlock()
			return true
		default:
		}
	}
	if !force {
		s.mu.Unlock()
		return false
	}
	s.backlog = append(s.backlog, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *subscriber) pump() {
	defer close(s.out)

	for {
		select {
		case <-s.done:
			return
		case <-s.flush:
			s.drainBacklog()
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.backlog) == 0 {
				s.pumping = false
				s.mu.Unlock()
				break
			}
			s.pumping = true
			ev := s.backlog[0]
			s.backlog = s.backlog[1:]
			s.mu.Unlock()

			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}

// drainBacklog runs after the dispatcher has stopped, so the backlog is
// final. Sends block until the consumer reads or cancels.
func (s *subscriber) drainBacklog() {
	s.mu.Lock()
	backlog := s.backlog
	s.backlog = nil
	s.mu.Unlock()

	for _, ev := range backlog {
		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

// NewManager creates the registry, restores it from the store if one is
// given, and starts the dispatcher.
func NewManager(store Store, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		tasks:    make(map[uuid.UUID]*domain.DownloadTask),
		subs:     make(map[int]*subscriber),
		snapSubs: make(map[int]chan []*domain.DownloadTask),
		dispatch: make(chan domain.Event, dispatchBuffer),
		store:    store,
		logger:   logger,
		closed:   make(chan struct{}),
	}

	if store != nil {
		tasks, err := store.Load()
		if err != nil {
			return nil, err
		}
		for _, task := range tasks {
			m.tasks[task.ID] = task
		}
	}

	m.wg.Add(1)
	go m.dispatcher()

	return m, nil
}

// Apply stores the task in the registry and then publishes the given
// events, in order. This is the only way the manager mutates per-task
// state, which is what guarantees apply-before-notify.
func (m *Manager) Apply(task *domain.DownloadTask, evs ...domain.Event) {
	m.mu.Lock()
	m.tasks[task.ID] = task.Clone()
	m.persistLocked()
	m.mu.Unlock()

	for _, ev := range evs {
		m.Publish(ev)
	}
}

// Publish enqueues an event for delivery without touching the registry.
func (m *Manager) Publish(ev domain.Event) {
	select {
	case m.dispatch <- ev:
	case <-m.closed:
	}
}

// Task returns a copy of the task with the given id.
func (m *Manager) Task(id uuid.UUID) (*domain.DownloadTask, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// Has reports whether a task with the given id is registered.
func (m *Manager) Has(id uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tasks[id]
	return ok
}

// AllTasks returns a copy of every registered task.
func (m *Manager) AllTasks() []*domain.DownloadTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// TasksInState returns copies of all tasks currently in the given state.
func (m *Manager) TasksInState(state domain.State) []*domain.DownloadTask {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.DownloadTask
	for _, task := range m.tasks {
		if task.State == state {
			out = append(out, task.Clone())
		}
	}
	return out
}

// UpdateTasks stores the given tasks without emitting events. Used by
// bulk reconciliation paths such as startup restore.
func (m *Manager) UpdateTasks(tasks []*domain.DownloadTask) {
	m.mu.Lock()
	for _, task := range tasks {
		m.tasks[task.ID] = task.Clone()
	}
	m.persistLocked()
	m.mu.Unlock()
}

// RemoveTasks drops the given ids from the registry and signals the
// change to subscribers.
func (m *Manager) RemoveTasks(ids []uuid.UUID) {
	m.mu.Lock()
	for _, id := range ids {
		delete(m.tasks, id)
	}
	m.persistLocked()
	m.mu.Unlock()

	m.Publish(domain.QueueChangedEvent())
}

// ClearAll empties the registry.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	m.tasks = make(map[uuid.UUID]*domain.DownloadTask)
	m.persistLocked()
	m.mu.Unlock()

	m.Publish(domain.QueueChangedEvent())
}

// Subscribe registers an event consumer. The returned cancel func stops
// delivery and closes the channel. Progress and queue_changed events are
// dropped when the subscriber falls behind; state_change and error
// events overflow into a backlog instead, so every terminal
// notification reaches a live subscriber no matter how slowly it reads.
func (m *Manager) Subscribe() (<-chan domain.Event, func()) {
	s := &subscriber{
		out:   make(chan domain.Event, subscriberBuffer),
		done:  make(chan struct{}),
		flush: make(chan struct{}),
		wake:  make(chan struct{}, 1),
	}

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = s
	m.subWg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.subWg.Done()
		s.pump()
	}()

	cancel := func() {
		m.mu.Lock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing.done)
		}
		m.mu.Unlock()
	}
	return s.out, cancel
}

// SubscribeSnapshots registers a consumer of full-registry snapshots,
// published after every delivered event. Snapshots coalesce: a slow
// consumer only ever sees the most recent one.
func (m *Manager) SubscribeSnapshots() (<-chan []*domain.DownloadTask, func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan []*domain.DownloadTask, 1)
	m.snapSubs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if existing, ok := m.snapSubs[id]; ok {
			delete(m.snapSubs, id)
			close(existing)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// Close stops the dispatcher after draining already-queued events, then
// tears down any subscriptions that were never cancelled.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
	})
	m.wg.Wait()

	m.mu.Lock()
	for id, s := range m.subs {
		delete(m.subs, id)
		close(s.flush)
	}
	m.mu.Unlock()
	m.subWg.Wait()
}

func (m *Manager) dispatcher() {
	defer m.wg.Done()

	for {
		select {
		case ev := <-m.dispatch:
			m.fanOut(ev)
		case <-m.closed:
			for {
				select {
				case ev := <-m.dispatch:
					m.fanOut(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) fanOut(ev domain.Event) {
	force := ev.Type == domain.EventStateChange || ev.Type == domain.EventError

	m.mu.RLock()
	for _, s := range m.subs {
		if !s.deliver(ev, force) {
			m.logger.Warn("dropping event for slow subscriber",
				"type", ev.Type,
				"task_id", ev.TaskID,
			)
		}
	}

	if len(m.snapSubs) > 0 {
		snap := m.snapshotLocked()
		for _, ch := range m.snapSubs {
			select {
			case ch <- snap:
			default:
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- snap:
				default:
				}
			}
		}
	}
	m.mu.RUnlock()
}

func (m *Manager) snapshotLocked() []*domain.DownloadTask {
	out := make([]*domain.DownloadTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, task.Clone())
	}
	return out
}

func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}

	tasks := make([]*domain.DownloadTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}

	if err := m.store.SaveAll(tasks); err != nil {
		m.logger.Error("failed to persist task registry", "error", err)
	}
}
