package connectivity

import (
	"log/slog"
	"net"
	"sync"
	"time"
)

// Status is a connectivity notification.
type Status int

const (
	Disconnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Observer publishes connectivity edges to subscribers.
type Observer interface {
	// Subscribe returns a channel of status changes and a cancel func
	// that stops delivery and closes the channel.
	Subscribe() (<-chan Status, func())
}

// Monitor is an Observer that probes a TCP address on a fixed interval
// and publishes only edges, not every probe result.
type Monitor struct {
	probeAddr string
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	dial func(addr string, timeout time.Duration) error

	mu      sync.Mutex
	subs    map[int]chan Status
	nextSub int
	last    Status
	started bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewMonitor creates a Monitor probing probeAddr every interval.
func NewMonitor(probeAddr string, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		probeAddr: probeAddr,
		interval:  interval,
		timeout:   interval / 2,
		logger:    logger,
		dial:      dialProbe,
		subs:      make(map[int]chan Status),
		last:      Connected,
		done:      make(chan struct{}),
	}
}

func dialProbe(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Start begins probing. Safe to call once.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop()
}

// Stop ends probing and closes all subscriber channels.
func (m *Monitor) Stop() {
	close(m.done)
	m.wg.Wait()

	m.mu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()
}

// Subscribe implements Observer.
func (m *Monitor) Subscribe() (<-chan Status, func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Status, 4)
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

func (m *Monitor) probe() {
	status := Connected
	if err := m.dial(m.probeAddr, m.timeout); err != nil {
		status = Disconnected
	}

	m.mu.Lock()
	if status == m.last {
		m.mu.Unlock()
		return
	}
	m.last = status
	for _, ch := range m.subs {
		select {
		case ch <- status:
		default:
		}
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "status", status.String())
}
