// Package netmon tracks a single online/offline signal for the offline
// layer. There is no ambient connectivity event source in a CLI process, so
// the monitor combines periodic probes of the backend health endpoint with
// pass/fail reports from real request outcomes, and debounces flapping so a
// blip does not trigger a sync storm.
package netmon

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultDebounce is how long a state change must hold before
	// subscribers are notified.
	DefaultDebounce = 3 * time.Second
	// DefaultProbeInterval is how often the backend is probed while the
	// monitor is running.
	DefaultProbeInterval = 30 * time.Second
	// probeTimeout bounds a single health probe.
	probeTimeout = 4 * time.Second
)

// Prober checks backend reachability. A nil error means online.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// Monitor maintains the debounced online/offline state.
type Monitor struct {
	prober        Prober
	debounce      time.Duration
	probeInterval time.Duration

	mu      sync.Mutex
	online  bool
	seeded  bool
	target  bool // state waiting out the debounce window
	timer   *time.Timer
	subs    map[int]func(bool)
	nextSub int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a monitor. Zero durations pick the defaults.
func New(prober Prober, debounce, probeInterval time.Duration) *Monitor {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	return &Monitor{
		prober:        prober,
		debounce:      debounce,
		probeInterval: probeInterval,
		subs:          make(map[int]func(bool)),
		stopCh:        make(chan struct{}),
	}
}

// Start seeds the state with a synchronous probe, then probes periodically
// until ctx is cancelled or Close is called. The seed bypasses the debounce:
// there is no previous state to flap from.
func (m *Monitor) Start(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := m.prober.Probe(probeCtx)
	cancel()

	m.mu.Lock()
	m.online = err == nil
	m.target = m.online
	m.seeded = true
	m.mu.Unlock()

	go m.loop(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			err := m.prober.Probe(probeCtx)
			cancel()
			m.Report(err == nil)
		}
	}
}

// IsOnline returns the current committed state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers cb for committed state transitions and returns an
// unsubscribe function. The callback runs outside the monitor's lock.
func (m *Monitor) OnChange(cb func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = cb
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Report feeds an observed connectivity result (from a probe or a real
// request). A change of state only commits after it holds for the debounce
// window; a flap back within the window cancels the pending transition so
// subscribers see nothing.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.seeded {
		// First signal before Start seeded us: take it directly.
		m.online = online
		m.target = online
		m.seeded = true
		return
	}

	if online == m.target {
		return // no new information
	}
	m.target = online

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if online == m.online {
		return // flapped back before commit, coalesce to nothing
	}

	m.timer = time.AfterFunc(m.debounce, func() { m.commit(online) })
}

func (m *Monitor) commit(online bool) {
	m.mu.Lock()
	if m.target != online || m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.timer = nil
	cbs := make([]func(bool), 0, len(m.subs))
	for _, cb := range m.subs {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(online)
	}
}

// Close stops the probe loop and cancels any pending transition.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
}
