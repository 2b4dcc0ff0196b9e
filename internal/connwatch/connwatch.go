// Package connwatch tracks the reachability of the services a request
// depends on: the completion providers, the document store and the MQTT
// broker. It is reported by GET /health and never gates requests.
//
// A Watcher probes one dependency. While the dependency is down it
// retries with exponential backoff; once it is up it re-checks on a
// fixed poll interval. Transitions are logged and passed to optional
// callbacks.
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ProbeFunc checks whether a dependency is reachable. Return nil if
// healthy.
type ProbeFunc func(ctx context.Context) error

// Schedule controls probe timing.
type Schedule struct {
	// InitialDelay is the first retry delay after a failed probe.
	InitialDelay time.Duration
	// MaxDelay caps backoff growth.
	MaxDelay time.Duration
	// Multiplier scales the retry delay after each consecutive failure.
	Multiplier float64
	// PollInterval is the delay between probes while healthy.
	PollInterval time.Duration
	// ProbeTimeout bounds each probe call.
	ProbeTimeout time.Duration
}

// DefaultSchedule retries at 2s, 4s, 8s ... up to 60s while a dependency
// is down and polls every 60s while it is up.
func DefaultSchedule() Schedule {
	return Schedule{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

// withDefaults fills zero fields from [DefaultSchedule].
func (s Schedule) withDefaults() Schedule {
	d := DefaultSchedule()
	if s.InitialDelay <= 0 {
		s.InitialDelay = d.InitialDelay
	}
	if s.MaxDelay <= 0 {
		s.MaxDelay = d.MaxDelay
	}
	if s.Multiplier < 1 {
		s.Multiplier = d.Multiplier
	}
	if s.PollInterval <= 0 {
		s.PollInterval = d.PollInterval
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = d.ProbeTimeout
	}
	return s
}

// next returns the delay after a probe, given the previous retry delay.
func (s Schedule) next(healthy bool, prev time.Duration) time.Duration {
	if healthy {
		return s.PollInterval
	}
	if prev <= 0 {
		return s.InitialDelay
	}
	d := time.Duration(float64(prev) * s.Multiplier)
	if d > s.MaxDelay {
		d = s.MaxDelay
	}
	return d
}

// Dependency describes one watched service.
type Dependency struct {
	Name     string
	Probe    ProbeFunc
	Schedule Schedule

	// OnUp and OnDown run in their own goroutine on each transition.
	OnUp   func()
	OnDown func(err error)
}

// Status is the JSON form of a dependency's health.
type Status struct {
	Ready     bool      `json:"ready"`
	Failures  int       `json:"consecutive_failures,omitempty"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors one dependency.
type Watcher struct {
	dep    Dependency
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	probed chan struct{} // closed after the first probe

	mu        sync.Mutex
	ready     bool
	failures  int
	lastCheck time.Time
	lastErr   error
}

// Status returns the current health of the dependency.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{
		Ready:     w.ready,
		Failures:  w.failures,
		LastCheck: w.lastCheck,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// IsReady reports whether the last probe succeeded.
func (w *Watcher) IsReady() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// WaitProbed blocks until the first probe has completed or ctx ends.
func (w *Watcher) WaitProbed(ctx context.Context) error {
	select {
	case <-w.probed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	sched := w.dep.Schedule
	var delay time.Duration
	first := true
	for {
		err := w.probe(ctx)
		if ctx.Err() != nil {
			return
		}
		w.record(err)
		if first {
			close(w.probed)
			first = false
		}

		wait := sched.next(err == nil, delay)
		if err == nil {
			// Backoff restarts from InitialDelay after the next failure.
			delay = 0
		} else {
			delay = wait
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *Watcher) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.dep.Schedule.ProbeTimeout)
	defer cancel()
	return w.dep.Probe(probeCtx)
}

// record stores a probe outcome and fires transition callbacks.
func (w *Watcher) record(err error) {
	w.mu.Lock()
	wasReady := w.ready
	checked := !w.lastCheck.IsZero()
	w.ready = err == nil
	w.lastErr = err
	w.lastCheck = time.Now()
	if err != nil {
		w.failures++
	} else {
		w.failures = 0
	}
	failures := w.failures
	w.mu.Unlock()

	switch {
	case err == nil && !wasReady:
		w.logger.Info("dependency reachable", "dependency", w.dep.Name)
		if w.dep.OnUp != nil {
			go w.dep.OnUp()
		}
	case err != nil && (wasReady || !checked):
		w.logger.Warn("dependency unreachable", "dependency", w.dep.Name, "error", err)
		if w.dep.OnDown != nil {
			go w.dep.OnDown(err)
		}
	case err != nil:
		w.logger.Debug("dependency still unreachable",
			"dependency", w.dep.Name, "failures", failures, "error", err)
	}
}

// Manager owns a set of watchers.
type Manager struct {
	mu       sync.RWMutex
	watchers map[string]*Watcher
	logger   *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		watchers: make(map[string]*Watcher),
		logger:   logger.With("component", "connwatch"),
	}
}

// Watch starts probing dep in the background until ctx is cancelled or
// [Manager.Stop] is called. Watching a name twice replaces the earlier
// watcher.
//
// Panics if Name is empty or Probe is nil.
func (m *Manager) Watch(ctx context.Context, dep Dependency) *Watcher {
	if dep.Name == "" {
		panic("connwatch: Dependency.Name must not be empty")
	}
	if dep.Probe == nil {
		panic("connwatch: Dependency.Probe must not be nil")
	}
	dep.Schedule = dep.Schedule.withDefaults()

	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		dep:    dep,
		logger: m.logger,
		cancel: cancel,
		done:   make(chan struct{}),
		probed: make(chan struct{}),
	}

	m.mu.Lock()
	old := m.watchers[dep.Name]
	m.watchers[dep.Name] = w
	m.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	go w.run(watchCtx)
	return w
}

// Status returns the health of every watched dependency by name.
func (m *Manager) Status() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.watchers))
	for name, w := range m.watchers {
		out[name] = w.Status()
	}
	return out
}

// Down returns the names of dependencies whose last probe failed, sorted.
func (m *Manager) Down() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for name, w := range m.watchers {
		if !w.IsReady() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Stop shuts down all watchers and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	watchers := m.watchers
	m.watchers = make(map[string]*Watcher)
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}
