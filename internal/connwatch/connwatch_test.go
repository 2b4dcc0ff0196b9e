package connwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// testSchedule returns a fast schedule for tests.
func testSchedule() Schedule {
	return Schedule{
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		PollInterval: 5 * time.Millisecond,
		ProbeTimeout: 100 * time.Millisecond,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDefaultSchedule(t *testing.T) {
	t.Parallel()
	s := DefaultSchedule()
	if s.InitialDelay != 2*time.Second || s.MaxDelay != 60*time.Second {
		t.Errorf("delays = %v..%v, want 2s..60s", s.InitialDelay, s.MaxDelay)
	}
	if s.PollInterval != 60*time.Second || s.ProbeTimeout != 10*time.Second {
		t.Errorf("poll = %v, timeout = %v", s.PollInterval, s.ProbeTimeout)
	}
}

func TestSchedule_Next(t *testing.T) {
	t.Parallel()
	s := Schedule{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2, PollInterval: time.Minute}

	if got := s.next(true, 4*time.Second); got != time.Minute {
		t.Errorf("healthy next = %v, want poll interval", got)
	}

	var d time.Duration
	var got []time.Duration
	for range 5 {
		d = s.next(false, d)
		got = append(got, d)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("backoff = %v, want %v", got, want)
		}
	}
}

func TestSchedule_WithDefaults(t *testing.T) {
	t.Parallel()
	s := Schedule{PollInterval: time.Second}.withDefaults()
	if s.PollInterval != time.Second {
		t.Errorf("PollInterval overwritten: %v", s.PollInterval)
	}
	if s.InitialDelay != 2*time.Second || s.Multiplier != 2.0 {
		t.Errorf("defaults not applied: %+v", s)
	}
}

func TestWatcher_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var upCalled atomic.Int32
	m := NewManager(quietLogger())
	defer m.Stop()
	w := m.Watch(ctx, Dependency{
		Name:     "llm",
		Probe:    func(context.Context) error { return nil },
		Schedule: testSchedule(),
		OnUp:     func() { upCalled.Add(1) },
	})

	if err := w.WaitProbed(ctx); err != nil {
		t.Fatalf("WaitProbed: %v", err)
	}
	if !w.IsReady() {
		t.Error("expected ready after a successful probe")
	}
	eventually(t, "OnUp", func() bool { return upCalled.Load() == 1 })

	// Later healthy polls are not transitions.
	time.Sleep(20 * time.Millisecond)
	if n := upCalled.Load(); n != 1 {
		t.Errorf("OnUp called %d times, want 1", n)
	}
}

func TestWatcher_BackoffThenRecovery(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errDown := errors.New("connection refused")
	var attempts, downCalled, upCalled atomic.Int32

	m := NewManager(quietLogger())
	defer m.Stop()
	w := m.Watch(ctx, Dependency{
		Name: "mongo",
		Probe: func(context.Context) error {
			if attempts.Add(1) <= 3 {
				return errDown
			}
			return nil
		},
		Schedule: testSchedule(),
		OnUp:     func() { upCalled.Add(1) },
		OnDown:   func(error) { downCalled.Add(1) },
	})

	if err := w.WaitProbed(ctx); err != nil {
		t.Fatalf("WaitProbed: %v", err)
	}
	st := w.Status()
	if st.Ready || st.LastError != "connection refused" {
		t.Errorf("first status = %+v, want down with error", st)
	}

	eventually(t, "recovery", w.IsReady)
	eventually(t, "OnUp", func() bool { return upCalled.Load() == 1 })
	if n := downCalled.Load(); n != 1 {
		t.Errorf("OnDown called %d times, want 1 (consecutive failures are one outage)", n)
	}
	if st := w.Status(); st.Failures != 0 || st.LastError != "" {
		t.Errorf("status after recovery = %+v", st)
	}
}

func TestWatcher_GoesDown(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fail atomic.Bool
	var downCalled atomic.Int32

	m := NewManager(quietLogger())
	defer m.Stop()
	w := m.Watch(ctx, Dependency{
		Name: "mqtt",
		Probe: func(context.Context) error {
			if fail.Load() {
				return errors.New("broker gone")
			}
			return nil
		},
		Schedule: testSchedule(),
		OnDown:   func(error) { downCalled.Add(1) },
	})

	eventually(t, "ready", w.IsReady)
	fail.Store(true)
	eventually(t, "down", func() bool { return !w.IsReady() })
	eventually(t, "OnDown", func() bool { return downCalled.Load() == 1 })
	eventually(t, "failures counted", func() bool { return w.Status().Failures >= 2 })
}

func TestWatcher_ProbeTimeout(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := testSchedule()
	sched.ProbeTimeout = 5 * time.Millisecond

	m := NewManager(quietLogger())
	defer m.Stop()
	w := m.Watch(ctx, Dependency{
		Name: "slow",
		Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Schedule: sched,
	})

	if err := w.WaitProbed(ctx); err != nil {
		t.Fatalf("WaitProbed: %v", err)
	}
	if st := w.Status(); st.Ready || st.LastError == "" {
		t.Errorf("status = %+v, want a timed-out probe", st)
	}
}

func TestManager_StatusAndDown(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(quietLogger())
	defer m.Stop()
	up := m.Watch(ctx, Dependency{Name: "llm", Probe: func(context.Context) error { return nil }, Schedule: testSchedule()})
	down := m.Watch(ctx, Dependency{Name: "mongo", Probe: func(context.Context) error { return errors.New("no") }, Schedule: testSchedule()})
	up.WaitProbed(ctx)
	down.WaitProbed(ctx)

	st := m.Status()
	if len(st) != 2 || !st["llm"].Ready || st["mongo"].Ready {
		t.Errorf("Status() = %+v", st)
	}
	if got := m.Down(); len(got) != 1 || got[0] != "mongo" {
		t.Errorf("Down() = %v, want [mongo]", got)
	}
}

func TestManager_StopEndsProbing(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	m := NewManager(quietLogger())
	m.Watch(context.Background(), Dependency{
		Name:     "llm",
		Probe:    func(context.Context) error { attempts.Add(1); return nil },
		Schedule: testSchedule(),
	})

	eventually(t, "first probe", func() bool { return attempts.Load() > 0 })
	m.Stop()
	n := attempts.Load()
	time.Sleep(20 * time.Millisecond)
	if attempts.Load() != n {
		t.Error("probes continued after Stop")
	}
	if len(m.Status()) != 0 {
		t.Error("Stop should forget watchers")
	}
}

func TestManager_WatchValidation(t *testing.T) {
	t.Parallel()
	m := NewManager(nil)

	for name, dep := range map[string]Dependency{
		"empty name": {Probe: func(context.Context) error { return nil }},
		"nil probe":  {Name: "x"},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: Watch should panic", name)
				}
			}()
			m.Watch(context.Background(), dep)
		}()
	}
}
