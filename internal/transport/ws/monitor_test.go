package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vedran77/sprout/internal/logger"
)

func newTestMonitor(r *Registry) *Monitor {
	return NewMonitor(r, MonitorConfig{
		ProbeInterval:     10 * time.Millisecond,
		ProbeTimeout:      20 * time.Millisecond,
		IdleTimeout:       time.Minute,
		IdleCheckInterval: 10 * time.Millisecond,
	}, logger.Nop())
}

func TestProbeSweepReapsClosedChannel(t *testing.T) {
	r := NewRegistry(5)
	gone := newFakeChannel()
	live := newFakeChannel()
	r.Register(7, gone)
	r.Register(8, live)

	gone.markClosed()

	m := newTestMonitor(r)
	if n := m.ProbeSweep(context.Background()); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if r.Count(7) != 0 {
		t.Fatalf("expected user 7 deregistered")
	}
	if r.Count(8) != 1 || live.pings != 1 {
		t.Fatalf("expected live connection probed and kept")
	}
}

func TestProbeSweepEvictsFailedPing(t *testing.T) {
	r := NewRegistry(5)
	flaky := newFakeChannel()
	flaky.pingErr = errors.New("broken pipe")
	stalled := newFakeChannel()
	stalled.pingErr = errBlockPing
	r.Register(1, flaky)
	r.Register(2, stalled)

	m := newTestMonitor(r)
	if n := m.ProbeSweep(context.Background()); n != 2 {
		t.Fatalf("expected 2 evictions, got %d", n)
	}
	for _, ch := range []*fakeChannel{flaky, stalled} {
		code, reason, closed := ch.closedWith()
		if !closed || code != StatusNotReliable || reason != "not reliable" {
			t.Fatalf("expected close 4500, got %v %q %v", code, reason, closed)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("expected registry empty, got %d", r.Len())
	}
}

func TestAnsweredProbeRefreshesActivity(t *testing.T) {
	r := NewRegistry(5)
	base := time.Now()
	r.now = func() time.Time { return base }
	quiet := newFakeChannel()
	r.Register(1, quiet)

	r.now = func() time.Time { return base.Add(4 * time.Minute) }
	m := newTestMonitor(r)
	m.ProbeSweep(context.Background())

	m.cfg.IdleTimeout = 5 * time.Minute
	m.now = func() time.Time { return base.Add(6 * time.Minute) }
	if n := m.IdleSweep(); n != 0 {
		t.Fatalf("expected a connection answering probes to be kept, evicted %d", n)
	}
	if _, _, closed := quiet.closedWith(); closed {
		t.Fatalf("expected connection left open")
	}
}

func TestIdleSweep(t *testing.T) {
	r := NewRegistry(5)
	base := time.Now()
	r.now = func() time.Time { return base }

	quiet, chatty := newFakeChannel(), newFakeChannel()
	r.Register(1, quiet)
	r.Register(2, chatty)

	r.now = func() time.Time { return base.Add(4 * time.Minute) }
	r.Touch(2, chatty)

	m := newTestMonitor(r)
	m.cfg.IdleTimeout = 5 * time.Minute
	m.now = func() time.Time { return base.Add(6 * time.Minute) }

	if n := m.IdleSweep(); n != 1 {
		t.Fatalf("expected 1 idle eviction, got %d", n)
	}
	if _, _, closed := quiet.closedWith(); !closed {
		t.Fatalf("expected idle connection closed")
	}
	if r.Count(2) != 1 {
		t.Fatalf("expected active connection kept")
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	r := NewRegistry(5)
	gone := newFakeChannel()
	r.Register(7, gone)
	gone.markClosed()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestMonitor(r).Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.Count(7) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.Count(7) != 0 {
		t.Fatalf("expected running monitor to reap user 7")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("monitor did not stop")
	}
}
