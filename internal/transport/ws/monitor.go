package ws

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vedran77/sprout/internal/logger"
)

type MonitorConfig struct {
	ProbeInterval       time.Duration
	ProbeTimeout        time.Duration
	IdleTimeout         time.Duration
	IdleCheckInterval   time.Duration
	MaxConcurrentProbes int
}

func (c *MonitorConfig) setDefaults() {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.IdleCheckInterval <= 0 {
		c.IdleCheckInterval = time.Minute
	}
	if c.MaxConcurrentProbes <= 0 {
		c.MaxConcurrentProbes = 32
	}
}

// Monitor evicts connections that stop answering probes or go quiet.
type Monitor struct {
	registry *Registry
	cfg      MonitorConfig
	log      *logger.Logger
	now      func() time.Time
}

func NewMonitor(registry *Registry, cfg MonitorConfig, log *logger.Logger) *Monitor {
	cfg.setDefaults()
	return &Monitor{
		registry: registry,
		cfg:      cfg,
		log:      log.With("component", "ws_monitor"),
		now:      time.Now,
	}
}

// Run sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	probe := time.NewTicker(m.cfg.ProbeInterval)
	defer probe.Stop()
	idle := time.NewTicker(m.cfg.IdleCheckInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-probe.C:
			if n := m.ProbeSweep(ctx); n > 0 {
				m.log.Info("probe sweep evicted connections", "count", n, "remaining", m.registry.Len())
			}
		case <-idle.C:
			if n := m.IdleSweep(); n > 0 {
				m.log.Info("idle sweep evicted connections", "count", n, "remaining", m.registry.Len())
			}
		}
	}
}

// ProbeSweep deregisters closed connections and pings the rest. It returns
// how many connections were evicted.
func (m *Monitor) ProbeSweep(ctx context.Context) int {
	var (
		g       errgroup.Group
		evicted atomic.Int32
	)
	g.SetLimit(m.cfg.MaxConcurrentProbes)

	for _, reg := range m.registry.Snapshot() {
		g.Go(func() error {
			if !reg.Channel.IsOpen() {
				if m.registry.Deregister(reg.UserID, reg.Channel) {
					evicted.Add(1)
				}
				return nil
			}

			pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
			err := reg.Channel.Ping(pctx)
			cancel()
			if err == nil {
				m.registry.Touch(reg.UserID, reg.Channel)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}

			m.log.Warn("connection failed probe", "user_id", reg.UserID, "conn_id", reg.Channel.ID(), "error", err)
			reg.Channel.Close(StatusNotReliable, reasonNotReliable)
			if m.registry.Deregister(reg.UserID, reg.Channel) {
				evicted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(evicted.Load())
}

// IdleSweep closes connections with no activity within IdleTimeout.
func (m *Monitor) IdleSweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)
	evicted := 0
	for _, reg := range m.registry.Snapshot() {
		if !reg.LastActive.Before(cutoff) {
			continue
		}
		m.log.Info("closing idle connection", "user_id", reg.UserID, "conn_id", reg.Channel.ID())
		reg.Channel.Close(StatusNotReliable, reasonNotReliable)
		if m.registry.Deregister(reg.UserID, reg.Channel) {
			evicted++
		}
	}
	return evicted
}
