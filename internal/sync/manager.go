package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"progress-sync-service/internal/config"
	"progress-sync-service/internal/logger"
	"progress-sync-service/internal/metrics"
	"progress-sync-service/internal/queue"
)

const (
	StatusIdle    = "idle"
	StatusRunning = "running"
)

type Status struct {
	State         string     `json:"state"`
	Online        bool       `json:"online"`
	QueueDepth    int        `json:"queueDepth"`
	MaxAttempts   int        `json:"maxAttempts"`
	NextDrain     *time.Time `json:"nextDrain,omitempty"`
	PrimaryType   string     `json:"primary"`
	SecondaryType string     `json:"secondary"`
}

// Manager wires the engine to its stores, queue storage, connectivity
// monitor and scheduler, and owns their lifecycle.
type Manager struct {
	cfg       *config.Config
	engine    *Engine
	monitor   *Monitor
	scheduler *Scheduler
	registry  *prometheus.Registry
	closers   []func() error

	mu     sync.Mutex
	status string
}

func NewManager(ctx context.Context, cfg *config.Config) (*Manager, error) {
	m := &Manager{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		status:   StatusIdle,
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	primary, closePrimary, err := newPrimary(ctx, cfg.Primary)
	if err != nil {
		return nil, err
	}
	m.closers = append(m.closers, closePrimary)

	secondary, err := newSecondary(ctx, cfg.Secondary)
	if err != nil {
		m.closeAll()
		return nil, err
	}

	storage, err := m.openQueueStorage(cfg.Queue)
	if err != nil {
		m.closeAll()
		return nil, err
	}

	var check Check
	if cfg.Connectivity.CheckURL != "" {
		check = HTTPCheck(cfg.Connectivity.CheckURL, cfg.Connectivity.CheckTimeout)
	}
	m.monitor = NewMonitor(cfg.Connectivity.AssumeOnline, check, cfg.Connectivity.CheckInterval)

	m.engine = NewEngine(primary, secondary,
		queue.New(storage, cfg.Queue.MaxAttempts),
		m.monitor,
		WithMetrics(metrics.New(m.registry)),
		WithBackgroundTimeout(cfg.Sync.BackgroundTimeout),
	)
	m.scheduler = NewScheduler(cfg.Scheduler, m.engine)

	return m, nil
}

func (m *Manager) openQueueStorage(cfg config.QueueConfig) (queue.Storage, error) {
	if cfg.Path == "" {
		logger.Log.Warn("Queue path not set, offline writes will not survive a restart")
		return queue.NewMemoryStorage(), nil
	}
	s, err := queue.OpenSQLite(cfg.Path, cfg.Slot)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue storage: %w", err)
	}
	m.closers = append(m.closers, s.Close)
	return s, nil
}

// Start restores the queue and begins reacting to connectivity changes and
// the drain schedule.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusRunning {
		return fmt.Errorf("sync is already running")
	}

	logger.Log.Info("Starting sync manager",
		zap.String("primary", m.cfg.Primary.Type),
		zap.String("secondary", m.cfg.Secondary.Type),
	)

	if err := m.engine.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	m.monitor.Start(context.WithoutCancel(ctx))
	if err := m.scheduler.Start(); err != nil {
		m.monitor.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	m.status = StatusRunning
	return nil
}

// Stop halts the monitor and scheduler and waits for in-flight background
// writes.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusRunning {
		return
	}

	logger.Log.Info("Stopping sync manager")

	m.scheduler.Stop()
	m.monitor.Stop()
	m.engine.Wait()

	m.status = StatusIdle
}

func (m *Manager) Close() {
	m.Stop()
	m.engine.Wait()
	m.closeAll()
}

func (m *Manager) closeAll() {
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i](); err != nil {
			logger.Log.Warn("Failed to close resource", zap.Error(err))
		}
	}
	m.closers = nil
}

func (m *Manager) GetStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Status() Status {
	st := Status{
		State:         m.GetStatus(),
		Online:        m.monitor.IsOnline(),
		QueueDepth:    len(m.engine.PendingWrites()),
		MaxAttempts:   m.cfg.Queue.MaxAttempts,
		PrimaryType:   m.cfg.Primary.Type,
		SecondaryType: m.cfg.Secondary.Type,
	}
	if next := m.scheduler.Next(); !next.IsZero() {
		st.NextDrain = &next
	}
	return st
}

func (m *Manager) Engine() *Engine {
	return m.engine
}

func (m *Manager) Monitor() *Monitor {
	return m.monitor
}

// Gatherer exposes the engine metrics plus Go runtime collectors.
func (m *Manager) Gatherer() prometheus.Gatherer {
	return m.registry
}
