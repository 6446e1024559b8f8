package sync

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"progress-sync-service/internal/logger"
)

// ConnectivityMonitor is the engine's view of the network. OnOnline
// callbacks fire on every offline to online transition and whenever the
// host comes back to the foreground while online. Callbacks must not block.
type ConnectivityMonitor interface {
	IsOnline() bool
	OnOnline(fn func())
}

// Check reports whether the network is currently reachable.
type Check func(ctx context.Context) bool

// HTTPCheck treats any HTTP response from url as reachable.
func HTTPCheck(url string, timeout time.Duration) Check {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}
}

// Monitor is a ConnectivityMonitor driven either by explicit SetOnline
// calls or by a periodic Check.
type Monitor struct {
	check    Check
	interval time.Duration

	mu        sync.Mutex
	online    bool
	callbacks []func()
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewMonitor(online bool, check Check, interval time.Duration) *Monitor {
	return &Monitor{
		online:   online,
		check:    check,
		interval: interval,
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// SetOnline records the current state and fires callbacks when it flips
// from offline to online.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	callbacks := m.snapshotLocked()
	m.mu.Unlock()

	if online == wasOnline {
		return
	}
	logger.Log.Info("Connectivity changed", zap.Bool("online", online))
	if online {
		fire(callbacks)
	}
}

// Foreground signals that the host became visible again.
func (m *Monitor) Foreground() {
	m.mu.Lock()
	online := m.online
	callbacks := m.snapshotLocked()
	m.mu.Unlock()

	if online {
		fire(callbacks)
	}
}

// Start runs the check loop until ctx is done or Stop is called. Without a
// check the state only changes through SetOnline.
func (m *Monitor) Start(ctx context.Context) {
	if m.check == nil || m.interval <= 0 {
		return
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			online := m.check(ctx)
			if ctx.Err() != nil {
				return
			}
			m.SetOnline(online)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) snapshotLocked() []func() {
	return append([]func(){}, m.callbacks...)
}

func fire(callbacks []func()) {
	for _, fn := range callbacks {
		fn()
	}
}
