package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"progress-sync-service/internal/logger"
	"progress-sync-service/internal/metrics"
)

const defaultBackgroundTimeout = 30 * time.Second

// backgroundTasks runs mirror, repair and drain work that no caller waits
// for. Every task gets its own deadline; errors and panics end up in the log.
type backgroundTasks struct {
	wg      sync.WaitGroup
	timeout time.Duration
	metrics *metrics.Metrics
}

func newBackgroundTasks(timeout time.Duration, m *metrics.Metrics) *backgroundTasks {
	if timeout <= 0 {
		timeout = defaultBackgroundTimeout
	}
	return &backgroundTasks{timeout: timeout, metrics: m}
}

// Go starts fn in its own goroutine. kind labels logs and metrics.
func (b *backgroundTasks) Go(kind string, fields []zap.Field, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		err := b.run(ctx, fn)
		b.metrics.ObserveBackground(kind, err)
		if err != nil {
			logger.Log.Warn("Background task failed",
				append(fields, zap.String("task", kind), zap.Error(err))...,
			)
			return
		}
		logger.Log.Debug("Background task finished", append(fields, zap.String("task", kind))...)
	}()
}

func (b *backgroundTasks) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task has returned.
func (b *backgroundTasks) Wait() {
	b.wg.Wait()
}
