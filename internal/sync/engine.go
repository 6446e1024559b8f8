// Package sync keeps a progress record consistent across a versioned
// primary store and a versionless secondary store, buffering writes in an
// offline queue while neither is reachable.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"progress-sync-service/internal/logger"
	"progress-sync-service/internal/metrics"
	"progress-sync-service/internal/queue"
	"progress-sync-service/internal/store"
)

type Option func(*Engine)

// WithClock replaces time.Now for lastSaved stamps and queue entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithBackgroundTimeout bounds each mirror, repair and drain task.
func WithBackgroundTimeout(d time.Duration) Option {
	return func(e *Engine) { e.backgroundTimeout = d }
}

type Engine struct {
	primary   store.Client
	secondary store.Client
	queue     *queue.Queue
	monitor   ConnectivityMonitor
	resolver  *ConflictResolver
	tasks     *backgroundTasks
	metrics   *metrics.Metrics
	now       func() time.Time

	backgroundTimeout time.Duration

	mu       sync.Mutex
	versions map[store.OwnerID]int64

	initMu      sync.Mutex
	initialized bool
}

func NewEngine(primary, secondary store.Client, q *queue.Queue, monitor ConnectivityMonitor, opts ...Option) *Engine {
	e := &Engine{
		primary:   primary,
		secondary: secondary,
		queue:     q,
		monitor:   monitor,
		resolver:  NewConflictResolver(),
		now:       time.Now,
		versions:  make(map[store.OwnerID]int64),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tasks = newBackgroundTasks(e.backgroundTimeout, e.metrics)
	return e
}

// Restore loads persisted queue entries.
func (e *Engine) Restore(ctx context.Context) error {
	if err := e.queue.Restore(ctx); err != nil {
		return err
	}
	e.metrics.SetQueueDepth(e.queue.Len())
	logger.Log.Info("Offline queue restored", zap.Int("entries", e.queue.Len()))
	return nil
}

// Init restores the queue, subscribes to reconnect events and starts a
// drain when already online. A failed Init can be retried; once it has
// succeeded later calls are no-ops.
func (e *Engine) Init(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.initialized {
		return nil
	}
	if err := e.Restore(ctx); err != nil {
		return err
	}
	e.initialized = true

	e.monitor.OnOnline(e.TriggerDrain)
	if e.monitor.IsOnline() {
		e.TriggerDrain()
	}
	return nil
}

// Save stamps record with the current time and writes it to the primary,
// falling back to the secondary and finally the offline queue.
func (e *Engine) Save(ctx context.Context, rawOwner string, record store.Record, localVersion int64) SyncResult {
	owner, err := store.NormalizeOwnerID(rawOwner)
	if err != nil {
		e.metrics.ObserveSave(string(KindInvalid))
		return SyncResult{ErrorKind: KindInvalid, Err: err}
	}

	expected := localVersion
	if expected <= 0 {
		expected = e.Version(owner)
	}

	res := e.save(ctx, owner, record, expected, true)
	e.metrics.ObserveSave(saveOutcome(res))
	return res
}

// ForceSync saves with the cached version and only reports success.
func (e *Engine) ForceSync(ctx context.Context, rawOwner string, record store.Record) bool {
	return e.Save(ctx, rawOwner, record, 0).Success
}

func (e *Engine) save(ctx context.Context, owner store.OwnerID, record store.Record, expected int64, allowQueue bool) SyncResult {
	record = record.Clone()
	record.LastSaved = e.now().UnixMilli()
	fields := []zap.Field{zap.String("owner", owner.String()), zap.Int64("last_saved", record.LastSaved)}

	put, primaryErr := e.primary.Put(ctx, owner, record, expected)
	if primaryErr == nil {
		switch put.Status {
		case store.PutOK:
			e.setVersion(owner, put.Version)
			e.mirror(owner, record)
			return SyncResult{Success: true, Version: put.Version, LastSaved: record.LastSaved}
		case store.PutConflict:
			logger.Log.Info("Primary rejected stale write",
				append(fields, zap.Int64("expected_version", expected), zap.Int64("server_version", put.Version))...,
			)
			return SyncResult{ErrorKind: KindConflict, Version: put.Version, Err: ErrConflict}
		default:
			primaryErr = fmt.Errorf("unexpected put status %s", put.Status)
		}
	}
	logger.Log.Warn("Primary store write failed, trying secondary", append(fields, zap.Error(primaryErr))...)

	_, secondaryErr := e.secondary.Put(ctx, owner, record, 0)
	if secondaryErr == nil {
		return SyncResult{Success: true, LastSaved: record.LastSaved}
	}
	cause := errors.Join(primaryErr, secondaryErr)

	if !allowQueue || e.monitor.IsOnline() {
		logger.Log.Warn("Both stores rejected write", append(fields, zap.Error(cause))...)
		return SyncResult{ErrorKind: KindTransient, Err: cause}
	}

	entry, err := e.queue.Enqueue(ctx, owner, record, e.now())
	e.metrics.SetQueueDepth(e.queue.Len())
	if err != nil {
		logger.Log.Error("Failed to persist offline write", append(fields, zap.Error(err))...)
		return SyncResult{ErrorKind: KindTransient, Err: errors.Join(cause, err)}
	}
	logger.Log.Info("Write queued while offline", append(fields, zap.String("entry_id", entry.ID))...)
	return SyncResult{Success: true, ErrorKind: KindQueued, LastSaved: record.LastSaved, Err: cause}
}

func (e *Engine) mirror(owner store.OwnerID, record store.Record) {
	e.tasks.Go("mirror", []zap.Field{zap.String("owner", owner.String())}, func(ctx context.Context) error {
		_, err := e.secondary.Put(ctx, owner, record, 0)
		return err
	})
}

// Load reads both stores concurrently and returns the newer copy. A
// strictly older copy is repaired in the background.
func (e *Engine) Load(ctx context.Context, rawOwner string) (LoadResult, error) {
	owner, err := store.NormalizeOwnerID(rawOwner)
	if err != nil {
		return LoadResult{}, err
	}

	var (
		wg                    sync.WaitGroup
		primary, secondary    store.GetResult
		primaryErr, secondErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		primary, primaryErr = e.primary.Get(ctx, owner)
	}()
	go func() {
		defer wg.Done()
		secondary, secondErr = e.secondary.Get(ctx, owner)
	}()
	wg.Wait()

	fields := []zap.Field{zap.String("owner", owner.String())}
	if primaryErr != nil {
		logger.Log.Warn("Primary store read failed", append(fields, zap.Error(primaryErr))...)
		primary = store.GetResult{}
	}
	if secondErr != nil {
		logger.Log.Warn("Secondary store read failed", append(fields, zap.Error(secondErr))...)
		secondary = store.GetResult{}
	}
	if primary.Exists && primary.Version > 0 {
		e.setVersion(owner, primary.Version)
	}

	var result LoadResult
	switch {
	case primary.Exists && secondary.Exists:
		winner, source := e.resolver.Compare(primary.Record, secondary.Record)
		result = LoadResult{Record: winner, Source: source, Version: primary.Version}
		if source == SourceSecondary {
			e.repair(owner, winner, SourcePrimary, primary.Version)
		} else if e.resolver.Stale(winner, secondary.Record) {
			e.repair(owner, winner, SourceSecondary, 0)
		}
	case primary.Exists:
		result = LoadResult{Record: primary.Record, Source: SourcePrimary, Version: primary.Version}
	case secondary.Exists:
		result = LoadResult{Record: secondary.Record, Source: SourceSecondary, Version: primary.Version}
	default:
		if primaryErr != nil && secondErr != nil {
			return LoadResult{}, fmt.Errorf("failed to load %s: %w", owner, errors.Join(ErrNotFound, primaryErr, secondErr))
		}
		return LoadResult{}, ErrNotFound
	}

	e.metrics.ObserveLoad(string(result.Source))
	return result, nil
}

// repair overwrites the copy held by target with winner.
func (e *Engine) repair(owner store.OwnerID, winner store.Record, target Source, expected int64) {
	loser := e.secondary
	if target == SourcePrimary {
		loser = e.primary
	}
	fields := []zap.Field{zap.String("owner", owner.String()), zap.String("target", string(target))}
	e.tasks.Go("repair", fields, func(ctx context.Context) error {
		res, err := e.resolver.Repair(ctx, owner, winner, loser, expected)
		if err != nil {
			return err
		}
		if target == SourcePrimary && res.Version > 0 {
			e.setVersion(owner, res.Version)
		}
		return nil
	})
}

// Drain replays the offline queue once. While offline nothing is replayed
// and ErrOffline is returned.
func (e *Engine) Drain(ctx context.Context) (queue.DrainReport, error) {
	if !e.monitor.IsOnline() {
		return queue.DrainReport{}, ErrOffline
	}

	report, err := e.queue.Drain(ctx, e.replay)
	if err != nil {
		return report, err
	}
	e.metrics.ObserveDrain(len(report.Succeeded), len(report.Retrying), len(report.Dropped))
	e.metrics.SetQueueDepth(e.queue.Len())
	return report, nil
}

// TriggerDrain starts a drain in the background.
func (e *Engine) TriggerDrain() {
	e.tasks.Go("drain", nil, func(ctx context.Context) error {
		report, err := e.Drain(ctx)
		if errors.Is(err, ErrOffline) || errors.Is(err, queue.ErrDrainInProgress) {
			logger.Log.Debug("Drain skipped", zap.Error(err))
			return nil
		}
		if err != nil {
			return err
		}
		if n := len(report.Succeeded) + len(report.Retrying) + len(report.Dropped); n > 0 {
			logger.Log.Info("Offline queue drained",
				zap.Int("succeeded", len(report.Succeeded)),
				zap.Int("retrying", len(report.Retrying)),
				zap.Int("dropped", len(report.Dropped)),
			)
		}
		return nil
	})
}

// replay re-sends a queued write. A conflict means the primary already holds
// a newer version, so the entry is discarded instead of retried.
func (e *Engine) replay(ctx context.Context, entry queue.Entry) error {
	res := e.save(ctx, entry.OwnerID, entry.Record, e.Version(entry.OwnerID), false)
	if res.Success {
		return nil
	}
	if res.ErrorKind == KindConflict {
		return fmt.Errorf("%w: %w", queue.ErrDiscard, ErrConflict)
	}
	if res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("replay ended with %s", res.ErrorKind)
}

// Version returns the last primary version seen for owner, 0 if none.
func (e *Engine) Version(owner store.OwnerID) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versions[owner]
}

func (e *Engine) setVersion(owner store.OwnerID, v int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.versions[owner] = v
}

func (e *Engine) PendingWrites() []queue.Entry {
	return e.queue.Entries()
}

// Wait blocks until all background mirror, repair and drain tasks finish.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

func saveOutcome(res SyncResult) string {
	switch {
	case res.ErrorKind != KindNone:
		return string(res.ErrorKind)
	case res.Version > 0:
		return "ok"
	default:
		return "ok_secondary"
	}
}
