// Package queue buffers writes that could not reach any store. It holds at
// most one pending entry per owner, persists itself into a single storage
// slot on every change and replays entries with a bounded number of attempts.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"progress-sync-service/internal/logger"
	"progress-sync-service/internal/store"
)

const DefaultMaxAttempts = 3

var (
	// ErrDrainInProgress is returned by Drain while another pass is running.
	ErrDrainInProgress = errors.New("drain already in progress")

	// ErrDropped is logged for entries discarded after MaxAttempts failures.
	ErrDropped = errors.New("queue entry dropped after exceeding retry bound")

	// ErrDiscard, wrapped in a ReplayFunc error, drops the entry without
	// spending its remaining attempts.
	ErrDiscard = errors.New("queue entry cannot succeed on retry")
)

type Entry struct {
	ID         string        `json:"id"`
	OwnerID    store.OwnerID `json:"ownerId"`
	Record     store.Record  `json:"record"`
	EnqueuedAt time.Time     `json:"enqueuedAt"`
	Attempts   int           `json:"attempts"`
}

// ReplayFunc re-sends one entry. A nil error removes the entry; an error
// wrapping ErrDiscard drops it at once.
type ReplayFunc func(ctx context.Context, e Entry) error

type DrainReport struct {
	Succeeded []Entry `json:"succeeded"`
	Retrying  []Entry `json:"retrying"`
	Dropped   []Entry `json:"dropped"`
}

type Queue struct {
	storage     Storage
	maxAttempts int

	mu       sync.Mutex
	entries  []Entry
	draining bool
}

func New(storage Storage, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Queue{
		storage:     storage,
		maxAttempts: maxAttempts,
	}
}

// Restore replaces the in-memory entries with the persisted ones.
func (q *Queue) Restore(ctx context.Context) error {
	data, err := q.storage.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load queue: %w", err)
	}

	var entries []Entry
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to decode queue: %w", err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = entries
	return nil
}

// Enqueue replaces any pending entry of the owner with a fresh one and
// persists the queue before returning. On a persistence error the entry is
// still kept in memory.
func (q *Queue) Enqueue(ctx context.Context, owner store.OwnerID, record store.Record, at time.Time) (Entry, error) {
	e := Entry{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		Record:     record,
		EnqueuedAt: at,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := make([]Entry, 0, len(q.entries))
	for _, existing := range q.entries {
		if existing.OwnerID != owner {
			kept = append(kept, existing)
		}
	}
	q.entries = append(kept, e)

	if err := q.persistLocked(ctx); err != nil {
		return e, err
	}
	logger.Log.Info("Queued offline write",
		zap.String("owner", owner.String()),
		zap.String("entry", e.ID),
		zap.Int("pending", len(q.entries)),
	)
	return e, nil
}

// Entries returns a copy of the pending entries in enqueue order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Drain replays every pending entry once, in enqueue order. Only one pass
// runs at a time; concurrent calls return ErrDrainInProgress. Entries replaced
// by Enqueue while the pass runs are left for the next pass.
func (q *Queue) Drain(ctx context.Context, replay ReplayFunc) (DrainReport, error) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return DrainReport{}, ErrDrainInProgress
	}
	q.draining = true
	pending := make([]Entry, len(q.entries))
	copy(pending, q.entries)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	var report DrainReport
	if len(pending) == 0 {
		return report, nil
	}
	logger.Log.Info("Draining offline queue", zap.Int("entries", len(pending)))

	results := make(map[string]error, len(pending))
	for _, e := range pending {
		if ctx.Err() != nil {
			break
		}
		results[e.ID] = replay(ctx, e)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		replayErr, replayed := results[e.ID]
		switch {
		case !replayed:
			kept = append(kept, e)
		case replayErr == nil:
			report.Succeeded = append(report.Succeeded, e)
		default:
			e.Attempts++
			if e.Attempts >= q.maxAttempts || errors.Is(replayErr, ErrDiscard) {
				report.Dropped = append(report.Dropped, e)
				logger.Log.Error("Dropped offline write",
					zap.String("owner", e.OwnerID.String()),
					zap.String("entry", e.ID),
					zap.Int("attempts", e.Attempts),
					zap.Int64("lastSaved", e.Record.LastSaved),
					zap.NamedError("cause", replayErr),
					zap.Error(ErrDropped),
				)
				continue
			}
			logger.Log.Warn("Offline write replay failed",
				zap.String("owner", e.OwnerID.String()),
				zap.String("entry", e.ID),
				zap.Int("attempts", e.Attempts),
				zap.Error(replayErr),
			)
			report.Retrying = append(report.Retrying, e)
			kept = append(kept, e)
		}
	}
	q.entries = kept

	if err := q.persistLocked(ctx); err != nil {
		return report, err
	}
	return report, nil
}

func (q *Queue) persistLocked(ctx context.Context) error {
	entries := q.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := q.storage.Save(context.WithoutCancel(ctx), data); err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}
	return nil
}
