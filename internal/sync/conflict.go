package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"progress-sync-service/internal/logger"
	"progress-sync-service/internal/store"
)

// ConflictResolver picks between the primary and secondary copies of a
// record and writes the winner back over a stale copy.
type ConflictResolver struct{}

func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{}
}

// Compare returns the copy with the greater lastSaved. A tie goes to the
// primary.
func (r *ConflictResolver) Compare(primary, secondary store.Record) (store.Record, Source) {
	if secondary.LastSaved > primary.LastSaved {
		return secondary, SourceSecondary
	}
	return primary, SourcePrimary
}

// Stale reports whether the loser is strictly older than the winner and
// therefore needs a repair write.
func (r *ConflictResolver) Stale(winner, loser store.Record) bool {
	return loser.LastSaved < winner.LastSaved
}

// Repair writes winner into loser. Failures are logged and returned, never
// retried here; the next Load repeats the comparison.
func (r *ConflictResolver) Repair(ctx context.Context, owner store.OwnerID, winner store.Record, loser store.Client, expectedVersion int64) (store.PutResult, error) {
	res, err := loser.Put(ctx, owner, winner, expectedVersion)
	if err != nil {
		logger.Log.Warn("Repair write failed",
			zap.String("owner", owner.String()),
			zap.Int64("last_saved", winner.LastSaved),
			zap.Error(err),
		)
		return res, fmt.Errorf("repair for %s: %w", owner, err)
	}
	if res.Status == store.PutConflict {
		logger.Log.Info("Repair lost to a newer write",
			zap.String("owner", owner.String()),
			zap.Int64("server_version", res.Version),
		)
		return res, fmt.Errorf("repair for %s: %w", owner, ErrConflict)
	}
	return res, nil
}
