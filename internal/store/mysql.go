package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"progress-sync-service/internal/database"
)

// MySQLStore is a primary Client writing straight into the user_data table.
type MySQLStore struct {
	db *database.Database
}

func NewMySQLStore(db *database.Database) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) Put(ctx context.Context, owner OwnerID, record Record, expectedVersion int64) (PutResult, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return PutResult{}, fmt.Errorf("failed to encode record: %w", err)
	}

	var result PutResult
	err = s.db.ExecTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM user_data WHERE owner_id = ? FOR UPDATE`, string(owner),
		).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to get current version: %w", err)
		}

		next, ok := NextVersion(current, expectedVersion)
		if !ok {
			result = PutResult{Status: PutConflict, Version: current}
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_data (owner_id, data, version) VALUES (?, ?, ?)
			 ON DUPLICATE KEY UPDATE data = VALUES(data), version = VALUES(version), updated_at = NOW()`,
			string(owner), data, next,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert record: %w", err)
		}
		result = PutResult{Status: PutOK, Version: next}
		return nil
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return result, nil
}

func (s *MySQLStore) Get(ctx context.Context, owner OwnerID) (GetResult, error) {
	var (
		data    []byte
		version int64
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data, version FROM user_data WHERE owner_id = ?`, string(owner),
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return GetResult{}, nil
	}
	if err != nil {
		return GetResult{}, fmt.Errorf("%w: failed to query record: %w", ErrUnavailable, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return GetResult{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return GetResult{Exists: true, Record: record, Version: version}, nil
}
