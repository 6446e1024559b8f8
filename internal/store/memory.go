package store

import (
	"context"
	"sync"
)

type memoryEntry struct {
	record  Record
	version int64
}

// MemoryStore is an in-process Client. A versioned MemoryStore behaves like
// the primary backend; an unversioned one like the secondary key-value store.
type MemoryStore struct {
	mu        sync.Mutex
	versioned bool
	entries   map[OwnerID]memoryEntry
}

func NewMemoryStore(versioned bool) *MemoryStore {
	return &MemoryStore{
		versioned: versioned,
		entries:   make(map[OwnerID]memoryEntry),
	}
}

func (s *MemoryStore) Put(ctx context.Context, owner OwnerID, record Record, expectedVersion int64) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.versioned {
		s.entries[owner] = memoryEntry{record: record.Clone()}
		return PutResult{Status: PutOK}, nil
	}

	current := s.entries[owner].version
	next, ok := NextVersion(current, expectedVersion)
	if !ok {
		return PutResult{Status: PutConflict, Version: current}, nil
	}
	s.entries[owner] = memoryEntry{record: record.Clone(), version: next}
	return PutResult{Status: PutOK, Version: next}, nil
}

func (s *MemoryStore) Get(ctx context.Context, owner OwnerID) (GetResult, error) {
	if err := ctx.Err(); err != nil {
		return GetResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[owner]
	if !ok {
		return GetResult{}, nil
	}
	return GetResult{Exists: true, Record: e.record.Clone(), Version: e.version}, nil
}
