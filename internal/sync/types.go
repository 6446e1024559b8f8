package sync

import (
	"errors"

	"progress-sync-service/internal/store"
)

// ErrorKind classifies an unsuccessful or deferred Save.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindConflict  ErrorKind = "conflict"  // primary holds a newer version; caller must re-fetch
	KindTransient ErrorKind = "transient" // stores failed while online; retry with a later Save
	KindQueued    ErrorKind = "queued"    // offline; write deferred to the queue, a soft success
	KindInvalid   ErrorKind = "invalid"   // owner id empty after normalization
)

var (
	// ErrNotFound is returned by Load when neither store holds a record.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is the cause attached to conflicted saves.
	ErrConflict = errors.New("version conflict at primary store")

	// ErrOffline is returned by Drain while the device is offline.
	ErrOffline = errors.New("device is offline")
)

// SyncResult is what Save reports to its caller. Version is set only when
// the primary accepted the write or reported a conflict. Err carries the
// underlying cause for logging and is never a reason to panic.
type SyncResult struct {
	Success   bool      `json:"success"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Version   int64     `json:"version,omitempty"`
	LastSaved int64     `json:"lastSaved,omitempty"`
	Err       error     `json:"-"`
}

// Deferred reports whether the write only reached the offline queue.
func (r SyncResult) Deferred() bool {
	return r.Success && r.ErrorKind == KindQueued
}

type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
)

// LoadResult carries the winning record. Version is the primary's version
// whenever the primary answered, even if the secondary's copy won.
type LoadResult struct {
	Record  store.Record `json:"record"`
	Source  Source       `json:"source"`
	Version int64        `json:"version"`
}
