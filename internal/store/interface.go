package store

import (
	"context"
	"errors"
)

var (
	// ErrInvalidOwner is returned for owner ids that are empty after normalization.
	ErrInvalidOwner = errors.New("invalid owner id")

	// ErrUnavailable wraps every transport or backend failure reported by a Client.
	ErrUnavailable = errors.New("store unavailable")
)

type PutStatus int

const (
	PutOK PutStatus = iota + 1
	PutConflict
)

func (s PutStatus) String() string {
	switch s {
	case PutOK:
		return "ok"
	case PutConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// PutResult is the outcome of a write that reached the backend.
// Version is the new version on PutOK and the server's version on PutConflict.
// Versionless backends report 0.
type PutResult struct {
	Status  PutStatus
	Version int64
}

// GetResult is the outcome of a read that reached the backend.
type GetResult struct {
	Exists  bool
	Record  Record
	Version int64
}

// Client is the contract each backend implements. Errors mean the backend
// could not be reached or failed; conflicts are reported in PutResult.
// Versionless backends ignore expectedVersion.
type Client interface {
	Put(ctx context.Context, owner OwnerID, record Record, expectedVersion int64) (PutResult, error)
	Get(ctx context.Context, owner OwnerID) (GetResult, error)
}

// NextVersion applies the primary's optimistic concurrency rule. A write
// conflicts only when both sides know a version and the server's is newer;
// otherwise the new version is one past the larger of the two.
func NextVersion(serverVersion, clientVersion int64) (int64, bool) {
	if serverVersion > 0 && clientVersion > 0 && serverVersion > clientVersion {
		return serverVersion, false
	}
	return max(serverVersion, clientVersion) + 1, true
}
