package indexer

import "errors"

var (
	// ErrSyncEngineFatal marks conditions that halt the automatic sync loop.
	// State committed before the fault stays intact and query-able.
	ErrSyncEngineFatal = errors.New("sync engine fatal error")

	// ErrStorageUnavailable wraps index store write failures. Fatal: indexing
	// must not continue against an unreliable store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrReorgTooDeep is returned when no common ancestor is found within the
	// configured maximum reorg depth. Fatal: recovering requires an operator
	// supplied checkpoint.
	ErrReorgTooDeep = errors.New("reorg exceeds maximum depth")

	// ErrBlockNotAvailable is returned by chain clients when the requested
	// height has not been produced yet. The engine goes back to idle and
	// waits for the next tick.
	ErrBlockNotAvailable = errors.New("block not available yet")
)
