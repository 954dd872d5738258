package indexer

import (
	"context"

	"github.com/veilbridge/ledger-infrastructure/records"
)

type Closable interface {
	Close() error
}

// DBTransactionWriter collects index mutations and commits them in one atomic
// batch on Execute: either all become visible or none, even across a crash.
type DBTransactionWriter interface {
	SetLatestBlockPoint(point *BlockPoint) DBTransactionWriter
	AddBlockHeader(header *BlockHeader) DBTransactionWriter
	AddOwnedRecords(recs []*OwnedRecord) DBTransactionWriter
	MarkSpent(events []*SpendEvent) DBTransactionWriter
	// RollbackToHeight removes every owned record with origin height above the
	// given height and unmarks spends recorded above it, together with the
	// orphaned block headers.
	RollbackToHeight(height uint64) DBTransactionWriter
	Execute() error
}

// Database is the index store: one writer (the sync engine), many readers.
// Each read method observes a consistent snapshot of committed state.
type Database interface {
	Init(filePath string) error
	Close() error

	OpenTx() DBTransactionWriter
	GetLatestBlockPoint() (*BlockPoint, error)
	GetBlockHeader(height uint64) (*BlockHeader, error)
	GetOwnedRecord(commitment records.Commitment) (*OwnedRecord, error)
	GetRecordsByTx(txID Hash) ([]*OwnedRecord, error)
	// GetRecordsByKey returns up to limit entries for the key, starting after
	// fromToken (nil for the first page), plus the token for the next page
	// (nil when exhausted).
	GetRecordsByKey(keyID string, fromToken []byte, limit int) ([]*OwnedRecord, []byte, error)
}

// ChainClient is the remote ledger node boundary.
type ChainClient interface {
	// GetTipHeight returns the height of the node's current chain tip.
	GetTipHeight(ctx context.Context) (uint64, error)
	// GetBlock fetches the canonical block at the given height.
	// Returns ErrBlockNotAvailable when the height is above the remote tip.
	GetBlock(ctx context.Context, height uint64) (*Block, error)
}
