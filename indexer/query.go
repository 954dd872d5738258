package indexer

import (
	"encoding/hex"
	"fmt"

	"github.com/veilbridge/ledger-infrastructure/records"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// QueryFacade is the read-only API over committed index state, consumed by
// the external transport layer. Every call reads one store snapshot, so
// results are a consistent point-in-time view even while the sync engine is
// writing; it never blocks the writer.
type QueryFacade struct {
	db     Database
	engine *SyncEngine
}

func NewQueryFacade(db Database, engine *SyncEngine) *QueryFacade {
	return &QueryFacade{
		db:     db,
		engine: engine,
	}
}

// QueryByCommitment returns the owned record entry for a commitment,
// or nil when the commitment is not indexed.
func (qf *QueryFacade) QueryByCommitment(commitment records.Commitment) (*OwnedRecord, error) {
	return qf.db.GetOwnedRecord(commitment)
}

// QueryByTransaction returns every entry the transaction touched: records it
// created and records it spent.
func (qf *QueryFacade) QueryByTransaction(txID Hash) ([]*OwnedRecord, error) {
	return qf.db.GetRecordsByTx(txID)
}

// QueryByKey enumerates entries owned by a key, paginated. An empty pageToken
// starts from the beginning; the returned token is empty on the last page.
func (qf *QueryFacade) QueryByKey(
	keyID string, pageToken string, limit int,
) ([]*OwnedRecord, string, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	} else if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var fromToken []byte

	if pageToken != "" {
		token, err := hex.DecodeString(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}

		fromToken = token
	}

	entries, nextToken, err := qf.db.GetRecordsByKey(keyID, fromToken, limit)
	if err != nil {
		return nil, "", err
	}

	return entries, hex.EncodeToString(nextToken), nil
}

// CurrentSyncHeight reports the height of the last fully committed block.
func (qf *QueryFacade) CurrentSyncHeight() uint64 {
	return qf.engine.SyncHeight()
}

// Health reports the sync engine state. During a fault, queries keep serving
// data up to the last committed height.
func (qf *QueryFacade) Health() Health {
	return qf.engine.Health()
}
