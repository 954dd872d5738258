package indexer

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/veilbridge/ledger-infrastructure/records"
)

// RecordMatcher classifies a block's output records as owned or foreign and
// detects spends of previously indexed owned records. Keys are tried in
// registry order; a record decrypts under at most one of them.
type RecordMatcher struct {
	keys   []*records.ViewKey
	db     Database
	logger hclog.Logger
}

func NewRecordMatcher(keys []*records.ViewKey, db Database, logger hclog.Logger) *RecordMatcher {
	return &RecordMatcher{
		keys:   keys,
		db:     db,
		logger: logger,
	}
}

// MatchBlock returns the new owned record entries and spend events produced
// by one block. Decryption failures are the normal silent case; structurally
// malformed records are logged and skipped without aborting the block.
// A record created and consumed within the same block is returned as a single
// entry already marked spent.
func (rm *RecordMatcher) MatchBlock(block *Block) ([]*OwnedRecord, []*SpendEvent, error) {
	var (
		entries []*OwnedRecord
		spends  []*SpendEvent

		// owned records created earlier in this same block
		pending = map[records.Commitment]*OwnedRecord{}
	)

	for _, tx := range block.Txs {
		for _, record := range tx.Outputs {
			entry, err := rm.matchRecord(record, block.Header.Height, tx.ID)
			if err != nil {
				rm.logger.Warn("Skipping malformed record",
					"commitment", record.Commitment, "tx", tx.ID, "height", block.Header.Height, "err", err)

				continue
			}

			if entry != nil {
				entries = append(entries, entry)
				pending[entry.Commitment] = entry
			}
		}

		for _, commitment := range tx.Inputs {
			if entry, exists := pending[commitment]; exists {
				// spend of a record created in this very block: fold it into
				// the entry instead of emitting a separate event, so the
				// stored batch never references an uncommitted record
				spendingTx := tx.ID
				entry.Spent = true
				entry.SpendingTx = &spendingTx
				entry.SpendHeight = block.Header.Height

				continue
			}

			existing, err := rm.db.GetOwnedRecord(commitment)
			if err != nil {
				return nil, nil, fmt.Errorf("owned record lookup: %w", err)
			}

			if existing == nil || existing.Spent {
				continue
			}

			spends = append(spends, &SpendEvent{
				Commitment:  commitment,
				SpendingTx:  tx.ID,
				SpendHeight: block.Header.Height,
			})
		}
	}

	return entries, spends, nil
}

func (rm *RecordMatcher) matchRecord(
	record records.Record, height uint64, txID Hash,
) (*OwnedRecord, error) {
	for _, key := range rm.keys {
		payload, err := key.TryDecrypt(record.Ciphertext)
		if err == nil {
			return &OwnedRecord{
				Commitment:   record.Commitment,
				KeyID:        key.ID(),
				Amount:       payload.Amount,
				Asset:        payload.Asset,
				Memo:         payload.Memo,
				OriginHeight: height,
				OriginTx:     txID,
			}, nil
		}

		if errors.Is(err, records.ErrMalformedRecord) {
			return nil, err
		}

		// records.ErrNotOwned: try the next key
	}

	return nil, nil
}
