package indexerbbolt

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	core "github.com/veilbridge/ledger-infrastructure/indexer"
)

type txOperation func(tx *bbolt.Tx) error

type BBoltTransactionWriter struct {
	db         *bbolt.DB
	operations []txOperation
}

var _ core.DBTransactionWriter = (*BBoltTransactionWriter)(nil)

func (tw *BBoltTransactionWriter) SetLatestBlockPoint(point *core.BlockPoint) core.DBTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		bytes, err := json.Marshal(point)
		if err != nil {
			return fmt.Errorf("could not marshal latest block point: %w", err)
		}

		if err = tx.Bucket(latestBlockPointBucket).Put(defaultKey, bytes); err != nil {
			return fmt.Errorf("latest block point write error: %w", err)
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) AddBlockHeader(header *core.BlockHeader) core.DBTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		bytes, err := json.Marshal(header)
		if err != nil {
			return fmt.Errorf("could not marshal block header: %w", err)
		}

		if err = tx.Bucket(blockHeadersBucket).Put(header.Key(), bytes); err != nil {
			return fmt.Errorf("block header write error: %w", err)
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) AddOwnedRecords(recs []*core.OwnedRecord) core.DBTransactionWriter {
	if len(recs) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		for _, rec := range recs {
			bytes, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("could not marshal owned record: %w", err)
			}

			if err = tx.Bucket(ownedRecordsBucket).Put(rec.Key(), bytes); err != nil {
				return fmt.Errorf("owned record write error: %w", err)
			}

			if err = tx.Bucket(recordsByTxBucket).Put(
				txIndexKey(rec.OriginTx, rec.Commitment), rec.Commitment[:]); err != nil {
				return fmt.Errorf("tx index write error: %w", err)
			}

			if err = tx.Bucket(recordsByKeyBucket).Put(
				keyIndexKey(rec.KeyID, rec.Commitment), rec.Commitment[:]); err != nil {
				return fmt.Errorf("key index write error: %w", err)
			}

			if err = tx.Bucket(heightIndexBucket).Put(
				heightIndexKey(rec.OriginHeight, originFlag, rec.Commitment), rec.Commitment[:]); err != nil {
				return fmt.Errorf("height index write error: %w", err)
			}

			// record created and spent within the same block
			if rec.Spent && rec.SpendingTx != nil {
				if err = tx.Bucket(recordsByTxBucket).Put(
					txIndexKey(*rec.SpendingTx, rec.Commitment), rec.Commitment[:]); err != nil {
					return fmt.Errorf("tx index write error: %w", err)
				}

				if err = tx.Bucket(heightIndexBucket).Put(
					heightIndexKey(rec.SpendHeight, spendFlag, rec.Commitment), rec.Commitment[:]); err != nil {
					return fmt.Errorf("height index write error: %w", err)
				}
			}
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) MarkSpent(events []*core.SpendEvent) core.DBTransactionWriter {
	if len(events) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(ownedRecordsBucket)

		for _, event := range events {
			data := bucket.Get(event.Commitment[:])
			if len(data) == 0 {
				return fmt.Errorf("spend of unknown commitment %s", event.Commitment)
			}

			var record core.OwnedRecord

			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("mark spent unmarshal error: %w", err)
			}

			spendingTx := event.SpendingTx
			record.Spent = true
			record.SpendingTx = &spendingTx
			record.SpendHeight = event.SpendHeight

			bytes, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("mark spent marshal error: %w", err)
			}

			if err = bucket.Put(event.Commitment[:], bytes); err != nil {
				return fmt.Errorf("mark spent write error: %w", err)
			}

			if err = tx.Bucket(recordsByTxBucket).Put(
				txIndexKey(event.SpendingTx, event.Commitment), event.Commitment[:]); err != nil {
				return fmt.Errorf("tx index write error: %w", err)
			}

			if err = tx.Bucket(heightIndexBucket).Put(
				heightIndexKey(event.SpendHeight, spendFlag, event.Commitment), event.Commitment[:]); err != nil {
				return fmt.Errorf("height index write error: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) RollbackToHeight(height uint64) core.DBTransactionWriter {
	tw.operations = append(tw.operations, func(tx *bbolt.Tx) error {
		var (
			heightBckt  = tx.Bucket(heightIndexBucket)
			recordsBckt = tx.Bucket(ownedRecordsBucket)
			cursor      = heightBckt.Cursor()
			from        = core.EncodeUint64ToBytes(height + 1)

			indexKeys [][]byte
		)

		for k, _ := cursor.Seek(from); k != nil; k, _ = cursor.Next() {
			indexKeys = append(indexKeys, append([]byte{}, k...))
		}

		for _, key := range indexKeys {
			var commitment [32]byte

			flag := key[8]
			copy(commitment[:], key[9:])

			data := recordsBckt.Get(commitment[:])
			if len(data) > 0 {
				var record core.OwnedRecord

				if err := json.Unmarshal(data, &record); err != nil {
					return fmt.Errorf("rollback unmarshal error: %w", err)
				}

				switch flag {
				case originFlag:
					// the record was created on the abandoned fork: remove it
					// together with its secondary index entries
					if err := recordsBckt.Delete(commitment[:]); err != nil {
						return err
					}

					if err := tx.Bucket(recordsByTxBucket).Delete(
						txIndexKey(record.OriginTx, record.Commitment)); err != nil {
						return err
					}

					if err := tx.Bucket(recordsByKeyBucket).Delete(
						keyIndexKey(record.KeyID, record.Commitment)); err != nil {
						return err
					}

					if record.Spent && record.SpendingTx != nil {
						if err := tx.Bucket(recordsByTxBucket).Delete(
							txIndexKey(*record.SpendingTx, record.Commitment)); err != nil {
							return err
						}
					}
				case spendFlag:
					if record.OriginHeight > height {
						break // already removed via its origin entry
					}

					// the spend happened on the abandoned fork: unmark it
					if record.SpendingTx != nil {
						if err := tx.Bucket(recordsByTxBucket).Delete(
							txIndexKey(*record.SpendingTx, record.Commitment)); err != nil {
							return err
						}
					}

					record.Spent = false
					record.SpendingTx = nil
					record.SpendHeight = 0

					bytes, err := json.Marshal(record)
					if err != nil {
						return fmt.Errorf("rollback marshal error: %w", err)
					}

					if err = recordsBckt.Put(commitment[:], bytes); err != nil {
						return err
					}
				}
			}

			if err := heightBckt.Delete(key); err != nil {
				return err
			}
		}

		// drop orphaned block headers
		var headerKeys [][]byte

		headersBckt := tx.Bucket(blockHeadersBucket)
		headersCursor := headersBckt.Cursor()

		for k, _ := headersCursor.Seek(from); k != nil; k, _ = headersCursor.Next() {
			headerKeys = append(headerKeys, append([]byte{}, k...))
		}

		for _, key := range headerKeys {
			if err := headersBckt.Delete(key); err != nil {
				return err
			}
		}

		return nil
	})

	return tw
}

func (tw *BBoltTransactionWriter) Execute() error {
	defer func() {
		tw.operations = nil
	}()

	return tw.db.Update(func(tx *bbolt.Tx) error {
		for _, op := range tw.operations {
			if err := op(tx); err != nil {
				return err
			}
		}

		return nil
	})
}
