package indexerleveldb

import (
	"encoding/json"
	"errors"
	"fmt"

	core "github.com/veilbridge/ledger-infrastructure/indexer"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type txOperation func(*leveldb.DB, *leveldb.Batch) error

type LevelDBTransactionWriter struct {
	db         *leveldb.DB
	operations []txOperation
}

var _ core.DBTransactionWriter = (*LevelDBTransactionWriter)(nil)

func NewLevelDBTransactionWriter(db *leveldb.DB) *LevelDBTransactionWriter {
	return &LevelDBTransactionWriter{
		db: db,
	}
}

func (tw *LevelDBTransactionWriter) SetLatestBlockPoint(point *core.BlockPoint) core.DBTransactionWriter {
	tw.operations = append(tw.operations, func(db *leveldb.DB, batch *leveldb.Batch) error {
		bytes, err := json.Marshal(point)
		if err != nil {
			return fmt.Errorf("could not marshal latest block point: %w", err)
		}

		batch.Put(latestBlockPointBucket, bytes)

		return nil
	})

	return tw
}

func (tw *LevelDBTransactionWriter) AddBlockHeader(header *core.BlockHeader) core.DBTransactionWriter {
	tw.operations = append(tw.operations, func(db *leveldb.DB, batch *leveldb.Batch) error {
		bytes, err := json.Marshal(header)
		if err != nil {
			return fmt.Errorf("could not marshal block header: %w", err)
		}

		batch.Put(bucketKey(blockHeadersBucket, header.Key()), bytes)

		return nil
	})

	return tw
}

func (tw *LevelDBTransactionWriter) AddOwnedRecords(recs []*core.OwnedRecord) core.DBTransactionWriter {
	if len(recs) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(db *leveldb.DB, batch *leveldb.Batch) error {
		for _, rec := range recs {
			bytes, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("could not marshal owned record: %w", err)
			}

			batch.Put(bucketKey(ownedRecordsBucket, rec.Key()), bytes)
			batch.Put(bucketKey(recordsByTxBucket, txIndexKey(rec.OriginTx, rec.Commitment)), rec.Commitment[:])
			batch.Put(bucketKey(recordsByKeyBucket, keyIndexKey(rec.KeyID, rec.Commitment)), rec.Commitment[:])
			batch.Put(bucketKey(heightIndexBucket,
				heightIndexKey(rec.OriginHeight, originFlag, rec.Commitment)), rec.Commitment[:])

			// record created and spent within the same block
			if rec.Spent && rec.SpendingTx != nil {
				batch.Put(bucketKey(recordsByTxBucket,
					txIndexKey(*rec.SpendingTx, rec.Commitment)), rec.Commitment[:])
				batch.Put(bucketKey(heightIndexBucket,
					heightIndexKey(rec.SpendHeight, spendFlag, rec.Commitment)), rec.Commitment[:])
			}
		}

		return nil
	})

	return tw
}

// MarkSpent updates records committed by earlier batches. Spends of records
// created in the same block are carried on the record itself and never reach
// this path, so reading through db instead of the pending batch is sound.
func (tw *LevelDBTransactionWriter) MarkSpent(events []*core.SpendEvent) core.DBTransactionWriter {
	if len(events) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(db *leveldb.DB, batch *leveldb.Batch) error {
		for _, event := range events {
			data, err := db.Get(bucketKey(ownedRecordsBucket, event.Commitment[:]), &opt.ReadOptions{
				DontFillCache: true,
			})
			if err != nil {
				if errors.Is(err, leveldb.ErrNotFound) {
					return fmt.Errorf("spend of unknown commitment %s", event.Commitment)
				}

				return err
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

			batch.Put(bucketKey(ownedRecordsBucket, event.Commitment[:]), bytes)
			batch.Put(bucketKey(recordsByTxBucket,
				txIndexKey(event.SpendingTx, event.Commitment)), event.Commitment[:])
			batch.Put(bucketKey(heightIndexBucket,
				heightIndexKey(event.SpendHeight, spendFlag, event.Commitment)), event.Commitment[:])
		}

		return nil
	})

	return tw
}

func (tw *LevelDBTransactionWriter) RollbackToHeight(height uint64) core.DBTransactionWriter {
	tw.operations = append(tw.operations, func(db *leveldb.DB, batch *leveldb.Batch) error {
		prefixLen := len(bucketKey(heightIndexBucket, nil))

		iter := db.NewIterator(&util.Range{
			Start: bucketKey(heightIndexBucket, core.EncodeUint64ToBytes(height+1)),
			Limit: util.BytesPrefix(heightIndexBucket).Limit,
		}, nil)
		defer iter.Release()

		for iter.Next() {
			var commitment [32]byte

			key := iter.Key()
			flag := key[prefixLen+8]
			copy(commitment[:], key[prefixLen+9:])

			batch.Delete(append([]byte{}, key...))

			data, err := db.Get(bucketKey(ownedRecordsBucket, commitment[:]), &opt.ReadOptions{
				DontFillCache: true,
			})
			if err != nil {
				if errors.Is(err, leveldb.ErrNotFound) {
					continue
				}

				return err
			}

			var record core.OwnedRecord

			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("rollback unmarshal error: %w", err)
			}

			switch flag {
			case originFlag:
				batch.Delete(bucketKey(ownedRecordsBucket, commitment[:]))
				batch.Delete(bucketKey(recordsByTxBucket, txIndexKey(record.OriginTx, record.Commitment)))
				batch.Delete(bucketKey(recordsByKeyBucket, keyIndexKey(record.KeyID, record.Commitment)))

				if record.Spent && record.SpendingTx != nil {
					batch.Delete(bucketKey(recordsByTxBucket, txIndexKey(*record.SpendingTx, record.Commitment)))
				}
			case spendFlag:
				// skip records rolled back via their origin entry, a Put after
				// the batched Delete would resurrect them
				if record.OriginHeight > height {
					continue
				}

				if record.SpendingTx != nil {
					batch.Delete(bucketKey(recordsByTxBucket, txIndexKey(*record.SpendingTx, record.Commitment)))
				}

				record.Spent = false
				record.SpendingTx = nil
				record.SpendHeight = 0

				bytes, err := json.Marshal(record)
				if err != nil {
					return fmt.Errorf("rollback marshal error: %w", err)
				}

				batch.Put(bucketKey(ownedRecordsBucket, commitment[:]), bytes)
			}
		}

		if err := iter.Error(); err != nil {
			return err
		}

		headersIter := db.NewIterator(&util.Range{
			Start: bucketKey(blockHeadersBucket, core.EncodeUint64ToBytes(height+1)),
			Limit: util.BytesPrefix(blockHeadersBucket).Limit,
		}, nil)
		defer headersIter.Release()

		for headersIter.Next() {
			batch.Delete(append([]byte{}, headersIter.Key()...))
		}

		return headersIter.Error()
	})

	return tw
}

func (tw *LevelDBTransactionWriter) Execute() error {
	defer func() {
		tw.operations = nil
	}()

	batch := new(leveldb.Batch)

	for _, op := range tw.operations {
		if err := op(tw.db, batch); err != nil {
			return err
		}
	}

	return tw.db.Write(batch, &opt.WriteOptions{
		NoWriteMerge: false,
		Sync:         true,
	})
}
