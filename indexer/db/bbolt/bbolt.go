package indexerbbolt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/veilbridge/ledger-infrastructure/records"
	"go.etcd.io/bbolt"

	core "github.com/veilbridge/ledger-infrastructure/indexer"
)

type BBoltDatabase struct {
	db *bbolt.DB
}

var (
	ownedRecordsBucket     = []byte("OwnedRecords")
	recordsByTxBucket      = []byte("RecordsByTx")
	recordsByKeyBucket     = []byte("RecordsByKey")
	heightIndexBucket      = []byte("HeightIndex")
	blockHeadersBucket     = []byte("BlockHeaders")
	latestBlockPointBucket = []byte("LatestBlockPoint")

	defaultKey = []byte("default")
)

const (
	originFlag = byte('o')
	spendFlag  = byte('s')
)

var _ core.Database = (*BBoltDatabase)(nil)

func (bd *BBoltDatabase) Init(filePath string) error {
	db, err := bbolt.Open(filePath, 0600, nil)
	if err != nil {
		return fmt.Errorf("could not open db: %w", err)
	}

	bd.db = db

	return db.Update(func(tx *bbolt.Tx) error {
		for _, bn := range [][]byte{
			ownedRecordsBucket, recordsByTxBucket, recordsByKeyBucket,
			heightIndexBucket, blockHeadersBucket, latestBlockPointBucket,
		} {
			if _, err := tx.CreateBucketIfNotExists(bn); err != nil {
				return fmt.Errorf("could not create bucket %s: %w", string(bn), err)
			}
		}

		return nil
	})
}

func (bd *BBoltDatabase) Close() error {
	return bd.db.Close()
}

func (bd *BBoltDatabase) GetLatestBlockPoint() (*core.BlockPoint, error) {
	var result *core.BlockPoint

	if err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(latestBlockPointBucket).Get(defaultKey); len(data) > 0 {
			return json.Unmarshal(data, &result)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetBlockHeader(height uint64) (*core.BlockHeader, error) {
	var result *core.BlockHeader

	if err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(blockHeadersBucket).Get(core.EncodeUint64ToBytes(height)); len(data) > 0 {
			return json.Unmarshal(data, &result)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetOwnedRecord(commitment records.Commitment) (*core.OwnedRecord, error) {
	var result *core.OwnedRecord

	if err := bd.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(ownedRecordsBucket).Get(commitment[:]); len(data) > 0 {
			return json.Unmarshal(data, &result)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetRecordsByTx(txID core.Hash) ([]*core.OwnedRecord, error) {
	var result []*core.OwnedRecord

	err := bd.db.View(func(tx *bbolt.Tx) error {
		var (
			cursor      = tx.Bucket(recordsByTxBucket).Cursor()
			recordsBckt = tx.Bucket(ownedRecordsBucket)
		)

		for k, v := cursor.Seek(txID[:]); k != nil && bytes.HasPrefix(k, txID[:]); k, v = cursor.Next() {
			data := recordsBckt.Get(v)
			if len(data) == 0 {
				continue
			}

			var record *core.OwnedRecord

			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}

			result = append(result, record)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (bd *BBoltDatabase) GetRecordsByKey(
	keyID string, fromToken []byte, limit int,
) ([]*core.OwnedRecord, []byte, error) {
	var (
		result    []*core.OwnedRecord
		nextToken []byte
	)

	err := bd.db.View(func(tx *bbolt.Tx) error {
		var (
			cursor      = tx.Bucket(recordsByKeyBucket).Cursor()
			recordsBckt = tx.Bucket(ownedRecordsBucket)
			prefix      = keyIndexPrefix(keyID)
			seekKey     = prefix
		)

		if len(fromToken) > 0 {
			seekKey = append(append([]byte{}, prefix...), fromToken...)
		}

		k, v := cursor.Seek(seekKey)
		if len(fromToken) > 0 && bytes.Equal(k, seekKey) {
			k, v = cursor.Next() // token marks the last returned entry
		}

		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			if limit > 0 && len(result) == limit {
				nextToken = append([]byte{}, result[len(result)-1].Commitment[:]...)

				return nil
			}

			data := recordsBckt.Get(v)
			if len(data) == 0 {
				continue
			}

			var record *core.OwnedRecord

			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}

			result = append(result, record)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return result, nextToken, nil
}

func (bd *BBoltDatabase) OpenTx() core.DBTransactionWriter {
	return &BBoltTransactionWriter{
		db: bd.db,
	}
}

func keyIndexPrefix(keyID string) []byte {
	return append([]byte(keyID), 0x00)
}

func keyIndexKey(keyID string, commitment records.Commitment) []byte {
	return append(keyIndexPrefix(keyID), commitment[:]...)
}

func txIndexKey(txID core.Hash, commitment records.Commitment) []byte {
	return append(append([]byte{}, txID[:]...), commitment[:]...)
}

func heightIndexKey(height uint64, flag byte, commitment records.Commitment) []byte {
	key := append(core.EncodeUint64ToBytes(height), flag)

	return append(key, commitment[:]...)
}
