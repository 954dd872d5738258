package indexerleveldb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	core "github.com/veilbridge/ledger-infrastructure/indexer"
	"github.com/veilbridge/ledger-infrastructure/records"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDBDatabase struct {
	db *leveldb.DB
}

var (
	ownedRecordsBucket     = []byte("P1_")
	recordsByTxBucket      = []byte("P2_")
	recordsByKeyBucket     = []byte("P3_")
	heightIndexBucket      = []byte("P4_")
	blockHeadersBucket     = []byte("P5_")
	latestBlockPointBucket = []byte("P6_")
)

const (
	originFlag = byte('o')
	spendFlag  = byte('s')
)

var _ core.Database = (*LevelDBDatabase)(nil)

func (lvldb *LevelDBDatabase) Init(filePath string) error {
	db, err := leveldb.OpenFile(filePath, nil)
	if err != nil {
		return fmt.Errorf("could not open db: %w", err)
	}

	lvldb.db = db

	return nil
}

func (lvldb *LevelDBDatabase) Close() error {
	return lvldb.db.Close()
}

func (lvldb *LevelDBDatabase) GetLatestBlockPoint() (*core.BlockPoint, error) {
	var result *core.BlockPoint

	bytes, err := lvldb.db.Get(latestBlockPointBucket, nil)
	if err != nil {
		return nil, processNotFoundErr(err)
	}

	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}

	return result, nil
}

func (lvldb *LevelDBDatabase) GetBlockHeader(height uint64) (*core.BlockHeader, error) {
	var result *core.BlockHeader

	bytes, err := lvldb.db.Get(bucketKey(blockHeadersBucket, core.EncodeUint64ToBytes(height)), nil)
	if err != nil {
		return nil, processNotFoundErr(err)
	}

	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}

	return result, nil
}

func (lvldb *LevelDBDatabase) GetOwnedRecord(commitment records.Commitment) (*core.OwnedRecord, error) {
	var result *core.OwnedRecord

	bytes, err := lvldb.db.Get(bucketKey(ownedRecordsBucket, commitment[:]), nil)
	if err != nil {
		return nil, processNotFoundErr(err)
	}

	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}

	return result, nil
}

func (lvldb *LevelDBDatabase) GetRecordsByTx(txID core.Hash) ([]*core.OwnedRecord, error) {
	var result []*core.OwnedRecord

	snapshot, err := lvldb.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snapshot.Release()

	iter := snapshot.NewIterator(util.BytesPrefix(bucketKey(recordsByTxBucket, txID[:])), nil)
	defer iter.Release()

	for iter.Next() {
		data, err := snapshot.Get(bucketKey(ownedRecordsBucket, iter.Value()), nil)
		if err != nil {
			if errors.Is(err, leveldb.ErrNotFound) {
				continue
			}

			return nil, err
		}

		var record *core.OwnedRecord

		if err := json.Unmarshal(data, &record); err != nil {
			return nil, err
		}

		result = append(result, record)
	}

	return result, iter.Error()
}

func (lvldb *LevelDBDatabase) GetRecordsByKey(
	keyID string, fromToken []byte, limit int,
) ([]*core.OwnedRecord, []byte, error) {
	var (
		result    []*core.OwnedRecord
		nextToken []byte
	)

	snapshot, err := lvldb.db.GetSnapshot()
	if err != nil {
		return nil, nil, err
	}
	defer snapshot.Release()

	prefix := bucketKey(recordsByKeyBucket, keyIndexPrefix(keyID))

	iter := snapshot.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	ok := iter.First()
	if len(fromToken) > 0 {
		// the token marks the last returned entry, resume just past it
		seekKey := append(append([]byte{}, prefix...), fromToken...)

		ok = iter.Seek(seekKey)
		if ok && bytes.Equal(iter.Key(), seekKey) {
			ok = iter.Next()
		}
	}

	for ; ok; ok = iter.Next() {
		if limit > 0 && len(result) == limit {
			nextToken = append([]byte{}, result[len(result)-1].Commitment[:]...)

			break
		}

		data, err := snapshot.Get(bucketKey(ownedRecordsBucket, iter.Value()), nil)
		if err != nil {
			if errors.Is(err, leveldb.ErrNotFound) {
				continue
			}

			return nil, nil, err
		}

		var record *core.OwnedRecord

		if err := json.Unmarshal(data, &record); err != nil {
			return nil, nil, err
		}

		result = append(result, record)
	}

	if err := iter.Error(); err != nil {
		return nil, nil, err
	}

	return result, nextToken, nil
}

func (lvldb *LevelDBDatabase) OpenTx() core.DBTransactionWriter {
	return NewLevelDBTransactionWriter(lvldb.db)
}

func bucketKey(bucket []byte, key []byte) []byte {
	const separator = "_#_"

	outputKey := make([]byte, len(bucket)+len(separator)+len(key))
	copy(outputKey, bucket)
	copy(outputKey[len(bucket):], []byte(separator))
	copy(outputKey[len(bucket)+len(separator):], key)

	return outputKey
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

func processNotFoundErr(err error) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}

	return err
}
