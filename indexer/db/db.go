package db

import (
	"github.com/veilbridge/ledger-infrastructure/indexer"
	indexerbbolt "github.com/veilbridge/ledger-infrastructure/indexer/db/bbolt"
	indexerleveldb "github.com/veilbridge/ledger-infrastructure/indexer/db/leveldb"
)

func NewDatabaseInit(name string, filePath string) (indexer.Database, error) {
	var db indexer.Database

	switch name {
	case "leveldb":
		db = &indexerleveldb.LevelDBDatabase{}
	default:
		db = &indexerbbolt.BBoltDatabase{}
	}

	if err := db.Init(filePath); err != nil {
		return nil, err
	}

	return db, nil
}
