package indexer

import (
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/veilbridge/ledger-infrastructure/common"
	"github.com/veilbridge/ledger-infrastructure/records"
)

func fastSyncConfig() *SyncEngineConfig {
	return &SyncEngineConfig{
		PollInterval:    time.Hour, // ticks are driven by the tests
		FetchTimeout:    time.Second,
		MaxFetchRetries: 2,
		FetchBackoff: common.BackoffConfig{
			BaseDelay: time.Millisecond,
			MaxDelay:  time.Millisecond * 2,
		},
		MaxBlocksPerTick: 45,
	}
}

func newPassthroughWriter() *DBTransactionWriterMock {
	writer := &DBTransactionWriterMock{}
	writer.On("AddBlockHeader", mock.Anything).Maybe()
	writer.On("AddOwnedRecords", mock.Anything).Maybe()
	writer.On("MarkSpent", mock.Anything).Maybe()
	writer.On("SetLatestBlockPoint", mock.Anything).Maybe()
	writer.On("RollbackToHeight", mock.Anything).Maybe()
	writer.On("Execute").Return(error(nil)).Maybe()

	return writer
}

func TestSyncEngineStart(t *testing.T) {
	t.Run("ResumesFromStoredCursor", func(t *testing.T) {
		point := &BlockPoint{BlockHeight: 42, BlockHash: Hash{42}}

		dbMock := &DatabaseMock{}
		dbMock.On("GetLatestBlockPoint").Return(point, error(nil)).Once()

		engine := NewSyncEngine(fastSyncConfig(), &ChainClientMock{}, nil, dbMock, nil, hclog.NewNullLogger())
		require.NoError(t, engine.Start())

		defer engine.Close()

		require.EqualValues(t, 42, engine.SyncHeight())
		require.Equal(t, StateIdle, engine.Health().State)
		require.True(t, engine.Health().Healthy())
	})

	t.Run("FallsBackToStartingPoint", func(t *testing.T) {
		dbMock := &DatabaseMock{}
		dbMock.On("GetLatestBlockPoint").Return((*BlockPoint)(nil), error(nil)).Once()

		config := fastSyncConfig()
		config.StartingPoint = &BlockPoint{BlockHeight: 1000, BlockHash: Hash{10}}

		engine := NewSyncEngine(config, &ChainClientMock{}, nil, dbMock, nil, hclog.NewNullLogger())
		require.NoError(t, engine.Start())

		defer engine.Close()

		require.EqualValues(t, 1000, engine.SyncHeight())
	})

	t.Run("StorageErrorFails", func(t *testing.T) {
		dbMock := &DatabaseMock{}
		dbMock.On("GetLatestBlockPoint").Return((*BlockPoint)(nil), errors.New("corrupt")).Once()

		engine := NewSyncEngine(fastSyncConfig(), &ChainClientMock{}, nil, dbMock, nil, hclog.NewNullLogger())
		require.ErrorIs(t, engine.Start(), ErrStorageUnavailable)
	})
}

func TestSyncEngineTick(t *testing.T) {
	key := newTestViewKey(t, "key-1", 1)

	t.Run("IndexesOwnedRecordAndAdvances", func(t *testing.T) {
		owned := sealRecord(t, key, records.Payload{Amount: 50, Asset: "credits"})

		block := &Block{
			Header: BlockHeader{Height: 100, Hash: Hash{100}, ParentHash: Hash{99}},
			Txs:    []*Tx{{ID: Hash{1}, Outputs: []records.Record{owned}}},
		}

		clientMock := &ChainClientMock{}
		clientMock.On("GetTipHeight", mock.Anything).Return(uint64(100), error(nil)).Once()
		clientMock.On("GetBlock", mock.Anything, uint64(100)).Return(block, error(nil)).Once()

		writer := newPassthroughWriter()
		dbMock := &DatabaseMock{Writter: writer}
		dbMock.On("OpenTx").Return().Once()

		matcher := NewRecordMatcher([]*records.ViewKey{key}, dbMock, hclog.NewNullLogger())

		engine := NewSyncEngine(fastSyncConfig(), clientMock, matcher, dbMock, nil, hclog.NewNullLogger())
		engine.cursor = BlockPoint{BlockHeight: 99, BlockHash: Hash{99}}
		engine.syncHeight.Store(99)

		require.NoError(t, engine.tick())

		require.EqualValues(t, 100, engine.SyncHeight())
		require.EqualValues(t, BlockPoint{BlockHeight: 100, BlockHash: Hash{100}}, engine.cursor)
		require.Equal(t, StateIdle, engine.Health().State)

		writer.AssertCalled(t, "AddOwnedRecords", mock.MatchedBy(func(recs []*OwnedRecord) bool {
			return len(recs) == 1 && recs[0].Amount == 50 && recs[0].KeyID == "key-1" && !recs[0].Spent
		}))
		writer.AssertCalled(t, "SetLatestBlockPoint",
			&BlockPoint{BlockHeight: 100, BlockHash: Hash{100}})
		clientMock.AssertExpectations(t)
	})

	t.Run("IndexesSpendOfEarlierRecord", func(t *testing.T) {
		commitment := records.Commitment{7}

		block := &Block{
			Header: BlockHeader{Height: 105, Hash: Hash{105}, ParentHash: Hash{104}},
			Txs:    []*Tx{{ID: Hash{9}, Inputs: []records.Commitment{commitment}}},
		}

		clientMock := &ChainClientMock{}
		clientMock.On("GetTipHeight", mock.Anything).Return(uint64(105), error(nil)).Once()
		clientMock.On("GetBlock", mock.Anything, uint64(105)).Return(block, error(nil)).Once()

		writer := newPassthroughWriter()
		dbMock := &DatabaseMock{Writter: writer}
		dbMock.On("OpenTx").Return().Once()
		dbMock.On("GetOwnedRecord", commitment).Return(&OwnedRecord{
			Commitment: commitment, KeyID: "key-1", OriginHeight: 100,
		}, error(nil)).Once()

		matcher := NewRecordMatcher([]*records.ViewKey{key}, dbMock, hclog.NewNullLogger())

		engine := NewSyncEngine(fastSyncConfig(), clientMock, matcher, dbMock, nil, hclog.NewNullLogger())
		engine.cursor = BlockPoint{BlockHeight: 104, BlockHash: Hash{104}}

		require.NoError(t, engine.tick())

		writer.AssertCalled(t, "MarkSpent", mock.MatchedBy(func(events []*SpendEvent) bool {
			return len(events) == 1 && events[0].Commitment == commitment &&
				events[0].SpendingTx == Hash{9} && events[0].SpendHeight == 105
		}))
		require.EqualValues(t, 105, engine.SyncHeight())
	})

	t.Run("StopsAtTip", func(t *testing.T) {
		clientMock := &ChainClientMock{}
		clientMock.On("GetTipHeight", mock.Anything).Return(uint64(50), error(nil)).Once()

		engine := NewSyncEngine(fastSyncConfig(), clientMock, nil, &DatabaseMock{}, nil, hclog.NewNullLogger())
		engine.cursor = BlockPoint{BlockHeight: 50, BlockHash: Hash{50}}

		require.NoError(t, engine.tick())

		clientMock.AssertNotCalled(t, "GetBlock", mock.Anything, mock.Anything)
	})

	t.Run("TipUnavailableStaysIdle", func(t *testing.T) {
		clientMock := &ChainClientMock{}
		clientMock.On("GetTipHeight", mock.Anything).Return(uint64(0), errors.New("connection refused"))

		engine := NewSyncEngine(fastSyncConfig(), clientMock, nil, &DatabaseMock{}, nil, hclog.NewNullLogger())
		engine.cursor = BlockPoint{BlockHeight: 50, BlockHash: Hash{50}}

		require.NoError(t, engine.tick())
		require.Equal(t, StateIdle, engine.Health().State)
	})

	t.Run("BlockNotAvailableIsNotFatal", func(t *testing.T) {
		clientMock := &ChainClientMock{}
		clientMock.On("GetTipHeight", mock.Anything).Return(uint64(51), error(nil)).Once()
		clientMock.On("GetBlock", mock.Anything, uint64(51)).
			Return((*Block)(nil), ErrBlockNotAvailable).Once()

		engine := NewSyncEngine(fastSyncConfig(), clientMock, nil, &DatabaseMock{}, nil, hclog.NewNullLogger())
		engine.cursor = BlockPoint{BlockHeight: 50, BlockHash: Hash{50}}

		require.NoError(t, engine.tick())
		require.EqualValues(t, BlockPoint{BlockHeight: 50, BlockHash: Hash{50}}, engine.cursor)
	})

	t.Run("WrongHeightResponseRejected", func(t *testing.T) {
		wrong := &Block{Header: BlockHeader{Height: 77, Hash: Hash{77}}}

		clientMock := &ChainClientMock{}
		clientMock.On("GetTipHeight", mock.Anything).Return(uint64(51), error(nil)).Once()
		clientMock.On("GetBlock", mock.Anything, uint64(51)).Return(wrong, error(nil))

		engine := NewSyncEngine(fastSyncConfig(), clientMock, nil, &DatabaseMock{}, nil, hclog.NewNullLogger())
		engine.cursor = BlockPoint{BlockHeight: 50, BlockHash: Hash{50}}

		// retries exhaust without advancing or faulting
		require.NoError(t, engine.tick())
		require.EqualValues(t, 0, engine.SyncHeight())
	})

	t.Run("StorageErrorIsFatal", func(t *testing.T) {
		block := &Block{
			Header: BlockHeader{Height: 100, Hash: Hash{100}, ParentHash: Hash{99}},
		}

		clientMock := &ChainClientMock{}
		clientMock.On("GetTipHeight", mock.Anything).Return(uint64(100), error(nil)).Once()
		clientMock.On("GetBlock", mock.Anything, uint64(100)).Return(block, error(nil)).Once()

		writer := &DBTransactionWriterMock{}
		writer.On("AddBlockHeader", mock.Anything).Maybe()
		writer.On("AddOwnedRecords", mock.Anything).Maybe()
		writer.On("MarkSpent", mock.Anything).Maybe()
		writer.On("SetLatestBlockPoint", mock.Anything).Maybe()
		writer.On("Execute").Return(errors.New("disk full")).Once()

		dbMock := &DatabaseMock{Writter: writer}
		dbMock.On("OpenTx").Return().Once()

		matcher := NewRecordMatcher([]*records.ViewKey{key}, dbMock, hclog.NewNullLogger())

		engine := NewSyncEngine(fastSyncConfig(), clientMock, matcher, dbMock, nil, hclog.NewNullLogger())
		engine.cursor = BlockPoint{BlockHeight: 99, BlockHash: Hash{99}}

		err := engine.tick()
		require.ErrorIs(t, err, ErrStorageUnavailable)
		require.ErrorIs(t, err, ErrSyncEngineFatal)

		// the cursor must not advance past a failed commit
		require.EqualValues(t, BlockPoint{BlockHeight: 99, BlockHash: Hash{99}}, engine.cursor)
	})
}

func TestSyncEngineReorg(t *testing.T) {
	key := newTestViewKey(t, "key-1", 1)

	t.Run("RollsBackToForkAndResumes", func(t *testing.T) {
		local := localChain(8)
		remote := forkChain(local, 6)

		// block 9 of the remote fork arrives while the cursor sits on local 8
		newBlock := &Block{
			Header: BlockHeader{Height: 9, Hash: Hash{9, 99}, ParentHash: remote[7].Hash},
		}

		clientMock := &ChainClientMock{}
		clientMock.On("GetTipHeight", mock.Anything).Return(uint64(9), error(nil)).Once()
		clientMock.On("GetBlock", mock.Anything, uint64(9)).Return(newBlock, error(nil)).Once()
		clientMock.On("GetBlock", mock.Anything, uint64(8)).
			Return(&Block{Header: remote[7]}, error(nil)).Once()
		// the ancestor walk steps through remote block 7 before reaching the
		// shared parent at height 6
		clientMock.On("GetBlock", mock.Anything, uint64(7)).
			Return(&Block{Header: remote[6]}, error(nil)).Once()
		// after the rollback the engine resumes forward from the fork point
		clientMock.On("GetBlock", mock.Anything, uint64(7)).
			Return((*Block)(nil), ErrBlockNotAvailable).Once()

		writer := newPassthroughWriter()
		dbMock := &DatabaseMock{Writter: writer}
		dbMock.On("OpenTx").Return().Once()
		header6 := local[5]
		dbMock.On("GetBlockHeader", uint64(6)).Return(&header6, error(nil)).Once()

		matcher := NewRecordMatcher([]*records.ViewKey{key}, dbMock, hclog.NewNullLogger())

		engine := NewSyncEngine(fastSyncConfig(), clientMock, matcher, dbMock, nil, hclog.NewNullLogger())
		engine.cursor = BlockPoint{BlockHeight: 8, BlockHash: local[7].Hash}
		engine.syncHeight.Store(8)

		for _, header := range local {
			engine.detector.ObserveCommitted(header)
		}

		require.NoError(t, engine.tick())

		require.EqualValues(t, BlockPoint{BlockHeight: 6, BlockHash: local[5].Hash}, engine.cursor)
		require.EqualValues(t, 6, engine.SyncHeight())

		writer.AssertCalled(t, "RollbackToHeight", uint64(6))
		writer.AssertCalled(t, "SetLatestBlockPoint",
			&BlockPoint{BlockHeight: 6, BlockHash: local[5].Hash})
		clientMock.AssertExpectations(t)
	})

	t.Run("TooDeepReorgIsFatal", func(t *testing.T) {
		local := localChain(8)
		remote := forkChain(local, 1)

		newBlock := &Block{
			Header: BlockHeader{Height: 9, Hash: Hash{9, 99}, ParentHash: remote[7].Hash},
		}

		clientMock := &ChainClientMock{}
		clientMock.On("GetTipHeight", mock.Anything).Return(uint64(9), error(nil)).Once()
		clientMock.On("GetBlock", mock.Anything, uint64(9)).Return(newBlock, error(nil)).Once()

		for h := uint64(5); h <= 8; h++ {
			clientMock.On("GetBlock", mock.Anything, h).
				Return(&Block{Header: remote[h-1]}, error(nil)).Once()
		}

		config := fastSyncConfig()
		config.MaxReorgDepth = 3

		engine := NewSyncEngine(config, clientMock, nil, &DatabaseMock{}, nil, hclog.NewNullLogger())
		engine.cursor = BlockPoint{BlockHeight: 8, BlockHash: local[7].Hash}

		for _, header := range local {
			engine.detector.ObserveCommitted(header)
		}

		err := engine.tick()
		require.ErrorIs(t, err, ErrReorgTooDeep)
	})

	t.Run("FaultSurfacesOnErrorCh", func(t *testing.T) {
		engine := NewSyncEngine(fastSyncConfig(), &ChainClientMock{}, nil, &DatabaseMock{}, nil, hclog.NewNullLogger())

		fatalErr := errors.Join(ErrSyncEngineFatal, ErrReorgTooDeep)
		engine.fault(fatalErr)

		require.Equal(t, StateFaulted, engine.Health().State)
		require.False(t, engine.Health().Healthy())
		require.NotEmpty(t, engine.Health().Reason)

		select {
		case err := <-engine.ErrorCh():
			require.ErrorIs(t, err, ErrReorgTooDeep)
		default:
			t.Fatal("expected error on channel")
		}
	})
}
