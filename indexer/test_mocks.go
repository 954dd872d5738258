package indexer

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/veilbridge/ledger-infrastructure/records"
)

type ChainClientMock struct {
	mock.Mock
	GetTipHeightFn func(ctx context.Context) (uint64, error)
	GetBlockFn     func(ctx context.Context, height uint64) (*Block, error)
}

// GetTipHeight implements ChainClient.
func (m *ChainClientMock) GetTipHeight(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)

	if m.GetTipHeightFn != nil {
		return m.GetTipHeightFn(ctx)
	}

	return args.Get(0).(uint64), args.Error(1) //nolint:forcetypeassert
}

// GetBlock implements ChainClient.
func (m *ChainClientMock) GetBlock(ctx context.Context, height uint64) (*Block, error) {
	args := m.Called(ctx, height)

	if m.GetBlockFn != nil {
		return m.GetBlockFn(ctx, height)
	}

	return args.Get(0).(*Block), args.Error(1) //nolint:forcetypeassert
}

var _ ChainClient = (*ChainClientMock)(nil)

type DatabaseMock struct {
	mock.Mock
	Writter               *DBTransactionWriterMock
	GetLatestBlockPointFn func() (*BlockPoint, error)
	GetBlockHeaderFn      func(height uint64) (*BlockHeader, error)
	GetOwnedRecordFn      func(commitment records.Commitment) (*OwnedRecord, error)
	InitFn                func(filepath string) error
}

// Init implements Database.
func (m *DatabaseMock) Init(filepath string) error {
	args := m.Called(filepath)

	if m.InitFn != nil {
		return m.InitFn(filepath)
	}

	return args.Error(0)
}

func (m *DatabaseMock) Close() error {
	return m.Called().Error(0)
}

// OpenTx implements Database.
func (m *DatabaseMock) OpenTx() DBTransactionWriter {
	args := m.Called()

	if m.Writter != nil {
		return m.Writter
	}

	return args.Get(0).(DBTransactionWriter) //nolint:forcetypeassert
}

// GetLatestBlockPoint implements Database.
func (m *DatabaseMock) GetLatestBlockPoint() (*BlockPoint, error) {
	args := m.Called()

	if m.GetLatestBlockPointFn != nil {
		return m.GetLatestBlockPointFn()
	}

	return args.Get(0).(*BlockPoint), args.Error(1) //nolint:forcetypeassert
}

// GetBlockHeader implements Database.
func (m *DatabaseMock) GetBlockHeader(height uint64) (*BlockHeader, error) {
	args := m.Called(height)

	if m.GetBlockHeaderFn != nil {
		return m.GetBlockHeaderFn(height)
	}

	return args.Get(0).(*BlockHeader), args.Error(1) //nolint:forcetypeassert
}

// GetOwnedRecord implements Database.
func (m *DatabaseMock) GetOwnedRecord(commitment records.Commitment) (*OwnedRecord, error) {
	args := m.Called(commitment)

	if m.GetOwnedRecordFn != nil {
		return m.GetOwnedRecordFn(commitment)
	}

	return args.Get(0).(*OwnedRecord), args.Error(1) //nolint:forcetypeassert
}

// GetRecordsByTx implements Database.
func (m *DatabaseMock) GetRecordsByTx(txID Hash) ([]*OwnedRecord, error) {
	args := m.Called(txID)

	return args.Get(0).([]*OwnedRecord), args.Error(1) //nolint:forcetypeassert
}

// GetRecordsByKey implements Database.
func (m *DatabaseMock) GetRecordsByKey(
	keyID string, fromToken []byte, limit int,
) ([]*OwnedRecord, []byte, error) {
	args := m.Called(keyID, fromToken, limit)

	return args.Get(0).([]*OwnedRecord), args.Get(1).([]byte), args.Error(2) //nolint:forcetypeassert
}

var _ Database = (*DatabaseMock)(nil)

type DBTransactionWriterMock struct {
	mock.Mock
	AddOwnedRecordsFn     func(recs []*OwnedRecord) DBTransactionWriter
	MarkSpentFn           func(events []*SpendEvent) DBTransactionWriter
	SetLatestBlockPointFn func(point *BlockPoint) DBTransactionWriter
	RollbackToHeightFn    func(height uint64) DBTransactionWriter
	ExecuteFn             func() error
}

// SetLatestBlockPoint implements DBTransactionWriter.
func (m *DBTransactionWriterMock) SetLatestBlockPoint(point *BlockPoint) DBTransactionWriter {
	m.Called(point)

	if m.SetLatestBlockPointFn != nil {
		return m.SetLatestBlockPointFn(point)
	}

	return m
}

// AddBlockHeader implements DBTransactionWriter.
func (m *DBTransactionWriterMock) AddBlockHeader(header *BlockHeader) DBTransactionWriter {
	m.Called(header)

	return m
}

// AddOwnedRecords implements DBTransactionWriter.
func (m *DBTransactionWriterMock) AddOwnedRecords(recs []*OwnedRecord) DBTransactionWriter {
	m.Called(recs)

	if m.AddOwnedRecordsFn != nil {
		return m.AddOwnedRecordsFn(recs)
	}

	return m
}

// MarkSpent implements DBTransactionWriter.
func (m *DBTransactionWriterMock) MarkSpent(events []*SpendEvent) DBTransactionWriter {
	m.Called(events)

	if m.MarkSpentFn != nil {
		return m.MarkSpentFn(events)
	}

	return m
}

// RollbackToHeight implements DBTransactionWriter.
func (m *DBTransactionWriterMock) RollbackToHeight(height uint64) DBTransactionWriter {
	m.Called(height)

	if m.RollbackToHeightFn != nil {
		return m.RollbackToHeightFn(height)
	}

	return m
}

// Execute implements DBTransactionWriter.
func (m *DBTransactionWriterMock) Execute() error {
	if m.ExecuteFn != nil {
		return m.ExecuteFn()
	}

	return m.Called().Error(0)
}

var _ DBTransactionWriter = (*DBTransactionWriterMock)(nil)
