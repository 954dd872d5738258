package indexer

import (
	"encoding/hex"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
	"github.com/veilbridge/ledger-infrastructure/records"
)

func TestQueryFacade(t *testing.T) {
	t.Run("QueryByCommitment", func(t *testing.T) {
		commitment := records.Commitment{7}
		record := &OwnedRecord{Commitment: commitment, KeyID: "key-1", Amount: 50}

		dbMock := &DatabaseMock{}
		dbMock.On("GetOwnedRecord", commitment).Return(record, error(nil)).Once()

		facade := NewQueryFacade(dbMock, nil)

		result, err := facade.QueryByCommitment(commitment)
		require.NoError(t, err)
		require.EqualValues(t, record, result)

		dbMock.AssertExpectations(t)
	})

	t.Run("QueryByTransaction", func(t *testing.T) {
		txID := Hash{9}
		expected := []*OwnedRecord{{Commitment: records.Commitment{1}}}

		dbMock := &DatabaseMock{}
		dbMock.On("GetRecordsByTx", txID).Return(expected, error(nil)).Once()

		facade := NewQueryFacade(dbMock, nil)

		result, err := facade.QueryByTransaction(txID)
		require.NoError(t, err)
		require.EqualValues(t, expected, result)
	})

	t.Run("QueryByKeyDefaultLimit", func(t *testing.T) {
		dbMock := &DatabaseMock{}
		dbMock.On("GetRecordsByKey", "key-1", []byte(nil), DefaultPageSize).
			Return([]*OwnedRecord{}, []byte(nil), error(nil)).Once()

		facade := NewQueryFacade(dbMock, nil)

		_, token, err := facade.QueryByKey("key-1", "", 0)
		require.NoError(t, err)
		require.Empty(t, token)

		dbMock.AssertExpectations(t)
	})

	t.Run("QueryByKeyClampsLimit", func(t *testing.T) {
		dbMock := &DatabaseMock{}
		dbMock.On("GetRecordsByKey", "key-1", []byte(nil), MaxPageSize).
			Return([]*OwnedRecord{}, []byte(nil), error(nil)).Once()

		facade := NewQueryFacade(dbMock, nil)

		_, _, err := facade.QueryByKey("key-1", "", MaxPageSize*10)
		require.NoError(t, err)

		dbMock.AssertExpectations(t)
	})

	t.Run("QueryByKeyTokenRoundTrip", func(t *testing.T) {
		commitment := records.Commitment{5}
		stored := []*OwnedRecord{{Commitment: commitment}}

		dbMock := &DatabaseMock{}
		dbMock.On("GetRecordsByKey", "key-1", []byte(nil), 1).
			Return(stored, commitment[:], error(nil)).Once()
		dbMock.On("GetRecordsByKey", "key-1", commitment[:], 1).
			Return([]*OwnedRecord{}, []byte(nil), error(nil)).Once()

		facade := NewQueryFacade(dbMock, nil)

		_, token, err := facade.QueryByKey("key-1", "", 1)
		require.NoError(t, err)
		require.Equal(t, hex.EncodeToString(commitment[:]), token)

		_, token, err = facade.QueryByKey("key-1", token, 1)
		require.NoError(t, err)
		require.Empty(t, token)

		dbMock.AssertExpectations(t)
	})

	t.Run("QueryByKeyInvalidToken", func(t *testing.T) {
		facade := NewQueryFacade(&DatabaseMock{}, nil)

		_, _, err := facade.QueryByKey("key-1", "not-hex!", 10)
		require.Error(t, err)
	})

	t.Run("HealthAndSyncHeight", func(t *testing.T) {
		dbMock := &DatabaseMock{}
		dbMock.On("GetLatestBlockPoint").
			Return(&BlockPoint{BlockHeight: 77, BlockHash: Hash{77}}, error(nil)).Once()

		engine := NewSyncEngine(fastSyncConfig(), &ChainClientMock{}, nil, dbMock, nil, hclog.NewNullLogger())
		require.NoError(t, engine.Start())

		defer engine.Close()

		facade := NewQueryFacade(dbMock, engine)

		require.EqualValues(t, 77, facade.CurrentSyncHeight())
		require.True(t, facade.Health().Healthy())
	})
}
