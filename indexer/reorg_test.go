package indexer

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func localChain(n int) []BlockHeader {
	headers := make([]BlockHeader, 0, n)
	for h := 1; h <= n; h++ {
		headers = append(headers, BlockHeader{
			Height:     uint64(h),
			Hash:       Hash{byte(h)},
			ParentHash: Hash{byte(h - 1)},
		})
	}

	return headers
}

// forkChain diverges from the local chain at forkHeight: blocks above it carry
// different hashes but still link to the shared ancestor.
func forkChain(local []BlockHeader, forkHeight uint64) []BlockHeader {
	headers := make([]BlockHeader, 0, len(local))

	for _, header := range local {
		if header.Height <= forkHeight {
			headers = append(headers, header)

			continue
		}

		forked := BlockHeader{
			Height: header.Height,
			Hash:   Hash{byte(header.Height), 99},
		}
		if header.Height == forkHeight+1 {
			forked.ParentHash = Hash{byte(forkHeight)}
		} else {
			forked.ParentHash = Hash{byte(header.Height - 1), 99}
		}

		headers = append(headers, forked)
	}

	return headers
}

func TestReorgDetector(t *testing.T) {
	ctx := context.Background()

	t.Run("Extends", func(t *testing.T) {
		clientMock := &ChainClientMock{}
		dbMock := &DatabaseMock{}

		detector := NewReorgDetector(&ReorgDetectorConfig{}, clientMock, dbMock, hclog.NewNullLogger())

		cursor := BlockPoint{BlockHeight: 10, BlockHash: Hash{10}}
		header := BlockHeader{Height: 11, Hash: Hash{11}, ParentHash: Hash{10}}

		result, err := detector.CheckLinkage(ctx, header, cursor)
		require.NoError(t, err)
		require.True(t, result.Extends)

		clientMock.AssertNotCalled(t, "GetBlock", mock.Anything, mock.Anything)
	})

	t.Run("ForkFoundInCache", func(t *testing.T) {
		local := localChain(10)
		remote := forkChain(local, 7)

		clientMock := &ChainClientMock{}
		for h := uint64(8); h <= 10; h++ {
			clientMock.On("GetBlock", mock.Anything, h).
				Return(&Block{Header: remote[h-1]}, error(nil)).Once()
		}

		dbMock := &DatabaseMock{}

		detector := NewReorgDetector(&ReorgDetectorConfig{}, clientMock, dbMock, hclog.NewNullLogger())
		for _, header := range local {
			detector.ObserveCommitted(header)
		}

		cursor := BlockPoint{BlockHeight: 10, BlockHash: local[9].Hash}
		newHeader := BlockHeader{Height: 11, Hash: Hash{11, 99}, ParentHash: remote[9].Hash}

		result, err := detector.CheckLinkage(ctx, newHeader, cursor)
		require.NoError(t, err)
		require.False(t, result.Extends)
		require.EqualValues(t, 7, result.ForkHeight)

		// the cache held every header the walk needed
		dbMock.AssertNotCalled(t, "GetBlockHeader", mock.Anything)
		clientMock.AssertExpectations(t)
	})

	t.Run("ForkFoundThroughStore", func(t *testing.T) {
		local := localChain(10)
		remote := forkChain(local, 7)

		clientMock := &ChainClientMock{}
		for h := uint64(8); h <= 10; h++ {
			clientMock.On("GetBlock", mock.Anything, h).
				Return(&Block{Header: remote[h-1]}, error(nil)).Once()
		}

		dbMock := &DatabaseMock{}
		for h := uint64(7); h <= 10; h++ {
			header := local[h-1]
			dbMock.On("GetBlockHeader", h).Return(&header, error(nil)).Once()
		}

		detector := NewReorgDetector(&ReorgDetectorConfig{}, clientMock, dbMock, hclog.NewNullLogger())

		cursor := BlockPoint{BlockHeight: 10, BlockHash: local[9].Hash}
		newHeader := BlockHeader{Height: 11, Hash: Hash{11, 99}, ParentHash: remote[9].Hash}

		result, err := detector.CheckLinkage(ctx, newHeader, cursor)
		require.NoError(t, err)
		require.False(t, result.Extends)
		require.EqualValues(t, 7, result.ForkHeight)

		dbMock.AssertExpectations(t)
	})

	t.Run("ForkAtGenesis", func(t *testing.T) {
		local := localChain(2)
		remote := forkChain(local, 0)

		clientMock := &ChainClientMock{}
		for h := uint64(1); h <= 2; h++ {
			clientMock.On("GetBlock", mock.Anything, h).
				Return(&Block{Header: remote[h-1]}, error(nil)).Once()
		}

		detector := NewReorgDetector(&ReorgDetectorConfig{}, clientMock, &DatabaseMock{}, hclog.NewNullLogger())
		for _, header := range local {
			detector.ObserveCommitted(header)
		}

		cursor := BlockPoint{BlockHeight: 2, BlockHash: local[1].Hash}
		newHeader := BlockHeader{Height: 3, Hash: Hash{3, 99}, ParentHash: remote[1].Hash}

		result, err := detector.CheckLinkage(ctx, newHeader, cursor)
		require.NoError(t, err)
		require.False(t, result.Extends)
		require.EqualValues(t, 0, result.ForkHeight)
	})

	t.Run("ReorgTooDeep", func(t *testing.T) {
		local := localChain(10)
		remote := forkChain(local, 2)

		clientMock := &ChainClientMock{}
		for h := uint64(7); h <= 10; h++ {
			clientMock.On("GetBlock", mock.Anything, h).
				Return(&Block{Header: remote[h-1]}, error(nil)).Once()
		}

		detector := NewReorgDetector(
			&ReorgDetectorConfig{MaxDepth: 3}, clientMock, &DatabaseMock{}, hclog.NewNullLogger())
		for _, header := range local {
			detector.ObserveCommitted(header)
		}

		cursor := BlockPoint{BlockHeight: 10, BlockHash: local[9].Hash}
		newHeader := BlockHeader{Height: 11, Hash: Hash{11, 99}, ParentHash: remote[9].Hash}

		_, err := detector.CheckLinkage(ctx, newHeader, cursor)
		require.ErrorIs(t, err, ErrReorgTooDeep)
		require.ErrorIs(t, err, ErrSyncEngineFatal)
	})

	t.Run("ReorgOneBlockPastMaxDepth", func(t *testing.T) {
		local := localChain(10)
		remote := forkChain(local, 6)

		clientMock := &ChainClientMock{}
		// the walk inspects heights 10 down to 7 and gives up before 6
		for h := uint64(7); h <= 10; h++ {
			clientMock.On("GetBlock", mock.Anything, h).
				Return(&Block{Header: remote[h-1]}, error(nil)).Once()
		}

		detector := NewReorgDetector(
			&ReorgDetectorConfig{MaxDepth: 3}, clientMock, &DatabaseMock{}, hclog.NewNullLogger())
		for _, header := range local {
			detector.ObserveCommitted(header)
		}

		cursor := BlockPoint{BlockHeight: 10, BlockHash: local[9].Hash}
		newHeader := BlockHeader{Height: 11, Hash: Hash{11, 99}, ParentHash: remote[9].Hash}

		_, err := detector.CheckLinkage(ctx, newHeader, cursor)
		require.ErrorIs(t, err, ErrReorgTooDeep)
		require.ErrorIs(t, err, ErrSyncEngineFatal)

		clientMock.AssertExpectations(t)
	})

	t.Run("ReorgExactlyAtMaxDepth", func(t *testing.T) {
		local := localChain(10)
		remote := forkChain(local, 7)

		clientMock := &ChainClientMock{}
		for h := uint64(8); h <= 10; h++ {
			clientMock.On("GetBlock", mock.Anything, h).
				Return(&Block{Header: remote[h-1]}, error(nil)).Once()
		}

		detector := NewReorgDetector(
			&ReorgDetectorConfig{MaxDepth: 3}, clientMock, &DatabaseMock{}, hclog.NewNullLogger())
		for _, header := range local {
			detector.ObserveCommitted(header)
		}

		cursor := BlockPoint{BlockHeight: 10, BlockHash: local[9].Hash}
		newHeader := BlockHeader{Height: 11, Hash: Hash{11, 99}, ParentHash: remote[9].Hash}

		result, err := detector.CheckLinkage(ctx, newHeader, cursor)
		require.NoError(t, err)
		require.EqualValues(t, 7, result.ForkHeight)
	})

	t.Run("MissingLocalHeaderIsTooDeep", func(t *testing.T) {
		clientMock := &ChainClientMock{}

		dbMock := &DatabaseMock{}
		dbMock.On("GetBlockHeader", uint64(10)).Return((*BlockHeader)(nil), error(nil)).Once()

		detector := NewReorgDetector(&ReorgDetectorConfig{}, clientMock, dbMock, hclog.NewNullLogger())

		cursor := BlockPoint{BlockHeight: 10, BlockHash: Hash{10}}
		newHeader := BlockHeader{Height: 11, Hash: Hash{11, 99}, ParentHash: Hash{10, 99}}

		_, err := detector.CheckLinkage(ctx, newHeader, cursor)
		require.ErrorIs(t, err, ErrReorgTooDeep)
	})

	t.Run("RollbackDropsCachedHeaders", func(t *testing.T) {
		local := localChain(10)

		dbMock := &DatabaseMock{}
		header7 := local[6]
		dbMock.On("GetBlockHeader", uint64(7)).Return(&header7, error(nil)).Once()

		detector := NewReorgDetector(&ReorgDetectorConfig{}, &ChainClientMock{}, dbMock, hclog.NewNullLogger())
		for _, header := range local {
			detector.ObserveCommitted(header)
		}

		detector.RollbackTo(5)

		// heights above 5 are no longer cached and must come from the store
		result, err := detector.localHeaderAt(7)
		require.NoError(t, err)
		require.EqualValues(t, header7, result)

		dbMock.AssertExpectations(t)
	})
}
