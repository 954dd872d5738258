package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/veilbridge/ledger-infrastructure/common"
)

const DefaultMaxReorgDepth = 64

type ReorgDetectorConfig struct {
	// MaxDepth bounds the common-ancestor walk. Exceeding it is fatal:
	// the index cannot self-heal past it without a trusted checkpoint.
	MaxDepth uint64 `json:"maxReorgDepth"`
}

// LinkageResult is the outcome of checking a fetched block against the cursor:
// either the chain extends normally or a fork was observed at ForkHeight.
type LinkageResult struct {
	Extends    bool
	ForkHeight uint64
}

// ReorgDetector resolves the common ancestor between the locally indexed
// chain and the remote chain when a parent-link mismatch is observed.
// It keeps a bounded cache of recently committed headers so the walk rarely
// touches the store. Confined to the sync worker; not safe for concurrent use.
type ReorgDetector struct {
	config  *ReorgDetectorConfig
	client  ChainClient
	db      Database
	headers common.Ring[BlockHeader]
	logger  hclog.Logger
}

func NewReorgDetector(
	config *ReorgDetectorConfig, client ChainClient, db Database, logger hclog.Logger,
) *ReorgDetector {
	maxDepth := config.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxReorgDepth
	}

	return &ReorgDetector{
		config:  &ReorgDetectorConfig{MaxDepth: maxDepth},
		client:  client,
		db:      db,
		headers: common.NewRing[BlockHeader](int(maxDepth) + 1),
		logger:  logger,
	}
}

// ObserveCommitted records a header whose block was committed to the index.
func (rd *ReorgDetector) ObserveCommitted(header BlockHeader) {
	rd.headers.Push(header)
}

// RollbackTo drops cached headers above the given height.
func (rd *ReorgDetector) RollbackTo(height uint64) {
	indx := rd.headers.Find(func(h BlockHeader) bool {
		return h.Height == height
	})

	rd.headers.TruncateAfter(indx)
}

// CheckLinkage determines whether newHeader extends the chain at the cursor.
// On a mismatch it walks backward over remote and local headers until a
// common ancestor height is found, bounded by the configured maximum depth.
func (rd *ReorgDetector) CheckLinkage(
	ctx context.Context, newHeader BlockHeader, cursor BlockPoint,
) (LinkageResult, error) {
	if newHeader.ParentHash == cursor.BlockHash {
		return LinkageResult{Extends: true}, nil
	}

	rd.logger.Info("Parent link mismatch, searching for common ancestor",
		"header", newHeader, "cursor", cursor)

	var (
		height     = cursor.BlockHeight
		remoteHash = newHeader.ParentHash
	)

	for depth := uint64(0); depth <= rd.config.MaxDepth; depth++ {
		if height == 0 {
			// walked back to the trusted starting point
			return LinkageResult{ForkHeight: 0}, nil
		}

		local, err := rd.localHeaderAt(height)
		if err != nil {
			return LinkageResult{}, err
		}

		if local.Hash == remoteHash {
			return LinkageResult{ForkHeight: height}, nil
		}

		// re-fetch the remote ancestor to continue the walk one block back
		remoteBlock, err := rd.client.GetBlock(ctx, height)
		if err != nil {
			return LinkageResult{}, fmt.Errorf("ancestor fetch at height %d: %w", height, err)
		}

		remoteHash = remoteBlock.Header.ParentHash
		height--
	}

	return LinkageResult{}, errors.Join(ErrSyncEngineFatal, ErrReorgTooDeep,
		fmt.Errorf("no common ancestor within %d blocks of height %d", rd.config.MaxDepth, cursor.BlockHeight))
}

func (rd *ReorgDetector) localHeaderAt(height uint64) (BlockHeader, error) {
	indx := rd.headers.Find(func(h BlockHeader) bool {
		return h.Height == height
	})
	if indx != -1 {
		return rd.headers.At(indx), nil
	}

	header, err := rd.db.GetBlockHeader(height)
	if err != nil {
		return BlockHeader{}, fmt.Errorf("local header lookup at height %d: %w", height, err)
	}

	if header == nil {
		// header below the retained range: indistinguishable from a too-deep fork
		return BlockHeader{}, errors.Join(ErrSyncEngineFatal, ErrReorgTooDeep,
			fmt.Errorf("no local header at height %d", height))
	}

	return *header, nil
}
