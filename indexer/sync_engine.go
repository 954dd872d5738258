package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/veilbridge/ledger-infrastructure/common"
	"github.com/veilbridge/ledger-infrastructure/metrics"
)

type SyncState int32

const (
	StateIdle SyncState = iota
	StateFetching
	StateIndexing
	StateRollingBack
	StateFaulted
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateIndexing:
		return "indexing"
	case StateRollingBack:
		return "rolling_back"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Health is the engine's readiness surface. During a fault, queries keep
// serving the last committed state while Reason names the cause.
type Health struct {
	State  SyncState `json:"state"`
	Reason string    `json:"reason,omitempty"`
}

func (h Health) Healthy() bool {
	return h.State != StateFaulted
}

type SyncEngineConfig struct {
	PollInterval     time.Duration        `json:"pollInterval"`
	FetchTimeout     time.Duration        `json:"fetchTimeout"`
	MaxFetchRetries  int                  `json:"maxFetchRetries"`
	FetchBackoff     common.BackoffConfig `json:"fetchBackoff"`
	MaxBlocksPerTick int                  `json:"maxBlocksPerTick"`
	MaxReorgDepth    uint64               `json:"maxReorgDepth"`
	// StartingPoint is the trusted checkpoint used when the store holds no
	// cursor yet (and after an operator re-checkpoint). Nil means genesis.
	StartingPoint *BlockPoint `json:"startingPoint"`
}

func (cfg *SyncEngineConfig) applyDefaults() {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second * 15
	}

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Second * 10
	}

	if cfg.MaxFetchRetries <= 0 {
		cfg.MaxFetchRetries = 8
	}

	if cfg.MaxBlocksPerTick <= 0 {
		cfg.MaxBlocksPerTick = 45
	}
}

// SyncEngine drives the indexing loop: it polls the remote node, fetches
// blocks in height order, matches their records, and commits every block as
// one atomic batch together with the cursor advance. A single worker
// goroutine owns the cursor; concurrent readers only see committed state.
type SyncEngine struct {
	config   *SyncEngineConfig
	client   ChainClient
	matcher  *RecordMatcher
	detector *ReorgDetector
	db       Database
	observer *metrics.SyncObserver
	logger   hclog.Logger

	// owned by the worker goroutine
	cursor BlockPoint

	state       atomic.Int32
	faultReason atomic.Value
	syncHeight  atomic.Uint64

	ctx       context.Context
	ctxCancel context.CancelFunc
	errorCh   chan error
	doneCh    chan struct{}
	isClosed  uint32
}

var _ Closable = (*SyncEngine)(nil)

func NewSyncEngine(
	config *SyncEngineConfig, client ChainClient, matcher *RecordMatcher,
	db Database, observer *metrics.SyncObserver, logger hclog.Logger,
) *SyncEngine {
	config.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	return &SyncEngine{
		config:    config,
		client:    client,
		matcher:   matcher,
		detector:  NewReorgDetector(&ReorgDetectorConfig{MaxDepth: config.MaxReorgDepth}, client, db, logger),
		db:        db,
		observer:  observer,
		logger:    logger,
		ctx:       ctx,
		ctxCancel: cancel,
		errorCh:   make(chan error, 1),
		doneCh:    make(chan struct{}),
	}
}

// Start loads the cursor and launches the sync worker.
func (se *SyncEngine) Start() error {
	point, err := se.db.GetLatestBlockPoint()
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}

	if point == nil {
		point = se.config.StartingPoint
	}

	if point == nil {
		point = &BlockPoint{}
	}

	se.cursor = *point
	se.syncHeight.Store(point.BlockHeight)
	se.setState(StateIdle)

	se.logger.Info("Sync engine started", "cursor", se.cursor)

	go se.runLoop()

	return nil
}

func (se *SyncEngine) Close() error {
	if atomic.CompareAndSwapUint32(&se.isClosed, 0, 1) {
		se.logger.Info("Closing sync engine")
		se.ctxCancel()
		<-se.doneCh
	}

	return nil
}

// ErrorCh surfaces fatal faults to the operator. The engine does not index
// past a fault; restarting requires a resolved store or corrected cursor.
func (se *SyncEngine) ErrorCh() <-chan error {
	return se.errorCh
}

func (se *SyncEngine) Health() Health {
	health := Health{State: SyncState(se.state.Load())}
	if reason, ok := se.faultReason.Load().(string); ok {
		health.Reason = reason
	}

	return health
}

// SyncHeight returns the height of the last fully committed block.
func (se *SyncEngine) SyncHeight() uint64 {
	return se.syncHeight.Load()
}

func (se *SyncEngine) runLoop() {
	defer close(se.doneCh)

	ticker := time.NewTicker(se.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-se.ctx.Done():
			return
		case <-ticker.C:
		}

		if err := se.tick(); err != nil {
			se.fault(err)

			return
		}
	}
}

// tick advances the cursor toward the remote tip, indexing at most
// MaxBlocksPerTick blocks. A non-nil return is fatal.
func (se *SyncEngine) tick() error {
	tip, err := se.fetchTipHeight()
	if err != nil {
		if common.IsContextDoneErr(err) && se.ctx.Err() != nil {
			return nil // closing
		}

		// transient by definition: wait for the next tick
		se.logger.Warn("Tip height unavailable", "err", err)
		se.setState(StateIdle)

		return nil
	}

	for processed := 0; se.cursor.BlockHeight < tip && processed < se.config.MaxBlocksPerTick; processed++ {
		if se.ctx.Err() != nil {
			return nil
		}

		height := se.cursor.BlockHeight + 1
		se.setState(StateFetching)

		block, err := se.fetchBlock(height)
		if err != nil {
			if se.ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, ErrBlockNotAvailable) {
				break // remote tip is not there yet
			}

			// retries exhausted: stay non-fatal, resume on the next tick
			se.logger.Warn("Block fetch failed", "height", height, "err", err)

			break
		}

		// re-validate linkage on the freshly fetched block: results from
		// earlier fetch attempts are never merged in
		linkage, err := se.detector.CheckLinkage(se.ctx, block.Header, se.cursor)
		if err != nil {
			if errors.Is(err, ErrReorgTooDeep) {
				return err
			}

			se.logger.Warn("Linkage check interrupted", "height", height, "err", err)

			break
		}

		if !linkage.Extends {
			se.setState(StateRollingBack)

			if err := se.rollbackTo(linkage.ForkHeight); err != nil {
				return err
			}

			continue // forward indexing resumes along the new fork
		}

		se.setState(StateIndexing)

		if err := se.indexBlock(block); err != nil {
			return err
		}
	}

	se.setState(StateIdle)

	return nil
}

func (se *SyncEngine) fetchTipHeight() (uint64, error) {
	return common.ExecuteWithRetry(se.ctx, func(ctx context.Context) (uint64, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, se.config.FetchTimeout)
		defer cancel()

		return se.client.GetTipHeight(fetchCtx)
	},
		common.WithMaxAttempts(se.config.MaxFetchRetries),
		common.WithBackoff(se.config.FetchBackoff),
		common.WithIsRetryableError(se.isRetryableFetchErr),
		common.WithLogger(se.logger))
}

func (se *SyncEngine) fetchBlock(height uint64) (*Block, error) {
	return common.ExecuteWithRetry(se.ctx, func(ctx context.Context) (*Block, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, se.config.FetchTimeout)
		defer cancel()

		block, err := se.client.GetBlock(fetchCtx, height)
		if err != nil {
			return nil, err
		}

		if block.Header.Height != height {
			return nil, fmt.Errorf("remote returned height %d instead of %d", block.Header.Height, height)
		}

		return block, nil
	},
		common.WithMaxAttempts(se.config.MaxFetchRetries),
		common.WithBackoff(se.config.FetchBackoff),
		common.WithIsRetryableError(se.isRetryableFetchErr),
		common.WithLogger(se.logger))
}

func (se *SyncEngine) isRetryableFetchErr(err error) bool {
	if errors.Is(err, ErrBlockNotAvailable) {
		return false
	}

	if se.ctx.Err() != nil {
		return false // engine is closing
	}

	se.observer.ObserveFetchRetry()

	// per-attempt timeouts and network errors are transient
	return true
}

func (se *SyncEngine) indexBlock(block *Block) error {
	started := time.Now()

	entries, spends, err := se.matcher.MatchBlock(block)
	if err != nil {
		return errors.Join(ErrSyncEngineFatal, ErrStorageUnavailable, err)
	}

	point := &BlockPoint{
		BlockHeight: block.Header.Height,
		BlockHash:   block.Header.Hash,
	}

	err = se.db.OpenTx().
		AddBlockHeader(&block.Header).
		AddOwnedRecords(entries).
		MarkSpent(spends).
		SetLatestBlockPoint(point).
		Execute()
	if err != nil {
		return errors.Join(ErrSyncEngineFatal, ErrStorageUnavailable, err)
	}

	// the batch is durable: only now may in-memory state advance
	se.cursor = *point
	se.detector.ObserveCommitted(block.Header)
	se.syncHeight.Store(point.BlockHeight)
	se.observer.ObserveBlockIndexed(point.BlockHeight, len(entries), len(spends), started)

	se.logger.Debug("Block indexed",
		"height", block.Header.Height, "hash", block.Header.Hash,
		"ownedRecords", len(entries), "spends", len(spends))

	return nil
}

func (se *SyncEngine) rollbackTo(forkHeight uint64) error {
	var hash Hash

	if forkHeight > 0 {
		header, err := se.db.GetBlockHeader(forkHeight)
		if err != nil || header == nil {
			return errors.Join(ErrSyncEngineFatal, ErrStorageUnavailable,
				fmt.Errorf("rollback target header at height %d: %w", forkHeight, err))
		}

		hash = header.Hash
	} else if se.config.StartingPoint != nil {
		hash = se.config.StartingPoint.BlockHash
	}

	fromHeight := se.cursor.BlockHeight
	point := &BlockPoint{BlockHeight: forkHeight, BlockHash: hash}

	err := se.db.OpenTx().
		RollbackToHeight(forkHeight).
		SetLatestBlockPoint(point).
		Execute()
	if err != nil {
		return errors.Join(ErrSyncEngineFatal, ErrStorageUnavailable, err)
	}

	se.cursor = *point
	se.detector.RollbackTo(forkHeight)
	se.syncHeight.Store(forkHeight)
	se.observer.ObserveReorg(fromHeight, forkHeight)

	se.logger.Info("Rolled back to common ancestor", "from", fromHeight, "to", forkHeight)

	return nil
}

func (se *SyncEngine) setState(state SyncState) {
	se.state.Store(int32(state))
}

func (se *SyncEngine) fault(err error) {
	se.state.Store(int32(StateFaulted))
	se.faultReason.Store(err.Error())
	se.observer.ObserveFault(faultReasonLabel(err))

	se.logger.Error("Sync engine faulted", "err", err)

	select {
	case se.errorCh <- err:
	default:
	}
}

func faultReasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrReorgTooDeep):
		return "reorg_too_deep"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "other"
	}
}
