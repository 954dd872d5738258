// Package metrics exposes Prometheus instrumentation for the sync loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blocksIndexedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger_sync",
		Subsystem: "engine",
		Name:      "blocks_indexed_total",
		Help:      "Count of blocks committed to the index.",
	}, []string{"chain"})

	blockIndexDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledger_sync",
		Subsystem: "engine",
		Name:      "block_index_duration_seconds",
		Help:      "Duration of matching and committing one block.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"chain"})

	ownedRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger_sync",
		Subsystem: "engine",
		Name:      "owned_records_total",
		Help:      "Count of records matched as owned.",
	}, []string{"chain"})

	spendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger_sync",
		Subsystem: "engine",
		Name:      "spends_total",
		Help:      "Count of owned records marked spent.",
	}, []string{"chain"})

	reorgsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger_sync",
		Subsystem: "engine",
		Name:      "reorgs_total",
		Help:      "Count of chain reorganizations repaired.",
	}, []string{"chain"})

	reorgDepth = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledger_sync",
		Subsystem: "engine",
		Name:      "reorg_depth_blocks",
		Help:      "Number of blocks rolled back per reorganization.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
	}, []string{"chain"})

	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger_sync",
		Subsystem: "engine",
		Name:      "fetch_retries_total",
		Help:      "Count of transient remote fetch failures.",
	}, []string{"chain"})

	faultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger_sync",
		Subsystem: "engine",
		Name:      "faults_total",
		Help:      "Count of fatal sync engine faults.",
	}, []string{"chain", "reason"})

	syncHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ledger_sync",
		Subsystem: "engine",
		Name:      "sync_height",
		Help:      "Height of the last fully committed block.",
	}, []string{"chain"})
)

// SyncObserver tracks metrics for one sync engine instance.
// All methods are safe to call on a nil receiver.
type SyncObserver struct {
	chain string
}

func NewSyncObserver(chain string) *SyncObserver {
	if chain == "" {
		chain = "unknown"
	}

	return &SyncObserver{chain: chain}
}

func (o *SyncObserver) ObserveBlockIndexed(height uint64, ownedRecords, spends int, started time.Time) {
	if o == nil {
		return
	}

	blocksIndexedTotal.WithLabelValues(o.chain).Inc()
	blockIndexDuration.WithLabelValues(o.chain).Observe(time.Since(started).Seconds())
	ownedRecordsTotal.WithLabelValues(o.chain).Add(float64(ownedRecords))
	spendsTotal.WithLabelValues(o.chain).Add(float64(spends))
	syncHeight.WithLabelValues(o.chain).Set(float64(height))
}

func (o *SyncObserver) ObserveReorg(fromHeight, toHeight uint64) {
	if o == nil {
		return
	}

	reorgsTotal.WithLabelValues(o.chain).Inc()
	reorgDepth.WithLabelValues(o.chain).Observe(float64(fromHeight - toHeight))
	syncHeight.WithLabelValues(o.chain).Set(float64(toHeight))
}

func (o *SyncObserver) ObserveFetchRetry() {
	if o == nil {
		return
	}

	fetchRetriesTotal.WithLabelValues(o.chain).Inc()
}

func (o *SyncObserver) ObserveFault(reason string) {
	if o == nil {
		return
	}

	faultsTotal.WithLabelValues(o.chain, reason).Inc()
}
