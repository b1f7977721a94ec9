package node

import (
	"context"
	"sync"
	"time"

	"github.com/orryx/poaschain/internal/storage"
)

const (
	mempoolPersistInterval = 30 * time.Second
	monitorInterval        = 5 * time.Second
)

// Run starts the node's background tasks and blocks until ctx is
// cancelled; each loop drains its in-flight work before returning.
// Task failures are logged, never fatal.
func (n *Node) Run(ctx context.Context) {
	var wg sync.WaitGroup

	pruneEvery := time.Duration(n.cfg.Mempool.PruneIntervalSeconds) * time.Second
	if pruneEvery <= 0 {
		pruneEvery = time.Minute
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		n.runPeriodic(ctx, pruneEvery, n.pruneMempool)
	}()
	go func() {
		defer wg.Done()
		n.runPeriodic(ctx, mempoolPersistInterval, n.persistMempool)
	}()
	go func() {
		defer wg.Done()
		n.runPeriodic(ctx, monitorInterval, n.monitorTick)
	}()

	n.logger.Info("node started",
		"height", n.chain.Height(),
		"fork_choice", n.cfg.ForkHandling.ForkChoice,
		"pruning", n.cfg.Storage.Pruning)

	<-ctx.Done()
	wg.Wait()
	n.logger.Info("node stopped")
}

func (n *Node) runPeriodic(ctx context.Context, every time.Duration, task func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task()
		}
	}
}

// pruneMempool drops entries older than max_age from the pool.
func (n *Node) pruneMempool() {
	n.pool.Prune()
	m := n.pool.Metrics()
	n.collectors.MempoolPending.Set(float64(m.PendingCount))
	n.collectors.MempoolQueued.Set(float64(m.QueuedCount))
}

// persistMempool snapshots the current pending entries into storage so
// a restart can resume them.
func (n *Node) persistMempool() {
	snapshot := n.pool.SnapshotPending()
	entries := make([]storage.PendingEntry, len(snapshot))
	for i, s := range snapshot {
		entries[i] = storage.PendingEntry{Tx: s.Tx, GasPrice: s.Tx.GasPrice, AddedAt: s.AddedAt}
	}
	if err := n.store.StorePendingTransactions(entries); err != nil {
		n.logger.Error("persisting mempool", "err", err.Error())
	}
}

// monitorTick is the combined fork monitor and metrics collector: it
// reads the engine's reorg statistics, raises an alert when the
// deepest observed reorg crosses the configured threshold, and stores
// a chain-metrics snapshot when the head falls on the snapshot
// interval.
func (n *Node) monitorTick() {
	stats := n.engine.Stats()
	n.collectors.ForkFrequency.Set(float64(stats.ForkFrequency))
	n.collectors.MaxReorgDepth.Set(float64(stats.MaxReorgDepthObserved))
	n.collectors.TotalReorgDepth.Set(float64(stats.TotalReorgDepth))

	if n.cfg.ForkHandling.EnableForkAlerts && stats.MaxReorgDepthObserved > n.cfg.ForkHandling.AlertThresholdDepth {
		n.logger.Error("reorg depth above alert threshold",
			"observed", stats.MaxReorgDepthObserved,
			"threshold", n.cfg.ForkHandling.AlertThresholdDepth)
	}

	if !n.cfg.Metrics.EnableCollection {
		return
	}
	head := n.chain.Head()
	snap := storage.ChainMetricsSnapshot{
		BlockNumber:      head.Number(),
		Timestamp:        time.Now(),
		BlockTimeSeconds: n.window.AverageBlockTime(),
		GasUsed:          head.Header.GasUsed,
		GasLimit:         head.Header.GasLimit,
		TxCount:          len(head.Transactions),
		TxThroughput:     n.window.TxThroughput(),
		FinalityLag:      head.Number() - n.engine.HighestJustified(),
		ValidatorCount:   len(n.engine.Validators().Active()),
		PendingTxCount:   n.pool.PendingCount(),
	}
	if err := n.store.StoreChainMetrics(head.Number(), snap); err != nil {
		n.logger.Error("storing chain metrics", "err", err.Error())
	}
}
