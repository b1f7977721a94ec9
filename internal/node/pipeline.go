package node

import (
	"fmt"
	"time"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/fork"
	"github.com/orryx/poaschain/internal/mempool"
	"github.com/orryx/poaschain/internal/metrics"
	"github.com/orryx/poaschain/internal/storage"
	"github.com/orryx/poaschain/internal/types"
)

// ProduceBlock runs the production pipeline: refuse heads that lost a
// prior fork, select the slot proposer, drain the mempool up to the
// block gas limit, seal a block whose header carries the
// post-execution state root, apply it through the chain, and persist.
// Transaction execution happens inside AddBlock; the producer only
// dry-runs candidates to fill the state root and drop unexecutable
// ones.
func (n *Node) ProduceBlock(now time.Time) (*types.Block, error) {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()

	head := n.chain.Head()
	if err := n.engine.VerifyBeforeProduce(head.Hash()); err != nil {
		return nil, err
	}

	number := head.Number() + 1
	proposer, err := n.engine.SelectProposer(number)
	if err != nil {
		return nil, fmt.Errorf("node: selecting proposer for slot %d: %w", number, err)
	}

	candidates := n.pool.GetPending(head.Header.GasLimit, maxTxPerBlock)
	stateRoot, included := n.chain.SimulateTransactions(candidates, number)

	timestamp := head.Header.Timestamp + uint64(n.cfg.Consensus.BlockTimeSeconds)
	block := types.NewBlock(number, head.Hash(), stateRoot, proposer, included, head.Header.GasLimit, timestamp)

	receipts, err := n.chain.AddBlock(block)
	if err != nil {
		return nil, fmt.Errorf("node: applying produced block: %w", err)
	}
	if err := n.engine.FinalizeBlock(block, now); err != nil {
		n.logger.Error("finalizing produced block", "height", number, "err", err.Error())
	}

	n.pool.RemoveIncluded(included, n.promotionPredicate())
	n.afterBlockApplied(block, receipts, now)
	n.collectors.BlocksProduced.Inc()

	n.logger.Info("produced block", "height", number, "txs", len(included), "proposer", proposer.String())
	return block, nil
}

// HandleIncomingBlock runs the acceptance pipeline for a block received
// from a peer: a direct head extension is validated and applied; a
// non-extending block triggers fork handling, and, when the reorg path
// stays within max_reorg_depth, a full reorganization with the fork
// event persisted through the consensus engine's callback.
func (n *Node) HandleIncomingBlock(block *types.Block, now time.Time) error {
	n.writeMu.Lock()
	defer n.writeMu.Unlock()

	head := n.chain.Head()
	if block.Header.ParentHash == head.Hash() {
		if err := n.engine.ValidateBlock(block, head); err != nil {
			return err
		}
		receipts, err := n.chain.AddBlock(block)
		if err != nil {
			return err
		}
		if err := n.engine.FinalizeBlock(block, now); err != nil {
			n.logger.Error("finalizing accepted block", "height", block.Number(), "err", err.Error())
		}
		n.pool.RemoveIncluded(block.Transactions, n.promotionPredicate())
		n.afterBlockApplied(block, receipts, now)
		n.collectors.BlocksAccepted.Inc()
		return nil
	}

	return n.handleForkBlock(block, head, now)
}

// handleForkBlock records the side block, computes the reorg path, and
// applies the reorganization when consensus accepts it. Caller holds
// writeMu.
func (n *Node) handleForkBlock(block, head *types.Block, now time.Time) error {
	n.sideMu.Lock()
	n.sideBlocks[block.Hash()] = block
	n.sideMu.Unlock()

	info := fork.DetectFork(head, block)
	if info == nil {
		return nil
	}
	n.logger.Info("fork detected", "main_tip", head.Hash().String(), "fork_tip", block.Hash().String())

	reader := &compositeReader{node: n}
	path, err := fork.CalculateReorgPath(reader, head, block, n.cfg.ForkHandling.MaxReorgDepth)
	if err != nil {
		n.recordUnresolvedFork(*info, now)
		return fmt.Errorf("node: computing reorg path: %w", err)
	}

	persist := func(fi fork.Info, depth int, resolution string) {
		rec := storage.ForkEventRecord{
			Timestamp:      now,
			ForkPoint:      fi.ForkPoint,
			CommonAncestor: fi.ForkHash,
			MainTip:        fi.MainTip,
			ForkTip:        fi.ForkTip,
			MainLength:     fi.MainLength,
			ForkLength:     fi.ForkLength,
			ReorgDepth:     depth,
			Resolution:     resolution,
		}
		if err := n.store.StoreForkEvent(rec); err != nil {
			n.logger.Error("persisting fork event", "err", err.Error())
		}
	}

	evidence, err := n.engine.ApplyReorg(path, now, persist)
	if err != nil {
		return fmt.Errorf("node: consensus rejected reorg: %w", err)
	}
	for _, ev := range evidence {
		n.logger.Error("double signing detected",
			"validator", ev.Validator.String(), "height", ev.Height)
	}

	receipts, err := n.chain.ApplyReorg(path)
	if err != nil {
		return fmt.Errorf("node: applying reorg: %w", err)
	}

	// Persist the newly canonical branch and drop its transactions
	// from the pool.
	offset := 0
	for _, applied := range path.ApplyBlocks {
		blockReceipts := receipts[offset : offset+len(applied.Transactions)]
		offset += len(applied.Transactions)
		if err := n.store.StoreBlock(applied, blockReceipts); err != nil {
			n.logger.Error("persisting reorged block", "height", applied.Number(), "err", err.Error())
		}
		n.pool.RemoveIncluded(applied.Transactions, nil)
		n.sideMu.Lock()
		delete(n.sideBlocks, applied.Hash())
		n.sideMu.Unlock()
	}
	n.afterBlockApplied(n.chain.Head(), nil, now)

	stats := n.engine.Stats()
	n.collectors.ForkFrequency.Set(float64(stats.ForkFrequency))
	n.collectors.MaxReorgDepth.Set(float64(stats.MaxReorgDepthObserved))
	n.collectors.TotalReorgDepth.Set(float64(stats.TotalReorgDepth))
	return nil
}

// recordUnresolvedFork persists a fork event for a fork the node saw
// but did not reorganize onto (path too deep or unresolvable).
func (n *Node) recordUnresolvedFork(info fork.Info, now time.Time) {
	rec := storage.ForkEventRecord{
		Timestamp:  now,
		MainTip:    info.MainTip,
		ForkTip:    info.ForkTip,
		Resolution: "main",
	}
	if err := n.store.StoreForkEvent(rec); err != nil {
		n.logger.Error("persisting fork event", "err", err.Error())
	}
}

// afterBlockApplied persists the post-block state and refreshes the
// runtime's observability for the new head.
func (n *Node) afterBlockApplied(block *types.Block, receipts []*types.Receipt, now time.Time) {
	if receipts != nil {
		if err := n.store.StoreBlock(block, receipts); err != nil {
			n.logger.Error("persisting block", "height", block.Number(), "err", err.Error())
		}
	}
	if err := n.store.StoreStateSnapshot(block.Number(), n.chain.State().Snapshot()); err != nil {
		n.logger.Error("persisting state snapshot", "height", block.Number(), "err", err.Error())
	}
	if err := n.store.StoreValidatorSet(n.engine.Validators().Snapshot()); err != nil {
		n.logger.Error("persisting validator set", "err", err.Error())
	}

	n.engine.AdvanceFinality(block.Number(), now)

	n.window.Observe(metrics.BlockObservation{
		Number:    block.Number(),
		Timestamp: block.Header.Timestamp,
		GasUsed:   block.Header.GasUsed,
		GasLimit:  block.Header.GasLimit,
		TxCount:   len(block.Transactions),
	})

	n.collectors.ChainHeight.Set(float64(block.Number()))
	n.collectors.HighestJustified.Set(float64(n.engine.HighestJustified()))
	n.collectors.FinalityLag.Set(float64(block.Number() - n.engine.HighestJustified()))
	n.collectors.TxExecuted.Add(float64(len(block.Transactions)))
	m := n.pool.Metrics()
	n.collectors.MempoolPending.Set(float64(m.PendingCount))
	n.collectors.MempoolQueued.Set(float64(m.QueuedCount))
	n.collectors.ValidatorCount.Set(float64(len(n.engine.Validators().Active())))
}

// promotionPredicate asserts a queued entry's nonce now equals its
// sender's current on-chain nonce, driving post-inclusion promotion.
func (n *Node) promotionPredicate() mempool.PromotionPredicate {
	return func(sender crypto.Address, nonce uint64) bool {
		return n.chain.State().Nonce(sender) == nonce
	}
}

// compositeReader resolves blocks through the canonical chain first,
// falling back to the node's side-block index so the fork resolver can
// walk both sides of a fork.
type compositeReader struct {
	node *Node
}

func (r *compositeReader) BlockByHash(hash crypto.Hash) (*types.Block, error) {
	if b, err := r.node.chain.BlockByHash(hash); err == nil {
		return b, nil
	}
	r.node.sideMu.Lock()
	defer r.node.sideMu.Unlock()
	if b, ok := r.node.sideBlocks[hash]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("node: block %s not known on either side of the fork", hash)
}
