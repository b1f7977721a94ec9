package chain

import (
	"fmt"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/fork"
	"github.com/orryx/poaschain/internal/state"
	"github.com/orryx/poaschain/internal/types"
)

// Height returns the current head's block number.
func (bc *Blockchain) Height() uint64 {
	return bc.Head().Number()
}

// ApplyReorg switches the canonical head along a computed reorg path:
// the world-state is rebuilt from genesis through the common ancestor
// on a scratch copy, the apply-side blocks are validated and executed
// on it, and only when every apply block checks out is the live chain
// mutated. Any failure leaves the chain at its pre-reorg state.
func (bc *Blockchain) ApplyReorg(path *fork.ReorgPath) ([]*types.Receipt, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	ancestor, ok := bc.blocksByHash[path.CommonAncestor]
	if !ok {
		return nil, fmt.Errorf("%w: common ancestor %s", ErrBlockNotFound, path.CommonAncestor)
	}

	// Rebuild the ancestor-rooted state on a scratch world-state by
	// replaying the canonical blocks from genesis up to the ancestor.
	branch, err := bc.branchToLocked(ancestor)
	if err != nil {
		return nil, err
	}
	scratch := state.New()
	for _, blk := range branch {
		for _, tx := range blk.Transactions {
			if _, err := executeTransactionOn(scratch, tx, blk.Number()); err != nil {
				return nil, fmt.Errorf("chain: replaying block %d during reorg: %w", blk.Number(), err)
			}
		}
	}

	receipts := make([]*types.Receipt, 0)
	parent := ancestor
	for _, blk := range path.ApplyBlocks {
		if err := validateAgainstParent(blk, parent); err != nil {
			return nil, fmt.Errorf("chain: reorg apply block %d: %w", blk.Number(), err)
		}
		for _, tx := range blk.Transactions {
			r, err := executeTransactionOn(scratch, tx, blk.Number())
			if err != nil {
				return nil, fmt.Errorf("chain: reorg apply block %d tx %s: %w", blk.Number(), tx.Hash(), err)
			}
			receipts = append(receipts, r)
		}
		if got, want := scratch.StateRoot(), blk.Header.StateRoot; got != want {
			return nil, fmt.Errorf("%w: reorg block %d state root %s, header declares %s", ErrInvalidBlock, blk.Number(), got, want)
		}
		parent = blk
	}

	// Every apply block checked out: commit the switch.
	bc.state = scratch
	for _, r := range path.RevertBlocks {
		if bc.numberToHash[r.Number()] == r.Hash() {
			delete(bc.numberToHash, r.Number())
		}
	}
	for _, blk := range path.ApplyBlocks {
		h := blk.Hash()
		bc.blocksByHash[h] = blk
		bc.numberToHash[blk.Number()] = h
	}
	if n := len(path.ApplyBlocks); n > 0 {
		bc.headHash = path.ApplyBlocks[n-1].Hash()
	} else {
		bc.headHash = path.CommonAncestor
	}
	for _, r := range receipts {
		bc.receipts[r.TxHash] = r
	}
	return receipts, nil
}

// SimulateTransactions dry-runs txs against the live state under a
// throwaway checkpoint: it returns the post-execution state root and
// the subset of txs that executed cleanly (in order), then rolls every
// mutation back. Block producers use it to fill a header's state_root
// and drop unexecutable transactions before sealing.
func (bc *Blockchain) SimulateTransactions(txs []*types.Transaction, blockNumber uint64) (stateRoot crypto.Hash, included []*types.Transaction) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	bc.state.Checkpoint()
	for _, tx := range txs {
		if _, err := executeTransactionOn(bc.state, tx, blockNumber); err == nil {
			included = append(included, tx)
		}
	}
	root := bc.state.StateRoot()
	bc.state.Rollback()
	return root, included
}

// branchToLocked walks tip toward genesis through the block index and
// returns the blocks in ascending order, genesis first. Caller holds
// the chain lock.
func (bc *Blockchain) branchToLocked(tip *types.Block) ([]*types.Block, error) {
	var descending []*types.Block
	cursor := tip
	for {
		descending = append(descending, cursor)
		if cursor.IsGenesis() {
			break
		}
		parent, ok := bc.blocksByHash[cursor.Header.ParentHash]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s of block %d", ErrBlockNotFound, cursor.Header.ParentHash, cursor.Number())
		}
		cursor = parent
	}
	out := make([]*types.Block, len(descending))
	for i, b := range descending {
		out[len(descending)-1-i] = b
	}
	return out, nil
}
