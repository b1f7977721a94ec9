// Package fork implements fork detection and reorganization-path
// computation: finding the common ancestor of two competing chains,
// walking the revert/apply sequence between an old and a new head, and
// choosing the canonical tip among competitors under a pluggable
// fork-choice rule.
package fork

import (
	"errors"
	"fmt"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

// Sentinel errors for fork resolution.
var (
	ErrNoCommonAncestor = errors.New("fork: no common ancestor found within search depth")
	ErrEmptyReorgPath    = errors.New("fork: reorg path has no blocks")
	ErrReorgTooDeep      = errors.New("fork: reorg depth exceeds max_reorg_depth")
)

// maxAncestorSearchSteps bounds FindCommonAncestor's lockstep walk per
// side.
const maxAncestorSearchSteps = 10_000

// ChainReader is the minimal read surface fork resolution needs over a
// chain's block index: look up a block by hash, used to walk parent
// links toward genesis.
type ChainReader interface {
	BlockByHash(hash crypto.Hash) (*types.Block, error)
}

// Info is a point-in-time snapshot of a detected fork.
type Info struct {
	ForkPoint   uint64
	ForkHash    crypto.Hash
	MainTip     crypto.Hash
	ForkTip     crypto.Hash
	MainLength  uint64
	ForkLength  uint64
}

// ReorgPath is the ordered pair of block sequences required to move
// the canonical head from OldHead to NewHead through CommonAncestor:
// RevertBlocks walks old_head -> ancestor (descending, exclusive of
// the ancestor itself); ApplyBlocks walks ancestor -> new_head
// (ascending, exclusive of the ancestor).
type ReorgPath struct {
	CommonAncestor crypto.Hash
	RevertBlocks   []*types.Block
	ApplyBlocks    []*types.Block
	Depth          int
}

// DetectFork reports nil when newBlock extends currentHead directly;
// otherwise it returns an Info snapshot describing the two competing
// tips. ForkPoint/ForkHash/MainLength/ForkLength are left zero, since
// computing them precisely requires walking both chains, which
// CalculateReorgPath does.
func DetectFork(currentHead *types.Block, newBlock *types.Block) *Info {
	if newBlock.Header.ParentHash == currentHead.Hash() {
		return nil
	}
	return &Info{
		MainTip: currentHead.Hash(),
		ForkTip: newBlock.Hash(),
	}
}

// FindCommonAncestor walks headA and headB toward genesis in
// lockstep, marking each hash visited on its own side, and returns the
// first hash that appears in both visited sets. The walk is capped at
// maxAncestorSearchSteps per side.
func FindCommonAncestor(reader ChainReader, headA, headB crypto.Hash) (crypto.Hash, error) {
	visitedA := map[crypto.Hash]bool{headA: true}
	visitedB := map[crypto.Hash]bool{headB: true}

	if visitedB[headA] {
		return headA, nil
	}
	if visitedA[headB] {
		return headB, nil
	}

	cursorA, cursorB := headA, headB
	doneA, doneB := false, false

	for step := 0; step < maxAncestorSearchSteps; step++ {
		if !doneA {
			blk, err := reader.BlockByHash(cursorA)
			if err != nil || blk.IsGenesis() {
				doneA = true
			} else {
				cursorA = blk.Header.ParentHash
				visitedA[cursorA] = true
				if visitedB[cursorA] {
					return cursorA, nil
				}
			}
		}
		if !doneB {
			blk, err := reader.BlockByHash(cursorB)
			if err != nil || blk.IsGenesis() {
				doneB = true
			} else {
				cursorB = blk.Header.ParentHash
				visitedB[cursorB] = true
				if visitedA[cursorB] {
					return cursorB, nil
				}
			}
		}
		if doneA && doneB {
			break
		}
	}

	return crypto.ZeroHash, ErrNoCommonAncestor
}

// CalculateReorgPath computes the common ancestor of oldHead and
// newHead, then walks oldHead -> ancestor (collecting revert blocks,
// failing ReorgTooDeep if the walk exceeds maxReorgDepth) and ancestor
// -> newHead (collecting apply blocks, returned in ascending order).
func CalculateReorgPath(reader ChainReader, oldHead, newHead *types.Block, maxReorgDepth int) (*ReorgPath, error) {
	ancestor, err := FindCommonAncestor(reader, oldHead.Hash(), newHead.Hash())
	if err != nil {
		return nil, err
	}

	revert, err := walkToAncestor(reader, oldHead, ancestor, maxReorgDepth)
	if err != nil {
		return nil, err
	}

	applyDescending, err := walkToAncestor(reader, newHead, ancestor, maxAncestorSearchSteps)
	if err != nil {
		return nil, err
	}
	apply := make([]*types.Block, len(applyDescending))
	for i, b := range applyDescending {
		apply[len(applyDescending)-1-i] = b
	}

	if len(revert) == 0 && len(apply) == 0 {
		return nil, ErrEmptyReorgPath
	}

	return &ReorgPath{
		CommonAncestor: ancestor,
		RevertBlocks:   revert,
		ApplyBlocks:    apply,
		Depth:          len(revert),
	}, nil
}

// walkToAncestor walks from head toward ancestor (exclusive),
// returning blocks in descending (head-first) order. It fails
// ReorgTooDeep once the accumulated length exceeds maxDepth.
func walkToAncestor(reader ChainReader, head *types.Block, ancestor crypto.Hash, maxDepth int) ([]*types.Block, error) {
	var out []*types.Block
	cursor := head
	for cursor.Hash() != ancestor {
		out = append(out, cursor)
		if len(out) > maxDepth {
			return nil, fmt.Errorf("%w: depth %d", ErrReorgTooDeep, len(out))
		}
		if cursor.IsGenesis() {
			return nil, ErrNoCommonAncestor
		}
		parent, err := reader.BlockByHash(cursor.Header.ParentHash)
		if err != nil {
			return nil, fmt.Errorf("fork: walking to ancestor: %w", err)
		}
		cursor = parent
	}
	return out, nil
}
