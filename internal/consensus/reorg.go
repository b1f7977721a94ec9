package consensus

import (
	"time"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/fork"
)

// ApplyReorg applies a computed reorg path: validates it against the
// justified checkpoint, detects double-signing at any height shared
// by the revert and apply sequences, slashes the offending proposer
// when SlashForWrongFork is enabled, records a ForkEvent, updates the
// engine's lifetime reorg stats, and runs the configured fork-choice
// rule to decide (for logging/persistence purposes) which side is
// considered canonical. persist, if non-nil, is invoked with the
// resulting fork.Info, the reorg depth, and the fork-choice
// resolution, so the caller can durably record the event without the
// engine depending on the storage package.
func (e *Engine) ApplyReorg(path *fork.ReorgPath, now time.Time, persist PersistCallback) ([]DoubleSigningEvidence, error) {
	if len(path.RevertBlocks) == 0 && len(path.ApplyBlocks) == 0 {
		return nil, ErrEmptyReorgPath
	}

	commonAncestorNumber := commonAncestorHeight(path)
	if highest := e.HighestJustified(); highest > 0 && commonAncestorNumber < highest {
		return nil, ErrReorgBelowJustified
	}

	evidence := e.detectDoubleSigning(path)
	for _, ev := range evidence {
		if e.config.SlashForWrongFork {
			if _, err := e.Slash(ev.Validator, DoubleSigning, 0); err != nil {
				e.logger.Error("failed to slash double-signing validator", "address", ev.Validator.String(), "err", err.Error())
			}
		}
	}

	e.stats.ForkFrequency++
	e.stats.TotalReorgDepth += uint64(path.Depth)
	if path.Depth > e.stats.MaxReorgDepthObserved {
		e.stats.MaxReorgDepthObserved = path.Depth
	}

	resolution := e.resolveForkChoice(path)

	var oldHead, newHead crypto.Hash
	if len(path.RevertBlocks) > 0 {
		oldHead = path.RevertBlocks[0].Hash()
	}
	if len(path.ApplyBlocks) > 0 {
		newHead = path.ApplyBlocks[len(path.ApplyBlocks)-1].Hash()
	}

	info := fork.Info{
		ForkPoint:  commonAncestorNumber,
		ForkHash:   path.CommonAncestor,
		MainTip:    oldHead,
		ForkTip:    newHead,
		MainLength: uint64(len(path.RevertBlocks)),
		ForkLength: uint64(len(path.ApplyBlocks)),
	}

	if resolution == "fork" {
		e.losingHeads[oldHead] = true
	} else {
		e.losingHeads[newHead] = true
	}

	if persist != nil {
		persist(info, path.Depth, resolution)
	}

	return evidence, nil
}

// commonAncestorHeight derives the common ancestor's block number from
// the reorg path: one less than the lowest-height block in
// RevertBlocks (descending), or, when RevertBlocks is empty, one less
// than the lowest in ApplyBlocks (ascending); 0 when both are empty.
func commonAncestorHeight(path *fork.ReorgPath) uint64 {
	if len(path.RevertBlocks) > 0 {
		return path.RevertBlocks[len(path.RevertBlocks)-1].Number() - 1
	}
	if len(path.ApplyBlocks) > 0 {
		return path.ApplyBlocks[0].Number() - 1
	}
	return 0
}

// detectDoubleSigning pairs revert and apply blocks sharing the same
// height; a shared proposer at that height is evidence of
// double-signing (the same validator produced a block on both sides
// of the fork).
func (e *Engine) detectDoubleSigning(path *fork.ReorgPath) []DoubleSigningEvidence {
	if !e.config.EnableForkDetection {
		return nil
	}

	byHeight := make(map[uint64]crypto.Hash, len(path.ApplyBlocks))
	proposerByHeight := make(map[uint64]crypto.Address, len(path.ApplyBlocks))
	for _, b := range path.ApplyBlocks {
		byHeight[b.Number()] = b.Hash()
		proposerByHeight[b.Number()] = b.Header.Proposer
	}

	var evidence []DoubleSigningEvidence
	for _, r := range path.RevertBlocks {
		applyProposer, ok := proposerByHeight[r.Number()]
		if !ok || applyProposer != r.Header.Proposer {
			continue
		}
		evidence = append(evidence, DoubleSigningEvidence{
			Validator:  r.Header.Proposer,
			Height:     r.Number(),
			RevertHash: r.Hash(),
			ApplyHash:  byHeight[r.Number()],
		})
	}
	return evidence
}

// resolveForkChoice runs the configured fork-choice rule over the two
// candidate tips described by path, returning "main" if the old
// (reverted) side wins or "fork" if the new (applied) side wins. The
// candidates are the two path lengths; under LongestChain/HeaviestChain
// the fork side wins only when it is strictly longer, and an equal
// length keeps "main". The label is used for logging, persistence and
// marking the losing head; it does not undo a reorg the caller has
// already applied.
func (e *Engine) resolveForkChoice(path *fork.ReorgPath) string {
	mainCandidate := fork.Candidate{
		Tip:              []byte("main"),
		Length:           uint64(len(path.RevertBlocks)),
		HighestJustified: e.HighestJustified(),
	}
	forkCandidate := fork.Candidate{
		Tip:              []byte("fork"),
		Length:           uint64(len(path.ApplyBlocks)),
		HighestJustified: e.HighestJustified(),
	}

	winner, ok := fork.Choose(e.config.ForkChoice, []fork.Candidate{mainCandidate, forkCandidate})
	if !ok {
		return "fork"
	}
	return string(winner.Tip)
}
