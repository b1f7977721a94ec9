package consensus

import (
	"fmt"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/fork"
	"github.com/orryx/poaschain/internal/types"
)

// Config bounds the PoAS engine's behavior.
type Config struct {
	BlockTime            time.Duration
	MinStake             types.Amount
	UnbondingPeriod       time.Duration
	RequiredUptimeBP     uint32
	MaxDowntimeBlocks    uint64
	FinalityBlocks       uint64
	TargetValidatorCount int
	MaxValidatorCount    int
	ForkChoice           fork.Rule
	MaxReorgDepth        int
	EnableForkDetection  bool
	SlashForWrongFork    bool
	BlocksPerEpoch       uint64

	// timestampToleranceSeconds is the allowed drift, in seconds,
	// between a block's timestamp and parent.timestamp + BlockTime.
	timestampToleranceSeconds uint64
}

// DefaultTimestampTolerance is the fixed +/-2 second slot window
// every node enforces around parent.timestamp + block_time.
const DefaultTimestampTolerance = 2

// NewConfig returns cfg with the fixed timestamp tolerance applied;
// callers should construct Config through this so the tolerance is
// never accidentally left at zero.
func NewConfig(cfg Config) Config {
	cfg.timestampToleranceSeconds = DefaultTimestampTolerance
	return cfg
}

// ForkEvent is a durable record of one detected/resolved fork,
// persisted by internal/storage's ForkHistory family.
type ForkEvent struct {
	Timestamp      time.Time
	ForkPoint       uint64
	CommonAncestor crypto.Hash
	OldHead        crypto.Hash
	NewHead        crypto.Hash
	Depth          int
	Resolution     string // "main" or "fork", whichever the fork-choice rule picked
}

// DoubleSigningEvidence records a detected double-sign: a validator
// proposing blocks at the same height on both sides of a fork. Both
// the reverted and applied block hashes are recorded; the fuller
// record strictly dominates a single-hash one for later
// audit/slashing-appeal purposes.
type DoubleSigningEvidence struct {
	Validator   crypto.Address
	Height      uint64
	RevertHash  crypto.Hash
	ApplyHash   crypto.Hash
}

// ReorgStats accumulates the engine's lifetime reorg observability
// counters, read by the node runtime's fork monitor task.
type ReorgStats struct {
	ForkFrequency          uint64
	TotalReorgDepth        uint64
	MaxReorgDepthObserved  int
}

// PersistCallback lets the node runtime persist a resolved fork event
// as part of ApplyReorg, without the engine depending on the storage
// package directly.
type PersistCallback func(info fork.Info, depth int, resolution string)

// ChainReader is the subset of the chain the engine needs for block
// validation against a parent and fork-path computation.
type ChainReader interface {
	fork.ChainReader
}

// Engine is the PoAS consensus engine: validator set, selection,
// block validation atop chain rules, slashing, finality, and reorg
// application. The engine holds the validator set and a logger, and
// calls into the chain rather than owning it.
type Engine struct {
	config     Config
	validators *ValidatorSet
	finality   finalityTracker
	logger     cmtlog.Logger

	stats       ReorgStats
	losingHeads map[crypto.Hash]bool // heads known to have lost a prior fork resolution
}

// NewEngine constructs an Engine with an empty validator set and a
// CometBFT-style logger; a nil logger falls back to the no-op one.
func NewEngine(config Config, logger cmtlog.Logger) *Engine {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	return &Engine{
		config:      config,
		validators:  NewValidatorSet(config.MinStake, config.UnbondingPeriod),
		logger:      logger,
		losingHeads: make(map[crypto.Hash]bool),
	}
}

// Validators exposes the validator set for registration/lookup by the
// node runtime and CLI.
func (e *Engine) Validators() *ValidatorSet {
	return e.validators
}

// SelectProposer runs the deterministic slot-selection procedure over
// the currently active validator set.
func (e *Engine) SelectProposer(slot uint64) (crypto.Address, error) {
	return SelectProposer(e.validators.Active(), slot)
}

// ValidateBlock checks consensus-level rules on top of the chain's
// own structural validation (performed by the caller):
// proposer must be a known, active, stake-backed validator, and the
// block's timestamp must fall within the +/-2s slot window around
// parent.timestamp + block_time. When fork detection is enabled it
// also enforces the reorg depth limit against the parent/child height
// delta actually observed (a direct extension has delta 1 and always
// passes; fork.CalculateReorgPath enforces the limit for actual reorgs).
func (e *Engine) ValidateBlock(child, parent *types.Block) error {
	v, err := e.validators.Get(child.Header.Proposer)
	if err != nil || !v.CanProduceBlocks() {
		return ErrInvalidProposer
	}

	expected := parent.Header.Timestamp + uint64(e.config.BlockTime.Seconds())
	var drift uint64
	if child.Header.Timestamp > expected {
		drift = child.Header.Timestamp - expected
	} else {
		drift = expected - child.Header.Timestamp
	}
	if drift > e.config.timestampToleranceSeconds {
		return ErrTimestampOutOfWindow
	}

	if e.config.EnableForkDetection {
		var delta uint64
		if child.Number() > parent.Number() {
			delta = child.Number() - parent.Number()
		} else {
			delta = parent.Number() - child.Number()
		}
		if delta > uint64(e.config.MaxReorgDepth) {
			return ErrReorgTooDeep
		}
	}

	return nil
}

// FinalizeBlock updates the proposer's uptime/production counters and
// runs an epoch transition every blocks_per_epoch blocks. It does not
// slash for downtime; max_downtime_blocks is not consulted here.
func (e *Engine) FinalizeBlock(block *types.Block, now time.Time) error {
	err := e.validators.mutate(block.Header.Proposer, func(v *ValidatorInfo) {
		v.BlocksProduced++
		v.LastActive = now
		if v.UptimeBP < 10000 {
			v.UptimeBP += 10
			if v.UptimeBP > 10000 {
				v.UptimeBP = 10000
			}
		}
	})
	if err != nil {
		return fmt.Errorf("consensus: finalizing block %d: %w", block.Number(), err)
	}

	if e.config.BlocksPerEpoch > 0 && block.Number()%e.config.BlocksPerEpoch == 0 {
		e.runEpochTransition(now)
	}
	return nil
}

// runEpochTransition runs the epoch-boundary work: processes unbonding
// and logs every validator whose uptime has fallen below
// required_uptime_bp, a candidate for ExtendedDowntime slashing by
// the caller. The engine keeps no epoch counter.
func (e *Engine) runEpochTransition(now time.Time) {
	unlocked := e.validators.ProcessUnbonding(now)
	for _, addr := range unlocked {
		e.logger.Info("validator exited unbonding", "address", addr.String())
	}

	for _, v := range e.validators.all() {
		if v.Status == StatusActive && v.UptimeBP < e.config.RequiredUptimeBP {
			e.logger.Info("validator below required uptime", "address", v.Address.String(), "uptime_bp", v.UptimeBP)
		}
	}
}

// VerifyBeforeProduce refuses to produce on headHash if it is known to
// have lost a prior fork resolution.
func (e *Engine) VerifyBeforeProduce(headHash crypto.Hash) error {
	if e.losingHeads[headHash] {
		return ErrForkedHeadRejected
	}
	return nil
}

// Stats returns a snapshot of the engine's lifetime reorg counters.
func (e *Engine) Stats() ReorgStats {
	return e.stats
}
