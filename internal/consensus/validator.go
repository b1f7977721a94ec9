// Package consensus implements the PoAS (Proof-of-Active-Stake)
// consensus engine: the weighted validator set, proposer selection,
// block acceptance rules layered on top of internal/chain, slashing,
// finality tracking, and reorg application with double-sign
// detection.
package consensus

import (
	"sort"
	"sync"
	"time"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

// Status is a validator's lifecycle state.
type Status int

const (
	StatusActive Status = iota
	StatusInactive
	StatusUnbonding
	StatusSlashed
	StatusExited
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusUnbonding:
		return "unbonding"
	case StatusSlashed:
		return "slashed"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ValidatorInfo is the accounting and lifecycle record for one
// validator.
type ValidatorInfo struct {
	Address           crypto.Address
	Stake             types.Amount
	LiquidityDeployed types.Amount
	UtilityScore      float64
	Status            Status
	UnlockTime        time.Time // meaningful only when Status == StatusUnbonding
	UptimeBP          uint32    // basis points, 0..10000
	BlocksProduced    uint64
	BlocksMissed      uint64
	RegisteredAt      time.Time
	LastActive        time.Time
	CommissionRateBP  uint32 // basis points, 0..10000

	// OffenseCount is the persistent per-validator repeat-offense
	// counter feeding the slashing severity multiplier; it survives
	// restarts through the validator-set snapshot in storage.
	OffenseCount int
}

// CanProduceBlocks reports whether v may be selected as a block
// proposer: active and staking a non-zero amount.
func (v *ValidatorInfo) CanProduceBlocks() bool {
	return v.Status == StatusActive && v.Stake.Cmp(types.NewAmount(0)) > 0
}

// ValidatorSet is the Address -> ValidatorInfo dictionary the
// consensus engine owns, plus the registration bounds.
type ValidatorSet struct {
	mu               sync.RWMutex
	validators       map[crypto.Address]*ValidatorInfo
	minStake         types.Amount
	unbondingPeriod  time.Duration
}

// NewValidatorSet returns an empty set bound by minStake and
// unbondingPeriod.
func NewValidatorSet(minStake types.Amount, unbondingPeriod time.Duration) *ValidatorSet {
	return &ValidatorSet{
		validators:      make(map[crypto.Address]*ValidatorInfo),
		minStake:        minStake,
		unbondingPeriod: unbondingPeriod,
	}
}

// Register admits a new validator with the given stake and commission
// rate. Fails InsufficientStake if stake < min_stake, or
// ValidatorAlreadyExists if addr is already registered (including
// exited/slashed validators, who must not be re-registered under the
// same address).
func (vs *ValidatorSet) Register(addr crypto.Address, stake types.Amount, commissionRateBP uint32, now time.Time) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.validators[addr]; exists {
		return ErrValidatorAlreadyExists
	}
	if stake.Cmp(vs.minStake) < 0 {
		return ErrInsufficientStake
	}

	vs.validators[addr] = &ValidatorInfo{
		Address:          addr,
		Stake:            stake,
		Status:           StatusActive,
		UptimeBP:         10000,
		RegisteredAt:     now,
		LastActive:       now,
		CommissionRateBP: commissionRateBP,
	}
	return nil
}

// Unregister marks addr Exited; a validator's stake and history are
// retained for audit after exit.
func (vs *ValidatorSet) Unregister(addr crypto.Address) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	v, ok := vs.validators[addr]
	if !ok {
		return ErrValidatorNotFound
	}
	v.Status = StatusExited
	return nil
}

// Get returns a copy of addr's info, or ErrValidatorNotFound.
func (vs *ValidatorSet) Get(addr crypto.Address) (ValidatorInfo, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	v, ok := vs.validators[addr]
	if !ok {
		return ValidatorInfo{}, ErrValidatorNotFound
	}
	return *v, nil
}

// Active returns a snapshot of every validator currently Active,
// sorted by address for deterministic iteration across nodes.
func (vs *ValidatorSet) Active() []ValidatorInfo {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	out := make([]ValidatorInfo, 0, len(vs.validators))
	for _, v := range vs.validators {
		if v.Status == StatusActive {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Address[:]) < string(out[j].Address[:])
	})
	return out
}

// BeginUnbonding transitions addr from Active to Unbonding, setting
// its unlock time to now+unbonding_period.
func (vs *ValidatorSet) BeginUnbonding(addr crypto.Address, now time.Time) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	v, ok := vs.validators[addr]
	if !ok {
		return ErrValidatorNotFound
	}
	v.Status = StatusUnbonding
	v.UnlockTime = now.Add(vs.unbondingPeriod)
	return nil
}

// ProcessUnbonding transitions every validator whose UnlockTime has
// passed from Unbonding to Inactive, returning their addresses.
func (vs *ValidatorSet) ProcessUnbonding(now time.Time) []crypto.Address {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	var unlocked []crypto.Address
	for addr, v := range vs.validators {
		if v.Status == StatusUnbonding && !v.UnlockTime.After(now) {
			v.Status = StatusInactive
			unlocked = append(unlocked, addr)
		}
	}
	sort.Slice(unlocked, func(i, j int) bool {
		return string(unlocked[i][:]) < string(unlocked[j][:])
	})
	return unlocked
}

// Snapshot returns a copy of every validator record, sorted by
// address, for persistence into storage's Validators family.
func (vs *ValidatorSet) Snapshot() []ValidatorInfo {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	out := make([]ValidatorInfo, 0, len(vs.validators))
	for _, v := range vs.validators {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Address[:]) < string(out[j].Address[:])
	})
	return out
}

// Restore replaces the set's contents with a persisted snapshot, used
// at node startup to resume the validator set from storage.
func (vs *ValidatorSet) Restore(infos []ValidatorInfo) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.validators = make(map[crypto.Address]*ValidatorInfo, len(infos))
	for i := range infos {
		v := infos[i]
		vs.validators[v.Address] = &v
	}
}

// mutate applies fn to addr's record under the write lock, used
// internally by finalization, slashing, and reorg application.
func (vs *ValidatorSet) mutate(addr crypto.Address, fn func(*ValidatorInfo)) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	v, ok := vs.validators[addr]
	if !ok {
		return ErrValidatorNotFound
	}
	fn(v)
	return nil
}

// all returns every tracked validator (any status), sorted by
// address, used by epoch transitions.
func (vs *ValidatorSet) all() []*ValidatorInfo {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	out := make([]*ValidatorInfo, 0, len(vs.validators))
	for _, v := range vs.validators {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Address[:]) < string(out[j].Address[:])
	})
	return out
}
