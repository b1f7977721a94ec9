package consensus

import (
	"math"
	"math/big"

	"github.com/orryx/poaschain/internal/crypto"
)

// Weight computes a validator's selection weight:
//
//	W(v) = stake(v) * (1 + utility(v)/10) * reliability(v) * (1 + efficiency(v))
//
// where reliability = uptime_bp/10000 and efficiency =
// liquidity_deployed/stake. A validator with status != Active or zero
// stake has weight 0. Selection weights deliberately use IEEE 754
// binary64 floating point; every node must pin to this representation
// to preserve cross-node determinism.
func Weight(v ValidatorInfo) float64 {
	if v.Status != StatusActive {
		return 0
	}
	stakeF, _ := new(big.Float).SetInt(v.Stake.BigInt()).Float64()
	if stakeF <= 0 {
		return 0
	}

	reliability := float64(v.UptimeBP) / 10000.0
	efficiency := 0.0
	if !v.LiquidityDeployed.IsZero() {
		deployedF, _ := new(big.Float).SetInt(v.LiquidityDeployed.BigInt()).Float64()
		efficiency = deployedF / stakeF
	}

	return stakeF * (1 + v.UtilityScore/10.0) * reliability * (1 + efficiency)
}

// weighted pairs an address with its cumulative weight boundary, used
// by both selection procedures to scan in a single deterministic
// order.
type weighted struct {
	addr       crypto.Address
	cumulative float64
}

// accumulate builds the ascending-cumulative-weight table over
// validators (already sorted by address by ValidatorSet.Active) and
// returns it along with the total weight.
func accumulate(validators []ValidatorInfo) ([]weighted, float64) {
	table := make([]weighted, 0, len(validators))
	var total float64
	for _, v := range validators {
		w := Weight(v)
		if w <= 0 {
			continue
		}
		total += w
		table = append(table, weighted{addr: v.Address, cumulative: total})
	}
	return table, total
}

// SelectProposer is the production selection path: deterministic slot
// selection over the active validator set. It scans the
// address-ordered, accumulated-weight table and returns the first
// validator whose cumulative weight covers `slot mod total_weight`,
// so every node reaches the same answer given the same validator set
// and slot. Fails ErrSelectionFailed if no active validator carries
// non-zero weight.
func SelectProposer(validators []ValidatorInfo, slot uint64) (crypto.Address, error) {
	table, total := accumulate(validators)
	if total <= 0 {
		return crypto.ZeroAddress, ErrSelectionFailed
	}

	point := math.Mod(float64(slot), total)
	for _, w := range table {
		if point < w.cumulative {
			return w.addr, nil
		}
	}
	// Floating-point rounding can push point fractionally past the
	// last boundary; the last validator in address order covers it.
	return table[len(table)-1].addr, nil
}

// RandomSource supplies a uniform sample in [0, 1) for
// SelectRandomWeighted.
type RandomSource interface {
	Float64() float64
}

// SelectRandomWeighted samples uniformly in [0, total_weight) using
// rng and returns the validator whose cumulative weight covers the
// sample. Retained for testing utilities only; production callers use
// the deterministic SelectProposer.
func SelectRandomWeighted(validators []ValidatorInfo, rng RandomSource) (crypto.Address, error) {
	table, total := accumulate(validators)
	if total <= 0 {
		return crypto.ZeroAddress, ErrSelectionFailed
	}

	point := rng.Float64() * total
	for _, w := range table {
		if point < w.cumulative {
			return w.addr, nil
		}
	}
	return table[len(table)-1].addr, nil
}
