package consensus

import (
	"fmt"
	"math/big"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

// SlashingCondition names a slashable offense. Base penalty rates are
// in basis points of stake.
type SlashingCondition int

const (
	DoubleSigning SlashingCondition = iota
	ExtendedDowntime
	LiquidityMismanagement
	GovernanceAttack
)

// baseRateBP returns the base penalty rate in basis points for cond.
// ExtendedDowntime additionally depends on the number of days down, so
// its rate is computed from downtimeDays rather than a fixed constant.
func baseRateBP(cond SlashingCondition, downtimeDays int) (uint32, error) {
	switch cond {
	case DoubleSigning:
		return 500, nil
	case ExtendedDowntime:
		rate := 10 * downtimeDays
		if rate > 10000 {
			rate = 10000
		}
		return uint32(rate), nil
	case LiquidityMismanagement:
		return 1000, nil
	case GovernanceAttack:
		return 10000, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownSlashingCond, cond)
	}
}

// isCapital reports whether cond is a capital offense: in addition to
// the stake penalty, the validator's status is set to Slashed.
func isCapital(cond SlashingCondition) bool {
	return cond == GovernanceAttack
}

// severityMultiplier returns min(3.0, 1.0 + 0.5*previousOffenses).
func severityMultiplier(previousOffenses int) float64 {
	m := 1.0 + 0.5*float64(previousOffenses)
	if m > 3.0 {
		m = 3.0
	}
	return m
}

// SlashResult is the outcome of one slashing action: the total penalty
// and its three-way split (50% burn / 30% insurance fund / 20%
// whistleblower).
type SlashResult struct {
	Validator          crypto.Address
	Condition          SlashingCondition
	Penalty            types.Amount
	Burned             types.Amount
	InsuranceFund      types.Amount
	Whistleblower      types.Amount
	NewStake           types.Amount
	OffenseCount       int
	CapitalOffense     bool
}

// Slash applies cond against addr: computes the penalty as
// stake * base_rate/10000 * severity_multiplier(previous offenses),
// debits it from the validator's stake (floored at zero), splits it
// 50/30/20, increments the validator's persistent offense counter, and
// for capital offenses also sets status to Slashed.
func (e *Engine) Slash(addr crypto.Address, cond SlashingCondition, downtimeDays int) (SlashResult, error) {
	rateBP, err := baseRateBP(cond, downtimeDays)
	if err != nil {
		return SlashResult{}, err
	}

	var result SlashResult
	mutateErr := e.validators.mutate(addr, func(v *ValidatorInfo) {
		severity := severityMultiplier(v.OffenseCount)
		// penalty = stake * rateBP/10000 * severity. The rate/10000
		// step is exact integer division; the severity multiplier is
		// applied via a fixed-point scale (x1000) to avoid floating
		// point in the monetary path while still honoring the
		// 0.5-per-offense, cap-at-3.0 schedule.
		scaled := new(big.Int).Mul(v.Stake.BigInt(), big.NewInt(int64(rateBP)))
		scaled.Div(scaled, big.NewInt(10000))
		scaled.Mul(scaled, big.NewInt(int64(severity*1000)))
		scaled.Div(scaled, big.NewInt(1000))
		penalty, _ := types.AmountFromBigInt(scaled)

		if penalty.Cmp(v.Stake) > 0 {
			penalty = v.Stake
		}
		newStake, subErr := v.Stake.Sub(penalty)
		if subErr != nil {
			newStake = types.NewAmount(0)
			penalty = v.Stake
		}
		v.Stake = newStake
		v.OffenseCount++

		burned := divBP(penalty, 5000)
		insurance := divBP(penalty, 3000)
		whistleblower, _ := penalty.Sub(burned)
		whistleblower, _ = whistleblower.Sub(insurance)

		if isCapital(cond) {
			v.Status = StatusSlashed
		}

		result = SlashResult{
			Validator:      addr,
			Condition:      cond,
			Penalty:        penalty,
			Burned:         burned,
			InsuranceFund:  insurance,
			Whistleblower:  whistleblower,
			NewStake:       newStake,
			OffenseCount:   v.OffenseCount,
			CapitalOffense: isCapital(cond),
		}
	})
	if mutateErr != nil {
		return SlashResult{}, mutateErr
	}
	return result, nil
}

// divBP returns amount * bp / 10000, used for the burn/insurance/
// whistleblower split.
func divBP(amount types.Amount, bp uint32) types.Amount {
	n := new(big.Int).Mul(amount.BigInt(), big.NewInt(int64(bp)))
	n.Div(n, big.NewInt(10000))
	out, _ := types.AmountFromBigInt(n)
	return out
}
