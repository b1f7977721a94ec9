package types

import (
	"errors"

	"github.com/orryx/poaschain/internal/crypto"
)

// Errors returned by Account mutators.
var (
	ErrInsufficientStake     = errors.New("types: insufficient staked balance")
	ErrLiquidityExceedsStake = errors.New("types: liquidity_deployed cannot exceed staked")
)

// Account is the accounting record for one address in the world
// state.
type Account struct {
	Nonce             uint64       `json:"nonce"`
	Balance           Amount       `json:"balance"`
	Staked            Amount       `json:"staked"`
	LiquidityDeployed Amount       `json:"liquidity_deployed"`
	UtilityScore      float64      `json:"utility_score"`
	CodeHash          *crypto.Hash `json:"code_hash,omitempty"`
	StorageRoot       *crypto.Hash `json:"storage_root,omitempty"`
}

// NewAccount returns a zeroed account (nonce 0, all balances zero).
func NewAccount() *Account {
	return &Account{}
}

// Clone returns a deep copy of a, used by the world state checkpoint
// log to shadow pre-images.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.CodeHash != nil {
		h := *a.CodeHash
		out.CodeHash = &h
	}
	if a.StorageRoot != nil {
		r := *a.StorageRoot
		out.StorageRoot = &r
	}
	return &out
}

// Stake increases staked balance by amount, debiting the spendable
// balance by the same amount.
func (a *Account) Stake(amount Amount) error {
	newBalance, err := a.Balance.Sub(amount)
	if err != nil {
		return err
	}
	a.Balance = newBalance
	a.Staked = a.Staked.Add(amount)
	return nil
}

// Unstake requires staked >= amount; it moves amount from staked back
// to the spendable balance.
func (a *Account) Unstake(amount Amount) error {
	if a.Staked.Cmp(amount) < 0 {
		return ErrInsufficientStake
	}
	newStaked, err := a.Staked.Sub(amount)
	if err != nil {
		return err
	}
	a.Staked = newStaked
	a.Balance = a.Balance.Add(amount)
	return nil
}

// DeployLiquidity increases liquidity_deployed by amount. The
// invariant liquidity_deployed <= staked must hold afterward.
func (a *Account) DeployLiquidity(amount Amount) error {
	next := a.LiquidityDeployed.Add(amount)
	if next.Cmp(a.Staked) > 0 {
		return ErrLiquidityExceedsStake
	}
	a.LiquidityDeployed = next
	return nil
}

// WithdrawLiquidity decreases liquidity_deployed by amount.
func (a *Account) WithdrawLiquidity(amount Amount) error {
	next, err := a.LiquidityDeployed.Sub(amount)
	if err != nil {
		return err
	}
	a.LiquidityDeployed = next
	return nil
}

// CheckInvariants reports whether a satisfies the Account invariants
// (liquidity_deployed <= staked). Nonce monotonicity and the unstake
// precondition are enforced at the call site, not as a standing
// invariant check, since they depend on the operation being applied.
func (a *Account) CheckInvariants() error {
	if a.LiquidityDeployed.Cmp(a.Staked) > 0 {
		return ErrLiquidityExceedsStake
	}
	return nil
}
