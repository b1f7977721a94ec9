package types

import "testing"

func TestAccount_StakeUnstakeRoundTrip(t *testing.T) {
	a := NewAccount()
	a.Balance = NewAmount(1000)

	if err := a.Stake(NewAmount(400)); err != nil {
		t.Fatalf("Stake: %v", err)
	}
	if a.Balance.Cmp(NewAmount(600)) != 0 {
		t.Errorf("balance after stake = %s, want 600", a.Balance)
	}
	if a.Staked.Cmp(NewAmount(400)) != 0 {
		t.Errorf("staked after stake = %s, want 400", a.Staked)
	}

	if err := a.Unstake(NewAmount(400)); err != nil {
		t.Fatalf("Unstake: %v", err)
	}
	if a.Balance.Cmp(NewAmount(1000)) != 0 {
		t.Errorf("balance after unstake = %s, want 1000", a.Balance)
	}
	if !a.Staked.IsZero() {
		t.Errorf("staked after unstake = %s, want 0", a.Staked)
	}
}

func TestAccount_UnstakeMoreThanStakedFails(t *testing.T) {
	a := NewAccount()
	a.Staked = NewAmount(10)
	if err := a.Unstake(NewAmount(11)); err != ErrInsufficientStake {
		t.Errorf("Unstake over-withdraw = %v, want ErrInsufficientStake", err)
	}
}

func TestAccount_LiquidityCannotExceedStake(t *testing.T) {
	a := NewAccount()
	a.Staked = NewAmount(100)
	if err := a.DeployLiquidity(NewAmount(101)); err != ErrLiquidityExceedsStake {
		t.Errorf("DeployLiquidity over stake = %v, want ErrLiquidityExceedsStake", err)
	}
	if err := a.DeployLiquidity(NewAmount(100)); err != nil {
		t.Fatalf("DeployLiquidity at exactly stake: %v", err)
	}
	if err := a.CheckInvariants(); err != nil {
		t.Errorf("CheckInvariants after valid deploy: %v", err)
	}
}

func TestAccount_Clone_Independent(t *testing.T) {
	a := NewAccount()
	a.Balance = NewAmount(5)
	clone := a.Clone()
	clone.Balance = NewAmount(9)
	if a.Balance.Cmp(NewAmount(5)) != 0 {
		t.Error("mutating a clone affected the original account")
	}
}
