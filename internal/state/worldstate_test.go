package state

import (
	"testing"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[0] = b
	return a
}

func TestWorldState_EmptyRootIsZero(t *testing.T) {
	w := New()
	if w.StateRoot() != crypto.ZeroHash {
		t.Errorf("empty state root = %s, want zero hash", w.StateRoot())
	}
}

func TestWorldState_InsertThenDelete_RestoresRoot(t *testing.T) {
	w := New()
	before := w.StateRoot()

	acc := types.NewAccount()
	acc.Balance = types.NewAmount(100)
	w.SetAccount(addr(1), acc)
	if w.StateRoot() == before {
		t.Fatal("state root did not change after insert")
	}

	w.DeleteAccount(addr(1))
	if w.StateRoot() != before {
		t.Errorf("state root after insert+delete = %s, want %s", w.StateRoot(), before)
	}
}

func TestWorldState_StateRootDependsOnlyOnContent(t *testing.T) {
	w1 := New()
	w2 := New()

	acc1 := types.NewAccount()
	acc1.Balance = types.NewAmount(5)
	acc2 := types.NewAccount()
	acc2.Balance = types.NewAmount(7)

	// Insert in different orders; the root must not depend on it since
	// it is computed over the address-sorted set.
	w1.SetAccount(addr(1), acc1)
	w1.SetAccount(addr(2), acc2)

	w2.SetAccount(addr(2), acc2)
	w2.SetAccount(addr(1), acc1)

	if w1.StateRoot() != w2.StateRoot() {
		t.Error("state root depends on insertion order")
	}
}

func TestWorldState_CheckpointCommit(t *testing.T) {
	w := New()
	w.Checkpoint()
	if err := w.Mutate(addr(1), func(a *types.Account) error {
		a.Balance = types.NewAmount(50)
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	w.Commit()

	if w.Balance(addr(1)).Cmp(types.NewAmount(50)) != 0 {
		t.Errorf("balance after commit = %s, want 50", w.Balance(addr(1)))
	}
}

func TestWorldState_CheckpointRollback(t *testing.T) {
	w := New()
	before := w.StateRoot()

	w.Checkpoint()
	if err := w.Mutate(addr(1), func(a *types.Account) error {
		a.Balance = types.NewAmount(50)
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	w.Rollback()

	if w.StateRoot() != before {
		t.Error("rollback did not restore the original state root")
	}
	if !w.Balance(addr(1)).IsZero() {
		t.Errorf("balance after rollback = %s, want 0", w.Balance(addr(1)))
	}
}

func TestWorldState_NestedCheckpoints(t *testing.T) {
	w := New()
	w.Checkpoint() // outer
	_ = w.Mutate(addr(1), func(a *types.Account) error {
		a.Balance = types.NewAmount(10)
		return nil
	})

	w.Checkpoint() // inner
	_ = w.Mutate(addr(1), func(a *types.Account) error {
		a.Balance = types.NewAmount(20)
		return nil
	})
	w.Rollback() // undo inner only

	if w.Balance(addr(1)).Cmp(types.NewAmount(10)) != 0 {
		t.Errorf("balance after inner rollback = %s, want 10", w.Balance(addr(1)))
	}

	w.Commit() // commit outer
	if w.CheckpointDepth() != 0 {
		t.Errorf("checkpoint depth after outer commit = %d, want 0", w.CheckpointDepth())
	}
}

func TestWorldState_OuterRollbackAfterInnerCommit(t *testing.T) {
	w := New()
	before := w.StateRoot()

	w.Checkpoint() // outer

	w.Checkpoint() // inner
	_ = w.Mutate(addr(1), func(a *types.Account) error {
		a.Balance = types.NewAmount(30)
		return nil
	})
	w.Commit() // inner commit folds its shadows into the outer scope

	w.Rollback() // outer rollback must still undo the inner mutation

	if w.StateRoot() != before {
		t.Error("outer rollback did not undo mutations committed by the inner checkpoint")
	}
	if !w.Balance(addr(1)).IsZero() {
		t.Errorf("balance after outer rollback = %s, want 0", w.Balance(addr(1)))
	}
}

func TestWorldState_RollbackRestoresNonExistentAccount(t *testing.T) {
	w := New()
	acc := types.NewAccount()
	acc.Balance = types.NewAmount(1)
	w.SetAccount(addr(9), acc)
	before := w.StateRoot()

	w.Checkpoint()
	w.DeleteAccount(addr(9))
	if w.StateRoot() == before {
		t.Fatal("deleting an account did not change the state root")
	}
	w.Rollback()

	if w.StateRoot() != before {
		t.Error("rollback did not restore a deleted account")
	}
}
