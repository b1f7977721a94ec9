// Package state implements the accounting world-state: an
// Address -> Account mapping with a checkpoint/rollback log, used by
// the chain state machine to execute transactions atomically.
package state

import (
	"sort"
	"sync"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

// shadow records the pre-image of one address's account as of the
// moment a checkpoint was taken, the first time that address is
// touched after the checkpoint. existed distinguishes "account was
// absent" from "account was present but zero", so rollback can
// re-delete an account that did not exist at checkpoint time.
type shadow struct {
	account *types.Account
	existed bool
}

// WorldState is the mapping Address -> Account plus a checkpoint
// stack of save-points, each holding the pre-image of every address
// mutated since that save-point (recorded once per checkpoint per
// address).
type WorldState struct {
	mu       sync.RWMutex
	accounts map[crypto.Address]*types.Account
	// checkpoints[i] holds the shadows recorded since checkpoint i was
	// pushed; checkpoints[i][addr] is set at most once per checkpoint.
	checkpoints []map[crypto.Address]shadow
}

// New returns an empty world state.
func New() *WorldState {
	return &WorldState{
		accounts: make(map[crypto.Address]*types.Account),
	}
}

// getOrCreate returns the account for addr, creating a zeroed one if
// absent, and records a pre-image shadow for the current checkpoint
// (if any) the first time addr is touched since it was pushed.
func (w *WorldState) getOrCreate(addr crypto.Address) *types.Account {
	acc, existed := w.accounts[addr]
	w.recordShadow(addr, acc, existed)
	if !existed {
		acc = types.NewAccount()
		w.accounts[addr] = acc
	}
	return acc
}

func (w *WorldState) recordShadow(addr crypto.Address, acc *types.Account, existed bool) {
	if len(w.checkpoints) == 0 {
		return
	}
	top := w.checkpoints[len(w.checkpoints)-1]
	if _, already := top[addr]; already {
		return
	}
	top[addr] = shadow{account: acc.Clone(), existed: existed}
}

// Account returns a read-only snapshot of the account at addr, or a
// zeroed account if absent. The returned value is a copy; changes go
// through Mutate or SetAccount instead, which correctly shadow for
// rollback.
func (w *WorldState) Account(addr crypto.Address) *types.Account {
	w.mu.RLock()
	defer w.mu.RUnlock()
	acc, ok := w.accounts[addr]
	if !ok {
		return types.NewAccount()
	}
	return acc.Clone()
}

// Nonce returns the current nonce of addr (0 if absent).
func (w *WorldState) Nonce(addr crypto.Address) uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if acc, ok := w.accounts[addr]; ok {
		return acc.Nonce
	}
	return 0
}

// Balance returns the current spendable balance of addr (0 if
// absent).
func (w *WorldState) Balance(addr crypto.Address) types.Amount {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if acc, ok := w.accounts[addr]; ok {
		return acc.Balance
	}
	return types.NewAmount(0)
}

// Mutate applies fn to the account at addr under the current
// checkpoint's shadow protection, creating the account if absent. The
// shadow is recorded under the lock; fn runs with the lock released, so
// it may itself call Mutate (a transfer credits its recipient from
// inside the sender's mutation).
func (w *WorldState) Mutate(addr crypto.Address, fn func(*types.Account) error) error {
	w.mu.Lock()
	acc := w.getOrCreate(addr)
	w.mu.Unlock()
	return fn(acc)
}

// SetAccount overwrites the account at addr wholesale (used by
// genesis seeding and state loading), still honoring the checkpoint
// shadow.
func (w *WorldState) SetAccount(addr crypto.Address, acc *types.Account) {
	w.mu.Lock()
	defer w.mu.Unlock()
	existing, existed := w.accounts[addr]
	w.recordShadow(addr, existing, existed)
	w.accounts[addr] = acc.Clone()
}

// DeleteAccount removes addr entirely, honoring the checkpoint
// shadow (used by tests exercising the state-root stability
// invariant: insert then delete returns the original root).
func (w *WorldState) DeleteAccount(addr crypto.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	existing, existed := w.accounts[addr]
	if !existed {
		return
	}
	w.recordShadow(addr, existing, existed)
	delete(w.accounts, addr)
}

// Checkpoint pushes a new save-point. Checkpoints nest: rollback
// restores exactly to the most recently pushed, still-open
// checkpoint.
func (w *WorldState) Checkpoint() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkpoints = append(w.checkpoints, make(map[crypto.Address]shadow))
}

// Commit pops the current checkpoint, keeping all mutations made since
// it was pushed. With nesting, the popped checkpoint's shadows fold
// into the enclosing one (oldest pre-image wins), so a later rollback
// of the outer checkpoint still restores addresses first touched
// inside the committed inner scope.
func (w *WorldState) Commit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.checkpoints) == 0 {
		return
	}
	top := w.checkpoints[len(w.checkpoints)-1]
	w.checkpoints = w.checkpoints[:len(w.checkpoints)-1]
	if n := len(w.checkpoints); n > 0 {
		parent := w.checkpoints[n-1]
		for addr, s := range top {
			if _, ok := parent[addr]; !ok {
				parent[addr] = s
			}
		}
	}
}

// Rollback pops the current checkpoint and restores every shadowed
// address to its pre-image, in reverse of however many distinct
// addresses were touched (order does not matter since each address's
// shadow is independent); an address that did not exist at checkpoint
// time is re-deleted.
func (w *WorldState) Rollback() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.checkpoints) == 0 {
		return
	}
	top := w.checkpoints[len(w.checkpoints)-1]
	w.checkpoints = w.checkpoints[:len(w.checkpoints)-1]
	for addr, s := range top {
		if s.existed {
			w.accounts[addr] = s.account
		} else {
			delete(w.accounts, addr)
		}
	}
}

// CheckpointDepth reports how many checkpoints are currently open,
// mostly useful for assertions in tests.
func (w *WorldState) CheckpointDepth() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.checkpoints)
}

// StateRoot is the hash of the canonical serialization of all
// accounts sorted by address; for an empty state the root is the zero
// hash.
func (w *WorldState) StateRoot() crypto.Hash {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.accounts) == 0 {
		return crypto.ZeroHash
	}

	addrs := make([]crypto.Address, 0, len(w.accounts))
	for a := range w.accounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return string(addrs[i][:]) < string(addrs[j][:])
	})

	type entry struct {
		Address crypto.Address `json:"address"`
		Account *types.Account `json:"account"`
	}
	entries := make([]entry, len(addrs))
	for i, a := range addrs {
		entries[i] = entry{Address: a, Account: w.accounts[a]}
	}

	b, err := types.CanonicalBytes(entries)
	if err != nil {
		panic("state: accounts not serializable: " + err.Error())
	}
	return crypto.HashBytes(b)
}

// Snapshot returns a deep copy of every address currently in the
// state as an unordered map (the storage layer sorts by address when it
// persists a per-block state snapshot).
func (w *WorldState) Snapshot() map[crypto.Address]*types.Account {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[crypto.Address]*types.Account, len(w.accounts))
	for a, acc := range w.accounts {
		out[a] = acc.Clone()
	}
	return out
}
