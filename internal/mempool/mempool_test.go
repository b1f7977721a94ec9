package mempool

import (
	"crypto/ed25519"
	"testing"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

func signedTx(t *testing.T, priv ed25519.PrivateKey, from crypto.Address, nonce, gasPrice uint64) *types.Transaction {
	t.Helper()
	to := crypto.Address{9}
	amount := types.NewAmount(1)
	tx := &types.Transaction{
		From:     from,
		Nonce:    nonce,
		Kind:     types.TxTransfer,
		To:       &to,
		Amount:   &amount,
		GasPrice: gasPrice,
		GasLimit: 21000,
	}
	sig, err := crypto.Sign(crypto.SchemeEd25519, priv, tx.SigningHash().Bytes())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tx.Signature = &sig
	return tx
}

func newSender(t *testing.T) (crypto.Address, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return crypto.DeriveAddress(pub), priv
}

func TestMempool_AddPendingVsQueued(t *testing.T) {
	from, priv := newSender(t)
	pool := New(DefaultPoolConfig())

	pending := signedTx(t, priv, from, 0, 10)
	if err := pool.Add(pending, 0); err != nil {
		t.Fatalf("Add pending: %v", err)
	}
	if pool.PendingCount() != 1 || pool.QueuedCount() != 0 {
		t.Fatalf("pending=%d queued=%d, want 1,0", pool.PendingCount(), pool.QueuedCount())
	}

	from2, priv2 := newSender(t)
	queued := signedTx(t, priv2, from2, 5, 10)
	if err := pool.Add(queued, 0); err != nil {
		t.Fatalf("Add queued: %v", err)
	}
	if pool.QueuedCount() != 1 {
		t.Fatalf("queued=%d, want 1", pool.QueuedCount())
	}
}

func TestMempool_RejectsBelowCurrentNonce(t *testing.T) {
	from, priv := newSender(t)
	pool := New(DefaultPoolConfig())
	tx := signedTx(t, priv, from, 0, 10)
	if err := pool.Add(tx, 1); err != ErrNonceTooLow {
		t.Errorf("Add with stale nonce = %v, want ErrNonceTooLow", err)
	}
}

func TestMempool_RejectsDuplicateHash(t *testing.T) {
	from, priv := newSender(t)
	pool := New(DefaultPoolConfig())
	tx := signedTx(t, priv, from, 0, 10)
	if err := pool.Add(tx, 0); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := pool.Add(tx, 0); err != ErrDuplicateTransaction {
		t.Errorf("duplicate Add = %v, want ErrDuplicateTransaction", err)
	}
}

// S3: three signed transactions (nonce 0/1/2, gas_price 5/10/15) from the
// same sender with current_nonce 0,1,2 respectively; get_pending(100000,10)
// must return them ordered 15, 10, 5.
func TestMempool_GetPending_OrdersByDescendingGasPrice(t *testing.T) {
	from, priv := newSender(t)
	pool := New(DefaultPoolConfig())

	tx0 := signedTx(t, priv, from, 0, 5)
	tx1 := signedTx(t, priv, from, 1, 10)
	tx2 := signedTx(t, priv, from, 2, 15)

	if err := pool.Add(tx0, 0); err != nil {
		t.Fatalf("Add tx0: %v", err)
	}
	if err := pool.Add(tx1, 1); err != nil {
		t.Fatalf("Add tx1: %v", err)
	}
	if err := pool.Add(tx2, 2); err != nil {
		t.Fatalf("Add tx2: %v", err)
	}

	got := pool.GetPending(100_000, 10)
	if len(got) != 3 {
		t.Fatalf("len(GetPending) = %d, want 3", len(got))
	}
	wantPrices := []uint64{15, 10, 5}
	for i, tx := range got {
		if tx.GasPrice != wantPrices[i] {
			t.Errorf("GetPending[%d].GasPrice = %d, want %d", i, tx.GasPrice, wantPrices[i])
		}
	}
}

func TestMempool_GetPending_SkipsOversizedButContinues(t *testing.T) {
	from, priv := newSender(t)
	pool := New(DefaultPoolConfig())

	huge := signedTx(t, priv, from, 0, 20)
	huge.GasLimit = 1_000_000

	from2, priv2 := newSender(t)
	cheap := signedTx(t, priv2, from2, 0, 5)

	if err := pool.Add(huge, 0); err != nil {
		t.Fatalf("Add huge: %v", err)
	}
	if err := pool.Add(cheap, 0); err != nil {
		t.Fatalf("Add cheap: %v", err)
	}

	got := pool.GetPending(50_000, 10)
	if len(got) != 1 || got[0].GasPrice != 5 {
		t.Fatalf("GetPending = %+v, want just the cheap tx", got)
	}
}

// S4-style: after including a sender's nonce n, the caller's promotion
// predicate surfaces the nonce-(n+1) queued entry as pending.
func TestMempool_RemoveIncluded_PromotesQueued(t *testing.T) {
	from, priv := newSender(t)
	pool := New(DefaultPoolConfig())

	tx0 := signedTx(t, priv, from, 0, 10)
	tx1 := signedTx(t, priv, from, 1, 8)

	if err := pool.Add(tx0, 0); err != nil {
		t.Fatalf("Add tx0: %v", err)
	}
	if err := pool.Add(tx1, 0); err != nil {
		t.Fatalf("Add tx1 (queued): %v", err)
	}
	if pool.QueuedCount() != 1 {
		t.Fatalf("queued = %d, want 1 before promotion", pool.QueuedCount())
	}

	newCurrentNonce := uint64(1)
	pool.RemoveIncluded([]*types.Transaction{tx0}, func(sender crypto.Address, nonce uint64) bool {
		return nonce == newCurrentNonce
	})

	if pool.QueuedCount() != 0 {
		t.Errorf("queued after promotion = %d, want 0", pool.QueuedCount())
	}
	if pool.PendingCount() != 1 {
		t.Errorf("pending after promotion = %d, want 1", pool.PendingCount())
	}
	if pool.Get(tx0.Hash()) != nil {
		t.Error("included transaction still tracked")
	}
	if pool.Get(tx1.Hash()) == nil {
		t.Error("promoted transaction no longer tracked")
	}
}

func TestMempool_ReplacementByFee(t *testing.T) {
	from, priv := newSender(t)
	pool := New(DefaultPoolConfig())

	original := signedTx(t, priv, from, 0, 10)
	if err := pool.Add(original, 0); err != nil {
		t.Fatalf("Add original: %v", err)
	}

	tooLow := signedTx(t, priv, from, 0, 10)
	tooLow.GasPrice = 10
	tooLow.Timestamp = 1
	sigLow, _ := crypto.Sign(crypto.SchemeEd25519, priv, tooLow.SigningHash().Bytes())
	tooLow.Signature = &sigLow
	if err := pool.Add(tooLow, 0); err != ErrDuplicateTransaction {
		t.Errorf("under-bump replacement = %v, want ErrDuplicateTransaction", err)
	}

	replacement := signedTx(t, priv, from, 0, 11)
	replacement.Timestamp = 2
	sigHigh, _ := crypto.Sign(crypto.SchemeEd25519, priv, replacement.SigningHash().Bytes())
	replacement.Signature = &sigHigh
	if err := pool.Add(replacement, 0); err != nil {
		t.Fatalf("fee-bumped replacement: %v", err)
	}

	if pool.PendingCount() != 1 {
		t.Errorf("pending after replacement = %d, want 1", pool.PendingCount())
	}
	if pool.Get(original.Hash()) != nil {
		t.Error("original transaction still tracked after replacement")
	}
	if pool.Get(replacement.Hash()) == nil {
		t.Error("replacement transaction not tracked")
	}
}

// At capacity, adding a transaction evicts the lowest-priced pending
// entry: the pool stays at MaxSize and its price floor rises.
func TestMempool_EvictionRaisesFloorAtCapacity(t *testing.T) {
	cfg := DefaultPoolConfig()
	cfg.MaxSize = 3
	pool := New(cfg)

	// Three distinct senders, gas prices 5, 10, 15: the pool is full.
	floors := []uint64{5, 10, 15}
	for _, price := range floors {
		from, priv := newSender(t)
		if err := pool.Add(signedTx(t, priv, from, 0, price), 0); err != nil {
			t.Fatalf("Add(price %d): %v", price, err)
		}
	}

	// A fourth transaction priced above the resident minimum evicts the
	// price-5 entry: size stays at capacity, the floor strictly rises.
	from, priv := newSender(t)
	if err := pool.Add(signedTx(t, priv, from, 0, 20), 0); err != nil {
		t.Fatalf("Add at capacity: %v", err)
	}
	if got := pool.Metrics().TotalTransactions; got != 3 {
		t.Fatalf("pool size = %d, want capacity 3", got)
	}
	prices := pool.GetPending(^uint64(0), 10)
	if len(prices) != 3 {
		t.Fatalf("pending count = %d, want 3", len(prices))
	}
	if min := prices[len(prices)-1].GasPrice; min <= 5 {
		t.Fatalf("minimum resident gas price = %d, want > 5", min)
	}

	// Eviction is unconditional on the incoming price: a below-floor
	// transaction still evicts the current lowest-priced resident
	// (price 10) to free its slot.
	from2, priv2 := newSender(t)
	if err := pool.Add(signedTx(t, priv2, from2, 0, 1), 0); err != nil {
		t.Fatalf("low-fee add at capacity: %v", err)
	}
	if got := pool.Metrics().TotalTransactions; got != 3 {
		t.Fatalf("pool size after eviction = %d, want 3", got)
	}
	if pool.Get(signedTx(t, priv, from, 0, 20).Hash()) == nil {
		t.Fatalf("price-20 entry should still be resident")
	}
}

// TestMempool_EvictionFailsOnlyWhenNothingPending verifies PoolFull is
// returned only when the pool is full of queued entries with nothing
// pending to evict.
func TestMempool_EvictionFailsOnlyWhenNothingPending(t *testing.T) {
	cfg := DefaultPoolConfig()
	cfg.MaxSize = 2
	pool := New(cfg)

	from, priv := newSender(t)
	for _, nonce := range []uint64{1, 2} {
		if err := pool.Add(signedTx(t, priv, from, nonce, 10), 0); err != nil {
			t.Fatalf("Add queued nonce %d: %v", nonce, err)
		}
	}
	if pool.PendingCount() != 0 || pool.QueuedCount() != 2 {
		t.Fatalf("pending=%d queued=%d, want 0/2", pool.PendingCount(), pool.QueuedCount())
	}

	from2, priv2 := newSender(t)
	if err := pool.Add(signedTx(t, priv2, from2, 0, 100), 0); err != ErrPoolFull {
		t.Fatalf("Add with only queued residents = %v, want ErrPoolFull", err)
	}
}

func TestMempool_Invariants_AfterMixedOperations(t *testing.T) {
	pool := New(DefaultPoolConfig())
	var txs []*types.Transaction
	for i := 0; i < 5; i++ {
		from, priv := newSender(t)
		tx := signedTx(t, priv, from, 0, uint64(3+i))
		txs = append(txs, tx)
		if err := pool.Add(tx, 0); err != nil {
			t.Fatalf("Add[%d]: %v", i, err)
		}
	}

	pool.Remove(txs[2].Hash())

	got := pool.GetPending(1<<40, 1<<20)
	for i := 1; i < len(got); i++ {
		if got[i-1].GasPrice < got[i].GasPrice {
			t.Fatalf("GetPending not non-increasing at %d: %d < %d", i, got[i-1].GasPrice, got[i].GasPrice)
		}
	}

	m := pool.Metrics()
	if m.PendingCount != len(got) {
		t.Errorf("PendingCount = %d, want %d", m.PendingCount, len(got))
	}
}

func TestMempool_Prune_DropsNothingWhenFresh(t *testing.T) {
	from, priv := newSender(t)
	pool := New(DefaultPoolConfig())
	tx := signedTx(t, priv, from, 0, 10)
	if err := pool.Add(tx, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	pool.Prune()
	if pool.Get(tx.Hash()) == nil {
		t.Error("Prune dropped a fresh entry")
	}
}

func TestMempool_Clear(t *testing.T) {
	from, priv := newSender(t)
	pool := New(DefaultPoolConfig())
	tx := signedTx(t, priv, from, 0, 10)
	if err := pool.Add(tx, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	pool.Clear()
	if pool.PendingCount() != 0 || pool.QueuedCount() != 0 {
		t.Error("Clear did not reset counts")
	}
	if pool.Get(tx.Hash()) != nil {
		t.Error("Clear left a tracked transaction")
	}
}
