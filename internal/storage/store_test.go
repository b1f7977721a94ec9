package storage

import (
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s := Open(dbm.NewMemDB(), cfg)
	t.Cleanup(func() { s.Close() })
	return s
}

func signedTx(nonce uint64, gasPrice uint64, to crypto.Address) *types.Transaction {
	amount := types.NewAmount(100)
	sig := crypto.Signature{Scheme: crypto.SchemeEd25519, Bytes: []byte{0x01}}
	return &types.Transaction{
		From:      crypto.Address{0xaa},
		Nonce:     nonce,
		Kind:      types.TxTransfer,
		To:        &to,
		Amount:    &amount,
		GasPrice:  gasPrice,
		GasLimit:  21000,
		Timestamp: 1700000000,
		Signature: &sig,
	}
}

func TestStoreBlockRoundTrip(t *testing.T) {
	s := newTestStore(t, Config{})

	genesis := types.NewGenesisBlock(crypto.ZeroHash)
	tx := signedTx(0, 7, crypto.Address{0xbb})
	block := types.NewBlock(1, genesis.Hash(), crypto.ZeroHash, crypto.ZeroAddress, []*types.Transaction{tx}, 10_000_000, 1)

	if err := s.StoreBlock(block, nil); err != nil {
		t.Fatalf("StoreBlock: %v", err)
	}

	got, err := s.GetBlockByHash(block.Hash())
	if err != nil {
		t.Fatalf("GetBlockByHash: %v", err)
	}
	if got.Hash() != block.Hash() {
		t.Fatalf("round-tripped block hash %s, want %s", got.Hash(), block.Hash())
	}

	byNumber, err := s.GetBlockByNumber(1)
	if err != nil {
		t.Fatalf("GetBlockByNumber: %v", err)
	}
	if byNumber == nil || byNumber.Hash() != block.Hash() {
		t.Fatal("number index did not resolve to the stored block")
	}

	// Absent number yields (nil, nil), not an error.
	missing, err := s.GetBlockByNumber(99)
	if err != nil || missing != nil {
		t.Fatalf("GetBlockByNumber(99) = (%v, %v), want (nil, nil)", missing, err)
	}

	// A synthetic receipt was written for the transaction.
	r, err := s.GetReceipt(tx.Hash())
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if r.BlockNumber != 1 || r.Status != types.ReceiptSuccess {
		t.Fatalf("receipt = %+v", r)
	}

	// The sender's secondary index resolves the transaction.
	txs, err := s.GetTransactionsBySender(tx.From)
	if err != nil {
		t.Fatalf("GetTransactionsBySender: %v", err)
	}
	if len(txs) != 1 || txs[0].Hash() != tx.Hash() {
		t.Fatalf("sender index returned %d txs", len(txs))
	}
}

func TestPendingTransactionPersistence(t *testing.T) {
	s := newTestStore(t, Config{
		MempoolPersistenceEnabled: true,
		MempoolMaxAge:             time.Hour,
	})

	now := time.Now()
	fresh := signedTx(0, 20, crypto.Address{0xbb})
	cheap := signedTx(1, 5, crypto.Address{0xbb})
	stale := signedTx(2, 50, crypto.Address{0xbb})

	entries := []PendingEntry{
		{Tx: fresh, GasPrice: 20, AddedAt: now},
		{Tx: cheap, GasPrice: 5, AddedAt: now},
		{Tx: stale, GasPrice: 50, AddedAt: now.Add(-2 * time.Hour)},
	}
	if err := s.StorePendingTransactions(entries); err != nil {
		t.Fatalf("StorePendingTransactions: %v", err)
	}

	loaded, err := s.LoadPendingTransactions(now)
	if err != nil {
		t.Fatalf("LoadPendingTransactions: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d txs, want 2 (stale entry dropped)", len(loaded))
	}
	if loaded[0].GasPrice != 20 || loaded[1].GasPrice != 5 {
		t.Fatalf("load order = [%d, %d], want descending gas price", loaded[0].GasPrice, loaded[1].GasPrice)
	}
}

func TestPendingPersistenceDisabledIsNoop(t *testing.T) {
	s := newTestStore(t, Config{MempoolPersistenceEnabled: false})
	err := s.StorePendingTransactions([]PendingEntry{{Tx: signedTx(0, 1, crypto.Address{0xbb}), GasPrice: 1, AddedAt: time.Now()}})
	if err != nil {
		t.Fatalf("StorePendingTransactions: %v", err)
	}
	loaded, err := s.LoadPendingTransactions(time.Now())
	if err != nil {
		t.Fatalf("LoadPendingTransactions: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("loaded %d txs from a disabled persistence store", len(loaded))
	}
}

func TestForkHistoryOrderingAndCompaction(t *testing.T) {
	s := newTestStore(t, Config{ForkRecentDays: 7, ForkDepthThreshold: 2})

	now := time.Now()
	old := now.Add(-30 * 24 * time.Hour)

	events := []ForkEventRecord{
		{Timestamp: old, ForkPoint: 10, ReorgDepth: 1, Resolution: "fork"},           // old + shallow: compacted
		{Timestamp: old.Add(time.Minute), ForkPoint: 11, ReorgDepth: 5, Resolution: "fork"}, // old + deep: kept
		{Timestamp: now, ForkPoint: 12, ReorgDepth: 1, Resolution: "main"},           // recent: kept
	}
	for _, e := range events {
		if err := s.StoreForkEvent(e); err != nil {
			t.Fatalf("StoreForkEvent: %v", err)
		}
	}

	all, err := s.ForkEventsSince(old.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ForkEventsSince: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatal("fork events not ordered by time")
		}
	}

	removed, err := s.CompactForkHistory(now)
	if err != nil {
		t.Fatalf("CompactForkHistory: %v", err)
	}
	if removed != 1 {
		t.Fatalf("compacted %d events, want 1", removed)
	}
	remaining, err := s.ForkEventsSince(old.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ForkEventsSince after compaction: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("%d events remain, want 2", len(remaining))
	}
}

func TestChainMetricsIntervalAndLatest(t *testing.T) {
	s := newTestStore(t, Config{MetricsSnapshotInterval: 10})

	now := time.Now()
	for n := uint64(0); n <= 25; n++ {
		err := s.StoreChainMetrics(n, ChainMetricsSnapshot{Timestamp: now, TxCount: int(n)})
		if err != nil {
			t.Fatalf("StoreChainMetrics(%d): %v", n, err)
		}
	}

	// Only multiples of the interval were written; latest from block 25
	// walks back to snapshot 20.
	latest, err := s.GetLatestMetrics(25)
	if err != nil {
		t.Fatalf("GetLatestMetrics: %v", err)
	}
	if latest.BlockNumber != 20 {
		t.Fatalf("latest snapshot at block %d, want 20", latest.BlockNumber)
	}
	if latest.TxCount != 20 {
		t.Fatalf("latest snapshot tx count %d, want 20", latest.TxCount)
	}
}

func TestStatePruning(t *testing.T) {
	accounts := map[crypto.Address]*types.Account{
		{0x01}: {Nonce: 1, Balance: types.NewAmount(5), Staked: types.NewAmount(0), LiquidityDeployed: types.NewAmount(0)},
	}

	archive := newTestStore(t, Config{Mode: Archive})
	for n := uint64(0); n < 10; n++ {
		if err := archive.StoreStateSnapshot(n, accounts); err != nil {
			t.Fatalf("StoreStateSnapshot: %v", err)
		}
	}
	removed, err := archive.Prune(100)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 0 {
		t.Fatalf("archive mode pruned %d snapshots, want 0", removed)
	}

	pruned := newTestStore(t, Config{Mode: Pruned, KeepBlocks: 3})
	for n := uint64(0); n < 10; n++ {
		if err := pruned.StoreStateSnapshot(n, accounts); err != nil {
			t.Fatalf("StoreStateSnapshot: %v", err)
		}
	}
	removed, err = pruned.Prune(9)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 6 { // blocks 0..5 fall below 9-3
		t.Fatalf("pruned %d snapshots, want 6", removed)
	}
	if _, err := pruned.GetStateSnapshot(5); err != ErrNotFound {
		t.Fatalf("snapshot 5 should be pruned, got err %v", err)
	}
	if _, err := pruned.GetStateSnapshot(6); err != nil {
		t.Fatalf("snapshot 6 should survive: %v", err)
	}
}

func TestValidatorSetAndMetaRoundTrip(t *testing.T) {
	s := newTestStore(t, Config{})

	if _, err := s.LoadValidatorSet(); err != ErrNotFound {
		t.Fatalf("empty store LoadValidatorSet err = %v, want ErrNotFound", err)
	}

	if err := s.SetMeta("genesis_hash", []byte{0x01, 0x02}); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	got, err := s.GetMeta("genesis_hash")
	if err != nil || len(got) != 2 {
		t.Fatalf("GetMeta = (%v, %v)", got, err)
	}
}
