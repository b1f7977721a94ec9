package node

import (
	"path/filepath"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/orryx/poaschain/internal/config"
	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Consensus.BlockTimeSeconds = 5
	cfg.Consensus.MinStake = 1000
	return cfg
}

func newTestNode(t *testing.T, cfg *config.Config, db dbm.DB) *Node {
	t.Helper()
	if _, err := WriteGenesis(cfg.GenesisPath()); err != nil {
		t.Fatalf("WriteGenesis: %v", err)
	}
	n, err := newWithDB(cfg, cmtlog.NewNopLogger(), db)
	if err != nil {
		t.Fatalf("newWithDB: %v", err)
	}
	return n
}

func registerValidator(t *testing.T, n *Node, addr crypto.Address) {
	t.Helper()
	err := n.Engine().Validators().Register(addr, types.NewAmount(100_000), 500, time.Now())
	if err != nil {
		t.Fatalf("registering validator: %v", err)
	}
}

func TestProduceEmptyBlocks(t *testing.T) {
	cfg := testConfig(t)
	n := newTestNode(t, cfg, dbm.NewMemDB())
	defer n.Close()

	validator := crypto.Address{0x01}
	registerValidator(t, n, validator)

	b1, err := n.ProduceBlock(time.Now())
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	if b1.Number() != 1 || b1.Header.Proposer != validator {
		t.Fatalf("block 1 = number %d proposer %s", b1.Number(), b1.Header.Proposer)
	}
	if _, err := n.ProduceBlock(time.Now()); err != nil {
		t.Fatalf("ProduceBlock 2: %v", err)
	}
	if got := n.Chain().Height(); got != 2 {
		t.Fatalf("height = %d, want 2", got)
	}

	// Blocks were persisted as they were produced.
	stored, err := n.Store().GetBlockByNumber(2)
	if err != nil || stored == nil {
		t.Fatalf("stored block 2 = (%v, %v)", stored, err)
	}

	status := n.Status()
	if status.Height != 2 || status.ValidatorCount != 1 {
		t.Fatalf("status = %+v", status)
	}
}

func TestProduceFailsWithoutValidators(t *testing.T) {
	cfg := testConfig(t)
	n := newTestNode(t, cfg, dbm.NewMemDB())
	defer n.Close()

	if _, err := n.ProduceBlock(time.Now()); err == nil {
		t.Fatal("ProduceBlock succeeded with an empty validator set")
	}
}

func TestHandleIncomingExtension(t *testing.T) {
	cfg := testConfig(t)
	n := newTestNode(t, cfg, dbm.NewMemDB())
	defer n.Close()

	validator := crypto.Address{0x02}
	registerValidator(t, n, validator)

	head := n.Chain().Head()
	block := types.NewBlock(
		1, head.Hash(), n.Chain().State().StateRoot(), validator, nil,
		head.Header.GasLimit,
		head.Header.Timestamp+uint64(cfg.Consensus.BlockTimeSeconds),
	)

	if err := n.HandleIncomingBlock(block, time.Now()); err != nil {
		t.Fatalf("HandleIncomingBlock: %v", err)
	}
	if got := n.Chain().Height(); got != 1 {
		t.Fatalf("height = %d, want 1", got)
	}

	// A proposer outside the validator set is rejected.
	bad := types.NewBlock(
		2, block.Hash(), n.Chain().State().StateRoot(), crypto.Address{0xff}, nil,
		block.Header.GasLimit,
		block.Header.Timestamp+uint64(cfg.Consensus.BlockTimeSeconds),
	)
	if err := n.HandleIncomingBlock(bad, time.Now()); err == nil {
		t.Fatal("accepted a block from an unknown proposer")
	}
}

func TestHandleIncomingForkReorgs(t *testing.T) {
	cfg := testConfig(t)
	n := newTestNode(t, cfg, dbm.NewMemDB())
	defer n.Close()

	validator := crypto.Address{0x03}
	registerValidator(t, n, validator)

	// Build the main chain to height 1.
	if _, err := n.ProduceBlock(time.Now()); err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	oldHead := n.Chain().Head()

	// Competing sibling at height 1 from the same proposer. Handling it
	// reorganizes onto the fork and the proposer is slashed for signing
	// both sides of the same height.
	genesis, err := n.Chain().BlockByNumber(0)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	root := n.Chain().State().StateRoot()
	step := uint64(cfg.Consensus.BlockTimeSeconds)
	f1 := types.NewBlock(1, genesis.Hash(), root, validator, nil, genesis.Header.GasLimit, genesis.Header.Timestamp+step+1)

	stakeBefore, _ := n.Engine().Validators().Get(validator)
	if err := n.HandleIncomingBlock(f1, time.Now()); err != nil {
		t.Fatalf("HandleIncomingBlock(f1): %v", err)
	}
	if got := n.Chain().HeadHash(); got != f1.Hash() {
		t.Fatalf("head = %s, want fork tip %s", got, f1.Hash())
	}
	if got := n.Chain().HeadHash(); got == oldHead.Hash() {
		t.Fatal("reorg did not move the head off the reverted branch")
	}
	stakeAfter, _ := n.Engine().Validators().Get(validator)
	if stakeAfter.Stake.Cmp(stakeBefore.Stake) >= 0 {
		t.Fatalf("double-signing proposer's stake did not decrease: %s -> %s",
			stakeBefore.Stake, stakeAfter.Stake)
	}

	// The fork tip now extends normally.
	f2 := types.NewBlock(2, f1.Hash(), root, validator, nil, genesis.Header.GasLimit, f1.Header.Timestamp+step)
	if err := n.HandleIncomingBlock(f2, time.Now()); err != nil {
		t.Fatalf("HandleIncomingBlock(f2): %v", err)
	}
	if got := n.Chain().Height(); got != 2 {
		t.Fatalf("height = %d, want 2", got)
	}

	// The resolved fork left a durable event and bumped the stats.
	events, err := n.Store().ForkEventsSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ForkEventsSince: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("no fork event persisted")
	}
	if stats := n.Engine().Stats(); stats.ForkFrequency == 0 {
		t.Fatal("reorg stats not updated")
	}
}

func TestReplayFromStorage(t *testing.T) {
	cfg := testConfig(t)
	db := dbm.NewMemDB()

	n1 := newTestNode(t, cfg, db)
	registerValidator(t, n1, crypto.Address{0x04})
	for i := 0; i < 3; i++ {
		if _, err := n1.ProduceBlock(time.Now()); err != nil {
			t.Fatalf("ProduceBlock %d: %v", i, err)
		}
	}

	// A second node over the same database resumes at the same height
	// with the validator set intact.
	n2, err := newWithDB(cfg, cmtlog.NewNopLogger(), db)
	if err != nil {
		t.Fatalf("newWithDB (replay): %v", err)
	}
	if got := n2.Chain().Height(); got != 3 {
		t.Fatalf("replayed height = %d, want 3", got)
	}
	if got := len(n2.Engine().Validators().Active()); got != 1 {
		t.Fatalf("replayed validator count = %d, want 1", got)
	}
	if _, err := n2.ProduceBlock(time.Now()); err != nil {
		t.Fatalf("ProduceBlock after replay: %v", err)
	}
}

func TestSubmitTransactionClassification(t *testing.T) {
	cfg := testConfig(t)
	n := newTestNode(t, cfg, dbm.NewMemDB())
	defer n.Close()

	to := crypto.Address{0xbb}
	amount := types.NewAmount(10)
	sig := crypto.Signature{Scheme: crypto.SchemeEd25519, Bytes: []byte{0x01}}
	tx := &types.Transaction{
		From: crypto.Address{0xaa}, Nonce: 5, Kind: types.TxTransfer,
		To: &to, Amount: &amount,
		GasPrice: 10, GasLimit: 21000, Timestamp: 1, Signature: &sig,
	}

	if err := n.SubmitTransaction(tx); err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	// Sender's on-chain nonce is 0, so nonce 5 parks in the queue.
	if n.Mempool().PendingCount() != 0 || n.Mempool().QueuedCount() != 1 {
		t.Fatalf("pool = %d pending / %d queued, want 0/1",
			n.Mempool().PendingCount(), n.Mempool().QueuedCount())
	}
}

func TestGenesisFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")

	written, err := WriteGenesis(path)
	if err != nil {
		t.Fatalf("WriteGenesis: %v", err)
	}
	loaded, err := loadGenesis(path)
	if err != nil {
		t.Fatalf("loadGenesis: %v", err)
	}
	if loaded.Hash() != written.Hash() {
		t.Fatalf("genesis hash changed across the file round trip")
	}
	if !loaded.IsGenesis() || loaded.Header.GasLimit != types.GenesisGasLimit {
		t.Fatalf("loaded genesis = %+v", loaded.Header)
	}
}
