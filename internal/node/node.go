// Package node wires the chain, consensus engine, mempool, fork
// resolver, and storage layer into one runtime, and runs the periodic
// background tasks (mempool pruning, mempool persistence, fork
// monitoring, metrics collection). Components are constructed leaves
// first, with handles passed downward, never a back-pointer upward.
package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/orryx/poaschain/internal/chain"
	"github.com/orryx/poaschain/internal/config"
	"github.com/orryx/poaschain/internal/consensus"
	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/fork"
	"github.com/orryx/poaschain/internal/mempool"
	"github.com/orryx/poaschain/internal/metrics"
	"github.com/orryx/poaschain/internal/state"
	"github.com/orryx/poaschain/internal/storage"
	"github.com/orryx/poaschain/internal/types"
)

// Retention knobs the TOML surface does not expose; these bound the
// storage layer's metrics and fork-history housekeeping.
const (
	defaultMetricsRetentionDays = 30
	defaultForkRecentDays       = 7
	defaultForkDepthThreshold   = 3

	// maxTxPerBlock caps how many transactions one produced block may
	// carry, independent of the gas limit.
	maxTxPerBlock = 1000
)

var errNoGenesis = errors.New("node: data dir has no genesis; run init first")

// Node owns every long-lived component and the background task
// lifecycle.
type Node struct {
	cfg    *config.Config
	logger cmtlog.Logger

	store  *storage.Store
	chain  *chain.Blockchain
	engine *consensus.Engine
	pool   *mempool.Mempool

	collectors *metrics.Collectors
	window     *metrics.Window

	// writeMu serializes the produce/accept pipelines so only one
	// chain-advancing operation is in flight at a time.
	writeMu sync.Mutex

	// sideBlocks indexes blocks received off the canonical head so the
	// fork resolver can walk both sides of a fork.
	sideMu     sync.Mutex
	sideBlocks map[crypto.Hash]*types.Block
}

// New opens storage, loads or replays the chain, restores the
// validator set and pending transactions, and wires the consensus
// engine, mempool, and metrics collectors. The caller runs Run to
// start the background tasks.
func New(cfg *config.Config, logger cmtlog.Logger) (*Node, error) {
	if logger == nil {
		logger = cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))
	}

	db, err := dbm.NewGoLevelDB("poaschain", cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("node: opening database: %w", err)
	}
	return newWithDB(cfg, logger, db)
}

// newWithDB finishes construction on an already-opened database
// handle; tests supply a MemDB here.
func newWithDB(cfg *config.Config, logger cmtlog.Logger, db dbm.DB) (*Node, error) {
	store := storage.Open(db, storageConfig(cfg))

	genesis, err := loadGenesis(cfg.GenesisPath())
	if err != nil {
		store.Close()
		return nil, err
	}

	bc := chain.New(genesis, state.New())
	if err := replayChain(bc, store, logger); err != nil {
		store.Close()
		return nil, err
	}

	engineCfg := consensus.NewConfig(consensus.Config{
		BlockTime:           time.Duration(cfg.Consensus.BlockTimeSeconds) * time.Second,
		MinStake:            types.NewAmount(cfg.Consensus.MinStake),
		UnbondingPeriod:     21 * 24 * time.Hour,
		RequiredUptimeBP:    9500,
		MaxDowntimeBlocks:   100,
		FinalityBlocks:      64,
		ForkChoice:          forkChoiceRule(cfg.ForkHandling.ForkChoice),
		MaxReorgDepth:       cfg.ForkHandling.MaxReorgDepth,
		EnableForkDetection: true,
		SlashForWrongFork:   true,
		BlocksPerEpoch:      100,
	})
	engine := consensus.NewEngine(engineCfg, logger)

	if validators, err := store.LoadValidatorSet(); err == nil {
		engine.Validators().Restore(validators)
	} else if err != storage.ErrNotFound {
		store.Close()
		return nil, fmt.Errorf("node: restoring validator set: %w", err)
	}

	pool := mempool.New(mempool.PoolConfig{
		MaxSize:           cfg.Mempool.MaxSize,
		MaxPerAccount:     cfg.Mempool.MaxPerAccount,
		MinGasPrice:       cfg.Mempool.MinGasPrice,
		MaxAge:            time.Duration(cfg.Mempool.MaxAgeSeconds) * time.Second,
		EnableReplacement: cfg.Mempool.EnableReplacement,
	})

	n := &Node{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		chain:      bc,
		engine:     engine,
		pool:       pool,
		collectors: metrics.New(),
		window:     metrics.NewWindow(cfg.Metrics.WindowSize),
		sideBlocks: make(map[crypto.Hash]*types.Block),
	}

	n.restorePendingTransactions()
	return n, nil
}

// storageConfig maps the TOML storage/mempool/metrics sections onto
// the storage layer's retention knobs. Per the upstream discrepancy
// noted in DESIGN.md, pending-transaction expiry is driven by
// mempool.max_age, not the fork-history retention window.
func storageConfig(cfg *config.Config) storage.Config {
	mode := storage.Archive
	if cfg.Storage.Pruning == "pruned" {
		mode = storage.Pruned
	}
	return storage.Config{
		Mode:                      mode,
		KeepBlocks:                cfg.Storage.KeepBlocks,
		MetricsSnapshotInterval:   cfg.Metrics.SnapshotInterval,
		MetricsRetentionDays:      defaultMetricsRetentionDays,
		ForkHistoryRetentionDays:  defaultForkRecentDays,
		ForkRecentDays:            defaultForkRecentDays,
		ForkDepthThreshold:        defaultForkDepthThreshold,
		MempoolPersistenceEnabled: true,
		MempoolMaxAge:             time.Duration(cfg.Mempool.MaxAgeSeconds) * time.Second,
	}
}

func forkChoiceRule(name string) fork.Rule {
	switch name {
	case "heaviest_chain":
		return fork.HeaviestChain
	case "latest_justified":
		return fork.LatestJustified
	default:
		return fork.LongestChain
	}
}

// loadGenesis reads the genesis block from <data_dir>/genesis.json,
// written by the init command.
func loadGenesis(path string) (*types.Block, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNoGenesis
		}
		return nil, fmt.Errorf("node: reading genesis: %w", err)
	}
	var genesis types.Block
	if err := json.Unmarshal(raw, &genesis); err != nil {
		return nil, fmt.Errorf("node: parsing genesis: %w", err)
	}
	if !genesis.IsGenesis() {
		return nil, fmt.Errorf("node: %s does not contain a genesis block", path)
	}
	return &genesis, nil
}

// WriteGenesis synthesizes the canonical genesis block and writes it
// to path, used by the init command.
func WriteGenesis(path string) (*types.Block, error) {
	genesis := types.NewGenesisBlock(state.New().StateRoot())
	raw, err := json.MarshalIndent(genesis, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("node: encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, fmt.Errorf("node: writing genesis: %w", err)
	}
	return genesis, nil
}

// replayChain re-applies every durably stored block above genesis so
// the in-memory chain and world-state resume where the last run left
// off.
func replayChain(bc *chain.Blockchain, store *storage.Store, logger cmtlog.Logger) error {
	for n := uint64(1); ; n++ {
		block, err := store.GetBlockByNumber(n)
		if err != nil {
			return fmt.Errorf("node: replaying block %d: %w", n, err)
		}
		if block == nil {
			if n > 1 {
				logger.Info("chain replayed from storage", "height", n-1)
			}
			return nil
		}
		if _, err := bc.AddBlock(block); err != nil {
			return fmt.Errorf("node: replaying block %d: %w", n, err)
		}
	}
}

// restorePendingTransactions re-admits the persisted mempool snapshot,
// dropping anything whose nonce the chain has since passed.
func (n *Node) restorePendingTransactions() {
	txs, err := n.store.LoadPendingTransactions(time.Now())
	if err != nil {
		n.logger.Error("loading persisted mempool", "err", err.Error())
		return
	}
	restored := 0
	for _, tx := range txs {
		if err := n.pool.Add(tx, n.chain.State().Nonce(tx.From)); err == nil {
			restored++
		}
	}
	if restored > 0 {
		n.logger.Info("mempool restored from storage", "count", restored)
	}
}

// Chain exposes the blockchain for RPC-style read access.
func (n *Node) Chain() *chain.Blockchain { return n.chain }

// Engine exposes the consensus engine.
func (n *Node) Engine() *consensus.Engine { return n.engine }

// Mempool exposes the transaction pool.
func (n *Node) Mempool() *mempool.Mempool { return n.pool }

// Store exposes the storage layer.
func (n *Node) Store() *storage.Store { return n.store }

// Metrics exposes the Prometheus collectors.
func (n *Node) Metrics() *metrics.Collectors { return n.collectors }

// Close flushes and releases storage.
func (n *Node) Close() error {
	return n.store.Close()
}

// SubmitTransaction admits tx into the mempool against the sender's
// current on-chain nonce. This is the entry point RPC and gossip hand
// transactions to.
func (n *Node) SubmitTransaction(tx *types.Transaction) error {
	currentNonce := n.chain.State().Nonce(tx.From)
	if err := n.pool.Add(tx, currentNonce); err != nil {
		return err
	}
	m := n.pool.Metrics()
	n.collectors.MempoolPending.Set(float64(m.PendingCount))
	n.collectors.MempoolQueued.Set(float64(m.QueuedCount))
	return nil
}

// Status is the node-level summary surfaced by the status CLI command
// and the RPC introspection surface.
type Status struct {
	Height           uint64               `json:"height"`
	HeadHash         crypto.Hash          `json:"head_hash"`
	GenesisHash      crypto.Hash          `json:"genesis_hash"`
	PendingTxCount   int                  `json:"pending_tx_count"`
	QueuedTxCount    int                  `json:"queued_tx_count"`
	ValidatorCount   int                  `json:"validator_count"`
	HighestJustified uint64               `json:"highest_justified"`
	ReorgStats       consensus.ReorgStats `json:"reorg_stats"`
}

// Status snapshots the node's current shape.
func (n *Node) Status() Status {
	head := n.chain.Head()
	return Status{
		Height:           head.Number(),
		HeadHash:         head.Hash(),
		GenesisHash:      n.chain.GenesisHash(),
		PendingTxCount:   n.pool.PendingCount(),
		QueuedTxCount:    n.pool.QueuedCount(),
		ValidatorCount:   len(n.engine.Validators().Active()),
		HighestJustified: n.engine.HighestJustified(),
		ReorgStats:       n.engine.Stats(),
	}
}
