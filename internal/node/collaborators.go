package node

import (
	"context"
	"time"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/fork"
	"github.com/orryx/poaschain/internal/storage"
	"github.com/orryx/poaschain/internal/types"
)

// The peripheral subsystems — transport, RPC, the execution engine,
// tokenomics, liquidity — live outside this module and plug into the
// core through the interfaces below. The node implements the inbound
// ones (TransactionSubmitter, BlockHandler, introspection); outbound
// collaborators are supplied by their packages and may be nil, in
// which case the node runs standalone.

// TransactionSubmitter is the inbound surface RPC and gossip hand
// transactions to. *Node implements it.
type TransactionSubmitter interface {
	SubmitTransaction(tx *types.Transaction) error
}

// BlockHandler is the inbound surface the P2P layer hands gossiped
// blocks to. *Node implements it.
type BlockHandler interface {
	HandleIncomingBlock(block *types.Block, now time.Time) error
}

// MempoolIntrospection is the read surface the RPC dispatcher exposes
// for pending-pool queries. *Node's mempool satisfies it.
type MempoolIntrospection interface {
	Get(hash crypto.Hash) *types.Transaction
	GetBySender(sender crypto.Address) []*types.Transaction
	PendingCount() int
	QueuedCount() int
}

// ForkIntrospection is the read surface the RPC dispatcher exposes for
// fork-history queries.
type ForkIntrospection interface {
	ForkEventsSince(since time.Time) ([]storage.ForkEventRecord, error)
}

// PeerNetwork is the outbound transport contract: broadcast sealed
// blocks and admitted transactions to peers. Calls carry a context
// deadline; implementations own reconnection and peer scoring.
type PeerNetwork interface {
	BroadcastBlock(ctx context.Context, block *types.Block) error
	BroadcastTransaction(ctx context.Context, tx *types.Transaction) error
}

// ExecutionEngine is the contract a real EVM integration must honor to
// replace the flat-gas placeholder: execute one transaction against
// the world-state it is handed, report actual gas consumed, and emit
// receipts/logs. The engine must respect checkpoint scope — it never
// commits or rolls back the state itself.
type ExecutionEngine interface {
	Execute(tx *types.Transaction, blockNumber uint64) (*types.Receipt, error)
	GasUsed(txHash crypto.Hash) (uint64, bool)
}

// TokenomicsController is the minting-phase hook consulted once per
// epoch; the core only reports epoch boundaries and never depends on
// the phase schedule.
type TokenomicsController interface {
	OnEpoch(epoch uint64, height uint64)
}

// LiquidityModule is the DeFi-side reader of block-bound validator
// accounting. The core exposes deployed-liquidity figures; pool math
// stays on the other side of this interface.
type LiquidityModule interface {
	DeployedLiquidity(validator crypto.Address) (types.Amount, error)
}

// ForkChoiceView lets external tooling observe the configured rule
// without reaching into the engine.
type ForkChoiceView interface {
	Rule() fork.Rule
}

// Compile-time checks that the node provides the inbound surfaces.
var (
	_ TransactionSubmitter = (*Node)(nil)
	_ BlockHandler         = (*Node)(nil)
)
