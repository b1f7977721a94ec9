package types

import (
	"errors"

	"github.com/orryx/poaschain/internal/crypto"
)

// BlockHeader is the part of a Block that the chain hashes and
// validates against its parent.
type BlockHeader struct {
	Number           uint64         `json:"number"`
	ParentHash       crypto.Hash    `json:"parent_hash"`
	TransactionsRoot crypto.Hash    `json:"transactions_root"`
	StateRoot        crypto.Hash    `json:"state_root"`
	Timestamp        uint64         `json:"timestamp"`
	Proposer         crypto.Address `json:"proposer"`
	GasLimit         uint64         `json:"gas_limit"`
	GasUsed          uint64         `json:"gas_used"`
	ExtraData        []byte         `json:"extra_data"`
}

// Hash returns the hash of the canonical byte serialization of the
// header. Two headers with byte-identical fields always hash equal.
func (h BlockHeader) Hash() crypto.Hash {
	b, err := CanonicalBytes(h)
	if err != nil {
		// CanonicalBytes only fails on types json cannot represent;
		// BlockHeader contains none, so this is unreachable in practice.
		panic("types: block header is not serializable: " + err.Error())
	}
	return crypto.HashBytes(b)
}

// ValidatorSignature pairs a validator address with its signature
// over the block header hash.
type ValidatorSignature struct {
	Validator crypto.Address   `json:"validator"`
	Signature crypto.Signature `json:"signature"`
}

// Block is a sealed header plus its ordered transactions and the
// validator signatures collected for it.
type Block struct {
	Header              BlockHeader           `json:"header"`
	Transactions        []*Transaction        `json:"transactions"`
	ValidatorSignatures []ValidatorSignature `json:"validator_signatures"`
}

// Hash returns the block's identity, which is exactly its header hash.
func (b *Block) Hash() crypto.Hash {
	return b.Header.Hash()
}

// Number returns the block height.
func (b *Block) Number() uint64 {
	return b.Header.Number
}

// IsGenesis reports whether b is block number 0.
func (b *Block) IsGenesis() bool {
	return b.Header.Number == 0
}

// TransactionHashes returns the ordered tx identity hashes, used to
// recompute the transactions root.
func (b *Block) TransactionHashes() []crypto.Hash {
	hashes := make([]crypto.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash()
	}
	return hashes
}

// ComputeTransactionsRoot is the Merkle root over TransactionHashes,
// or the zero hash for an empty block.
func (b *Block) ComputeTransactionsRoot() crypto.Hash {
	return crypto.MerkleRoot(b.TransactionHashes())
}

// ComputeGasUsed sums per-transaction gas as Σ tx.GasLimit. This is a
// placeholder until a real execution engine reports actual usage; both
// block producers and validators compute it the same way, so the
// header check stays symmetric (see DESIGN.md).
func (b *Block) ComputeGasUsed() uint64 {
	var sum uint64
	for _, tx := range b.Transactions {
		sum += tx.GasLimit
	}
	return sum
}

// ErrInvalidGenesisParent is returned by NewGenesisBlock if a non-zero
// parent hash is supplied.
var ErrInvalidGenesisParent = errors.New("types: genesis block must have the zero parent hash")

// GenesisExtraData is the fixed extra-data payload of the genesis
// block.
const GenesisExtraData = "Genesis Block"

// GenesisGasLimit is the fixed gas limit of the genesis block.
const GenesisGasLimit = 10_000_000

// NewGenesisBlock builds the canonical genesis block: number 0, zero
// parent hash, zero transactions root, the supplied initial state
// root, timestamp 0, the zero proposer, no transactions, no
// signatures.
func NewGenesisBlock(initialStateRoot crypto.Hash) *Block {
	return &Block{
		Header: BlockHeader{
			Number:           0,
			ParentHash:       crypto.ZeroHash,
			TransactionsRoot: crypto.ZeroHash,
			StateRoot:        initialStateRoot,
			Timestamp:        0,
			Proposer:         crypto.ZeroAddress,
			GasLimit:         GenesisGasLimit,
			GasUsed:          0,
			ExtraData:        []byte(GenesisExtraData),
		},
		Transactions:        nil,
		ValidatorSignatures: nil,
	}
}

// NewBlock constructs a sealed block, computing the transactions root
// and gas-used from txs. The caller supplies the post-execution state
// root.
func NewBlock(number uint64, parentHash crypto.Hash, stateRoot crypto.Hash, proposer crypto.Address, txs []*Transaction, gasLimit uint64, timestamp uint64) *Block {
	b := &Block{
		Header: BlockHeader{
			Number:     number,
			ParentHash: parentHash,
			StateRoot:  stateRoot,
			Timestamp:  timestamp,
			Proposer:   proposer,
			GasLimit:   gasLimit,
		},
		Transactions: txs,
	}
	b.Header.TransactionsRoot = b.ComputeTransactionsRoot()
	b.Header.GasUsed = b.ComputeGasUsed()
	return b
}
