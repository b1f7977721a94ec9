// Package chain implements the block and transaction state machine: block
// acceptance against a parent, transaction execution against the
// world-state under checkpoint/rollback, and the genesis/head bookkeeping
// the rest of the node builds on.
package chain

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/state"
	"github.com/orryx/poaschain/internal/types"
)

// FlatGas is the gas charged per executed transaction at this level of
// the implementation; a real EVM integration would substitute actual
// per-opcode usage.
const FlatGas = 21000

// Blockchain owns blocks-by-hash, the number->hash index, the current
// head, genesis, the world-state, and receipts addressed by transaction
// hash. Writes (AddBlock) are fully serialized by the chain's exclusive
// lock; only one may be in flight at a time.
type Blockchain struct {
	mu sync.RWMutex

	blocksByHash  map[crypto.Hash]*types.Block
	numberToHash  map[uint64]crypto.Hash
	receipts      map[crypto.Hash]*types.Receipt
	genesisHash   crypto.Hash
	headHash      crypto.Hash

	state *state.WorldState
}

// New constructs a Blockchain rooted at genesis, with state seeded by
// worldState (may be nil, which leaves the world-state empty and matches
// genesis.Header.StateRoot only if that root is the zero hash).
func New(genesis *types.Block, worldState *state.WorldState) *Blockchain {
	if worldState == nil {
		worldState = state.New()
	}
	h := genesis.Hash()
	bc := &Blockchain{
		blocksByHash: map[crypto.Hash]*types.Block{h: genesis},
		numberToHash: map[uint64]crypto.Hash{genesis.Number(): h},
		receipts:     make(map[crypto.Hash]*types.Receipt),
		genesisHash:  h,
		headHash:     h,
		state:        worldState,
	}
	return bc
}

// Head returns the current head block.
func (bc *Blockchain) Head() *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.blocksByHash[bc.headHash]
}

// HeadHash returns the current head's hash.
func (bc *Blockchain) HeadHash() crypto.Hash {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.headHash
}

// GenesisHash returns the immutable genesis hash.
func (bc *Blockchain) GenesisHash() crypto.Hash {
	return bc.genesisHash
}

// BlockByHash returns the block with the given hash, or ErrBlockNotFound.
func (bc *Blockchain) BlockByHash(hash crypto.Hash) (*types.Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	b, ok := bc.blocksByHash[hash]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return b, nil
}

// BlockByNumber returns the block at the given height, or
// ErrBlockNotFound if the height has no indexed block.
func (bc *Blockchain) BlockByNumber(number uint64) (*types.Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	hash, ok := bc.numberToHash[number]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return bc.blocksByHash[hash], nil
}

// Receipt returns the receipt for txHash, or ErrTransactionNotFound.
func (bc *Blockchain) Receipt(txHash crypto.Hash) (*types.Receipt, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	r, ok := bc.receipts[txHash]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return r, nil
}

// State exposes the underlying world-state for read access (nonce,
// balance lookups from the mempool and RPC layer).
func (bc *Blockchain) State() *state.WorldState {
	return bc.state
}

// AddBlock validates block against its parent, executes its
// transactions against the world-state, verifies the resulting state
// root against the header, and on success inserts the block and
// advances the head. AddBlock is the chain's sole write path and must
// be called with the caller holding no other long-lived locks in the
// storage/mempool/chain/consensus order.
func (bc *Blockchain) AddBlock(block *types.Block) ([]*types.Receipt, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	parent, ok := bc.blocksByHash[block.Header.ParentHash]
	if !ok {
		return nil, ErrBlockNotFound
	}

	if err := validateAgainstParent(block, parent); err != nil {
		return nil, err
	}

	// A rejected block must leave the world-state as it found it.
	bc.state.Checkpoint()
	receipts := make([]*types.Receipt, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		receipt, err := executeTransactionOn(bc.state, tx, block.Number())
		if err != nil {
			bc.state.Rollback()
			return nil, fmt.Errorf("chain: executing tx %s: %w", tx.Hash(), err)
		}
		receipts = append(receipts, receipt)
	}

	if got, want := bc.state.StateRoot(), block.Header.StateRoot; got != want {
		bc.state.Rollback()
		return nil, fmt.Errorf("%w: state root %s, header declares %s", ErrInvalidBlock, got, want)
	}
	bc.state.Commit()

	hash := block.Hash()
	bc.blocksByHash[hash] = block
	bc.numberToHash[block.Number()] = hash
	bc.headHash = hash
	for _, r := range receipts {
		bc.receipts[r.TxHash] = r
	}

	return receipts, nil
}

// validateAgainstParent checks the structural rules relating child to
// parent; it does not touch the world-state.
func validateAgainstParent(child, parent *types.Block) error {
	if child.Number() != parent.Number()+1 {
		return fmt.Errorf("%w: number %d, want %d", ErrInvalidBlock, child.Number(), parent.Number()+1)
	}
	if child.Header.ParentHash != parent.Hash() {
		return fmt.Errorf("%w: parent_hash does not match parent block hash", ErrInvalidBlock)
	}
	if child.Header.Timestamp <= parent.Header.Timestamp {
		return fmt.Errorf("%w: timestamp %d not after parent %d", ErrInvalidBlock, child.Header.Timestamp, parent.Header.Timestamp)
	}
	if child.Header.GasUsed > child.Header.GasLimit {
		return fmt.Errorf("%w: gas_used %d exceeds gas_limit %d", ErrInvalidBlock, child.Header.GasUsed, child.Header.GasLimit)
	}
	if got, want := child.ComputeTransactionsRoot(), child.Header.TransactionsRoot; got != want {
		return fmt.Errorf("%w: transactions_root %s, want %s", ErrInvalidBlock, want, got)
	}
	// Flat-gas-at-execution vs sum-of-gas-limit-at-validation is an
	// intentional discrepancy carried over from the source material:
	// both sides are computed identically here, so the comparison
	// always holds for blocks built by this implementation.
	if got, want := child.ComputeGasUsed(), child.Header.GasUsed; got != want {
		return fmt.Errorf("%w: gas_used %d, recomputed sum(gas_limit) %d", ErrInvalidBlock, want, got)
	}
	for _, tx := range child.Transactions {
		if err := tx.ValidateBasic(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBlock, err)
		}
	}
	return nil
}

// executeTransactionOn applies tx to ws under a checkpoint, charging
// FlatGas and producing a receipt. On any validation or dispatch error
// the checkpoint is rolled back and the account nonce is left
// untouched. It is a free function so that reorg application can replay
// transactions against a scratch world-state without touching the
// chain's live one.
func executeTransactionOn(ws *state.WorldState, tx *types.Transaction, blockNumber uint64) (*types.Receipt, error) {
	if err := tx.ValidateBasic(); err != nil {
		return nil, err
	}

	currentNonce := ws.Nonce(tx.From)
	if tx.Nonce != currentNonce {
		return nil, ErrNonceMismatch
	}

	requiredGas := tx.RequiredFunds()
	if ws.Balance(tx.From).Cmp(requiredGas) < 0 {
		return nil, ErrInsufficientBalance
	}

	ws.Checkpoint()

	gasUsed := uint64(FlatGas)
	fee := types.NewAmount(int64(tx.GasPrice)).MulUint64(gasUsed)

	execErr := ws.Mutate(tx.From, func(acc *types.Account) error {
		acc.Nonce++
		if err := dispatch(ws, acc, tx); err != nil {
			return err
		}
		remaining, err := acc.Balance.Sub(fee)
		if err != nil {
			// Affordability was checked against gas_limit * gas_price
			// before dispatch; this trips when dispatch drained the
			// balance further, or when the flat fee exceeds that
			// reservation (gas_limit below FlatGas).
			return err
		}
		acc.Balance = remaining
		return nil
	})
	if execErr != nil {
		ws.Rollback()
		return nil, execErr
	}
	ws.Commit()

	receipt := &types.Receipt{
		TxHash:      tx.Hash(),
		BlockNumber: blockNumber,
		From:        tx.From,
		To:          tx.To,
		GasUsed:     gasUsed,
		Status:      types.ReceiptSuccess,
	}
	if tx.Kind == types.TxContractDeployment {
		var nonceBytes [8]byte
		binary.BigEndian.PutUint64(nonceBytes[:], tx.Nonce)
		seed := crypto.HashBytes(append(tx.From.Bytes(), nonceBytes[:]...))
		addr, err := crypto.AddressFromBytes(seed.Bytes()[:crypto.AddressSize])
		if err != nil {
			return nil, fmt.Errorf("chain: deriving contract address: %w", err)
		}
		receipt.ContractAddress = &addr
	}
	return receipt, nil
}

// dispatch applies tx's business logic to acc (the sender's account,
// already nonce-bumped by the caller), mutating recipient/pool state as
// needed through worldState.
func dispatch(worldState *state.WorldState, acc *types.Account, tx *types.Transaction) error {
	switch tx.Kind {
	case types.TxTransfer:
		remaining, err := acc.Balance.Sub(*tx.Amount)
		if err != nil {
			return ErrInsufficientBalance
		}
		acc.Balance = remaining
		return worldState.Mutate(*tx.To, func(recipient *types.Account) error {
			recipient.Balance = recipient.Balance.Add(*tx.Amount)
			return nil
		})

	case types.TxStake:
		return acc.Stake(*tx.Amount)

	case types.TxUnstake:
		return acc.Unstake(*tx.Amount)

	case types.TxDeployLiquidity:
		return acc.DeployLiquidity(*tx.Amount)

	case types.TxWithdrawLiquidity:
		return acc.WithdrawLiquidity(*tx.Amount)

	case types.TxContractDeployment:
		codeHash := crypto.HashBytes(tx.Code)
		acc.CodeHash = &codeHash
		storageRoot := crypto.ZeroHash
		acc.StorageRoot = &storageRoot
		return nil

	case types.TxContractCall:
		if tx.Contract == nil {
			return ErrInvalidBlock
		}
		return worldState.Mutate(*tx.Contract, func(contract *types.Account) error {
			// Opcode execution is out of scope; a contract call at this
			// level only verifies the target carries code.
			if contract.CodeHash == nil {
				return ErrInvalidBlock
			}
			return nil
		})

	default:
		return ErrUnknownTxKind
	}
}
