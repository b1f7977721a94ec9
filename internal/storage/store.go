package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/orryx/poaschain/internal/consensus"
	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

// PruningMode names the retention policy applied by Prune.
type PruningMode int

const (
	Archive PruningMode = iota
	Pruned
)

// Config bounds the storage layer's retention and snapshot behavior.
type Config struct {
	Mode                      PruningMode
	KeepBlocks                uint64
	MetricsSnapshotInterval   uint64
	MetricsRetentionDays      int
	ForkHistoryRetentionDays  int
	ForkRecentDays            int
	ForkDepthThreshold        int
	MempoolPersistenceEnabled bool
	// MempoolMaxAge surfaces mempool.max_age into
	// LoadPendingTransactions' expiry check. Pending-transaction expiry
	// is a mempool policy, so it is NOT driven by
	// ForkHistoryRetentionDays, an unrelated retention knob (see the
	// discrepancy note in DESIGN.md).
	MempoolMaxAge time.Duration
}

// Store is the durable multi-family KV layer. The underlying dbm.DB
// is safe for concurrent use; Store serializes only the construction
// of multi-family atomic batches, not individual reads.
type Store struct {
	db  dbm.DB
	cfg Config
	mu  sync.Mutex // guards batch construction sequencing, not reads
}

// Open wraps an already-opened cometbft-db handle (e.g.
// dbm.NewGoLevelDB("poaschain", dataDir)).
func Open(db dbm.DB, cfg Config) *Store {
	return &Store{db: db, cfg: cfg}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

func unmarshal(b []byte, v interface{}) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return nil
}

// StoreBlock writes Blocks, BlockHashes, BlockNumbers, and a receipt
// per transaction (the supplied receipt at the same index, or a
// synthetic success receipt where none is supplied) in a single atomic
// batch.
func (s *Store) StoreBlock(block *types.Block, receipts []*types.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blockBytes, err := marshal(block)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	hash := block.Hash()
	if err := batch.Set(blockKey(hash.Bytes()), blockBytes); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if err := batch.Set(blockHashKey(block.Number()), hash.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if err := batch.Set(blockNumberKey(hash.Bytes()), be64(block.Number())); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	for i, tx := range block.Transactions {
		txBytes, err := marshal(tx)
		if err != nil {
			return err
		}
		txHash := tx.Hash()
		if err := batch.Set(transactionKey(txHash.Bytes()), txBytes); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		if err := batch.Set(txByAddressKey(tx.From.Bytes(), txHash.Bytes()), []byte{}); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}

		var receipt *types.Receipt
		if i < len(receipts) {
			receipt = receipts[i]
		} else {
			receipt = &types.Receipt{TxHash: txHash, BlockNumber: block.Number(), From: tx.From, Status: types.ReceiptSuccess}
		}
		receiptBytes, err := marshal(receipt)
		if err != nil {
			return err
		}
		if err := batch.Set(receiptKey(txHash.Bytes()), receiptBytes); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}

	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// GetBlockByHash returns the block stored under hash, or ErrNotFound.
func (s *Store) GetBlockByHash(hash crypto.Hash) (*types.Block, error) {
	raw, err := s.db.Get(blockKey(hash.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var block types.Block
	if err := unmarshal(raw, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetBlockByNumber returns (nil, nil) if the number index has no
// entry; otherwise it fetches the block through the indexed hash. An
// absent number is not an error, unlike an absent hash.
func (s *Store) GetBlockByNumber(number uint64) (*types.Block, error) {
	hashBytes, err := s.db.Get(blockHashKey(number))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if hashBytes == nil {
		return nil, nil
	}
	hash, err := crypto.HashFromBytes(hashBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	return s.GetBlockByHash(hash)
}

// GetReceipt returns the receipt for txHash, or ErrNotFound.
func (s *Store) GetReceipt(txHash crypto.Hash) (*types.Receipt, error) {
	raw, err := s.db.Get(receiptKey(txHash.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var r types.Receipt
	if err := unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// StateEntry pairs an address with its account, used to serialize
// state snapshots as an ordered slice rather than a JSON object (Go's
// encoding/json cannot use a fixed-size byte array as an object key).
type StateEntry struct {
	Address crypto.Address `json:"address"`
	Account *types.Account `json:"account"`
}

// StoreStateSnapshot persists a per-block snapshot of every account,
// addressed by block number, in the State family.
func (s *Store) StoreStateSnapshot(number uint64, accounts map[crypto.Address]*types.Account) error {
	entries := make([]StateEntry, 0, len(accounts))
	for addr, acc := range accounts {
		entries = append(entries, StateEntry{Address: addr, Account: acc})
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Address[:]) < string(entries[j].Address[:])
	})

	b, err := marshal(entries)
	if err != nil {
		return err
	}
	if err := s.db.SetSync(stateKey(number), b); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// GetStateSnapshot returns the account set stored at number, or
// ErrNotFound.
func (s *Store) GetStateSnapshot(number uint64) (map[crypto.Address]*types.Account, error) {
	raw, err := s.db.Get(stateKey(number))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var entries []StateEntry
	if err := unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	out := make(map[crypto.Address]*types.Account, len(entries))
	for _, e := range entries {
		out[e.Address] = e.Account
	}
	return out, nil
}

// StoreValidatorSet persists the current validator set snapshot under
// the fixed Validators key "current".
func (s *Store) StoreValidatorSet(validators []consensus.ValidatorInfo) error {
	b, err := marshal(validators)
	if err != nil {
		return err
	}
	if err := s.db.SetSync(validatorSetKey(), b); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// LoadValidatorSet returns the persisted validator set, or ErrNotFound
// if none has ever been stored.
func (s *Store) LoadValidatorSet() ([]consensus.ValidatorInfo, error) {
	raw, err := s.db.Get(validatorSetKey())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var out []consensus.ValidatorInfo
	if err := unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetMeta/GetMeta expose the free-form Meta family (genesis hash,
// chain id, schema version, and similar bookkeeping).
func (s *Store) SetMeta(name string, value []byte) error {
	if err := s.db.SetSync(metaKey(name), value); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

func (s *Store) GetMeta(name string) ([]byte, error) {
	raw, err := s.db.Get(metaKey(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return raw, nil
}

// Compact triggers storage-level compaction over the whole keyspace
// (covering every family). cometbft-db's DB interface does not expose
// compaction, so this reaches into the goleveldb backend when that is
// what the handle wraps; on other backends (MemDB in tests) it is a
// no-op.
func (s *Store) Compact() error {
	if ldb, ok := s.db.(*dbm.GoLevelDB); ok {
		return ldb.DB().CompactRange(util.Range{})
	}
	return nil
}
