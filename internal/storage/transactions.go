package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

// GetTransaction returns the transaction stored under txHash, or
// ErrNotFound.
func (s *Store) GetTransaction(txHash crypto.Hash) (*types.Transaction, error) {
	raw, err := s.db.Get(transactionKey(txHash.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var tx types.Transaction
	if err := unmarshal(raw, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransactionsBySender resolves every transaction indexed for addr
// through the TransactionByAddress secondary family, never by scanning
// the primary Transactions family.
func (s *Store) GetTransactionsBySender(addr crypto.Address) ([]*types.Transaction, error) {
	prefix := key(famTransactionByAddr, addr.Bytes())
	itr, err := s.db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer itr.Close()

	var out []*types.Transaction
	for ; itr.Valid(); itr.Next() {
		k := itr.Key()
		hashBytes := k[len(prefix):]
		hash, err := crypto.HashFromBytes(hashBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed tx-by-address key: %v", ErrCorruption, err)
		}
		tx, err := s.GetTransaction(hash)
		if err != nil {
			if err == ErrNotFound {
				// Index row outlived its primary (pending entry that was
				// never sealed); skip rather than fail the whole scan.
				continue
			}
			return nil, err
		}
		out = append(out, tx)
	}
	return out, itr.Error()
}

// PendingEntry is the persisted form of one mempool entry, written by
// the node runtime's mempool-persistence task.
type PendingEntry struct {
	Tx       *types.Transaction `json:"tx"`
	GasPrice uint64             `json:"gas_price"`
	AddedAt  time.Time          `json:"added_at"`
}

// StorePendingTransactions snapshots the given mempool entries into the
// PendingTransactions family, plus a zero-length TransactionByAddress
// row per entry keyed by sender || hash, all in one atomic batch. It is
// a no-op when mempool persistence is disabled.
func (s *Store) StorePendingTransactions(entries []PendingEntry) error {
	if !s.cfg.MempoolPersistenceEnabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, e := range entries {
		b, err := marshal(e)
		if err != nil {
			return err
		}
		hash := e.Tx.Hash()
		if err := batch.Set(pendingTxKey(hash.Bytes()), b); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		if err := batch.Set(txByAddressKey(e.Tx.From.Bytes(), hash.Bytes()), []byte{}); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}

	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// LoadPendingTransactions iterates the PendingTransactions family,
// discards entries older than the configured mempool max age, and
// returns the survivors sorted by gas price descending, ready to be
// re-added to the pool on startup. Expired entries are deleted in a
// single batch as a side effect.
func (s *Store) LoadPendingTransactions(now time.Time) ([]*types.Transaction, error) {
	itr, err := s.db.Iterator(pendingTxPrefix(), prefixEnd(pendingTxPrefix()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	var live []PendingEntry
	var expired [][]byte
	for ; itr.Valid(); itr.Next() {
		var e PendingEntry
		if err := unmarshal(itr.Value(), &e); err != nil {
			itr.Close()
			return nil, err
		}
		if s.cfg.MempoolMaxAge > 0 && now.Sub(e.AddedAt) > s.cfg.MempoolMaxAge {
			k := make([]byte, len(itr.Key()))
			copy(k, itr.Key())
			expired = append(expired, k)
			continue
		}
		live = append(live, e)
	}
	if err := itr.Error(); err != nil {
		itr.Close()
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	itr.Close()

	if len(expired) > 0 {
		batch := s.db.NewBatch()
		for _, k := range expired {
			if err := batch.Delete(k); err != nil {
				batch.Close()
				return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
			}
		}
		if err := batch.Write(); err != nil {
			batch.Close()
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		batch.Close()
	}

	sort.SliceStable(live, func(i, j int) bool { return live[i].GasPrice > live[j].GasPrice })
	out := make([]*types.Transaction, len(live))
	for i, e := range live {
		out[i] = e.Tx
	}
	return out, nil
}
