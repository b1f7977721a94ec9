package storage

import (
	"fmt"

	"github.com/orryx/poaschain/internal/crypto"
)

// Prune discards state snapshots for block numbers below
// current_block - keep_blocks when the store runs in Pruned mode; in
// Archive mode it keeps everything and returns 0. Returns the number
// of snapshots removed.
func (s *Store) Prune(currentBlock uint64) (int, error) {
	if s.cfg.Mode == Archive {
		return 0, nil
	}
	if currentBlock <= s.cfg.KeepBlocks {
		return 0, nil
	}
	cutoff := currentBlock - s.cfg.KeepBlocks

	itr, err := s.db.Iterator(stateKey(0), stateKey(cutoff))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	var doomed [][]byte
	for ; itr.Valid(); itr.Next() {
		k := make([]byte, len(itr.Key()))
		copy(k, itr.Key())
		doomed = append(doomed, k)
	}
	if err := itr.Error(); err != nil {
		itr.Close()
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	itr.Close()

	if len(doomed) == 0 {
		return 0, nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, k := range doomed {
		if err := batch.Delete(k); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}
	if err := batch.Write(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return len(doomed), nil
}

// SetContractCode stores the deployed code bytes for addr.
func (s *Store) SetContractCode(addr crypto.Address, code []byte) error {
	if err := s.db.SetSync(contractCodeKey(addr.Bytes()), code); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// GetContractCode returns the code stored for addr, or ErrNotFound.
func (s *Store) GetContractCode(addr crypto.Address) ([]byte, error) {
	raw, err := s.db.Get(contractCodeKey(addr.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return raw, nil
}

// SetContractStorage writes one storage slot for addr.
func (s *Store) SetContractStorage(addr crypto.Address, slot crypto.Hash, value []byte) error {
	if err := s.db.SetSync(contractStorageKey(addr.Bytes(), slot.Bytes()), value); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// GetContractStorage reads one storage slot for addr, or ErrNotFound.
func (s *Store) GetContractStorage(addr crypto.Address, slot crypto.Hash) ([]byte, error) {
	raw, err := s.db.Get(contractStorageKey(addr.Bytes(), slot.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	return raw, nil
}
