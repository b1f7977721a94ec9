package storage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orryx/poaschain/internal/crypto"
)

// ForkEventRecord is the durable form of one resolved fork, keyed by
// be(timestamp) || be(fork_point) so range scans come back ordered by
// time.
type ForkEventRecord struct {
	ID             string      `json:"id"`
	Timestamp      time.Time   `json:"timestamp"`
	ForkPoint      uint64      `json:"fork_point"`
	CommonAncestor crypto.Hash `json:"common_ancestor"`
	MainTip        crypto.Hash `json:"main_tip"`
	ForkTip        crypto.Hash `json:"fork_tip"`
	MainLength     uint64      `json:"main_length"`
	ForkLength     uint64      `json:"fork_length"`
	ReorgDepth     int         `json:"reorg_depth"`
	Resolution     string      `json:"resolution"`
}

// StoreForkEvent appends event to the ForkHistory family, assigning it
// an opaque id if the caller left one unset.
func (s *Store) StoreForkEvent(event ForkEventRecord) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	b, err := marshal(event)
	if err != nil {
		return err
	}
	k := forkHistoryKey(event.Timestamp.Unix(), event.ForkPoint)
	if err := s.db.SetSync(k, b); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// ForkEventsSince returns every fork event recorded at or after since,
// ordered by time ascending.
func (s *Store) ForkEventsSince(since time.Time) ([]ForkEventRecord, error) {
	start := forkHistoryKey(since.Unix(), 0)
	itr, err := s.db.Iterator(start, prefixEnd(forkHistoryPrefix()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer itr.Close()

	var out []ForkEventRecord
	for ; itr.Valid(); itr.Next() {
		var rec ForkEventRecord
		if err := unmarshal(itr.Value(), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, itr.Error()
}

// CompactForkHistory removes fork events that are both shallow
// (reorg_depth <= the configured depth threshold) and older than the
// configured recent-days window, deleting in one batch. Deep reorgs
// are kept forever regardless of age. Returns the number of events
// removed.
func (s *Store) CompactForkHistory(now time.Time) (int, error) {
	cutoff := now.Add(-time.Duration(s.cfg.ForkRecentDays) * 24 * time.Hour)
	cutoffKey := forkHistoryKey(cutoff.Unix(), 0)

	itr, err := s.db.Iterator(forkHistoryPrefix(), prefixEnd(forkHistoryPrefix()))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	var doomed [][]byte
	for ; itr.Valid(); itr.Next() {
		if bytes.Compare(itr.Key(), cutoffKey) >= 0 {
			break // ordered by time; everything from here on is recent
		}
		var rec ForkEventRecord
		if err := unmarshal(itr.Value(), &rec); err != nil {
			itr.Close()
			return 0, err
		}
		if rec.ReorgDepth <= s.cfg.ForkDepthThreshold {
			k := make([]byte, len(itr.Key()))
			copy(k, itr.Key())
			doomed = append(doomed, k)
		}
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
