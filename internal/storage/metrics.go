package storage

import (
	"fmt"
	"time"
)

// ChainMetricsSnapshot is one point-in-time observation of chain
// health, stored in the ChainMetrics family keyed by block number and
// mirrored into MetricsByTime under an hour-bucket secondary key.
type ChainMetricsSnapshot struct {
	BlockNumber      uint64    `json:"block_number"`
	Timestamp        time.Time `json:"timestamp"`
	BlockTimeSeconds float64   `json:"block_time_seconds"`
	GasUsed          uint64    `json:"gas_used"`
	GasLimit         uint64    `json:"gas_limit"`
	TxCount          int       `json:"tx_count"`
	TxThroughput     float64   `json:"tx_throughput"`
	FinalityLag      uint64    `json:"finality_lag"`
	ValidatorCount   int       `json:"validator_count"`
	PendingTxCount   int       `json:"pending_tx_count"`
}

// StoreChainMetrics writes m when the configured snapshot interval is
// non-zero and n falls on it; both the ChainMetrics row and the
// MetricsByTime secondary row go in one atomic batch.
func (s *Store) StoreChainMetrics(n uint64, m ChainMetricsSnapshot) error {
	interval := s.cfg.MetricsSnapshotInterval
	if interval == 0 || n%interval != 0 {
		return nil
	}

	m.BlockNumber = n
	b, err := marshal(m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(chainMetricsKey(n), b); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	hourBucket := m.Timestamp.Unix() / 3600
	if err := batch.Set(metricsByTimeKey(hourBucket, n), b); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// GetLatestMetrics scans back from latestBlock for the most recent
// snapshot via point lookups on the snapshot interval, falling back to
// a reverse scan of the ChainMetrics family when the interval walk
// finds nothing (e.g. after the interval was reconfigured).
func (s *Store) GetLatestMetrics(latestBlock uint64) (*ChainMetricsSnapshot, error) {
	if interval := s.cfg.MetricsSnapshotInterval; interval > 0 {
		n := latestBlock - latestBlock%interval
		for i := 0; i < 64; i++ {
			raw, err := s.db.Get(chainMetricsKey(n))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
			}
			if raw != nil {
				var m ChainMetricsSnapshot
				if err := unmarshal(raw, &m); err != nil {
					return nil, err
				}
				return &m, nil
			}
			if n < interval {
				break
			}
			n -= interval
		}
	}

	itr, err := s.db.ReverseIterator(chainMetricsPrefix(), prefixEnd(chainMetricsPrefix()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer itr.Close()
	if !itr.Valid() {
		return nil, ErrNotFound
	}
	var m ChainMetricsSnapshot
	if err := unmarshal(itr.Value(), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PruneMetrics removes snapshots older than the configured retention
// window from both ChainMetrics and MetricsByTime, in one batch.
// Returns the number of snapshots removed.
func (s *Store) PruneMetrics(now time.Time) (int, error) {
	if s.cfg.MetricsRetentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-time.Duration(s.cfg.MetricsRetentionDays) * 24 * time.Hour)

	itr, err := s.db.Iterator(chainMetricsPrefix(), prefixEnd(chainMetricsPrefix()))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	type doomedRow struct {
		primary   []byte
		secondary []byte
	}
	var doomed []doomedRow
	for ; itr.Valid(); itr.Next() {
		var m ChainMetricsSnapshot
		if err := unmarshal(itr.Value(), &m); err != nil {
			itr.Close()
			return 0, err
		}
		if m.Timestamp.Before(cutoff) {
			k := make([]byte, len(itr.Key()))
			copy(k, itr.Key())
			doomed = append(doomed, doomedRow{
				primary:   k,
				secondary: metricsByTimeKey(m.Timestamp.Unix()/3600, m.BlockNumber),
			})
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
	for _, row := range doomed {
		if err := batch.Delete(row.primary); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		if err := batch.Delete(row.secondary); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}
	if err := batch.Write(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return len(doomed), nil
}
