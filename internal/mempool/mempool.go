// Package mempool implements a priced, nonce-ordered pending-transaction
// pool: transactions whose nonce matches the sender's current on-chain
// nonce are Pending and eligible for block inclusion; transactions ahead
// of the current nonce are Queued until promoted.
package mempool

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/orryx/poaschain/internal/crypto"
	"github.com/orryx/poaschain/internal/types"
)

// TxStatus is the admission status of a pool entry.
type TxStatus int

const (
	StatusPending TxStatus = iota
	StatusQueued
)

func (s TxStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// PoolConfig bounds the pool's admission and retention behavior.
type PoolConfig struct {
	MaxSize           int
	MaxPerAccount     int
	MinGasPrice       uint64
	MaxAge            time.Duration
	EnableReplacement bool
}

// DefaultPoolConfig is the configuration a pool runs with when the
// operator tunes nothing.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:           10_000,
		MaxPerAccount:     100,
		MinGasPrice:       1,
		MaxAge:            time.Hour,
		EnableReplacement: true,
	}
}

// PoolMetrics is a point-in-time counter snapshot.
type PoolMetrics struct {
	TotalTransactions int
	PendingCount      int
	QueuedCount       int
	TotalAdded        uint64
	TotalRemoved      uint64
	TotalReplaced     uint64
}

type entry struct {
	tx      *types.Transaction
	addedAt time.Time
	status  TxStatus
}

// Mempool is a mutex-guarded, priced, nonce-ordered transaction pool.
// add and remove* are serialized on the pool lock; GetPending takes a
// read lock and always observes a fully-applied state, never a
// half-applied mutation.
type Mempool struct {
	mu     sync.RWMutex
	config PoolConfig

	pending  map[uint64]map[crypto.Hash]*entry          // gas_price -> hash -> entry
	queued   map[crypto.Address]map[uint64]*entry        // sender -> nonce -> entry
	byHash   map[crypto.Hash]*entry
	bySender map[crypto.Address]int

	metrics PoolMetrics
}

// New returns an empty pool configured with config.
func New(config PoolConfig) *Mempool {
	return &Mempool{
		config:   config,
		pending:  make(map[uint64]map[crypto.Hash]*entry),
		queued:   make(map[crypto.Address]map[uint64]*entry),
		byHash:   make(map[crypto.Hash]*entry),
		bySender: make(map[crypto.Address]int),
	}
}

// Add admits tx into the pool, classifying it Pending or Queued relative
// to currentNonce. Admission order: validate shape, reject duplicates
// (unless replacement-by-fee applies and the new fee clears the bump),
// evict-on-full, per-account limit, minimum gas price, then classify.
func (m *Mempool) Add(tx *types.Transaction, currentNonce uint64) error {
	if err := tx.ValidateBasic(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hash := tx.Hash()
	if _, ok := m.byHash[hash]; ok {
		return ErrDuplicateTransaction
	}

	if replaced, err := m.tryReplace(tx); err != nil {
		return err
	} else if replaced {
		return nil
	}

	if len(m.byHash) >= m.config.MaxSize {
		if !m.evictLowestGasPrice() {
			return ErrPoolFull
		}
	}

	if m.bySender[tx.From] >= m.config.MaxPerAccount {
		return ErrTooManyFromSender
	}

	if tx.GasPrice < m.config.MinGasPrice {
		return ErrGasPriceTooLow
	}

	if tx.Nonce < currentNonce {
		return ErrNonceTooLow
	}

	status := StatusQueued
	if tx.Nonce == currentNonce {
		status = StatusPending
	}

	e := &entry{tx: tx, addedAt: time.Now(), status: status}
	m.insert(hash, e)
	return nil
}

// tryReplace implements replacement-by-fee: a new transaction sharing
// (from, nonce) with an existing pending or queued entry replaces it
// when gas_price >= existing * 1.1 (integer math); otherwise the add is
// rejected as a duplicate. Returns (false, nil) when no (from, nonce)
// collision exists, so the normal admission path proceeds.
func (m *Mempool) tryReplace(tx *types.Transaction) (bool, error) {
	if !m.config.EnableReplacement {
		return false, nil
	}

	existing := m.findBySenderNonce(tx.From, tx.Nonce)
	if existing == nil {
		return false, nil
	}

	// existing.gas_price * 1.1 in integer math: (price*11)/10.
	threshold := (existing.tx.GasPrice * 11) / 10
	if tx.GasPrice < threshold {
		return false, ErrDuplicateTransaction
	}

	oldHash := existing.tx.Hash()
	m.removeLocked(oldHash)
	m.metrics.TotalReplaced++

	status := existing.status
	e := &entry{tx: tx, addedAt: time.Now(), status: status}
	m.insert(tx.Hash(), e)
	return true, nil
}

func (m *Mempool) findBySenderNonce(sender crypto.Address, nonce uint64) *entry {
	if nonceMap, ok := m.queued[sender]; ok {
		if e, ok := nonceMap[nonce]; ok {
			return e
		}
	}
	for _, txMap := range m.pending {
		for _, e := range txMap {
			if e.tx.From == sender && e.tx.Nonce == nonce {
				return e
			}
		}
	}
	return nil
}

// insert places e into the pending or queued structure per its status
// and updates the auxiliary indices and counters. Caller must hold the
// write lock.
func (m *Mempool) insert(hash crypto.Hash, e *entry) {
	switch e.status {
	case StatusPending:
		bucket, ok := m.pending[e.tx.GasPrice]
		if !ok {
			bucket = make(map[crypto.Hash]*entry)
			m.pending[e.tx.GasPrice] = bucket
		}
		bucket[hash] = e
		m.metrics.PendingCount++
	case StatusQueued:
		bucket, ok := m.queued[e.tx.From]
		if !ok {
			bucket = make(map[uint64]*entry)
			m.queued[e.tx.From] = bucket
		}
		bucket[e.tx.Nonce] = e
		m.metrics.QueuedCount++
	}

	m.byHash[hash] = e
	m.bySender[e.tx.From]++
	m.metrics.TotalAdded++
	m.metrics.TotalTransactions = len(m.byHash)
}

// GetPending returns pending transactions ordered by descending gas
// price (ties broken by ascending transaction hash for a deterministic,
// stable-iteration-independent order), selecting until either maxGas or
// maxCount is reached. A transaction whose gas_limit alone would
// overflow the remaining budget is skipped, not a stop signal: cheaper
// transactions considered afterward may still fit.
func (m *Mempool) GetPending(maxGas uint64, maxCount int) []*types.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prices := make([]uint64, 0, len(m.pending))
	for price := range m.pending {
		prices = append(prices, price)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })

	out := make([]*types.Transaction, 0, maxCount)
	var totalGas uint64

	for _, price := range prices {
		bucket := m.pending[price]
		hashes := make([]crypto.Hash, 0, len(bucket))
		for h := range bucket {
			hashes = append(hashes, h)
		}
		sort.Slice(hashes, func(i, j int) bool {
			return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
		})

		for _, h := range hashes {
			e := bucket[h]
			if totalGas+e.tx.GasLimit > maxGas {
				continue
			}
			if len(out) >= maxCount {
				return out
			}
			totalGas += e.tx.GasLimit
			out = append(out, e.tx)
		}
	}

	return out
}

// Remove drops the transaction with the given hash from whichever
// structure holds it, returning it, or nil if absent.
func (m *Mempool) Remove(hash crypto.Hash) *types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(hash)
}

func (m *Mempool) removeLocked(hash crypto.Hash) *types.Transaction {
	e, ok := m.byHash[hash]
	if !ok {
		return nil
	}
	delete(m.byHash, hash)

	if count := m.bySender[e.tx.From]; count <= 1 {
		delete(m.bySender, e.tx.From)
	} else {
		m.bySender[e.tx.From] = count - 1
	}

	switch e.status {
	case StatusPending:
		if bucket, ok := m.pending[e.tx.GasPrice]; ok {
			delete(bucket, hash)
			if len(bucket) == 0 {
				delete(m.pending, e.tx.GasPrice)
			}
			m.metrics.PendingCount--
		}
	case StatusQueued:
		if bucket, ok := m.queued[e.tx.From]; ok {
			delete(bucket, e.tx.Nonce)
			if len(bucket) == 0 {
				delete(m.queued, e.tx.From)
			}
			m.metrics.QueuedCount--
		}
	}

	m.metrics.TotalRemoved++
	m.metrics.TotalTransactions = len(m.byHash)
	return e.tx
}

// PendingSnapshot is one pending entry as exported to the persistence
// layer: the transaction plus when it was admitted, so re-admission
// after a restart can still honor max_age.
type PendingSnapshot struct {
	Tx      *types.Transaction
	AddedAt time.Time
}

// SnapshotPending returns a copy of every pending entry, highest gas
// price first, for the periodic mempool-persistence task.
func (m *Mempool) SnapshotPending() []PendingSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prices := make([]uint64, 0, len(m.pending))
	for price := range m.pending {
		prices = append(prices, price)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })

	var out []PendingSnapshot
	for _, price := range prices {
		for _, e := range m.pending[price] {
			out = append(out, PendingSnapshot{Tx: e.tx, AddedAt: e.addedAt})
		}
	}
	return out
}

// PromotionPredicate reports whether sender's lowest-nonce queued entry
// (at the given nonce) now equals the sender's current on-chain nonce
// and should move from Queued to Pending. The pool never queries chain
// state itself; the caller supplies this decision.
type PromotionPredicate func(sender crypto.Address, nonce uint64) bool

// RemoveIncluded removes every transaction in txs (as included in a
// just-applied block), then attempts to promote, for each sender left
// with queued entries, its lowest-nonce queued entry when promote
// reports that entry's nonce now matches the sender's current nonce.
func (m *Mempool) RemoveIncluded(txs []*types.Transaction, promote PromotionPredicate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range txs {
		m.removeLocked(tx.Hash())
	}

	senders := make([]crypto.Address, 0, len(m.queued))
	for sender := range m.queued {
		senders = append(senders, sender)
	}

	for _, sender := range senders {
		nonceMap, ok := m.queued[sender]
		if !ok || len(nonceMap) == 0 {
			continue
		}
		lowest := lowestNonce(nonceMap)
		if promote == nil || !promote(sender, lowest) {
			continue
		}

		e := nonceMap[lowest]
		delete(nonceMap, lowest)
		if len(nonceMap) == 0 {
			delete(m.queued, sender)
		}
		m.metrics.QueuedCount--

		e.status = StatusPending
		e.addedAt = time.Now()
		bucket, ok := m.pending[e.tx.GasPrice]
		if !ok {
			bucket = make(map[crypto.Hash]*entry)
			m.pending[e.tx.GasPrice] = bucket
		}
		bucket[e.tx.Hash()] = e
		m.metrics.PendingCount++
	}
}

func lowestNonce(nonceMap map[uint64]*entry) uint64 {
	first := true
	var lowest uint64
	for n := range nonceMap {
		if first || n < lowest {
			lowest = n
			first = false
		}
	}
	return lowest
}

// Prune drops every entry older than config.MaxAge.
func (m *Mempool) Prune() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var stale []crypto.Hash
	for hash, e := range m.byHash {
		if now.Sub(e.addedAt) > m.config.MaxAge {
			stale = append(stale, hash)
		}
	}
	for _, hash := range stale {
		m.removeLocked(hash)
	}
}

// Get returns the transaction with the given hash, or nil if absent.
func (m *Mempool) Get(hash crypto.Hash) *types.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.byHash[hash]; ok {
		return e.tx
	}
	return nil
}

// GetBySender returns every tracked transaction (pending and queued)
// from sender.
func (m *Mempool) GetBySender(sender crypto.Address) []*types.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Transaction
	for _, e := range m.byHash {
		if e.tx.From == sender {
			out = append(out, e.tx)
		}
	}
	return out
}

// PendingCount reports the current number of Pending entries.
func (m *Mempool) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics.PendingCount
}

// QueuedCount reports the current number of Queued entries.
func (m *Mempool) QueuedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics.QueuedCount
}

// Metrics returns a snapshot of the pool's counters.
func (m *Mempool) Metrics() PoolMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// Clear empties the pool entirely, resetting all counters.
func (m *Mempool) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[uint64]map[crypto.Hash]*entry)
	m.queued = make(map[crypto.Address]map[uint64]*entry)
	m.byHash = make(map[crypto.Hash]*entry)
	m.bySender = make(map[crypto.Address]int)
	m.metrics = PoolMetrics{}
}

// evictLowestGasPrice removes one pending entry at the lowest tracked
// gas price to free a slot for admission at capacity. Eviction is
// unconditional on the incoming price, matching the lowest-gas-price
// entry being evicted regardless of how it compares to what's being
// admitted; it only fails when the pool holds no pending entries to
// evict (queued-only pools can't free a slot this way).
func (m *Mempool) evictLowestGasPrice() bool {
	if len(m.pending) == 0 {
		return false
	}
	var lowest uint64
	first := true
	for price := range m.pending {
		if first || price < lowest {
			lowest = price
			first = false
		}
	}
	bucket := m.pending[lowest]
	for hash := range bucket {
		m.removeLocked(hash)
		return true
	}
	return false
}
