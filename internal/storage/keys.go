// Package storage implements the durable, multi-family key/value
// layer: blocks, receipts, state snapshots, pending-transaction and
// fork-event persistence, and chain metrics. Range queries go through
// dedicated secondary-index families, never full-table scans of a
// primary family; every write spanning two or more families happens in
// a single atomic batch.
package storage

import "encoding/binary"

// family is a one-byte prefix distinguishing each column family
// within the single underlying KV namespace, since cometbft-db
// exposes one flat keyspace per database handle.
type family byte

const (
	famBlocks              family = 'B'
	famBlockHashes         family = 'H' // number -> hash
	famBlockNumbers        family = 'N' // hash -> number
	famTransactions        family = 'T'
	famReceipts            family = 'R'
	famState               family = 'S' // block_number -> state snapshot
	famContractCode        family = 'C'
	famContractStorage     family = 'c'
	famValidators          family = 'V'
	famMeta                family = 'M'
	famPendingTransactions family = 'P'
	famForkHistory         family = 'F'
	famChainMetrics        family = 'm'
	famTransactionByAddr   family = 'a'
	famMetricsByTime       family = 't'
)

func be64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func key(f family, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 1, n)
	out[0] = byte(f)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func blockKey(hash []byte) []byte             { return key(famBlocks, hash) }
func blockHashKey(number uint64) []byte       { return key(famBlockHashes, be64(number)) }
func blockNumberKey(hash []byte) []byte       { return key(famBlockNumbers, hash) }
func transactionKey(hash []byte) []byte       { return key(famTransactions, hash) }
func receiptKey(hash []byte) []byte           { return key(famReceipts, hash) }
func stateKey(number uint64) []byte           { return key(famState, be64(number)) }
func contractCodeKey(addr []byte) []byte      { return key(famContractCode, addr) }
func contractStorageKey(addr, slot []byte) []byte {
	return key(famContractStorage, addr, slot)
}
func validatorSetKey() []byte { return key(famValidators, []byte("current")) }
func metaKey(name string) []byte { return key(famMeta, []byte(name)) }
func pendingTxKey(hash []byte) []byte { return key(famPendingTransactions, hash) }
func forkHistoryKey(timestampUnix int64, forkPoint uint64) []byte {
	return key(famForkHistory, be64(uint64(timestampUnix)), be64(forkPoint))
}
func chainMetricsKey(number uint64) []byte { return key(famChainMetrics, be64(number)) }
func txByAddressKey(addr, hash []byte) []byte {
	return key(famTransactionByAddr, addr, hash)
}
func metricsByTimeKey(hourBucket int64, number uint64) []byte {
	return key(famMetricsByTime, be64(uint64(hourBucket)), be64(number))
}

// prefixEnd returns the smallest key strictly greater than every key
// carrying prefix, for use as an iterator's exclusive upper bound.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff; nil means "no upper bound"
}

// forkHistoryPrefix / metricsByTimePrefix bound range scans over
// their respective secondary-index families.
func forkHistoryPrefix() []byte      { return []byte{byte(famForkHistory)} }
func metricsByTimePrefix() []byte    { return []byte{byte(famMetricsByTime)} }
func pendingTxPrefix() []byte        { return []byte{byte(famPendingTransactions)} }
func chainMetricsPrefix() []byte     { return []byte{byte(famChainMetrics)} }
