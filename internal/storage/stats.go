package storage

import "fmt"

// familyNames maps each family prefix to its display name for the db
// stats command.
var familyNames = []struct {
	fam  family
	name string
}{
	{famBlocks, "blocks"},
	{famBlockHashes, "block_hashes"},
	{famBlockNumbers, "block_numbers"},
	{famTransactions, "transactions"},
	{famReceipts, "receipts"},
	{famState, "state"},
	{famContractCode, "contract_code"},
	{famContractStorage, "contract_storage"},
	{famValidators, "validators"},
	{famMeta, "meta"},
	{famPendingTransactions, "pending_transactions"},
	{famForkHistory, "fork_history"},
	{famChainMetrics, "chain_metrics"},
	{famTransactionByAddr, "transaction_by_address"},
	{famMetricsByTime, "metrics_by_time"},
}

// FamilyCounts walks every family and returns its key count, in a
// stable display order.
func (s *Store) FamilyCounts() ([]string, map[string]int, error) {
	order := make([]string, 0, len(familyNames))
	counts := make(map[string]int, len(familyNames))
	for _, f := range familyNames {
		order = append(order, f.name)
		prefix := []byte{byte(f.fam)}
		itr, err := s.db.Iterator(prefix, prefixEnd(prefix))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		n := 0
		for ; itr.Valid(); itr.Next() {
			n++
		}
		if err := itr.Error(); err != nil {
			itr.Close()
			return nil, nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		itr.Close()
		counts[f.name] = n
	}
	return order, counts, nil
}
