package types

import "github.com/orryx/poaschain/internal/crypto"

// ReceiptStatus is the outcome of executing a transaction.
type ReceiptStatus string

const (
	ReceiptSuccess  ReceiptStatus = "success"
	ReceiptFailed   ReceiptStatus = "failed"
	ReceiptReverted ReceiptStatus = "reverted"
)

// Log is a single event emitted during execution. The EVM integration
// (out of scope here) defines the opcode-level shape; this node only
// stores and indexes whatever bytes it is given.
type Log struct {
	Address crypto.Address `json:"address"`
	Topics  []crypto.Hash  `json:"topics"`
	Data    []byte         `json:"data"`
}

// Receipt records the outcome of executing one transaction.
type Receipt struct {
	TxHash          crypto.Hash     `json:"tx_hash"`
	BlockNumber     uint64          `json:"block_number"`
	From            crypto.Address  `json:"from"`
	To              *crypto.Address `json:"to,omitempty"`
	GasUsed         uint64          `json:"gas_used"`
	Status          ReceiptStatus   `json:"status"`
	ContractAddress *crypto.Address `json:"contract_address,omitempty"`
	Logs            []Log           `json:"logs"`
}
