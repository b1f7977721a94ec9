package chain

import "errors"

// Sentinel errors for blockchain operations.
var (
	ErrBlockNotFound       = errors.New("chain: block not found")
	ErrInvalidChain        = errors.New("chain: invalid chain")
	ErrInvalidBlock        = errors.New("chain: invalid block")
	ErrNonceMismatch       = errors.New("chain: nonce mismatch")
	ErrInsufficientBalance = errors.New("chain: insufficient balance")
	ErrTransactionNotFound = errors.New("chain: transaction not found")
	ErrUnknownTxKind       = errors.New("chain: unknown transaction kind")
)
