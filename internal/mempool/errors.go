package mempool

import "errors"

var (
	// ErrPoolFull is returned when the pool is at capacity and no
	// pending transaction could be evicted to make room (eviction takes
	// the lowest-priced pending entry whatever the incoming price).
	ErrPoolFull = errors.New("mempool: pool full")
	// ErrDuplicateTransaction is returned when a transaction with the
	// same hash is already tracked.
	ErrDuplicateTransaction = errors.New("mempool: duplicate transaction")
	// ErrTooManyFromSender is returned when a sender already has
	// max_per_account transactions tracked.
	ErrTooManyFromSender = errors.New("mempool: too many pending transactions from sender")
	// ErrGasPriceTooLow is returned when a transaction's gas price is
	// below the pool's configured minimum.
	ErrGasPriceTooLow = errors.New("mempool: gas price below minimum")
	// ErrNonceTooLow is returned when a transaction's nonce is below
	// the account's current on-chain nonce; such a transaction can
	// never become includable and is rejected outright.
	ErrNonceTooLow = errors.New("mempool: nonce below current account nonce")
)
