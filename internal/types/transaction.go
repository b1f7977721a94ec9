package types

import (
	"errors"
	"fmt"

	"github.com/orryx/poaschain/internal/crypto"
)

// TxKind identifies which variant of the Transaction sum type a
// transaction carries.
type TxKind string

const (
	TxTransfer            TxKind = "transfer"
	TxStake               TxKind = "stake"
	TxUnstake             TxKind = "unstake"
	TxDeployLiquidity     TxKind = "deploy_liquidity"
	TxWithdrawLiquidity   TxKind = "withdraw_liquidity"
	TxContractDeployment  TxKind = "contract_deployment"
	TxContractCall        TxKind = "contract_call"
)

// Transaction is the node's sum-typed transaction envelope: { from,
// nonce, tx_type, gas_price, gas_limit, timestamp, signature }. The
// tx_type variant fields are inlined with omitempty so only the
// relevant ones are present in the canonical encoding.
type Transaction struct {
	From      crypto.Address    `json:"from"`
	Nonce     uint64            `json:"nonce"`
	Kind      TxKind            `json:"kind"`
	To        *crypto.Address   `json:"to,omitempty"`
	Amount    *Amount           `json:"amount,omitempty"`
	PoolID    string            `json:"pool_id,omitempty"`
	Code      []byte            `json:"code,omitempty"`
	Args      []byte            `json:"args,omitempty"`
	Contract  *crypto.Address   `json:"contract,omitempty"`
	Data      []byte            `json:"data,omitempty"`
	GasPrice  uint64            `json:"gas_price"`
	GasLimit  uint64            `json:"gas_limit"`
	Timestamp uint64            `json:"timestamp"`
	Signature *crypto.Signature `json:"signature,omitempty"`
}

// SigningHash is the hash used for signing and signature
// verification: the canonical encoding with the signature field
// explicitly absent.
func (tx *Transaction) SigningHash() crypto.Hash {
	unsigned := *tx
	unsigned.Signature = nil
	b, err := CanonicalBytes(unsigned)
	if err != nil {
		panic("types: transaction is not serializable: " + err.Error())
	}
	return crypto.HashBytes(b)
}

// Hash is the transaction's identity hash, including the signature
// field (two otherwise-identical transactions signed differently are
// distinct transactions).
func (tx *Transaction) Hash() crypto.Hash {
	b, err := CanonicalBytes(tx)
	if err != nil {
		panic("types: transaction is not serializable: " + err.Error())
	}
	return crypto.HashBytes(b)
}

// Errors returned by ValidateBasic.
var (
	ErrMissingSignature = errors.New("types: transaction has no signature")
	ErrZeroGasPrice     = errors.New("types: gas_price must be greater than zero")
	ErrZeroGasLimit     = errors.New("types: gas_limit must be greater than zero")
	ErrZeroValue        = errors.New("types: transaction value/payload must be non-zero for this kind")
	ErrUnknownTxKind    = errors.New("types: unknown transaction kind")
)

// ValidateBasic checks the structural validity rules that do not
// require chain/world-state context: signature presence,
// positive gas price/limit, and a non-zero value or payload
// appropriate to the transaction's kind.
func (tx *Transaction) ValidateBasic() error {
	if tx.Signature == nil {
		return ErrMissingSignature
	}
	if tx.GasPrice == 0 {
		return ErrZeroGasPrice
	}
	if tx.GasLimit == 0 {
		return ErrZeroGasLimit
	}

	switch tx.Kind {
	case TxTransfer:
		if tx.To == nil || tx.Amount == nil || tx.Amount.IsZero() {
			return fmt.Errorf("%w: transfer needs a recipient and a non-zero amount", ErrZeroValue)
		}
	case TxStake, TxUnstake:
		if tx.Amount == nil || tx.Amount.IsZero() {
			return fmt.Errorf("%w: stake/unstake needs a non-zero amount", ErrZeroValue)
		}
	case TxDeployLiquidity, TxWithdrawLiquidity:
		if tx.PoolID == "" || tx.Amount == nil || tx.Amount.IsZero() {
			return fmt.Errorf("%w: liquidity ops need a pool id and a non-zero amount", ErrZeroValue)
		}
	case TxContractDeployment:
		if len(tx.Code) == 0 {
			return fmt.Errorf("%w: contract deployment needs non-empty code", ErrZeroValue)
		}
	case TxContractCall:
		if tx.Contract == nil || len(tx.Data) == 0 {
			return fmt.Errorf("%w: contract call needs a target contract and non-empty data", ErrZeroValue)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTxKind, tx.Kind)
	}
	return nil
}

// RequiredFunds is the maximum amount a transaction can debit from its
// sender's balance in gas fees: gas_limit * gas_price.
func (tx *Transaction) RequiredFunds() Amount {
	return NewAmount(0).Add(NewAmount(int64(tx.GasLimit))).MulUint64(tx.GasPrice)
}
