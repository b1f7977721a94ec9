package consensus

import "errors"

// Sentinel errors for the PoAS consensus engine.
var (
	ErrValidatorNotFound      = errors.New("consensus: validator not found")
	ErrValidatorAlreadyExists = errors.New("consensus: validator already registered")
	ErrInsufficientStake      = errors.New("consensus: insufficient stake")
	ErrSelectionFailed        = errors.New("consensus: no active validator has non-zero selection weight")
	ErrInvalidProposer        = errors.New("consensus: block proposer is not a known active validator")
	ErrTimestampOutOfWindow   = errors.New("consensus: block timestamp outside the allowed slot window")
	ErrReorgTooDeep           = errors.New("consensus: reorg depth exceeds max_reorg_depth")
	ErrReorgBelowJustified    = errors.New("consensus: reorg common ancestor precedes the highest justified checkpoint")
	ErrEmptyReorgPath         = errors.New("consensus: reorg path has no blocks")
	ErrUnknownSlashingCond    = errors.New("consensus: unknown slashing condition")
	ErrForkedHeadRejected     = errors.New("consensus: refusing to produce on a head known to have lost a prior fork")
)
