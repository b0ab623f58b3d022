package amm

import (
	"errors"
	"fmt"

	"ammCore/internal/curve"
	"ammCore/internal/ledger"
)

var (
	ErrPoolLocked         = errors.New("pool is locked")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrSlippageExceeded   = errors.New("slippage exceeded")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrEmptyPool          = errors.New("pool is empty")
	ErrDuplicateAsset     = errors.New("pool assets must differ")
	ErrAlreadyExists      = errors.New("pool already exists")
	ErrUnauthorized       = errors.New("unauthorized")

	ErrInsufficientLiquidity = curve.ErrInsufficientLiquidity
	ErrOverflow              = curve.ErrOverflow
	ErrInvalidFee            = curve.ErrInvalidFee
	ErrInvariantViolated     = curve.ErrInvariantViolated

	// ErrPoolNotFound is returned for operations on an identity that was never initialized.
	ErrPoolNotFound = errors.New("pool not found")
)

// Kind classifies an operation error.
type Kind int

const (
	KindNone Kind = iota
	KindPoolLocked
	KindInvalidAmount
	KindSlippageExceeded
	KindInsufficientShares
	KindInsufficientLiquidity
	KindEmptyPool
	KindOverflow
	KindDuplicateAsset
	KindInvalidFee
	KindAlreadyExists
	KindUnauthorized
	KindInvariantViolated
	KindPoolNotFound
	// KindOther covers ledger, storage and context failures passed through unchanged.
	KindOther
)

var kindErrors = []struct {
	kind Kind
	err  error
}{
	// Most severe first: a wrapped ledger overflow also carries the cause.
	{KindInvariantViolated, ErrInvariantViolated},
	{KindOverflow, ErrOverflow},
	{KindPoolLocked, ErrPoolLocked},
	{KindInvalidAmount, ErrInvalidAmount},
	{KindSlippageExceeded, ErrSlippageExceeded},
	{KindInsufficientShares, ErrInsufficientShares},
	{KindInsufficientLiquidity, ErrInsufficientLiquidity},
	{KindEmptyPool, ErrEmptyPool},
	{KindDuplicateAsset, ErrDuplicateAsset},
	{KindInvalidFee, ErrInvalidFee},
	{KindAlreadyExists, ErrAlreadyExists},
	{KindUnauthorized, ErrUnauthorized},
	{KindPoolNotFound, ErrPoolNotFound},
}

// KindOf returns the kind of err, KindNone for nil.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindErrors {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindOther
}

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindPoolLocked:
		return "PoolLocked"
	case KindInvalidAmount:
		return "InvalidAmount"
	case KindSlippageExceeded:
		return "SlippageExceeded"
	case KindInsufficientShares:
		return "InsufficientShares"
	case KindInsufficientLiquidity:
		return "InsufficientLiquidity"
	case KindEmptyPool:
		return "EmptyPool"
	case KindOverflow:
		return "Overflow"
	case KindDuplicateAsset:
		return "DuplicateAsset"
	case KindInvalidFee:
		return "InvalidFee"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindUnauthorized:
		return "Unauthorized"
	case KindInvariantViolated:
		return "InvariantViolated"
	case KindPoolNotFound:
		return "PoolNotFound"
	default:
		return "Other"
	}
}

// IsFatal reports whether err means the pool state is corrupt.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolated)
}

// callerLeg maps a ledger failure on a leg paid by the caller.
func callerLeg(err error) error {
	if errors.Is(err, ledger.ErrOverflow) {
		return fmt.Errorf("%w: %w", ErrOverflow, err)
	}
	return err
}

// vaultLeg maps a ledger failure on a leg paid by the pool. The vaults always
// cover computed outputs, so a shortfall means corrupt state.
func vaultLeg(err error) error {
	if errors.Is(err, ledger.ErrInsufficientBalance) || errors.Is(err, ledger.ErrMintAuthority) {
		return fmt.Errorf("%w: %w", ErrInvariantViolated, err)
	}
	return callerLeg(err)
}
