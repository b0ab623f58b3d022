package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ammCore/internal/model"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("balance overflow")
	ErrUnknownAsset        = errors.New("unknown asset")
	ErrAssetExists         = errors.New("asset already exists")
	ErrMintAuthority       = errors.New("not the mint authority")
	ErrTxDone              = errors.New("transaction already finished")
	// ErrConflict marks a transaction that lost a race and may be retried.
	ErrConflict = errors.New("transaction conflict")
)

// Accounts is the asset side of a ledger transaction.
type Accounts interface {
	BalanceOf(ctx context.Context, asset, account common.Address) (uint64, error)
	SupplyOf(ctx context.Context, asset common.Address) (uint64, error)
	Transfer(ctx context.Context, asset, from, to common.Address, amount uint64) error
	Mint(ctx context.Context, asset, authority, to common.Address, amount uint64) error
	Burn(ctx context.Context, asset, authority, from common.Address, amount uint64) error
	// CreateAsset registers an asset whose supply only authority may change.
	CreateAsset(ctx context.Context, asset, authority common.Address) error
}

// Pools stores pool records keyed by pool account.
type Pools interface {
	LoadPool(ctx context.Context, account common.Address) (model.Pool, bool, error)
	SavePool(ctx context.Context, pool model.Pool) error
}

// Tx is one atomic unit of work. Nothing it writes is visible to other
// transactions before Commit. Rollback after Commit is a no-op.
type Tx interface {
	Accounts
	Pools
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Ledger opens transactions. Transactions opened with the same key never overlap.
type Ledger interface {
	Begin(ctx context.Context, key common.Address) (Tx, error)
}

const (
	issueRetries = 10
	issueBackoff = 5 * time.Millisecond
)

// Issue creates asset with authority if it does not exist yet and mints amount
// to to. Conflicting transactions are retried.
func Issue(ctx context.Context, l Ledger, asset, authority, to common.Address, amount uint64) error {
	return Retry(ctx, issueRetries, issueBackoff, nil, func(ctx context.Context) error {
		tx, err := l.Begin(ctx, asset)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := tx.CreateAsset(ctx, asset, authority); err != nil && !errors.Is(err, ErrAssetExists) {
			return err
		}
		if err := tx.Mint(ctx, asset, authority, to, amount); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}
