package amm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"ammCore/internal/ledger"
	"ammCore/internal/model"
)

// State returns the pool record with its current reserves and share supply.
func (e *Engine) State(ctx context.Context, key model.PoolKey) (model.PoolState, error) {
	var state model.PoolState
	err := e.view(ctx, key, func(ctx context.Context, tx ledger.Tx) error {
		pool, err := loadPool(ctx, tx, key)
		if err != nil {
			return err
		}
		state, err = readState(ctx, tx, pool)
		return err
	})
	return state, err
}

// QuoteSwap returns the output a swap of amountIn would produce now.
func (e *Engine) QuoteSwap(ctx context.Context, key model.PoolKey, dir model.Direction, amountIn uint64) (uint64, error) {
	state, err := e.State(ctx, key)
	if err != nil {
		return 0, err
	}
	if state.Pool.Locked {
		return 0, ErrPoolLocked
	}
	if amountIn == 0 {
		return 0, ErrInvalidAmount
	}
	return quote(state, dir, amountIn)
}

// ShareBalance returns the LP shares held by account.
func (e *Engine) ShareBalance(ctx context.Context, key model.PoolKey, account common.Address) (uint64, error) {
	var held uint64
	err := e.view(ctx, key, func(ctx context.Context, tx ledger.Tx) error {
		pool, err := loadPool(ctx, tx, key)
		if err != nil {
			return err
		}
		held, err = tx.BalanceOf(ctx, pool.ShareAsset, account)
		return err
	})
	return held, err
}
