package amm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammCore/internal/curve"
	"ammCore/internal/ledger"
	"ammCore/internal/model"
)

// SwapResult is what a swap moved.
type SwapResult struct {
	AmountIn  uint64 `json:"amount_in,string"`
	AmountOut uint64 `json:"amount_out,string"`
}

// Swap sells amountIn of the input asset for at least minOut of the other.
// The full input enters the pool; the fee stays in the reserves.
func (e *Engine) Swap(ctx context.Context, key model.PoolKey, caller common.Address, dir model.Direction, amountIn, minOut uint64) (SwapResult, error) {
	var res SwapResult
	err := e.execute(ctx, key, func(ctx context.Context, tx ledger.Tx) error {
		res = SwapResult{}
		pool, err := loadPool(ctx, tx, key)
		if err != nil {
			return err
		}
		if pool.Locked {
			return ErrPoolLocked
		}
		if err := checkCaller(pool, caller); err != nil {
			return err
		}
		if amountIn == 0 || minOut == 0 {
			return ErrInvalidAmount
		}

		pre, err := readState(ctx, tx, pool)
		if err != nil {
			return err
		}
		out, err := quote(pre, dir, amountIn)
		if err != nil {
			return err
		}
		if out < minOut {
			return fmt.Errorf("out %d under min %d: %w", out, minOut, ErrSlippageExceeded)
		}
		res = SwapResult{AmountIn: amountIn, AmountOut: out}

		assetIn, assetOut := dir.Assets(pool)
		if err := tx.Transfer(ctx, assetIn, caller, pool.Account, amountIn); err != nil {
			return callerLeg(err)
		}
		if err := tx.Transfer(ctx, assetOut, pool.Account, caller, out); err != nil {
			return vaultLeg(err)
		}

		_, err = checkSwap(ctx, tx, pre, dir, amountIn, out)
		return err
	})
	e.report("swap", key, caller, err,
		zap.Stringer("direction", dir),
		zap.Uint64("amount_in", amountIn),
		zap.Uint64("min_out", minOut),
		zap.Uint64("amount_out", res.AmountOut),
	)
	if err != nil {
		return SwapResult{}, err
	}

	e.emit(ctx, model.EventSwap, key.Account(), caller, model.SwapEventData{
		Direction: dir,
		AmountIn:  res.AmountIn,
		AmountOut: res.AmountOut,
	})
	return res, nil
}

// quote prices a swap against state without touching the ledger.
func quote(state model.PoolState, dir model.Direction, amountIn uint64) (uint64, error) {
	if state.Empty() {
		return 0, ErrEmptyPool
	}
	reserveIn, reserveOut := state.Reserves(dir)
	out, err := curve.SwapOut(reserveIn, reserveOut, amountIn, state.Pool.FeeBps)
	if errors.Is(err, curve.ErrInvalidFee) {
		return 0, fmt.Errorf("stored fee %d bps: %w", state.Pool.FeeBps, ErrInvariantViolated)
	}
	return out, err
}
