package amm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammCore/internal/curve"
	"ammCore/internal/ledger"
	"ammCore/internal/model"
)

// WithdrawResult is what a withdraw paid out.
type WithdrawResult struct {
	AmountX uint64 `json:"amount_x,string"`
	AmountY uint64 `json:"amount_y,string"`
}

// Withdraw burns sharesIn of the caller's shares for the proportional part of
// the reserves, rounded down. At least one of minX, minY must be positive.
func (e *Engine) Withdraw(ctx context.Context, key model.PoolKey, caller common.Address, sharesIn, minX, minY uint64) (WithdrawResult, error) {
	var res WithdrawResult
	err := e.execute(ctx, key, func(ctx context.Context, tx ledger.Tx) error {
		res = WithdrawResult{}
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
		if sharesIn == 0 || (minX == 0 && minY == 0) {
			return ErrInvalidAmount
		}

		held, err := tx.BalanceOf(ctx, pool.ShareAsset, caller)
		if err != nil {
			return fmt.Errorf("share balance: %w", err)
		}
		if sharesIn > held {
			return fmt.Errorf("burn %d of %d held: %w", sharesIn, held, ErrInsufficientShares)
		}

		pre, err := readState(ctx, tx, pool)
		if err != nil {
			return err
		}
		outX, outY, err := curve.WithdrawAmounts(pre.ReserveX, pre.ReserveY, pre.Supply, sharesIn)
		if err != nil {
			return err
		}
		if outX < minX || outY < minY {
			return fmt.Errorf("out (%d, %d) under limits (%d, %d): %w", outX, outY, minX, minY, ErrSlippageExceeded)
		}
		res = WithdrawResult{AmountX: outX, AmountY: outY}

		if err := tx.Burn(ctx, pool.ShareAsset, pool.Account, caller, sharesIn); err != nil {
			return vaultLeg(err)
		}
		if err := tx.Transfer(ctx, pool.AssetX, pool.Account, caller, outX); err != nil {
			return vaultLeg(err)
		}
		if err := tx.Transfer(ctx, pool.AssetY, pool.Account, caller, outY); err != nil {
			return vaultLeg(err)
		}

		_, err = checkLiquidityChange(ctx, tx, pre)
		return err
	})
	e.report("withdraw", key, caller, err,
		zap.Uint64("shares_in", sharesIn),
		zap.Uint64("amount_x", res.AmountX),
		zap.Uint64("amount_y", res.AmountY),
	)
	if err != nil {
		return WithdrawResult{}, err
	}

	e.emit(ctx, model.EventWithdraw, key.Account(), caller, model.WithdrawEventData{
		AmountX: res.AmountX,
		AmountY: res.AmountY,
		Shares:  sharesIn,
	})
	return res, nil
}
