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

// DepositResult is what a deposit moved.
type DepositResult struct {
	AmountX uint64 `json:"amount_x,string"`
	AmountY uint64 `json:"amount_y,string"`
	Shares  uint64 `json:"shares,string"`

	// Bootstrap is set when the deposit seeded an empty pool.
	Bootstrap bool `json:"bootstrap"`
}

// Deposit adds liquidity for sharesOut new shares, paying at most maxX and maxY.
// Into an empty pool it deposits exactly maxX and maxY and mints the shares
// given by the configured bootstrap rule instead of sharesOut.
func (e *Engine) Deposit(ctx context.Context, key model.PoolKey, caller common.Address, sharesOut, maxX, maxY uint64) (DepositResult, error) {
	var res DepositResult
	err := e.execute(ctx, key, func(ctx context.Context, tx ledger.Tx) error {
		res = DepositResult{}
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
		if sharesOut == 0 || maxX == 0 || maxY == 0 {
			return ErrInvalidAmount
		}

		pre, err := readState(ctx, tx, pool)
		if err != nil {
			return err
		}
		if pre.Empty() {
			shares, err := curve.BootstrapShares(e.cfg.Bootstrap, maxX, maxY)
			if err != nil {
				return err
			}
			res = DepositResult{AmountX: maxX, AmountY: maxY, Shares: shares, Bootstrap: true}
		} else {
			needX, needY, err := curve.DepositAmounts(pre.ReserveX, pre.ReserveY, pre.Supply, sharesOut)
			if err != nil {
				return err
			}
			if needX > maxX || needY > maxY {
				return fmt.Errorf("need (%d, %d) over limits (%d, %d): %w", needX, needY, maxX, maxY, ErrSlippageExceeded)
			}
			res = DepositResult{AmountX: needX, AmountY: needY, Shares: sharesOut}
		}

		if err := tx.Transfer(ctx, pool.AssetX, caller, pool.Account, res.AmountX); err != nil {
			return callerLeg(err)
		}
		if err := tx.Transfer(ctx, pool.AssetY, caller, pool.Account, res.AmountY); err != nil {
			return callerLeg(err)
		}
		if err := tx.Mint(ctx, pool.ShareAsset, pool.Account, caller, res.Shares); err != nil {
			return vaultLeg(err)
		}

		_, err = checkLiquidityChange(ctx, tx, pre)
		return err
	})
	e.report("deposit", key, caller, err,
		zap.Uint64("shares_out", sharesOut),
		zap.Uint64("amount_x", res.AmountX),
		zap.Uint64("amount_y", res.AmountY),
		zap.Uint64("shares", res.Shares),
	)
	if err != nil {
		return DepositResult{}, err
	}

	e.emit(ctx, model.EventDeposit, key.Account(), caller, model.DepositEventData{
		AmountX:   res.AmountX,
		AmountY:   res.AmountY,
		Shares:    res.Shares,
		Bootstrap: res.Bootstrap,
	})
	return res, nil
}
