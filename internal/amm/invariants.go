package amm

import (
	"context"
	"fmt"

	"ammCore/internal/curve"
	"ammCore/internal/ledger"
	"ammCore/internal/model"
)

// checkLiquidityChange verifies a deposit or withdraw did not reduce the
// per-share backing of either asset.
func checkLiquidityChange(ctx context.Context, tx ledger.Tx, pre model.PoolState) (model.PoolState, error) {
	post, err := readState(ctx, tx, pre.Pool)
	if err != nil {
		return post, err
	}
	if !curve.BackingNonDecreasing(pre.ReserveX, pre.Supply, post.ReserveX, post.Supply) ||
		!curve.BackingNonDecreasing(pre.ReserveY, pre.Supply, post.ReserveY, post.Supply) {
		return post, fmt.Errorf("share backing decreased from (%d, %d)/%d to (%d, %d)/%d: %w",
			pre.ReserveX, pre.ReserveY, pre.Supply, post.ReserveX, post.ReserveY, post.Supply, ErrInvariantViolated)
	}
	return post, nil
}

// checkSwap verifies a swap moved exactly amountIn into and amountOut out of
// the vaults, kept the supply and did not shrink the reserve product.
func checkSwap(ctx context.Context, tx ledger.Tx, pre model.PoolState, dir model.Direction, amountIn, amountOut uint64) (model.PoolState, error) {
	post, err := readState(ctx, tx, pre.Pool)
	if err != nil {
		return post, err
	}
	if post.Supply != pre.Supply {
		return post, fmt.Errorf("swap changed supply %d to %d: %w", pre.Supply, post.Supply, ErrInvariantViolated)
	}
	preIn, preOut := pre.Reserves(dir)
	postIn, postOut := post.Reserves(dir)
	if postIn-preIn != amountIn || preOut-postOut != amountOut {
		return post, fmt.Errorf("vaults moved (%d, %d) to (%d, %d) for %d in, %d out: %w",
			preIn, preOut, postIn, postOut, amountIn, amountOut, ErrInvariantViolated)
	}
	if curve.Product(post.ReserveX, post.ReserveY).Cmp(curve.Product(pre.ReserveX, pre.ReserveY)) < 0 {
		return post, fmt.Errorf("reserve product decreased: %w", ErrInvariantViolated)
	}
	return post, nil
}
