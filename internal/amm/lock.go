package amm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammCore/internal/ledger"
	"ammCore/internal/model"
)

// SetLock sets the lock flag of a pool. Only the pool admin may call it; a
// pool without admin rejects every caller. Setting the current value is a no-op.
func (e *Engine) SetLock(ctx context.Context, key model.PoolKey, caller common.Address, locked bool) (model.Pool, error) {
	var pool model.Pool
	err := e.execute(ctx, key, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		pool, err = loadPool(ctx, tx, key)
		if err != nil {
			return err
		}
		if pool.Admin == nil || *pool.Admin != caller {
			return fmt.Errorf("set lock by %s: %w", caller.Hex(), ErrUnauthorized)
		}
		if pool.Locked == locked {
			return nil
		}
		pool.Locked = locked
		return tx.SavePool(ctx, pool)
	})
	e.report("set_lock", key, caller, err, zap.Bool("locked", locked))
	if err != nil {
		return model.Pool{}, err
	}

	e.emit(ctx, model.EventSetLock, key.Account(), caller, model.SetLockEventData{Locked: locked})
	return pool, nil
}
