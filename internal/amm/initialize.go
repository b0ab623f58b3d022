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

// InitializeParams describes a new pool.
type InitializeParams struct {
	Seed   uint64
	AssetX common.Address
	AssetY common.Address
	FeeBps uint16
	// Admin may toggle the lock. A pool without admin can never be locked.
	Admin *common.Address
	// Caller is recorded on the event only.
	Caller common.Address
}

// Key returns the identity of the pool to create.
func (p InitializeParams) Key() model.PoolKey {
	return model.PoolKey{AssetX: p.AssetX, AssetY: p.AssetY, Seed: p.Seed}
}

// Initialize creates an unlocked, empty pool and its LP share asset.
func (e *Engine) Initialize(ctx context.Context, params InitializeParams) (model.Pool, error) {
	key := params.Key()
	pool, err := e.initialize(ctx, key, params)
	e.report("initialize", key, params.Caller, err, zap.Uint16("fee_bps", params.FeeBps))
	if err != nil {
		return model.Pool{}, err
	}

	e.emit(ctx, model.EventInitialize, pool.Account, params.Caller, model.InitializeEventData{
		Seed:       pool.Seed,
		AssetX:     pool.AssetX,
		AssetY:     pool.AssetY,
		ShareAsset: pool.ShareAsset,
		FeeBps:     pool.FeeBps,
		Admin:      pool.Admin,
	})
	return pool, nil
}

func (e *Engine) initialize(ctx context.Context, key model.PoolKey, params InitializeParams) (model.Pool, error) {
	if params.AssetX == params.AssetY {
		return model.Pool{}, ErrDuplicateAsset
	}
	if params.FeeBps >= curve.FeeDenominator {
		return model.Pool{}, fmt.Errorf("fee %d bps: %w", params.FeeBps, ErrInvalidFee)
	}

	pool := model.Pool{
		Seed:       params.Seed,
		AssetX:     params.AssetX,
		AssetY:     params.AssetY,
		ShareAsset: key.ShareAsset(),
		Account:    key.Account(),
		FeeBps:     params.FeeBps,
	}
	if params.Admin != nil {
		admin := *params.Admin
		pool.Admin = &admin
	}

	err := e.execute(ctx, key, func(ctx context.Context, tx ledger.Tx) error {
		_, exists, err := tx.LoadPool(ctx, pool.Account)
		if err != nil {
			return fmt.Errorf("load pool: %w", err)
		}
		if exists {
			return fmt.Errorf("%s: %w", key, ErrAlreadyExists)
		}
		if err := tx.CreateAsset(ctx, pool.ShareAsset, pool.Account); err != nil {
			if errors.Is(err, ledger.ErrAssetExists) {
				return fmt.Errorf("share asset %s: %w", pool.ShareAsset.Hex(), ErrAlreadyExists)
			}
			return fmt.Errorf("create share asset: %w", err)
		}
		return tx.SavePool(ctx, pool)
	})
	if err != nil {
		return model.Pool{}, err
	}
	return pool, nil
}
