package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"ammCore/internal/ledger"
	"ammCore/internal/model"
)

// pgTx implements ledger.Tx on a single Postgres transaction.
type pgTx struct {
	tx   pgx.Tx
	done bool
}

func (t *pgTx) check() error {
	if t.done {
		return ledger.ErrTxDone
	}
	return nil
}

func (t *pgTx) BalanceOf(ctx context.Context, asset, account common.Address) (uint64, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return t.balance(ctx, asset, account)
}

func (t *pgTx) balance(ctx context.Context, asset, account common.Address) (uint64, error) {
	var raw string
	err := t.tx.QueryRow(ctx,
		`SELECT amount::text FROM amm_balances WHERE asset=$1 AND account=$2`,
		addr(asset), addr(account),
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, mapErr(fmt.Errorf("select balance: %w", err))
	}
	return parseAmount(raw)
}

func (t *pgTx) setBalance(ctx context.Context, asset, account common.Address, amount uint64) error {
	if amount == 0 {
		_, err := t.tx.Exec(ctx, `DELETE FROM amm_balances WHERE asset=$1 AND account=$2`, addr(asset), addr(account))
		return mapErr(err)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO amm_balances (asset, account, amount, updated_at)
		VALUES ($1, $2, $3::numeric, now())
		ON CONFLICT (asset, account)
		DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()
	`, addr(asset), addr(account), formatAmount(amount))
	if err != nil {
		return mapErr(fmt.Errorf("upsert balance: %w", err))
	}
	return nil
}

type assetRow struct {
	authority common.Address
	supply    uint64
}

func (t *pgTx) asset(ctx context.Context, asset common.Address) (assetRow, bool, error) {
	var authority, supply string
	err := t.tx.QueryRow(ctx,
		`SELECT authority, supply::text FROM amm_assets WHERE asset=$1`,
		addr(asset),
	).Scan(&authority, &supply)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return assetRow{}, false, nil
		}
		return assetRow{}, false, mapErr(fmt.Errorf("select asset: %w", err))
	}
	amount, err := parseAmount(supply)
	if err != nil {
		return assetRow{}, false, err
	}
	return assetRow{authority: common.HexToAddress(authority), supply: amount}, true, nil
}

func (t *pgTx) setSupply(ctx context.Context, asset common.Address, supply uint64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE amm_assets SET supply=$2::numeric WHERE asset=$1`,
		addr(asset), formatAmount(supply),
	)
	if err != nil {
		return mapErr(fmt.Errorf("update supply: %w", err))
	}
	return nil
}

func (t *pgTx) SupplyOf(ctx context.Context, asset common.Address) (uint64, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	row, _, err := t.asset(ctx, asset)
	return row.supply, err
}

func (t *pgTx) Transfer(ctx context.Context, asset, from, to common.Address, amount uint64) error {
	if err := t.check(); err != nil {
		return err
	}
	if amount == 0 || from == to {
		return nil
	}
	fromBal, err := t.balance(ctx, asset, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("transfer %s from %s: %w", asset.Hex(), from.Hex(), ledger.ErrInsufficientBalance)
	}
	toBal, err := t.balance(ctx, asset, to)
	if err != nil {
		return err
	}
	if toBal+amount < toBal {
		return fmt.Errorf("transfer %s to %s: %w", asset.Hex(), to.Hex(), ledger.ErrOverflow)
	}
	if err := t.setBalance(ctx, asset, from, fromBal-amount); err != nil {
		return err
	}
	return t.setBalance(ctx, asset, to, toBal+amount)
}

func (t *pgTx) Mint(ctx context.Context, asset, authority, to common.Address, amount uint64) error {
	if err := t.check(); err != nil {
		return err
	}
	row, ok, err := t.asset(ctx, asset)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mint %s: %w", asset.Hex(), ledger.ErrUnknownAsset)
	}
	if row.authority != authority {
		return fmt.Errorf("mint %s by %s: %w", asset.Hex(), authority.Hex(), ledger.ErrMintAuthority)
	}
	bal, err := t.balance(ctx, asset, to)
	if err != nil {
		return err
	}
	if row.supply+amount < row.supply || bal+amount < bal {
		return fmt.Errorf("mint %s: %w", asset.Hex(), ledger.ErrOverflow)
	}
	if err := t.setSupply(ctx, asset, row.supply+amount); err != nil {
		return err
	}
	return t.setBalance(ctx, asset, to, bal+amount)
}

func (t *pgTx) Burn(ctx context.Context, asset, authority, from common.Address, amount uint64) error {
	if err := t.check(); err != nil {
		return err
	}
	row, ok, err := t.asset(ctx, asset)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("burn %s: %w", asset.Hex(), ledger.ErrUnknownAsset)
	}
	if row.authority != authority {
		return fmt.Errorf("burn %s by %s: %w", asset.Hex(), authority.Hex(), ledger.ErrMintAuthority)
	}
	bal, err := t.balance(ctx, asset, from)
	if err != nil {
		return err
	}
	if bal < amount || row.supply < amount {
		return fmt.Errorf("burn %s from %s: %w", asset.Hex(), from.Hex(), ledger.ErrInsufficientBalance)
	}
	if err := t.setSupply(ctx, asset, row.supply-amount); err != nil {
		return err
	}
	return t.setBalance(ctx, asset, from, bal-amount)
}

func (t *pgTx) CreateAsset(ctx context.Context, asset, authority common.Address) error {
	if err := t.check(); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO amm_assets (asset, authority, supply, created_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (asset) DO NOTHING
	`, addr(asset), addr(authority))
	if err != nil {
		return mapErr(fmt.Errorf("insert asset: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("create %s: %w", asset.Hex(), ledger.ErrAssetExists)
	}
	return nil
}

func (t *pgTx) LoadPool(ctx context.Context, account common.Address) (model.Pool, bool, error) {
	if err := t.check(); err != nil {
		return model.Pool{}, false, err
	}
	var (
		seed, assetX, assetY string
		shareAsset, poolAcct string
		admin                *string
		feeBps               int32
		locked               bool
	)
	err := t.tx.QueryRow(ctx, `
		SELECT seed::text, asset_x, asset_y, share_asset, account, fee_bps, locked, admin
		FROM amm_pools
		WHERE account=$1
	`, addr(account)).Scan(&seed, &assetX, &assetY, &shareAsset, &poolAcct, &feeBps, &locked, &admin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, false, nil
		}
		return model.Pool{}, false, mapErr(fmt.Errorf("select pool: %w", err))
	}

	seedValue, err := parseAmount(seed)
	if err != nil {
		return model.Pool{}, false, err
	}
	pool := model.Pool{
		Seed:       seedValue,
		AssetX:     common.HexToAddress(assetX),
		AssetY:     common.HexToAddress(assetY),
		ShareAsset: common.HexToAddress(shareAsset),
		Account:    common.HexToAddress(poolAcct),
		FeeBps:     uint16(feeBps),
		Locked:     locked,
	}
	if admin != nil {
		a := common.HexToAddress(*admin)
		pool.Admin = &a
	}
	return pool, true, nil
}

func (t *pgTx) SavePool(ctx context.Context, pool model.Pool) error {
	if err := t.check(); err != nil {
		return err
	}
	var admin *string
	if pool.Admin != nil {
		a := addr(*pool.Admin)
		admin = &a
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO amm_pools (
			account, seed, asset_x, asset_y, share_asset, fee_bps, locked, admin, created_at, updated_at
		) VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (account)
		DO UPDATE SET
			fee_bps = EXCLUDED.fee_bps,
			locked = EXCLUDED.locked,
			admin = EXCLUDED.admin,
			updated_at = now()
	`,
		addr(pool.Account),
		formatAmount(pool.Seed),
		addr(pool.AssetX),
		addr(pool.AssetY),
		addr(pool.ShareAsset),
		int32(pool.FeeBps),
		pool.Locked,
		admin,
	)
	if err != nil {
		return mapErr(fmt.Errorf("upsert pool: %w", err))
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.check(); err != nil {
		return err
	}
	t.done = true
	if err := t.tx.Commit(ctx); err != nil {
		return mapErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func parseAmount(raw string) (uint64, error) {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return value, nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}
