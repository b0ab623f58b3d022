package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ammCore/internal/model"
)

type slotKind uint8

const (
	slotAsset slotKind = iota
	slotBalance
	slotPool
)

// slot addresses one versioned entry of the memory ledger.
type slot struct {
	kind    slotKind
	asset   common.Address
	account common.Address
}

type assetRecord struct {
	Authority common.Address
	Supply    uint64
}

type balanceKey struct {
	Asset   common.Address
	Account common.Address
}

// Memory is an in-process ledger. Transactions on the same key are serialized;
// transactions on different keys run concurrently and are validated at commit,
// returning ErrConflict if an entry they read was changed in the meantime.
type Memory struct {
	mu       sync.RWMutex
	assets   map[common.Address]assetRecord
	balances map[balanceKey]uint64
	pools    map[common.Address]model.Pool
	versions map[slot]uint64

	keys *keyLock
}

func NewMemory() *Memory {
	return &Memory{
		assets:   make(map[common.Address]assetRecord),
		balances: make(map[balanceKey]uint64),
		pools:    make(map[common.Address]model.Pool),
		versions: make(map[slot]uint64),
		keys:     newKeyLock(),
	}
}

// Begin opens a transaction holding the critical section for key.
func (m *Memory) Begin(ctx context.Context, key common.Address) (Tx, error) {
	unlock, err := m.keys.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	return &memTx{
		m:        m,
		unlock:   unlock,
		reads:    make(map[slot]uint64),
		assets:   make(map[common.Address]assetRecord),
		balances: make(map[balanceKey]uint64),
		pools:    make(map[common.Address]model.Pool),
	}, nil
}

type memTx struct {
	m      *Memory
	unlock func()
	done   bool

	reads    map[slot]uint64
	assets   map[common.Address]assetRecord
	balances map[balanceKey]uint64
	pools    map[common.Address]model.Pool
}

func (t *memTx) check(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	return ctx.Err()
}

func (t *memTx) track(s slot) {
	if _, ok := t.reads[s]; !ok {
		t.reads[s] = t.m.versions[s]
	}
}

func (t *memTx) asset(asset common.Address) (assetRecord, bool) {
	if rec, ok := t.assets[asset]; ok {
		return rec, true
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	t.track(slot{kind: slotAsset, asset: asset})
	rec, ok := t.m.assets[asset]
	return rec, ok
}

func (t *memTx) balance(asset, account common.Address) uint64 {
	key := balanceKey{Asset: asset, Account: account}
	if amount, ok := t.balances[key]; ok {
		return amount
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	t.track(slot{kind: slotBalance, asset: asset, account: account})
	return t.m.balances[key]
}

func (t *memTx) BalanceOf(ctx context.Context, asset, account common.Address) (uint64, error) {
	if err := t.check(ctx); err != nil {
		return 0, err
	}
	return t.balance(asset, account), nil
}

func (t *memTx) SupplyOf(ctx context.Context, asset common.Address) (uint64, error) {
	if err := t.check(ctx); err != nil {
		return 0, err
	}
	rec, _ := t.asset(asset)
	return rec.Supply, nil
}

func (t *memTx) Transfer(ctx context.Context, asset, from, to common.Address, amount uint64) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if amount == 0 || from == to {
		return nil
	}
	fromBal := t.balance(asset, from)
	if fromBal < amount {
		return fmt.Errorf("transfer %s from %s: %w", asset.Hex(), from.Hex(), ErrInsufficientBalance)
	}
	toBal := t.balance(asset, to)
	if toBal+amount < toBal {
		return fmt.Errorf("transfer %s to %s: %w", asset.Hex(), to.Hex(), ErrOverflow)
	}
	t.balances[balanceKey{Asset: asset, Account: from}] = fromBal - amount
	t.balances[balanceKey{Asset: asset, Account: to}] = toBal + amount
	return nil
}

func (t *memTx) Mint(ctx context.Context, asset, authority, to common.Address, amount uint64) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	rec, ok := t.asset(asset)
	if !ok {
		return fmt.Errorf("mint %s: %w", asset.Hex(), ErrUnknownAsset)
	}
	if rec.Authority != authority {
		return fmt.Errorf("mint %s by %s: %w", asset.Hex(), authority.Hex(), ErrMintAuthority)
	}
	bal := t.balance(asset, to)
	if rec.Supply+amount < rec.Supply || bal+amount < bal {
		return fmt.Errorf("mint %s: %w", asset.Hex(), ErrOverflow)
	}
	rec.Supply += amount
	t.assets[asset] = rec
	t.balances[balanceKey{Asset: asset, Account: to}] = bal + amount
	return nil
}

func (t *memTx) Burn(ctx context.Context, asset, authority, from common.Address, amount uint64) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	rec, ok := t.asset(asset)
	if !ok {
		return fmt.Errorf("burn %s: %w", asset.Hex(), ErrUnknownAsset)
	}
	if rec.Authority != authority {
		return fmt.Errorf("burn %s by %s: %w", asset.Hex(), authority.Hex(), ErrMintAuthority)
	}
	bal := t.balance(asset, from)
	if bal < amount || rec.Supply < amount {
		return fmt.Errorf("burn %s from %s: %w", asset.Hex(), from.Hex(), ErrInsufficientBalance)
	}
	rec.Supply -= amount
	t.assets[asset] = rec
	t.balances[balanceKey{Asset: asset, Account: from}] = bal - amount
	return nil
}

func (t *memTx) CreateAsset(ctx context.Context, asset, authority common.Address) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.asset(asset); ok {
		return fmt.Errorf("create %s: %w", asset.Hex(), ErrAssetExists)
	}
	t.assets[asset] = assetRecord{Authority: authority}
	return nil
}

func (t *memTx) LoadPool(ctx context.Context, account common.Address) (model.Pool, bool, error) {
	if err := t.check(ctx); err != nil {
		return model.Pool{}, false, err
	}
	if pool, ok := t.pools[account]; ok {
		return pool, true, nil
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	t.track(slot{kind: slotPool, account: account})
	pool, ok := t.m.pools[account]
	return pool, ok, nil
}

func (t *memTx) SavePool(ctx context.Context, pool model.Pool) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	t.pools[pool.Account] = pool
	return nil
}

// Commit applies every staged write at once, or none if a read entry changed.
func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	defer t.finish()
	if err := ctx.Err(); err != nil {
		return err
	}

	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for s, version := range t.reads {
		if m.versions[s] != version {
			return ErrConflict
		}
	}

	for asset, rec := range t.assets {
		m.assets[asset] = rec
		m.versions[slot{kind: slotAsset, asset: asset}]++
	}
	for key, amount := range t.balances {
		if amount == 0 {
			delete(m.balances, key)
		} else {
			m.balances[key] = amount
		}
		m.versions[slot{kind: slotBalance, asset: key.Asset, account: key.Account}]++
	}
	for account, pool := range t.pools {
		m.pools[account] = pool
		m.versions[slot{kind: slotPool, account: account}]++
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *memTx) finish() {
	t.done = true
	t.unlock()
}
