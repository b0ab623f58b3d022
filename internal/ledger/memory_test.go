package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"ammCore/internal/model"
)

var (
	tokenA = common.HexToAddress("0xa0000000000000000000000000000000000000a0")
	issuer = common.HexToAddress("0x1000000000000000000000000000000000000001")
	alice  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	bob    = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func balanceOf(t *testing.T, l Ledger, asset, account common.Address) uint64 {
	t.Helper()
	ctx := context.Background()
	tx, err := l.Begin(ctx, account)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	bal, err := tx.BalanceOf(ctx, asset, account)
	require.NoError(t, err)
	return bal
}

func TestIssueAndTransfer(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, Issue(ctx, m, tokenA, issuer, alice, 100))
	require.NoError(t, Issue(ctx, m, tokenA, issuer, alice, 50))

	tx, err := m.Begin(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, tx.Transfer(ctx, tokenA, alice, bob, 120))
	require.ErrorIs(t, tx.Transfer(ctx, tokenA, alice, bob, 31), ErrInsufficientBalance)
	supply, err := tx.SupplyOf(ctx, tokenA)
	require.NoError(t, err)
	require.Equal(t, uint64(150), supply)
	require.NoError(t, tx.Commit(ctx))

	require.Equal(t, uint64(30), balanceOf(t, m, tokenA, alice))
	require.Equal(t, uint64(120), balanceOf(t, m, tokenA, bob))
}

func TestMintRequiresAuthority(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, Issue(ctx, m, tokenA, issuer, alice, 1))

	err := Issue(ctx, m, tokenA, bob, bob, 1)
	require.ErrorIs(t, err, ErrMintAuthority)

	tx, err := m.Begin(ctx, alice)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	require.ErrorIs(t, tx.Mint(ctx, common.Address{0x9}, issuer, alice, 1), ErrUnknownAsset)
	require.ErrorIs(t, tx.Burn(ctx, tokenA, bob, alice, 1), ErrMintAuthority)
	require.ErrorIs(t, tx.Burn(ctx, tokenA, issuer, alice, 2), ErrInsufficientBalance)
}

func TestMintOverflow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, Issue(ctx, m, tokenA, issuer, alice, ^uint64(0)))
	require.ErrorIs(t, Issue(ctx, m, tokenA, issuer, bob, 1), ErrOverflow)
	require.Equal(t, uint64(0), balanceOf(t, m, tokenA, bob))
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, Issue(ctx, m, tokenA, issuer, alice, 100))
	before := m.Snapshot()

	tx, err := m.Begin(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, tx.Transfer(ctx, tokenA, alice, bob, 40))
	require.NoError(t, tx.SavePool(ctx, model.Pool{Account: bob}))
	require.NoError(t, tx.Rollback(ctx))

	require.Equal(t, before, m.Snapshot())
	require.ErrorIs(t, tx.Commit(ctx), ErrTxDone)
	require.NoError(t, tx.Rollback(ctx))
}

func TestCommitDetectsConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, Issue(ctx, m, tokenA, issuer, alice, 100))

	first, err := m.Begin(ctx, common.Address{0x1})
	require.NoError(t, err)
	second, err := m.Begin(ctx, common.Address{0x2})
	require.NoError(t, err)

	require.NoError(t, first.Transfer(ctx, tokenA, alice, bob, 60))
	require.NoError(t, second.Transfer(ctx, tokenA, alice, bob, 60))

	require.NoError(t, first.Commit(ctx))
	require.ErrorIs(t, second.Commit(ctx), ErrConflict)

	require.Equal(t, uint64(40), balanceOf(t, m, tokenA, alice))
	require.Equal(t, uint64(60), balanceOf(t, m, tokenA, bob))
}

func TestBeginSerializesSameKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tx, err := m.Begin(ctx, alice)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Begin(waitCtx, alice)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := m.Begin(ctx, bob)
	require.NoError(t, err)
	require.NoError(t, other.Rollback(ctx))

	require.NoError(t, tx.Rollback(ctx))
	again, err := m.Begin(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, again.Rollback(ctx))
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "ledger.json")
	admin := alice

	m := NewMemory()
	require.NoError(t, Issue(ctx, m, tokenA, issuer, alice, 7))
	tx, err := m.Begin(ctx, bob)
	require.NoError(t, err)
	require.NoError(t, tx.SavePool(ctx, model.Pool{Seed: 3, Account: bob, FeeBps: 30, Admin: &admin}))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, m.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, m.Snapshot(), loaded.Snapshot())

	empty, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Empty(t, empty.Snapshot().Assets)
}
