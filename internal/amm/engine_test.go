package amm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ammCore/internal/curve"
	"ammCore/internal/ledger"
	"ammCore/internal/model"
)

var (
	assetX   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	assetY   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	issuer   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	provider = common.HexToAddress("0x0000000000000000000000000000000000000001")
	trader   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

const startingBalance = 1_000_000_000_000

type recordingSink struct {
	mu     sync.Mutex
	events []model.PoolEvent
}

func (r *recordingSink) Emit(_ context.Context, events ...model.PoolEvent) error {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
	return nil
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	ledger *ledger.Memory
	engine *Engine
	sink   *recordingSink
	key    model.PoolKey
}

func newFixture(t *testing.T, rule curve.BootstrapRule) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		ledger: ledger.NewMemory(),
		sink:   &recordingSink{},
		key:    model.PoolKey{AssetX: assetX, AssetY: assetY, Seed: 1},
	}
	f.engine = NewEngine(Config{
		Bootstrap:    rule,
		MaxRetries:   50,
		RetryBackoff: time.Millisecond,
		Clock:        func() time.Time { return time.Unix(1700000000, 0) },
	}, f.ledger, f.sink, zaptest.NewLogger(t))

	adminAddr := admin
	_, err := f.engine.Initialize(f.ctx, InitializeParams{
		Seed:   1,
		AssetX: assetX,
		AssetY: assetY,
		FeeBps: 30,
		Admin:  &adminAddr,
		Caller: admin,
	})
	require.NoError(t, err)

	for _, who := range []common.Address{provider, trader, stranger} {
		f.fund(who, startingBalance)
	}
	return f
}

func (f *fixture) fund(who common.Address, amount uint64) {
	f.t.Helper()
	require.NoError(f.t, ledger.Issue(f.ctx, f.ledger, assetX, issuer, who, amount))
	require.NoError(f.t, ledger.Issue(f.ctx, f.ledger, assetY, issuer, who, amount))
}

func (f *fixture) state() model.PoolState {
	f.t.Helper()
	state, err := f.engine.State(f.ctx, f.key)
	require.NoError(f.t, err)
	return state
}

func (f *fixture) balance(asset, who common.Address) uint64 {
	f.t.Helper()
	tx, err := f.ledger.Begin(f.ctx, who)
	require.NoError(f.t, err)
	defer tx.Rollback(f.ctx)
	bal, err := tx.BalanceOf(f.ctx, asset, who)
	require.NoError(f.t, err)
	return bal
}

// seed runs the bootstrap and proportional deposits of the reference scenario.
func (f *fixture) seed() {
	f.t.Helper()
	_, err := f.engine.Deposit(f.ctx, f.key, provider, 1_000_000, 1_000_000, 4_000_000)
	require.NoError(f.t, err)
	_, err = f.engine.Deposit(f.ctx, f.key, provider, 1_000_000, 300_000, 1_100_000)
	require.NoError(f.t, err)
}

func requireState(t *testing.T, state model.PoolState, x, y, supply uint64) {
	t.Helper()
	require.Equal(t, x, state.ReserveX, "reserve x")
	require.Equal(t, y, state.ReserveY, "reserve y")
	require.Equal(t, supply, state.Supply, "supply")
}

func TestBootstrapMaxRule(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)

	res, err := f.engine.Deposit(f.ctx, f.key, provider, 1_000_000, 1_000_000, 4_000_000)
	require.NoError(t, err)
	require.Equal(t, DepositResult{AmountX: 1_000_000, AmountY: 4_000_000, Shares: 4_000_000, Bootstrap: true}, res)
	requireState(t, f.state(), 1_000_000, 4_000_000, 4_000_000)

	held, err := f.engine.ShareBalance(f.ctx, f.key, provider)
	require.NoError(t, err)
	require.Equal(t, uint64(4_000_000), held)
	require.Equal(t, uint64(startingBalance-1_000_000), f.balance(assetX, provider))
}

func TestBootstrapGeometricRule(t *testing.T) {
	f := newFixture(t, curve.BootstrapGeometric)

	res, err := f.engine.Deposit(f.ctx, f.key, provider, 1_000_000, 1_000_000, 4_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(2_000_000), res.Shares)
	requireState(t, f.state(), 1_000_000, 4_000_000, 2_000_000)
}

func TestProportionalDeposit(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	_, err := f.engine.Deposit(f.ctx, f.key, provider, 1_000_000, 1_000_000, 4_000_000)
	require.NoError(t, err)

	res, err := f.engine.Deposit(f.ctx, f.key, trader, 1_000_000, 300_000, 1_100_000)
	require.NoError(t, err)
	require.Equal(t, DepositResult{AmountX: 250_000, AmountY: 1_000_000, Shares: 1_000_000}, res)
	requireState(t, f.state(), 1_250_000, 5_000_000, 5_000_000)
}

func TestDepositSlippage(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	_, err := f.engine.Deposit(f.ctx, f.key, provider, 1_000_000, 1_000_000, 4_000_000)
	require.NoError(t, err)
	before := f.ledger.Snapshot()

	_, err = f.engine.Deposit(f.ctx, f.key, trader, 1_000_000, 249_999, 1_100_000)
	require.ErrorIs(t, err, ErrSlippageExceeded)
	_, err = f.engine.Deposit(f.ctx, f.key, trader, 1_000_000, 300_000, 999_999)
	require.ErrorIs(t, err, ErrSlippageExceeded)
	require.Equal(t, before, f.ledger.Snapshot())
}

func TestSwapXToY(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()

	quoted, err := f.engine.QuoteSwap(f.ctx, f.key, model.XToY, 100_000)
	require.NoError(t, err)
	require.Equal(t, uint64(369_341), quoted)

	res, err := f.engine.Swap(f.ctx, f.key, trader, model.XToY, 100_000, 300_000)
	require.NoError(t, err)
	require.Equal(t, SwapResult{AmountIn: 100_000, AmountOut: 369_341}, res)
	requireState(t, f.state(), 1_350_000, 4_630_659, 5_000_000)
	require.Equal(t, uint64(startingBalance-100_000), f.balance(assetX, trader))
	require.Equal(t, uint64(startingBalance+369_341), f.balance(assetY, trader))
}

func TestSwapYToX(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()

	res, err := f.engine.Swap(f.ctx, f.key, trader, model.YToX, 400_000, 1)
	require.NoError(t, err)
	// floor(1_250_000 * 398_800 / (5_000_000 + 398_800))
	require.Equal(t, uint64(92_335), res.AmountOut)
	requireState(t, f.state(), 1_250_000-92_335, 5_400_000, 5_000_000)
}

func TestSwapSlippageLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()
	before := f.ledger.Snapshot()
	events := len(f.sink.events)

	_, err := f.engine.Swap(f.ctx, f.key, trader, model.XToY, 100_000, 400_000)
	require.ErrorIs(t, err, ErrSlippageExceeded)
	require.Equal(t, KindSlippageExceeded, KindOf(err))
	require.Equal(t, before, f.ledger.Snapshot())
	require.Len(t, f.sink.events, events)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()

	res, err := f.engine.Withdraw(f.ctx, f.key, provider, 500_000, 120_000, 490_000)
	require.NoError(t, err)
	require.Equal(t, WithdrawResult{AmountX: 125_000, AmountY: 500_000}, res)
	requireState(t, f.state(), 1_125_000, 4_500_000, 4_500_000)

	held, err := f.engine.ShareBalance(f.ctx, f.key, provider)
	require.NoError(t, err)
	require.Equal(t, uint64(4_500_000), held)
}

func TestWithdrawEverythingEmptiesPool(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()

	res, err := f.engine.Withdraw(f.ctx, f.key, provider, 5_000_000, 1, 1)
	require.NoError(t, err)
	require.Equal(t, WithdrawResult{AmountX: 1_250_000, AmountY: 5_000_000}, res)
	requireState(t, f.state(), 0, 0, 0)

	_, err = f.engine.Swap(f.ctx, f.key, trader, model.XToY, 1_000, 1)
	require.ErrorIs(t, err, ErrEmptyPool)

	// an emptied pool bootstraps again
	again, err := f.engine.Deposit(f.ctx, f.key, trader, 1, 10, 20)
	require.NoError(t, err)
	require.True(t, again.Bootstrap)
	require.Equal(t, uint64(20), again.Shares)
}

func TestWithdrawErrors(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()
	before := f.ledger.Snapshot()

	_, err := f.engine.Withdraw(f.ctx, f.key, provider, 0, 1, 1)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.engine.Withdraw(f.ctx, f.key, provider, 1, 0, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.engine.Withdraw(f.ctx, f.key, trader, 1, 0, 1)
	require.ErrorIs(t, err, ErrInsufficientShares)
	_, err = f.engine.Withdraw(f.ctx, f.key, provider, 5_000_001, 0, 1)
	require.ErrorIs(t, err, ErrInsufficientShares)
	_, err = f.engine.Withdraw(f.ctx, f.key, provider, 500_000, 125_001, 1)
	require.ErrorIs(t, err, ErrSlippageExceeded)

	require.Equal(t, before, f.ledger.Snapshot())
}

func TestDepositAndSwapInvalidAmounts(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)

	for _, args := range [][3]uint64{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}} {
		_, err := f.engine.Deposit(f.ctx, f.key, provider, args[0], args[1], args[2])
		require.ErrorIs(t, err, ErrInvalidAmount)
	}

	_, err := f.engine.Swap(f.ctx, f.key, trader, model.XToY, 1_000, 1)
	require.ErrorIs(t, err, ErrEmptyPool)

	f.seed()
	_, err = f.engine.Swap(f.ctx, f.key, trader, model.XToY, 0, 1)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.engine.Swap(f.ctx, f.key, trader, model.XToY, 1, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.engine.Swap(f.ctx, f.key, trader, model.XToY, 1, 1)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestDepositWithoutFundsFails(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	poor := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	before := f.ledger.Snapshot()

	_, err := f.engine.Deposit(f.ctx, f.key, poor, 1, 10, 10)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.Equal(t, KindOther, KindOf(err))
	require.Equal(t, before, f.ledger.Snapshot())
}

func TestInitializeErrors(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)

	_, err := f.engine.Initialize(f.ctx, InitializeParams{Seed: 2, AssetX: assetX, AssetY: assetX})
	require.ErrorIs(t, err, ErrDuplicateAsset)

	_, err = f.engine.Initialize(f.ctx, InitializeParams{Seed: 2, AssetX: assetX, AssetY: assetY, FeeBps: 10_000})
	require.ErrorIs(t, err, ErrInvalidFee)
	require.Equal(t, KindInvalidFee, KindOf(err))

	before := f.ledger.Snapshot()
	_, err = f.engine.Initialize(f.ctx, InitializeParams{Seed: 1, AssetX: assetX, AssetY: assetY, FeeBps: 5})
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Equal(t, before, f.ledger.Snapshot())

	// asset order is part of the identity
	flipped, err := f.engine.Initialize(f.ctx, InitializeParams{Seed: 1, AssetX: assetY, AssetY: assetX, FeeBps: 9_999})
	require.NoError(t, err)
	require.NotEqual(t, f.key.Account(), flipped.Account)
	require.Nil(t, flipped.Admin)
	require.False(t, flipped.Locked)
}

func TestUnknownPool(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	missing := model.PoolKey{AssetX: assetX, AssetY: assetY, Seed: 99}

	_, err := f.engine.Deposit(f.ctx, missing, provider, 1, 1, 1)
	require.ErrorIs(t, err, ErrPoolNotFound)
	_, err = f.engine.State(f.ctx, missing)
	require.Equal(t, KindPoolNotFound, KindOf(err))
}

func TestLockBlocksUserOperations(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()

	pool, err := f.engine.SetLock(f.ctx, f.key, admin, true)
	require.NoError(t, err)
	require.True(t, pool.Locked)
	before := f.ledger.Snapshot()

	_, err = f.engine.Deposit(f.ctx, f.key, provider, 1_000_000, 300_000, 1_100_000)
	require.ErrorIs(t, err, ErrPoolLocked)
	_, err = f.engine.Withdraw(f.ctx, f.key, provider, 500_000, 120_000, 490_000)
	require.ErrorIs(t, err, ErrPoolLocked)
	_, err = f.engine.Swap(f.ctx, f.key, trader, model.XToY, 100_000, 300_000)
	require.ErrorIs(t, err, ErrPoolLocked)
	_, err = f.engine.QuoteSwap(f.ctx, f.key, model.XToY, 100_000)
	require.ErrorIs(t, err, ErrPoolLocked)

	// lock precedes amount validation
	_, err = f.engine.Deposit(f.ctx, f.key, provider, 0, 0, 0)
	require.ErrorIs(t, err, ErrPoolLocked)
	require.Equal(t, before, f.ledger.Snapshot())

	_, err = f.engine.SetLock(f.ctx, f.key, admin, false)
	require.NoError(t, err)
	_, err = f.engine.Swap(f.ctx, f.key, trader, model.XToY, 100_000, 300_000)
	require.NoError(t, err)
}

func TestSetLockAuthorization(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	before := f.ledger.Snapshot()

	_, err := f.engine.SetLock(f.ctx, f.key, stranger, true)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, before, f.ledger.Snapshot())

	_, err = f.engine.SetLock(f.ctx, f.key, admin, true)
	require.NoError(t, err)
	after := f.ledger.Snapshot()
	pool, err := f.engine.SetLock(f.ctx, f.key, admin, true)
	require.NoError(t, err)
	require.True(t, pool.Locked)
	require.Equal(t, after, f.ledger.Snapshot())

	open, err := f.engine.Initialize(f.ctx, InitializeParams{Seed: 5, AssetX: assetX, AssetY: assetY})
	require.NoError(t, err)
	_, err = f.engine.SetLock(f.ctx, open.Key(), admin, true)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.SetLock(f.ctx, open.Key(), common.Address{}, true)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestEventsFollowCommits(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()
	_, err := f.engine.Swap(f.ctx, f.key, trader, model.XToY, 100_000, 300_000)
	require.NoError(t, err)
	_, err = f.engine.SetLock(f.ctx, f.key, admin, true)
	require.NoError(t, err)

	var kinds []model.EventKind
	for _, event := range f.sink.events {
		require.Equal(t, f.key.Account(), event.Pool)
		kinds = append(kinds, event.Kind)
	}
	require.Equal(t, []model.EventKind{
		model.EventInitialize,
		model.EventDeposit,
		model.EventDeposit,
		model.EventSwap,
		model.EventSetLock,
	}, kinds)
	require.JSONEq(t, `{"direction":"x_to_y","amount_in":"100000","amount_out":"369341"}`, string(f.sink.events[3].Data))
}

func TestCorruptedReservesAreFatal(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	// a donation into an empty pool breaks the empty-pool equivalence
	tx, err := f.ledger.Begin(f.ctx, trader)
	require.NoError(t, err)
	require.NoError(t, tx.Transfer(f.ctx, assetX, trader, f.key.Account(), 5))
	require.NoError(t, tx.Commit(f.ctx))

	_, err = f.engine.Deposit(f.ctx, f.key, provider, 1, 10, 10)
	require.ErrorIs(t, err, ErrInvariantViolated)
	require.True(t, IsFatal(err))

	// the admin can still lock it
	_, err = f.engine.SetLock(f.ctx, f.key, admin, true)
	require.NoError(t, err)
}

func TestPoolAccountCannotTrade(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()
	self := f.key.Account()
	before := f.ledger.Snapshot()
	events := len(f.sink.events)

	_, err := f.engine.Swap(f.ctx, f.key, self, model.XToY, 100_000, 1)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.Deposit(f.ctx, f.key, self, 1_000_000, 300_000, 1_100_000)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.Withdraw(f.ctx, f.key, self, 1, 1, 1)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Equal(t, before, f.ledger.Snapshot())
	require.Len(t, f.sink.events, events)
	requireState(t, f.state(), 1_250_000, 5_000_000, 5_000_000)
}

func TestSwapOverflow(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()
	before := f.ledger.Snapshot()

	_, err := f.engine.Swap(f.ctx, f.key, trader, model.XToY, ^uint64(0)-1_000_000, 1)
	require.ErrorIs(t, err, ErrOverflow)
	require.Equal(t, KindOverflow, KindOf(err))
	require.False(t, IsFatal(err))
	require.Equal(t, before, f.ledger.Snapshot())
}

func TestDepositOverflow(t *testing.T) {
	f := newFixture(t, curve.BootstrapMax)
	f.seed()
	before := f.ledger.Snapshot()

	// supply plus the requested shares exceeds 64 bits
	_, err := f.engine.Deposit(f.ctx, f.key, provider, ^uint64(0)-1_000_000, ^uint64(0), ^uint64(0))
	require.ErrorIs(t, err, ErrOverflow)
	require.Equal(t, KindOverflow, KindOf(err))
	require.Equal(t, before, f.ledger.Snapshot())

	// the required X amount exceeds 64 bits: reserves (4, 1) back 2 shares
	g := newFixture(t, curve.BootstrapGeometric)
	_, err = g.engine.Deposit(g.ctx, g.key, provider, 1, 4, 1)
	require.NoError(t, err)
	requireState(t, g.state(), 4, 1, 2)
	_, err = g.engine.Deposit(g.ctx, g.key, provider, ^uint64(0)-2, ^uint64(0), ^uint64(0))
	require.ErrorIs(t, err, ErrOverflow)
	require.Equal(t, KindOverflow, KindOf(err))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "None", KindOf(nil).String())
	require.Equal(t, "Overflow", KindOf(callerLeg(ledger.ErrOverflow)).String())
	require.Equal(t, "InvariantViolated", KindOf(vaultLeg(ledger.ErrInsufficientBalance)).String())
	require.Equal(t, "Other", KindOf(context.Canceled).String())
}
