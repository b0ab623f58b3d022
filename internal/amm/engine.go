package amm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ammCore/internal/curve"
	"ammCore/internal/ledger"
	"ammCore/internal/model"
	"ammCore/internal/storage"
)

// Config tunes the engine.
type Config struct {
	Bootstrap    curve.BootstrapRule
	MaxRetries   int
	RetryBackoff time.Duration
	Clock        func() time.Time
}

// Engine runs pool operations against a ledger. Each operation is one ledger
// transaction keyed on the pool account, so operations on the same pool are
// serialized and a failed operation leaves no trace.
type Engine struct {
	cfg    Config
	ledger ledger.Ledger
	events storage.EventSink
	logger *zap.Logger
}

func NewEngine(cfg Config, l ledger.Ledger, events storage.EventSink, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = storage.NopSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Engine{cfg: cfg, ledger: l, events: events, logger: logger}
}

// execute runs fn in a ledger transaction on key and commits when fn succeeds.
// Conflicts are retried with a fresh transaction.
func (e *Engine) execute(ctx context.Context, key model.PoolKey, fn func(context.Context, ledger.Tx) error) error {
	return ledger.Retry(ctx, e.cfg.MaxRetries, e.cfg.RetryBackoff, e.logger, func(ctx context.Context) error {
		tx, err := e.ledger.Begin(ctx, key.Account())
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// view runs fn in a transaction that is always rolled back.
func (e *Engine) view(ctx context.Context, key model.PoolKey, fn func(context.Context, ledger.Tx) error) error {
	tx, err := e.ledger.Begin(ctx, key.Account())
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	return fn(ctx, tx)
}

func loadPool(ctx context.Context, tx ledger.Tx, key model.PoolKey) (model.Pool, error) {
	pool, ok, err := tx.LoadPool(ctx, key.Account())
	if err != nil {
		return model.Pool{}, fmt.Errorf("load pool: %w", err)
	}
	if !ok {
		return model.Pool{}, fmt.Errorf("%s: %w", key, ErrPoolNotFound)
	}
	if pool.Key() != key {
		return model.Pool{}, fmt.Errorf("pool record does not match %s: %w", key, ErrInvariantViolated)
	}
	return pool, nil
}

// checkCaller rejects the pool's own account as the caller of a user operation.
func checkCaller(pool model.Pool, caller common.Address) error {
	if caller == pool.Account {
		return fmt.Errorf("pool account %s as caller: %w", caller.Hex(), ErrUnauthorized)
	}
	return nil
}

// readState reads the reserves and supply of pool and checks that the pool is
// either fully funded or fully empty.
func readState(ctx context.Context, tx ledger.Tx, pool model.Pool) (model.PoolState, error) {
	state := model.PoolState{Pool: pool}
	var err error
	if state.ReserveX, err = tx.BalanceOf(ctx, pool.AssetX, pool.Account); err != nil {
		return state, fmt.Errorf("reserve x: %w", err)
	}
	if state.ReserveY, err = tx.BalanceOf(ctx, pool.AssetY, pool.Account); err != nil {
		return state, fmt.Errorf("reserve y: %w", err)
	}
	if state.Supply, err = tx.SupplyOf(ctx, pool.ShareAsset); err != nil {
		return state, fmt.Errorf("share supply: %w", err)
	}

	funded := state.ReserveX > 0 && state.ReserveY > 0 && state.Supply > 0
	empty := state.ReserveX == 0 && state.ReserveY == 0 && state.Supply == 0
	if !funded && !empty {
		return state, fmt.Errorf("reserves (%d, %d) with supply %d: %w",
			state.ReserveX, state.ReserveY, state.Supply, ErrInvariantViolated)
	}
	return state, nil
}

// emit publishes a committed operation. Sink failures do not affect the result.
func (e *Engine) emit(ctx context.Context, kind model.EventKind, pool, caller common.Address, data any) {
	event, err := model.NewPoolEvent(kind, pool, caller, e.cfg.Clock(), data)
	if err != nil {
		e.logger.Warn("build event failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	if err := e.events.Emit(ctx, event); err != nil {
		e.logger.Warn("emit event failed",
			zap.String("kind", string(kind)),
			zap.String("pool", pool.Hex()),
			zap.Error(err),
		)
	}
}

// report logs the outcome of an operation at a level matching its severity.
func (e *Engine) report(op string, key model.PoolKey, caller common.Address, err error, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("op", op),
		zap.String("pool", key.Account().Hex()),
		zap.String("caller", caller.Hex()),
	}, fields...)

	level := zapcore.DebugLevel
	if err != nil {
		fields = append(fields, zap.String("kind", KindOf(err).String()), zap.Error(err))
		switch KindOf(err) {
		case KindInvariantViolated, KindOverflow:
			level = zapcore.ErrorLevel
		case KindOther:
			level = zapcore.WarnLevel
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				level = zapcore.InfoLevel
			}
		default:
			level = zapcore.InfoLevel
		}
	}
	if ce := e.logger.Check(level, op); ce != nil {
		ce.Write(fields...)
	}
}
