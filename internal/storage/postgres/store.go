package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"ammCore/internal/ledger"
	"ammCore/internal/model"
)

// Store is a Postgres-backed ledger and event journal.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewStore(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Begin opens a serializable transaction holding an advisory lock on key.
func (s *Store) Begin(ctx context.Context, key common.Address) (ledger.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, mapErr(fmt.Errorf("begin tx: %w", err))
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, addr(key)); err != nil {
		_ = tx.Rollback(ctx)
		return nil, mapErr(fmt.Errorf("lock %s: %w", key.Hex(), err))
	}
	return &pgTx{tx: tx}, nil
}

// Emit appends events to amm_events in one batch.
func (s *Store) Emit(ctx context.Context, events ...model.PoolEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(`
			INSERT INTO amm_events (kind, pool, caller, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`,
			string(event.Kind),
			addr(event.Pool),
			addr(event.Caller),
			[]byte(event.Data),
			event.Time,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return nil
}

// Events returns the journal of one pool in insertion order.
func (s *Store) Events(ctx context.Context, pool common.Address, limit int) ([]model.PoolEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT kind, pool, caller, payload, created_at
		FROM amm_events
		WHERE pool = $1
		ORDER BY id
		LIMIT $2
	`, addr(pool), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []model.PoolEvent
	for rows.Next() {
		var (
			event      model.PoolEvent
			kind, p, c string
			payload    []byte
		)
		if err := rows.Scan(&kind, &p, &c, &payload, &event.Time); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Kind = model.EventKind(kind)
		event.Pool = common.HexToAddress(p)
		event.Caller = common.HexToAddress(c)
		event.Data = payload
		events = append(events, event)
	}
	return events, rows.Err()
}

func addr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// mapErr turns serialization failures and deadlocks into ledger.ErrConflict.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
		}
	}
	return err
}
