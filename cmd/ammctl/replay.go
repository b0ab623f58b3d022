package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammCore/internal/amm"
	"ammCore/internal/config"
	"ammCore/internal/ledger"
	"ammCore/internal/model"
	"ammCore/internal/storage"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("errors", cfg.Errors),
		zap.Bool("continue_on_error", cfg.ContinueOnError),
		zap.Bool("postgres", b.store != nil),
	)

	r := &replayer{engine: b.engine, ledger: b.ledger, operator: cfg.Operator}
	stats, runErr := r.run(ctx, inputFile, errWriter, cfg.ContinueOnError)

	// committed operations are kept even when the run stops early
	if err := b.save(); err != nil {
		return err
	}

	logger.Info("replay complete",
		zap.Int("total", stats.total),
		zap.Int("applied", stats.applied),
		zap.Int("failed", stats.failed),
	)
	return runErr
}

type replayStats struct {
	total   int
	applied int
	failed  int
}

type replayer struct {
	engine   *amm.Engine
	ledger   ledger.Ledger
	operator common.Address
}

// run applies each operation line in order. A failed operation is recorded and
// skipped, or ends the run when continueOnError is unset. A corrupt pool
// always ends the run.
func (r *replayer) run(ctx context.Context, input io.Reader, errWriter *storage.JSONLWriter, continueOnError bool) (replayStats, error) {
	var stats replayStats

	scanner := bufio.NewScanner(input)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.total++

		var op model.Operation
		err := json.Unmarshal(line, &op)
		if err == nil {
			err = op.Validate()
		}
		if err == nil {
			err = r.apply(ctx, op)
		}
		if err == nil {
			stats.applied++
			continue
		}

		stats.failed++
		record := model.OperationError{
			Line:  lineNo,
			Op:    op.Op,
			Kind:  amm.KindOf(err).String(),
			Error: err.Error(),
			Raw:   string(line),
		}
		if werr := errWriter.Write(record); werr != nil {
			return stats, fmt.Errorf("record line %d: %w", lineNo, werr)
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if amm.IsFatal(err) || !continueOnError {
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

func (r *replayer) apply(ctx context.Context, op model.Operation) error {
	key := op.Key()
	switch op.Op {
	case model.OpInitialize:
		_, err := r.engine.Initialize(ctx, amm.InitializeParams{
			Seed:   op.Seed,
			AssetX: op.AssetX,
			AssetY: op.AssetY,
			FeeBps: op.FeeBps,
			Admin:  op.Admin,
			Caller: op.Caller,
		})
		return err
	case model.OpDeposit:
		_, err := r.engine.Deposit(ctx, key, op.Caller, op.Shares, op.MaxX, op.MaxY)
		return err
	case model.OpWithdraw:
		_, err := r.engine.Withdraw(ctx, key, op.Caller, op.Shares, op.MinX, op.MinY)
		return err
	case model.OpSwap:
		_, err := r.engine.Swap(ctx, key, op.Caller, op.Direction, op.AmountIn, op.MinOut)
		return err
	case model.OpSetLock:
		_, err := r.engine.SetLock(ctx, key, op.Caller, op.Locked)
		return err
	case model.OpMint:
		if r.operator == (common.Address{}) {
			return fmt.Errorf("mint requires an operator address")
		}
		return ledger.Issue(ctx, r.ledger, op.Asset, r.operator, op.Caller, op.Amount)
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
}
