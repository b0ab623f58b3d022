package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammCore/internal/amm"
	"ammCore/internal/config"
	"ammCore/internal/ledger"
	"ammCore/internal/storage"
	"ammCore/internal/storage/postgres"
)

// backend is the ledger and engine a command runs against: Postgres when a
// DSN is configured, otherwise the in-memory ledger persisted to the state file.
type backend struct {
	ledger ledger.Ledger
	engine *amm.Engine
	memory *ledger.Memory
	store  *postgres.Store

	stateFile string
	logger    *zap.Logger
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	b := &backend{stateFile: cfg.StateFile, logger: logger}

	sinks := storage.MultiSink{}
	for _, path := range cfg.Events {
		sinks = append(sinks, storage.NewJSONLSink(path))
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN, logger)
		if err != nil {
			return nil, err
		}
		b.store = store
		b.ledger = store
		sinks = append(sinks, store)
	} else {
		if cfg.StateFile == "" {
			return nil, fmt.Errorf("state file or pg dsn is required")
		}
		mem, err := ledger.LoadFile(cfg.StateFile)
		if err != nil {
			return nil, err
		}
		b.memory = mem
		b.ledger = mem
	}

	b.engine = amm.NewEngine(amm.Config{
		Bootstrap:    cfg.Bootstrap,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, b.ledger, sinks, logger)
	return b, nil
}

// save persists the in-memory ledger. Postgres commits are already durable.
func (b *backend) save() error {
	if b.memory == nil {
		return nil
	}
	if err := b.memory.SaveFile(b.stateFile); err != nil {
		return err
	}
	b.logger.Debug("ledger saved", zap.String("path", b.stateFile))
	return nil
}

func (b *backend) Close() {
	if b.store != nil {
		b.store.Close()
	}
}

// withBackend loads config, builds the logger and backend, and runs fn until
// it returns or the process is interrupted.
func withBackend(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, b *backend) error) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(ctx, cfg, b)
}

func printJSON(w io.Writer, value interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
