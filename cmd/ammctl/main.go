package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "ammctl",
		Short:        "Constant-product pool settlement",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty pool",
		RunE:  runInit,
	}
	addBackendFlags(initCmd)
	addPoolFlags(initCmd)
	initCmd.Flags().String("caller", "", "caller address")
	initCmd.Flags().Uint16("fee", 30, "swap fee in basis points")
	initCmd.Flags().String("admin", "", "admin address allowed to lock the pool (empty means never lockable)")
	root.AddCommand(initCmd)

	depositCmd := &cobra.Command{
		Use:   "deposit",
		Short: "Add liquidity for a number of LP shares",
		RunE:  runDeposit,
	}
	addBackendFlags(depositCmd)
	addPoolFlags(depositCmd)
	depositCmd.Flags().String("caller", "", "caller address")
	depositCmd.Flags().Uint64("shares", 0, "LP shares to mint (ignored when the pool is empty)")
	depositCmd.Flags().Uint64("max-x", 0, "maximum X to pay")
	depositCmd.Flags().Uint64("max-y", 0, "maximum Y to pay")
	root.AddCommand(depositCmd)

	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Burn LP shares for reserves",
		RunE:  runWithdraw,
	}
	addBackendFlags(withdrawCmd)
	addPoolFlags(withdrawCmd)
	withdrawCmd.Flags().String("caller", "", "caller address")
	withdrawCmd.Flags().Uint64("shares", 0, "LP shares to burn")
	withdrawCmd.Flags().Uint64("min-x", 0, "minimum X to receive")
	withdrawCmd.Flags().Uint64("min-y", 0, "minimum Y to receive")
	root.AddCommand(withdrawCmd)

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap one pool asset for the other",
		RunE:  runSwap,
	}
	addBackendFlags(swapCmd)
	addPoolFlags(swapCmd)
	swapCmd.Flags().String("caller", "", "caller address")
	swapCmd.Flags().String("direction", "x_to_y", "swap direction (x_to_y, y_to_x)")
	swapCmd.Flags().Uint64("amount-in", 0, "input amount")
	swapCmd.Flags().Uint64("min-out", 0, "minimum output amount")
	root.AddCommand(swapCmd)

	for _, locked := range []bool{true, false} {
		use, short := "lock", "Lock a pool against deposits and swaps"
		if !locked {
			use, short = "unlock", "Unlock a pool"
		}
		lockCmd := &cobra.Command{
			Use:   use,
			Short: short,
			RunE:  runSetLock(locked),
		}
		addBackendFlags(lockCmd)
		addPoolFlags(lockCmd)
		lockCmd.Flags().String("caller", "", "caller address (must be the pool admin)")
		root.AddCommand(lockCmd)
	}

	mintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Issue a test asset to an account (operator is the asset authority)",
		RunE:  runMint,
	}
	addBackendFlags(mintCmd)
	mintCmd.Flags().String("operator", "", "authority address for issued assets")
	mintCmd.Flags().String("asset", "", "asset address")
	mintCmd.Flags().String("to", "", "recipient address")
	mintCmd.Flags().Uint64("amount", 0, "amount to issue")
	root.AddCommand(mintCmd)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print pool state",
		RunE:  runShow,
	}
	addBackendFlags(showCmd)
	addPoolFlags(showCmd)
	showCmd.Flags().String("account", "", "also print this account's share balance")
	showCmd.Flags().String("rpc", "", "RPC URL for asset metadata")
	showCmd.Flags().Int("cache-size", 256, "asset metadata cache size")
	root.AddCommand(showCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap without executing it",
		RunE:  runQuote,
	}
	addBackendFlags(quoteCmd)
	addPoolFlags(quoteCmd)
	quoteCmd.Flags().String("direction", "x_to_y", "swap direction (x_to_y, y_to_x)")
	quoteCmd.Flags().Uint64("amount-in", 0, "input amount")
	root.AddCommand(quoteCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply a JSONL file of operations",
		RunE:  runReplay,
	}
	addBackendFlags(replayCmd)
	replayCmd.Flags().String("operator", "", "authority address for issued assets")
	replayCmd.Flags().String("in", "", "input operations JSONL")
	replayCmd.Flags().String("errors", "./data/replay_errors.jsonl", "failed operations JSONL")
	replayCmd.Flags().Bool("continue-on-error", true, "keep going after a failed operation")
	root.AddCommand(replayCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addBackendFlags(cmd *cobra.Command) {
	cmd.Flags().String("state-file", "./data/ledger.json", "ledger state file (used without pg-dsn)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().StringSlice("events", nil, "event JSONL paths (comma-separated)")
	cmd.Flags().String("bootstrap-rule", "max", "initial share rule (max, geometric)")
	cmd.Flags().Int("max-retries", 3, "maximum conflict retries")
	cmd.Flags().Duration("retry-backoff", 50*time.Millisecond, "initial conflict retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("x", "", "asset X address")
	cmd.Flags().String("y", "", "asset Y address")
	cmd.Flags().Uint64("seed", 0, "pool seed")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
