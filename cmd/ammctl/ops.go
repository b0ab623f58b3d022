package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammCore/internal/amm"
	"ammCore/internal/chain"
	"ammCore/internal/config"
	"ammCore/internal/curve"
	"ammCore/internal/ledger"
	"ammCore/internal/model"
	"ammCore/internal/storage/postgres"
	"ammCore/internal/tokens"
)

func runInit(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd, func(ctx context.Context, _ config.Config, b *backend) error {
		key, err := poolKeyFlags(cmd)
		if err != nil {
			return err
		}
		caller, err := addressFlag(cmd, "caller", false)
		if err != nil {
			return err
		}
		fee, _ := cmd.Flags().GetUint16("fee")
		adminValue, _ := cmd.Flags().GetString("admin")

		params := amm.InitializeParams{
			Seed:   key.Seed,
			AssetX: key.AssetX,
			AssetY: key.AssetY,
			FeeBps: fee,
			Caller: caller,
		}
		if adminValue != "" {
			admin, err := config.ParseAddress(adminValue)
			if err != nil {
				return fmt.Errorf("admin: %w", err)
			}
			params.Admin = &admin
		}

		pool, err := b.engine.Initialize(ctx, params)
		if err != nil {
			return err
		}
		if err := b.save(); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), pool)
	})
}

func runDeposit(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd, func(ctx context.Context, _ config.Config, b *backend) error {
		key, err := poolKeyFlags(cmd)
		if err != nil {
			return err
		}
		caller, err := addressFlag(cmd, "caller", true)
		if err != nil {
			return err
		}
		shares, _ := cmd.Flags().GetUint64("shares")
		maxX, _ := cmd.Flags().GetUint64("max-x")
		maxY, _ := cmd.Flags().GetUint64("max-y")

		res, err := b.engine.Deposit(ctx, key, caller, shares, maxX, maxY)
		if err != nil {
			return err
		}
		if err := b.save(); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}

func runWithdraw(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd, func(ctx context.Context, _ config.Config, b *backend) error {
		key, err := poolKeyFlags(cmd)
		if err != nil {
			return err
		}
		caller, err := addressFlag(cmd, "caller", true)
		if err != nil {
			return err
		}
		shares, _ := cmd.Flags().GetUint64("shares")
		minX, _ := cmd.Flags().GetUint64("min-x")
		minY, _ := cmd.Flags().GetUint64("min-y")

		res, err := b.engine.Withdraw(ctx, key, caller, shares, minX, minY)
		if err != nil {
			return err
		}
		if err := b.save(); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}

func runSwap(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd, func(ctx context.Context, _ config.Config, b *backend) error {
		key, err := poolKeyFlags(cmd)
		if err != nil {
			return err
		}
		caller, err := addressFlag(cmd, "caller", true)
		if err != nil {
			return err
		}
		dirValue, _ := cmd.Flags().GetString("direction")
		dir, err := model.ParseDirection(dirValue)
		if err != nil {
			return err
		}
		amountIn, _ := cmd.Flags().GetUint64("amount-in")
		minOut, _ := cmd.Flags().GetUint64("min-out")

		res, err := b.engine.Swap(ctx, key, caller, dir, amountIn, minOut)
		if err != nil {
			return err
		}
		if err := b.save(); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}

func runSetLock(locked bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return withBackend(cmd, func(ctx context.Context, _ config.Config, b *backend) error {
			key, err := poolKeyFlags(cmd)
			if err != nil {
				return err
			}
			caller, err := addressFlag(cmd, "caller", true)
			if err != nil {
				return err
			}

			pool, err := b.engine.SetLock(ctx, key, caller, locked)
			if err != nil {
				return err
			}
			if err := b.save(); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pool)
		})
	}
}

func runMint(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd, func(ctx context.Context, cfg config.Config, b *backend) error {
		if cfg.Operator == (common.Address{}) {
			return fmt.Errorf("operator address is required")
		}
		asset, err := addressFlag(cmd, "asset", true)
		if err != nil {
			return err
		}
		to, err := addressFlag(cmd, "to", true)
		if err != nil {
			return err
		}
		amount, _ := cmd.Flags().GetUint64("amount")
		if amount == 0 {
			return fmt.Errorf("amount must be positive")
		}

		if err := ledger.Issue(ctx, b.ledger, asset, cfg.Operator, to, amount); err != nil {
			return err
		}
		if err := b.save(); err != nil {
			return err
		}
		b.logger.Info("asset issued",
			zap.String("asset", asset.Hex()),
			zap.String("to", to.Hex()),
			zap.Uint64("amount", amount),
		)
		return nil
	})
}

// poolView is the output of show.
type poolView struct {
	model.PoolState
	Assets        *tokens.PoolAssets `json:"assets,omitempty"`
	Display       map[string]string  `json:"display,omitempty"`
	Holder        *common.Address    `json:"holder,omitempty"`
	HolderShares  *uint64            `json:"holder_shares,omitempty,string"`
	HolderBalance map[string]string  `json:"holder_balance,omitempty"`
}

func runShow(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd, func(ctx context.Context, cfg config.Config, b *backend) error {
		key, err := poolKeyFlags(cmd)
		if err != nil {
			return err
		}
		holder, err := addressFlag(cmd, "account", false)
		if err != nil {
			return err
		}

		state, err := b.engine.State(ctx, key)
		if err != nil {
			return err
		}
		view := poolView{PoolState: state}

		var caller tokens.Caller
		if cfg.RPCURL != "" {
			client, err := chain.NewClient(ctx, cfg.RPCURL)
			if err != nil {
				return fmt.Errorf("connect rpc: %w", err)
			}
			defer client.Close()
			chainID, err := client.ChainID(ctx)
			if err != nil {
				return fmt.Errorf("chain id: %w", err)
			}
			b.logger.Info("rpc connected", zap.String("rpc", cfg.RPCURL), zap.String("chain_id", chainID.String()))
			caller = client
		}
		resolver, err := tokens.NewResolver(caller, cfg.AssetLabels, cfg.CacheSize, b.logger)
		if err != nil {
			return err
		}
		assets, err := resolver.ResolvePool(ctx, state.Pool)
		if err != nil {
			b.logger.Warn("asset metadata lookup failed", zap.String("pool", key.String()), zap.Error(err))
		}
		view.Assets = &assets
		view.Display = map[string]string{
			"reserve_x": displayAmount(state.ReserveX, assets.X),
			"reserve_y": displayAmount(state.ReserveY, assets.Y),
			"supply":    displayAmount(state.Supply, assets.Share),
		}

		if holder != (common.Address{}) {
			shares, err := b.engine.ShareBalance(ctx, key, holder)
			if err != nil {
				return err
			}
			view.Holder = &holder
			view.HolderShares = &shares
			if state.Supply > 0 {
				// what the holder would receive for all shares right now
				x, y, err := curve.WithdrawAmounts(state.ReserveX, state.ReserveY, state.Supply, shares)
				if err != nil {
					return err
				}
				view.HolderBalance = map[string]string{
					"x": displayAmount(x, assets.X),
					"y": displayAmount(y, assets.Y),
				}
			}
		}

		if b.store != nil {
			events, err := b.store.Events(ctx, state.Pool.Account, 10)
			if err != nil {
				b.logger.Warn("load events failed", zap.Error(err))
			} else {
				b.logger.Info("pool events", zap.String("pool", key.String()), zap.Int("count", len(events)))
				for _, event := range events {
					b.logger.Debug("event",
						zap.String("kind", string(event.Kind)),
						zap.Time("time", event.Time),
						zap.ByteString("data", event.Data),
					)
				}
			}
		}

		return printJSON(cmd.OutOrStdout(), view)
	})
}

func runQuote(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd, func(ctx context.Context, _ config.Config, b *backend) error {
		key, err := poolKeyFlags(cmd)
		if err != nil {
			return err
		}
		dirValue, _ := cmd.Flags().GetString("direction")
		dir, err := model.ParseDirection(dirValue)
		if err != nil {
			return err
		}
		amountIn, _ := cmd.Flags().GetUint64("amount-in")

		out, err := b.engine.QuoteSwap(ctx, key, dir, amountIn)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), amm.SwapResult{AmountIn: amountIn, AmountOut: out})
	})
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := postgres.NewStore(cmd.Context(), cfg.PGDSN, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(cmd.Context()); err != nil {
		return err
	}
	logger.Info("schema ready")
	return nil
}

func poolKeyFlags(cmd *cobra.Command) (model.PoolKey, error) {
	x, err := addressFlag(cmd, "x", true)
	if err != nil {
		return model.PoolKey{}, err
	}
	y, err := addressFlag(cmd, "y", true)
	if err != nil {
		return model.PoolKey{}, err
	}
	seed, _ := cmd.Flags().GetUint64("seed")
	return model.PoolKey{AssetX: x, AssetY: y, Seed: seed}, nil
}

func addressFlag(cmd *cobra.Command, name string, required bool) (common.Address, error) {
	value, _ := cmd.Flags().GetString(name)
	addr, err := config.ParseAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", name, err)
	}
	if required && addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s address is required", name)
	}
	return addr, nil
}

func displayAmount(value uint64, meta model.AssetMeta) string {
	return tokens.FormatAmount(value, meta.Decimals) + " " + meta.Symbol
}
