package tokens

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ammCore/internal/curve"
	"ammCore/internal/model"
)

const defaultCacheSize = 256

// Caller is the eth_call surface the resolver needs; *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolAssets is the display metadata of both pool assets and its share asset.
type PoolAssets struct {
	X     model.AssetMeta `json:"x"`
	Y     model.AssetMeta `json:"y"`
	Share model.AssetMeta `json:"share"`
}

// Resolver looks up asset metadata from static labels first, then from the
// chain, keeping successful lookups in an LRU cache.
type Resolver struct {
	caller Caller
	static map[common.Address]model.AssetMeta
	cache  *lru.Cache[common.Address, model.AssetMeta]
	logger *zap.Logger
}

// NewResolver builds a resolver. caller may be nil, in which case unlabeled
// assets resolve to their address with zero decimals.
func NewResolver(caller Caller, labels map[string]string, cacheSize int, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	static, err := ParseLabels(labels)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[common.Address, model.AssetMeta](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{caller: caller, static: static, cache: cache, logger: logger}, nil
}

// ParseLabels parses "address" -> "SYMBOL:decimals" entries.
func ParseLabels(labels map[string]string) (map[common.Address]model.AssetMeta, error) {
	out := make(map[common.Address]model.AssetMeta, len(labels))
	for key, value := range labels {
		key = strings.TrimSpace(key)
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("asset label %q: invalid address", key)
		}
		symbol, decimalsText, ok := strings.Cut(strings.TrimSpace(value), ":")
		if !ok || symbol == "" {
			return nil, fmt.Errorf("asset label %q: expected SYMBOL:decimals, got %q", key, value)
		}
		decimals, err := strconv.ParseUint(decimalsText, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("asset label %q: decimals: %w", key, err)
		}
		asset := common.HexToAddress(key)
		out[asset] = model.AssetMeta{Asset: asset, Decimals: uint8(decimals), Symbol: symbol, Name: symbol}
	}
	return out, nil
}

// Resolve returns the metadata of one asset.
func (r *Resolver) Resolve(ctx context.Context, asset common.Address) (model.AssetMeta, error) {
	if meta, ok := r.static[asset]; ok {
		return meta, nil
	}
	if meta, ok := r.cache.Get(asset); ok {
		return meta, nil
	}
	if r.caller == nil {
		return fallbackMeta(asset), nil
	}

	meta, err := fetchMeta(ctx, r.caller, asset, r.logger)
	if err != nil {
		return fallbackMeta(asset), err
	}
	r.cache.Add(asset, meta)
	return meta, nil
}

// ResolvePool resolves both pool assets concurrently. The share asset is
// named after them and always carries curve.ShareDecimals.
func (r *Resolver) ResolvePool(ctx context.Context, pool model.Pool) (PoolAssets, error) {
	var out PoolAssets
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		meta, err := r.Resolve(gctx, pool.AssetX)
		out.X = meta
		if err != nil {
			return fmt.Errorf("asset x: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		meta, err := r.Resolve(gctx, pool.AssetY)
		out.Y = meta
		if err != nil {
			return fmt.Errorf("asset y: %w", err)
		}
		return nil
	})
	err := g.Wait()

	symbol := "LP-" + out.X.Symbol + "-" + out.Y.Symbol
	out.Share = model.AssetMeta{
		Asset:    pool.ShareAsset,
		Decimals: curve.ShareDecimals,
		Symbol:   symbol,
		Name:     symbol,
	}
	return out, err
}

// FormatAmount renders a raw amount with the given number of decimals.
func FormatAmount(value uint64, decimals uint8) string {
	if decimals == 0 {
		return strconv.FormatUint(value, 10)
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(new(big.Int).SetUint64(value), denom)
	return rat.FloatString(int(decimals))
}

func fallbackMeta(asset common.Address) model.AssetMeta {
	short := asset.Hex()[:10]
	return model.AssetMeta{Asset: asset, Symbol: short, Name: short}
}

func fetchMeta(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (model.AssetMeta, error) {
	meta := fallbackMeta(token)

	getters, err := loadGetters()
	if err != nil {
		return meta, err
	}

	call := func(method abi.Method) (interface{}, error) {
		resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: method.ID}, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method.Name, err)
		}
		values, err := method.Outputs.Unpack(resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method.Name, err)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("unpack %s: empty result", method.Name)
		}
		return values[0], nil
	}

	value, err := call(getters.Decimals)
	if err != nil {
		return meta, err
	}
	decimals, ok := value.(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unsupported type %T", value)
	}
	meta.Decimals = decimals

	text := func(method, legacy abi.Method) string {
		if value, err := call(method); err == nil {
			if s, ok := value.(string); ok {
				return s
			}
		}
		value, err := call(legacy)
		if err != nil {
			logger.Debug("erc20 text call failed", zap.String("token", token.Hex()), zap.String("method", method.Name), zap.Error(err))
			return ""
		}
		s, _ := bytes32ToString(value)
		return s
	}

	if symbol := text(getters.Symbol, getters.Symbol32); symbol != "" {
		meta.Symbol = symbol
	}
	if name := text(getters.Name, getters.Name32); name != "" {
		meta.Name = name
	}
	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}
