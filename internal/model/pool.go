package model

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	poolAccountTag = []byte("pool")
	shareAssetTag  = []byte("lp")
)

// PoolKey identifies a pool. Asset order is part of the identity, so
// (X, Y, seed) and (Y, X, seed) are different pools.
type PoolKey struct {
	AssetX common.Address `json:"asset_x"`
	AssetY common.Address `json:"asset_y"`
	Seed   uint64         `json:"seed,string"`
}

// Account returns the principal that owns the pool vaults and mints its shares.
func (k PoolKey) Account() common.Address {
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], k.Seed)
	hash := crypto.Keccak256(poolAccountTag, k.AssetX.Bytes(), k.AssetY.Bytes(), seed[:])
	return common.BytesToAddress(hash[12:])
}

// ShareAsset returns the LP share asset id of the pool.
func (k PoolKey) ShareAsset() common.Address {
	account := k.Account()
	hash := crypto.Keccak256(shareAssetTag, account.Bytes())
	return common.BytesToAddress(hash[12:])
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s#%d", k.AssetX.Hex(), k.AssetY.Hex(), k.Seed)
}

// Pool is the persisted pool record. Reserves and LP supply are not stored here;
// they are the ledger balances of Account and the supply of ShareAsset.
type Pool struct {
	Seed       uint64          `json:"seed,string"`
	Admin      *common.Address `json:"admin,omitempty"`
	AssetX     common.Address  `json:"asset_x"`
	AssetY     common.Address  `json:"asset_y"`
	ShareAsset common.Address  `json:"share_asset"`
	Account    common.Address  `json:"account"`
	FeeBps     uint16          `json:"fee_bps"`
	Locked     bool            `json:"locked"`
}

// Key returns the identity of the pool.
func (p Pool) Key() PoolKey {
	return PoolKey{AssetX: p.AssetX, AssetY: p.AssetY, Seed: p.Seed}
}

// PoolState is a read view of a pool together with its ledger balances.
type PoolState struct {
	Pool     Pool   `json:"pool"`
	ReserveX uint64 `json:"reserve_x,string"`
	ReserveY uint64 `json:"reserve_y,string"`
	Supply   uint64 `json:"supply,string"`
}

// Empty reports whether the pool holds no liquidity.
func (s PoolState) Empty() bool {
	return s.Supply == 0
}

// Reserves returns the (in, out) reserves for a swap in the given direction.
func (s PoolState) Reserves(dir Direction) (uint64, uint64) {
	if dir == YToX {
		return s.ReserveY, s.ReserveX
	}
	return s.ReserveX, s.ReserveY
}

// Direction is the side of a swap.
type Direction uint8

const (
	XToY Direction = iota
	YToX
)

// ParseDirection parses "x_to_y" / "y_to_x" and the arrow forms.
func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "x_to_y", "x->y", "xy", "x":
		return XToY, nil
	case "y_to_x", "y->x", "yx", "y":
		return YToX, nil
	default:
		return XToY, fmt.Errorf("invalid direction %q", value)
	}
}

func (d Direction) String() string {
	if d == YToX {
		return "y_to_x"
	}
	return "x_to_y"
}

// Assets returns the (in, out) assets of a pool for the direction.
func (d Direction) Assets(p Pool) (common.Address, common.Address) {
	if d == YToX {
		return p.AssetY, p.AssetX
	}
	return p.AssetX, p.AssetY
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
