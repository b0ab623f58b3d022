package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// OpKind names an operation in a replay file.
type OpKind string

const (
	OpInitialize OpKind = "initialize"
	OpDeposit    OpKind = "deposit"
	OpWithdraw   OpKind = "withdraw"
	OpSwap       OpKind = "swap"
	OpSetLock    OpKind = "set_lock"
	OpMint       OpKind = "mint"
)

// Operation is one line of a replay file. Amount fields are interpreted per kind:
//
//	deposit:  Shares, MaxX, MaxY
//	withdraw: Shares, MinX, MinY
//	swap:     Direction, AmountIn, MinOut
//	mint:     Asset, Amount (dev faucet)
type Operation struct {
	Op        OpKind          `json:"op"`
	AssetX    common.Address  `json:"asset_x"`
	AssetY    common.Address  `json:"asset_y"`
	Seed      uint64          `json:"seed,string"`
	Caller    common.Address  `json:"caller"`
	FeeBps    uint16          `json:"fee_bps,omitempty"`
	Admin     *common.Address `json:"admin,omitempty"`
	Shares    uint64          `json:"shares,omitempty,string"`
	MaxX      uint64          `json:"max_x,omitempty,string"`
	MaxY      uint64          `json:"max_y,omitempty,string"`
	MinX      uint64          `json:"min_x,omitempty,string"`
	MinY      uint64          `json:"min_y,omitempty,string"`
	Direction Direction       `json:"direction,omitempty"`
	AmountIn  uint64          `json:"amount_in,omitempty,string"`
	MinOut    uint64          `json:"min_out,omitempty,string"`
	Locked    bool            `json:"locked,omitempty"`
	Asset     common.Address  `json:"asset,omitempty"`
	Amount    uint64          `json:"amount,omitempty,string"`
}

// Key returns the pool identity the operation targets.
func (o Operation) Key() PoolKey {
	return PoolKey{AssetX: o.AssetX, AssetY: o.AssetY, Seed: o.Seed}
}

// Validate checks that the operation kind is known.
func (o Operation) Validate() error {
	switch o.Op {
	case OpInitialize, OpDeposit, OpWithdraw, OpSwap, OpSetLock, OpMint:
		return nil
	case "":
		return fmt.Errorf("missing op")
	default:
		return fmt.Errorf("unknown op %q", o.Op)
	}
}

// OperationError is written to the errors file when a replayed operation fails.
type OperationError struct {
	Line  int    `json:"line"`
	Op    OpKind `json:"op,omitempty"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
	Raw   string `json:"raw,omitempty"`
}
