package model

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a committed pool operation.
type EventKind string

const (
	EventInitialize EventKind = "initialize"
	EventDeposit    EventKind = "deposit"
	EventWithdraw   EventKind = "withdraw"
	EventSwap       EventKind = "swap"
	EventSetLock    EventKind = "set_lock"
)

// PoolEvent records one committed operation.
type PoolEvent struct {
	Kind   EventKind       `json:"kind"`
	Pool   common.Address  `json:"pool"`
	Caller common.Address  `json:"caller"`
	Time   time.Time       `json:"time"`
	Data   json.RawMessage `json:"data"`
}

// InitializeEventData is the payload of an initialize event.
type InitializeEventData struct {
	Seed       uint64          `json:"seed,string"`
	AssetX     common.Address  `json:"asset_x"`
	AssetY     common.Address  `json:"asset_y"`
	ShareAsset common.Address  `json:"share_asset"`
	FeeBps     uint16          `json:"fee_bps"`
	Admin      *common.Address `json:"admin,omitempty"`
}

// DepositEventData is the payload of a deposit event.
type DepositEventData struct {
	AmountX   uint64 `json:"amount_x,string"`
	AmountY   uint64 `json:"amount_y,string"`
	Shares    uint64 `json:"shares,string"`
	Bootstrap bool   `json:"bootstrap"`
}

// WithdrawEventData is the payload of a withdraw event.
type WithdrawEventData struct {
	AmountX uint64 `json:"amount_x,string"`
	AmountY uint64 `json:"amount_y,string"`
	Shares  uint64 `json:"shares,string"`
}

// SwapEventData is the payload of a swap event.
type SwapEventData struct {
	Direction Direction `json:"direction"`
	AmountIn  uint64    `json:"amount_in,string"`
	AmountOut uint64    `json:"amount_out,string"`
}

// SetLockEventData is the payload of a set_lock event.
type SetLockEventData struct {
	Locked bool `json:"locked"`
}

// NewPoolEvent builds an event with a marshalled payload.
func NewPoolEvent(kind EventKind, pool, caller common.Address, at time.Time, data any) (PoolEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return PoolEvent{}, err
	}
	return PoolEvent{Kind: kind, Pool: pool, Caller: caller, Time: at.UTC(), Data: raw}, nil
}
