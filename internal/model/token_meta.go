package model

import "github.com/ethereum/go-ethereum/common"

// AssetMeta is the display metadata of a pool asset. LP shares resolve to
// ShareDecimals without a chain lookup.
type AssetMeta struct {
	Asset    common.Address `json:"asset"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
}
