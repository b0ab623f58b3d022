package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ammCore/internal/model"
)

// Snapshot is the serializable content of a Memory ledger.
type Snapshot struct {
	Assets    []AssetEntry   `json:"assets"`
	Balances  []BalanceEntry `json:"balances"`
	Pools     []model.Pool   `json:"pools"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

type AssetEntry struct {
	Asset     common.Address `json:"asset"`
	Authority common.Address `json:"authority"`
	Supply    uint64         `json:"supply,string"`
}

type BalanceEntry struct {
	Asset   common.Address `json:"asset"`
	Account common.Address `json:"account"`
	Amount  uint64         `json:"amount,string"`
}

// Snapshot returns a sorted copy of the committed ledger state.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Assets:   make([]AssetEntry, 0, len(m.assets)),
		Balances: make([]BalanceEntry, 0, len(m.balances)),
		Pools:    make([]model.Pool, 0, len(m.pools)),
	}
	for asset, rec := range m.assets {
		snap.Assets = append(snap.Assets, AssetEntry{Asset: asset, Authority: rec.Authority, Supply: rec.Supply})
	}
	for key, amount := range m.balances {
		snap.Balances = append(snap.Balances, BalanceEntry{Asset: key.Asset, Account: key.Account, Amount: amount})
	}
	for _, pool := range m.pools {
		snap.Pools = append(snap.Pools, pool)
	}

	sort.Slice(snap.Assets, func(i, j int) bool {
		return bytes.Compare(snap.Assets[i].Asset.Bytes(), snap.Assets[j].Asset.Bytes()) < 0
	})
	sort.Slice(snap.Balances, func(i, j int) bool {
		a, b := snap.Balances[i], snap.Balances[j]
		if c := bytes.Compare(a.Asset.Bytes(), b.Asset.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Account.Bytes(), b.Account.Bytes()) < 0
	})
	sort.Slice(snap.Pools, func(i, j int) bool {
		return bytes.Compare(snap.Pools[i].Account.Bytes(), snap.Pools[j].Account.Bytes()) < 0
	})
	return snap
}

// Restore replaces the committed state with snap.
func (m *Memory) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.assets = make(map[common.Address]assetRecord, len(snap.Assets))
	m.balances = make(map[balanceKey]uint64, len(snap.Balances))
	m.pools = make(map[common.Address]model.Pool, len(snap.Pools))
	m.versions = make(map[slot]uint64)

	for _, entry := range snap.Assets {
		m.assets[entry.Asset] = assetRecord{Authority: entry.Authority, Supply: entry.Supply}
	}
	for _, entry := range snap.Balances {
		if entry.Amount != 0 {
			m.balances[balanceKey{Asset: entry.Asset, Account: entry.Account}] = entry.Amount
		}
	}
	for _, pool := range snap.Pools {
		m.pools[pool.Account] = pool
	}
}

// LoadFile builds a Memory ledger from a snapshot file. A missing file yields
// an empty ledger.
func LoadFile(path string) (*Memory, error) {
	m := NewMemory()
	if path == "" {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse ledger: %w", err)
	}
	m.Restore(snap)
	return m, nil
}

// SaveFile writes the committed state to path via a temporary file.
func (m *Memory) SaveFile(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	snap := m.Snapshot()
	snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename ledger: %w", err)
	}
	return nil
}
