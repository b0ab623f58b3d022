package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ammCore/internal/amm"
	"ammCore/internal/ledger"
	"ammCore/internal/model"
	"ammCore/internal/storage"
)

const replayInput = `
{"op":"mint","asset":"0x00000000000000000000000000000000000000a1","caller":"0x00000000000000000000000000000000000000b1","amount":"1000000000"}
{"op":"mint","asset":"0x00000000000000000000000000000000000000a2","caller":"0x00000000000000000000000000000000000000b1","amount":"1000000000"}
{"op":"initialize","asset_x":"0x00000000000000000000000000000000000000a1","asset_y":"0x00000000000000000000000000000000000000a2","seed":"1","fee_bps":30,"admin":"0x00000000000000000000000000000000000000ad","caller":"0x00000000000000000000000000000000000000ad"}
{"op":"deposit","asset_x":"0x00000000000000000000000000000000000000a1","asset_y":"0x00000000000000000000000000000000000000a2","seed":"1","caller":"0x00000000000000000000000000000000000000b1","shares":"1","max_x":"1000000","max_y":"4000000"}
not json
{"op":"swap","asset_x":"0x00000000000000000000000000000000000000a1","asset_y":"0x00000000000000000000000000000000000000a2","seed":"1","caller":"0x00000000000000000000000000000000000000b1","direction":"x_to_y","amount_in":"100000","min_out":"1"}
{"op":"set_lock","asset_x":"0x00000000000000000000000000000000000000a1","asset_y":"0x00000000000000000000000000000000000000a2","seed":"1","caller":"0x00000000000000000000000000000000000000b1","locked":true}
{"op":"bogus"}
`

var (
	replayX   = common.HexToAddress("0xa1")
	replayY   = common.HexToAddress("0xa2")
	replayKey = model.PoolKey{AssetX: replayX, AssetY: replayY, Seed: 1}
)

func newReplayer(t *testing.T) (*replayer, *ledger.Memory) {
	t.Helper()
	mem := ledger.NewMemory()
	engine := amm.NewEngine(amm.Config{}, mem, nil, zaptest.NewLogger(t))
	return &replayer{engine: engine, ledger: mem, operator: common.HexToAddress("0x0f")}, mem
}

func readErrors(t *testing.T, path string) []model.OperationError {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var out []model.OperationError
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.OperationError
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		out = append(out, record)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestReplayContinuesPastFailures(t *testing.T) {
	r, _ := newReplayer(t)
	errPath := filepath.Join(t.TempDir(), "errors.jsonl")
	errWriter, err := storage.NewJSONLWriter(errPath)
	require.NoError(t, err)

	stats, err := r.run(context.Background(), strings.NewReader(replayInput), errWriter, true)
	require.NoError(t, err)
	require.NoError(t, errWriter.Close())
	require.Equal(t, replayStats{total: 8, applied: 5, failed: 3}, stats)

	records := readErrors(t, errPath)
	require.Len(t, records, 3)
	require.Equal(t, 6, records[0].Line)
	require.Equal(t, "Other", records[0].Kind)
	require.Equal(t, model.OpSetLock, records[1].Op)
	require.Equal(t, "Unauthorized", records[1].Kind)
	require.Equal(t, "Other", records[2].Kind)

	state, err := r.engine.State(context.Background(), replayKey)
	require.NoError(t, err)
	require.Equal(t, uint64(1_100_000), state.ReserveX)
	require.Equal(t, uint64(4_000_000-362_644), state.ReserveY)
	require.Equal(t, uint64(4_000_000), state.Supply)
	require.False(t, state.Pool.Locked)
}

func TestReplayStopsOnFirstFailure(t *testing.T) {
	r, _ := newReplayer(t)
	errWriter, err := storage.NewJSONLWriter(filepath.Join(t.TempDir(), "errors.jsonl"))
	require.NoError(t, err)
	defer errWriter.Close()

	stats, err := r.run(context.Background(), strings.NewReader(replayInput), errWriter, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 6")
	require.Equal(t, replayStats{total: 5, applied: 4, failed: 1}, stats)

	// operations before the failure stay committed
	state, err := r.engine.State(context.Background(), replayKey)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), state.ReserveX)
}

func TestReplayMintNeedsOperator(t *testing.T) {
	r, _ := newReplayer(t)
	r.operator = common.Address{}
	err := r.apply(context.Background(), model.Operation{Op: model.OpMint, Asset: replayX, Caller: replayY, Amount: 5})
	require.Error(t, err)
}
