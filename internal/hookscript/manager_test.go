package hookscript

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpcdrift/internal/adapter"
	"rpcdrift/internal/hooks"
)

type noArgs struct{}

func readOf(fn string) adapter.ReadParams {
	return adapter.ReadParams{
		Address:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		FunctionName: fn,
	}
}

func echoRead(ctx context.Context, p adapter.ReadParams) (any, error) {
	return "adapter:" + p.FunctionName, nil
}

func setup(t *testing.T, sources ...string) (*Manager, *hooks.Registry) {
	t.Helper()
	m := NewManager(zerolog.Nop())
	for i, src := range sources {
		require.NoError(t, m.Load("script"+string(rune('a'+i)), src))
	}
	reg := hooks.NewRegistry()
	m.Register(reg)
	return m, reg
}

func TestManager_LoadValidation(t *testing.T) {
	m := NewManager(zerolog.Nop())

	assert.ErrorContains(t, m.Load("none", "function handle(call) {}"), "@hook")
	assert.ErrorContains(t, m.Load("bad-event", "// @hook read\nfunction handle(call) {}"), "invalid hook event")
	assert.ErrorContains(t, m.Load("syntax", "// @hook before:read\nfunction handle(call) {"), "compile")
	assert.Empty(t, m.Scripts())

	require.NoError(t, m.Load("ok", "// @hook before:read\n// @hook after:getBlock\nfunction handle(call) {}"))
	scripts := m.Scripts()
	require.Len(t, scripts, 1)
	assert.Equal(t, []string{"before:read", "after:getBlock"}, scripts[0].Events)
}

func TestManager_LoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "decimals.js"), []byte("// @hook before:read\nfunction handle(call) {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.js"), []byte("function handle(call) {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("// @hook before:read"), 0o644))

	m := NewManager(zerolog.Nop())
	require.NoError(t, m.LoadFromDirectory(dir))

	scripts := m.Scripts()
	require.Len(t, scripts, 1)
	assert.Equal(t, "decimals", scripts[0].Name)

	assert.NoError(t, m.LoadFromDirectory(filepath.Join(dir, "missing")))
	assert.Error(t, m.LoadFromDirectory(filepath.Join(dir, "notes.txt")))
}

func TestScript_ResolveShortCircuits(t *testing.T) {
	_, reg := setup(t, `
// @hook before:read
function handle(call) {
  if (call.args.functionName === "decimals") {
    call.resolve(18)
  }
}`)

	v, err := hooks.Intercept(context.Background(), reg, "read", readOf("decimals"), echoRead)
	require.NoError(t, err)
	assert.Equal(t, int64(18), v)

	v, err = hooks.Intercept(context.Background(), reg, "read", readOf("name"), echoRead)
	require.NoError(t, err)
	assert.Equal(t, "adapter:name", v)
}

func TestScript_SetArgsKeepsHiddenFields(t *testing.T) {
	_, reg := setup(t, `
// @hook before:read
function handle(call) {
  call.setArgs({functionName: "symbol"})
}`)

	parsed := &abi.ABI{}
	params := readOf("name")
	params.ABI = parsed

	var seen adapter.ReadParams
	_, err := hooks.Intercept(context.Background(), reg, "read", params, func(ctx context.Context, p adapter.ReadParams) (any, error) {
		seen = p
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "symbol", seen.FunctionName)
	assert.Equal(t, params.Address, seen.Address)
	assert.Same(t, parsed, seen.ABI)
}

func TestScript_SetResultConvertsType(t *testing.T) {
	_, reg := setup(t, `
// @hook after:getChainId
function handle(call) {
  call.setResult(call.result + 1)
}`)

	id, err := hooks.Intercept(context.Background(), reg, "getChainId", noArgs{}, func(ctx context.Context, _ noArgs) (uint64, error) {
		return 10, nil
	})

	require.NoError(t, err)
	assert.Equal(t, uint64(11), id)
}

func TestScript_ExceptionFailsCall(t *testing.T) {
	_, reg := setup(t, `
// @hook before:read
function handle(call) {
  throw new Error("reads are disabled")
}`)

	_, err := hooks.Intercept(context.Background(), reg, "read", readOf("name"), echoRead)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reads are disabled")
}

func TestScript_BadResultType(t *testing.T) {
	_, reg := setup(t, `
// @hook after:getChainId
function handle(call) {
  call.setResult("not a number")
}`)

	_, err := hooks.Intercept(context.Background(), reg, "getChainId", noArgs{}, func(ctx context.Context, _ noArgs) (uint64, error) {
		return 1, nil
	})
	assert.ErrorContains(t, err, "setResult")
}

func TestScript_Timeout(t *testing.T) {
	m, reg := setup(t, `
// @hook before:read
function handle(call) {
  while (true) {}
}`)
	m.SetTimeout(50 * time.Millisecond)

	_, err := hooks.Intercept(context.Background(), reg, "read", readOf("name"), echoRead)
	assert.ErrorContains(t, err, "timed out")
}

func TestScript_Utils(t *testing.T) {
	_, reg := setup(t, `
// @hook before:read
function handle(call) {
  call.resolve([
    utils.keccak256(""),
    utils.getFunctionSelector("transfer(address,uint256)"),
    utils.bytesToHex(utils.hexToBytes("0x0102")),
    utils.checksumAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"),
  ])
}`)

	v, err := hooks.Intercept(context.Background(), reg, "read", readOf("x"), echoRead)
	require.NoError(t, err)
	assert.Equal(t, []any{
		"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		"0xa9059cbb",
		"0x0102",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	}, v)
}

func TestManager_Close(t *testing.T) {
	m, _ := setup(t, "// @hook before:read\nfunction handle(call) {}")
	m.Close()
	assert.Empty(t, m.Scripts())
}
