package clientcache

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpcdrift/internal/adapter"
	"rpcdrift/internal/metrics"
	"rpcdrift/internal/serialkey"
	"rpcdrift/internal/store"
)

var (
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	holder = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func newCache(t *testing.T, namespace string) *Cache {
	t.Helper()
	return New(store.NewDefault(), Options{Namespace: namespace, Logger: zerolog.Nop()})
}

func readParams(addr common.Address, fn string, block *adapter.BlockSpecifier, args ...any) adapter.ReadParams {
	return adapter.ReadParams{
		Address:      addr,
		FunctionName: fn,
		Args:         args,
		CallOptions:  adapter.CallOptions{Block: block},
	}
}

func TestCache_PreloadReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, "test")
	params := readParams(tokenA, "balanceOf", adapter.AtNumber(100), holder)

	require.NoError(t, c.PreloadRead(ctx, params, big.NewInt(5)))

	v, ok, err := c.GetRead(ctx, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(5), v)

	_, ok, err = c.GetRead(ctx, readParams(tokenA, "balanceOf", adapter.AtNumber(101), holder))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_ReadKeyIgnoresABIAndCallOptions(t *testing.T) {
	c := newCache(t, "")
	from := common.HexToAddress("0x01")

	a := readParams(tokenA, "name", nil)
	b := readParams(tokenA, "name", adapter.AtTag("latest"))
	b.From = &from

	ka, err := c.ReadKey(a)
	require.NoError(t, err)
	kb, err := c.ReadKey(b)
	require.NoError(t, err)
	assert.Equal(t, serialkey.MustMarshal(ka), serialkey.MustMarshal(kb))
}

func TestCache_ReadKeyShape(t *testing.T) {
	c := newCache(t, "ns")

	k, err := c.ReadKey(readParams(tokenA, "balanceOf", adapter.AtNumber(7), holder))
	require.NoError(t, err)

	assert.Equal(t, serialkey.List{
		"ns",
		KindRead,
		serialkey.Map{
			"address":      tokenA.Hex(),
			"functionName": "balanceOf",
			"args":         serialkey.List{holder.Hex()},
			"block":        serialkey.Map{"number": serialkey.Number("7")},
		},
	}, k)
}

func TestCache_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	shared := store.NewDefault()
	a := New(shared, Options{Namespace: "a", Logger: zerolog.Nop()})
	b := New(shared, Options{Namespace: "b", Logger: zerolog.Nop()})
	params := readParams(tokenA, "name", nil)

	require.NoError(t, a.PreloadRead(ctx, params, "Token A"))
	require.NoError(t, b.PreloadRead(ctx, params, "Token B"))

	va, _, err := a.GetRead(ctx, params)
	require.NoError(t, err)
	vb, _, err := b.GetRead(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, "Token A", va)
	assert.Equal(t, "Token B", vb)

	require.NoError(t, a.Clear(ctx))

	_, ok, err := a.GetRead(ctx, params)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = b.GetRead(ctx, params)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_ClearWithoutNamespaceClearsStore(t *testing.T) {
	ctx := context.Background()
	s := store.NewDefault()
	c := New(s, Options{Logger: zerolog.Nop()})
	require.NoError(t, s.Set(ctx, "foreign", 1))
	require.NoError(t, c.PreloadChainID(ctx, 1))

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, s.Len())
}

func TestCache_InvalidateReadsMatching(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, "ns")

	require.NoError(t, c.PreloadRead(ctx, readParams(tokenA, "balanceOf", nil, holder), 1))
	require.NoError(t, c.PreloadRead(ctx, readParams(tokenA, "balanceOf", adapter.AtNumber(5), tokenB), 2))
	require.NoError(t, c.PreloadRead(ctx, readParams(tokenA, "name", nil), "A"))
	require.NoError(t, c.PreloadRead(ctx, readParams(tokenB, "balanceOf", nil, holder), 3))
	require.NoError(t, c.PreloadChainID(ctx, 1))

	n, err := c.InvalidateReadsMatching(ctx, ReadFilter{Address: &tokenA, FunctionName: "balanceOf"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, _ := c.GetRead(ctx, readParams(tokenA, "name", nil))
	assert.True(t, ok)
	_, ok, _ = c.GetRead(ctx, readParams(tokenB, "balanceOf", nil, holder))
	assert.True(t, ok)
	_, ok, _ = c.GetChainID(ctx)
	assert.True(t, ok)
}

func TestCache_InvalidateReadsMatchingArgsPrefix(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, "")

	require.NoError(t, c.PreloadRead(ctx, readParams(tokenA, "allowance", nil, holder, tokenB), 1))
	require.NoError(t, c.PreloadRead(ctx, readParams(tokenA, "allowance", nil, tokenB, holder), 2))

	n, err := c.InvalidateReadsMatching(ctx, ReadFilter{Args: []any{holder}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, _ := c.GetRead(ctx, readParams(tokenA, "allowance", nil, tokenB, holder))
	assert.True(t, ok)
}

func TestCache_InvalidateRead(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, "")
	params := readParams(tokenA, "name", nil)
	require.NoError(t, c.PreloadRead(ctx, params, "A"))

	require.NoError(t, c.InvalidateRead(ctx, params))

	_, ok, err := c.GetRead(ctx, params)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_TypedKinds(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, "ns")

	require.NoError(t, c.PreloadChainID(ctx, 10))
	id, ok, err := c.GetChainID(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(10), id)
	require.NoError(t, c.InvalidateChainID(ctx))
	_, ok, _ = c.GetChainID(ctx)
	assert.False(t, ok)

	block := &adapter.Block{Number: 5, Hash: common.HexToHash("0x05")}
	require.NoError(t, c.PreloadBlock(ctx, adapter.AtNumber(5), block))
	gotBlock, ok, err := c.GetBlock(ctx, adapter.AtNumber(5))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, block, gotBlock)
	require.NoError(t, c.InvalidateBlock(ctx, adapter.AtNumber(5)))
	_, ok, _ = c.GetBlock(ctx, adapter.AtNumber(5))
	assert.False(t, ok)

	bal := adapter.BalanceParams{Address: holder, Block: adapter.AtNumber(1)}
	require.NoError(t, c.PreloadBalance(ctx, bal, big.NewInt(99)))
	gotBal, ok, err := c.GetBalance(ctx, bal)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, big.NewInt(99), gotBal)
	require.NoError(t, c.InvalidateBalance(ctx, bal))

	n := uint64(3)
	tx := &adapter.Transaction{Hash: common.HexToHash("0xabc"), BlockNumber: &n}
	require.NoError(t, c.PreloadTransaction(ctx, tx))
	gotTx, ok, err := c.GetTransaction(ctx, tx.Hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tx, gotTx)
	require.NoError(t, c.InvalidateTransaction(ctx, tx.Hash))

	filter := adapter.EventFilter{Address: tokenA, Event: "Transfer", FromBlock: adapter.AtNumber(1), ToBlock: adapter.AtNumber(2)}
	logs := []adapter.Log{{Address: tokenA, BlockNumber: 1}}
	require.NoError(t, c.PreloadEvents(ctx, filter, logs))
	gotLogs, ok, err := c.GetEvents(ctx, filter)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, logs, gotLogs)
	require.NoError(t, c.InvalidateEvents(ctx, filter))
	_, ok, _ = c.GetEvents(ctx, filter)
	assert.False(t, ok)

	call := adapter.CallParams{To: &tokenA, Data: []byte{0x01}}
	require.NoError(t, c.PreloadCall(ctx, call, []byte{0xff}))
	gotCall, ok, err := c.GetCall(ctx, call)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0xff}, gotCall)
	require.NoError(t, c.InvalidateCall(ctx, call))
}

func TestConvert_JSONDecodedValues(t *testing.T) {
	bal, err := convert[*big.Int](json.Number("123456789012345678901234567890"))
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Equal(t, want, bal)

	hash := common.HexToHash("0x05")
	block, err := convert[*adapter.Block](map[string]any{
		"number": json.Number("5"),
		"hash":   hash.Hex(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), block.Number)
	assert.Equal(t, hash, block.Hash)

	_, err = convert[uint64]("not a number")
	assert.Error(t, err)
}

type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Get(ctx context.Context, key any) (any, bool, error) {
	return nil, false, f.err
}

func (f failingStore) Set(ctx context.Context, key, value any) error {
	return f.err
}

func TestCache_PropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("store down")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := New(failingStore{err: boom}, Options{Logger: zerolog.Nop(), Metrics: m})

	_, _, err := c.GetRead(ctx, readParams(tokenA, "name", nil))
	assert.ErrorIs(t, err, boom)

	err = c.PreloadRead(ctx, readParams(tokenA, "name", nil), "x")
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheErrors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheErrors.WithLabelValues("set")))
}

func TestCache_KeyEncodingError(t *testing.T) {
	c := newCache(t, "")

	err := c.PreloadRead(context.Background(), readParams(tokenA, "f", nil, make(chan int)), 1)

	var kerr *serialkey.KeyEncodingError
	assert.ErrorAs(t, err, &kerr)
}

func TestCache_RecordsHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	c := New(store.NewDefault(), Options{Logger: zerolog.Nop(), Metrics: m})

	_, _, _ = c.GetChainID(ctx)
	require.NoError(t, c.PreloadChainID(ctx, 1))
	_, _, _ = c.GetChainID(ctx)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues(KindChainID)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues(KindChainID)))
}
