package serialkey

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transferArgs struct {
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
	Memo   *string  `json:"memo,omitempty"`
	hidden int
}

type panicky struct{}

func (panicky) String() string { panic("boom") }

func mustString(t *testing.T, raw any) string {
	t.Helper()
	s, err := String(raw)
	require.NoError(t, err)
	return s
}

func TestEncode_Scalars(t *testing.T) {
	assert.Equal(t, `"abc"`, mustString(t, "abc"))
	assert.Equal(t, `true`, mustString(t, true))
	assert.Equal(t, `42`, mustString(t, 42))
	assert.Equal(t, `1.5`, mustString(t, 1.5))
	assert.Equal(t, `null`, mustString(t, nil))
}

func TestEncode_IntegerKindsAgree(t *testing.T) {
	want := mustString(t, int64(7))
	assert.Equal(t, want, mustString(t, 7))
	assert.Equal(t, want, mustString(t, uint8(7)))
	assert.Equal(t, want, mustString(t, uint64(7)))
	assert.Equal(t, want, mustString(t, big.NewInt(7)))
	assert.Equal(t, want, mustString(t, 7.0))
}

func TestEncode_BigIntegersKeepPrecision(t *testing.T) {
	n, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	assert.Equal(t, `123456789012345678901234567890`, mustString(t, n))
	assert.Equal(t, `18446744073709551615`, mustString(t, uint64(math.MaxUint64)))
}

func TestEncode_LargeFloatsMatchIntegers(t *testing.T) {
	n, ok := new(big.Int).SetString("1000000000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, mustString(t, n), mustString(t, 1e21))
	assert.Equal(t, `1000000000000000000000`, mustString(t, 1e21))
	assert.Equal(t, `0.0001`, mustString(t, 0.0001))
}

func TestEncode_TypedNilPointersAreOmitted(t *testing.T) {
	var hash *common.Hash
	var amount *big.Int

	assert.Equal(t, `{"number":5}`, mustString(t, map[string]any{"number": 5, "hash": hash}))
	assert.Equal(t, `{}`, mustString(t, map[string]any{"h": hash, "amount": amount}))
	assert.Equal(t, `[null,1]`, mustString(t, []any{amount, 1}))
	assert.Equal(t, `null`, mustString(t, amount))

	h := common.HexToHash("0x01")
	assert.Equal(t, `{"hash":"`+h.Hex()+`"}`, mustString(t, map[string]any{"hash": &h}))
}

func TestEncode_StringAndNumberDiffer(t *testing.T) {
	assert.NotEqual(t, mustString(t, "5"), mustString(t, 5))
}

func TestEncode_MapKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": []any{"x", map[string]any{"d": true, "c": nil}}}
	b := map[string]any{"a": []any{"x", map[string]any{"d": true}}, "b": int64(1)}

	assert.Equal(t, mustString(t, a), mustString(t, b))
	assert.Equal(t, `{"a":["x",{"d":true}],"b":1}`, mustString(t, a))
}

func TestEncode_ListKeepsNilPositions(t *testing.T) {
	assert.Equal(t, `[1,null,2]`, mustString(t, []any{1, nil, 2}))
	assert.NotEqual(t, mustString(t, []any{1, nil, 2}), mustString(t, []any{1, 2}))
}

func TestEncode_StructMatchesEquivalentMap(t *testing.T) {
	s := transferArgs{To: "0xabc", Amount: big.NewInt(10), hidden: 3}
	m := map[string]any{"amount": 10, "to": "0xabc", "memo": nil}

	assert.Equal(t, mustString(t, m), mustString(t, s))
	assert.Equal(t, mustString(t, s), mustString(t, &s))
}

func TestEncode_BytesAndAddresses(t *testing.T) {
	assert.Equal(t, `"0x0102ff"`, mustString(t, []byte{1, 2, 0xff}))

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	assert.Equal(t, `"`+addr.Hex()+`"`, mustString(t, addr))
	assert.Equal(t, mustString(t, addr), mustString(t, &addr))
}

func TestEncode_Failures(t *testing.T) {
	cases := map[string]any{
		"channel":  make(chan int),
		"func":     func() {},
		"nan":      math.NaN(),
		"stringer": panicky{},
		"nested":   map[string]any{"a": []any{make(chan int)}},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Encode(raw)
			var encErr *KeyEncodingError
			require.Error(t, err)
			assert.True(t, errors.As(err, &encErr))
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	raw := []any{"ns", "read", map[string]any{
		"address": "0xabc",
		"args":    []any{big.NewInt(1), nil, map[string]any{"z": 1, "a": false}},
		"block":   uint64(19000000),
	}}
	s := mustString(t, raw)

	k, err := Parse(s)
	require.NoError(t, err)

	again, err := Marshal(k)
	require.NoError(t, err)
	assert.Equal(t, s, again)

	list, ok := k.(List)
	require.True(t, ok)
	assert.Equal(t, "read", list[1])
	assert.Equal(t, Number("19000000"), list[2].(Map)["block"])
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("{")
	assert.Error(t, err)
}

func TestIsMatch(t *testing.T) {
	full := MustEncode([]any{"ns", "read", map[string]any{
		"address":      "0xabc",
		"functionName": "balanceOf",
		"args":         []any{"0x1", 2},
		"block":        100,
	}})

	tests := []struct {
		name    string
		partial any
		want    bool
	}{
		{"prefix only", []any{"ns"}, true},
		{"same address", []any{"ns", "read", map[string]any{"address": "0xabc"}}, true},
		{"nested args prefix", []any{"ns", "read", map[string]any{"args": []any{"0x1"}}}, true},
		{"other address", []any{"ns", "read", map[string]any{"address": "0xdef"}}, false},
		{"other namespace", []any{"other", "read"}, false},
		{"longer than full", []any{"ns", "read", map[string]any{}, "extra"}, false},
		{"unknown field", []any{"ns", "read", map[string]any{"chainId": 1}}, false},
		{"number vs string", []any{"ns", "read", map[string]any{"block": "100"}}, false},
		{"empty map", []any{"ns", "read", map[string]any{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMatch(full, MustEncode(tt.partial)))
		})
	}
}
