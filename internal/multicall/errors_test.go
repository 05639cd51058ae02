package multicall

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func revertData(t *testing.T, reason string) []byte {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	payload, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, payload...)
}

func TestDecodeRevert(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		reason string
	}{
		{"empty", nil, ""},
		{"short", []byte{0x01, 0x02}, ""},
		{"error string", revertData(t, "not owner"), "not owner"},
		{"raw text after selector", append([]byte{0xde, 0xad, 0xbe, 0xef}, []byte("paused")...), "paused"},
		{"binary custom error", []byte{0x12, 0x34, 0x56, 0x78, 0x00, 0x01, 0xff}, "custom error 0x12345678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DecodeRevert(tt.data)
			assert.Equal(t, tt.reason, err.Reason)
			assert.Equal(t, tt.data, err.Data)
		})
	}
}

func TestCallError_Message(t *testing.T) {
	assert.Equal(t, "execution reverted", (&CallError{}).Error())
	assert.Equal(t, "execution reverted: nope", (&CallError{Reason: "nope"}).Error())
}

func TestLookupAddress(t *testing.T) {
	addr, ok := LookupAddress(1)
	assert.True(t, ok)
	assert.Equal(t, Multicall3, addr)

	_, ok = LookupAddress(123456789)
	assert.False(t, ok)
}
