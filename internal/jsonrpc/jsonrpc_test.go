package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("eth_getBalance", []any{"0xabc", "latest"}, NewIDInt(7))
	require.NoError(t, err)

	data, err := req.Bytes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"eth_getBalance","params":["0xabc","latest"],"id":7}`, string(data))

	clone := req.WithID(NewIDString("x"))
	assert.Equal(t, NewIDInt(7), req.ID)
	assert.Equal(t, NewIDString("x"), clone.ID)
}

func TestResponseDecode(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	require.NoError(t, err)

	var out string
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, "0x10", out)

	id, ok := resp.ID.Int()
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)

	null, err := ParseResponse([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	require.NoError(t, err)
	assert.True(t, null.ResultIsNull())
	out = "unchanged"
	require.NoError(t, null.Decode(&out))
	assert.Equal(t, "unchanged", out)
}

func TestResponseDecodeError(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":3,"message":"execution reverted","data":"0x08c379a0"}}`))
	require.NoError(t, err)

	err = resp.Decode(new(string))
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeExecutionError, rpcErr.Code)
	assert.Equal(t, "rpc error 3: execution reverted", rpcErr.Error())

	data, ok := rpcErr.DataString()
	assert.True(t, ok)
	assert.Equal(t, "0x08c379a0", data)
}

func TestErrorIsRetryable(t *testing.T) {
	tests := []struct {
		err       *Error
		retryable bool
	}{
		{NewError(CodeInternalError, "internal error"), true},
		{NewError(CodeServerError, "header not found"), true},
		{NewError(CodeMethodNotFound, "the method eth_foo does not exist"), true},
		{NewError(CodeInvalidParams, "invalid argument 0"), false},
		{NewError(CodeExecutionError, "execution reverted"), false},
		{NewError(CodeServerError, "Nonce too low"), false},
		{NewError(CodeServerError, "insufficient funds for gas * price + value"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.retryable, tt.err.IsRetryable(), tt.err.Message)
	}
}

func TestIDRoundTrip(t *testing.T) {
	var id ID
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &id))
	assert.False(t, id.IsNull())
	_, ok := id.Int()
	assert.False(t, ok)

	require.NoError(t, json.Unmarshal([]byte(`null`), &id))
	assert.True(t, id.IsNull())
}
