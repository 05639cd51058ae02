package rpcadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"rpcdrift/internal/adapter"
	"rpcdrift/internal/jsonrpc"
	"rpcdrift/internal/multicall"
)

const multicall3JSON = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bool","name":"allowFailure","type":"bool"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}]`

var multicall3ABI = mustParseABI(multicall3JSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// call3 and call3Result mirror the Multicall3 Call3 and Result structs
type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type call3Result struct {
	Success    bool
	ReturnData []byte
}

// Read ABI-encodes a function call, runs it with eth_call and decodes the
// return data. Single-output functions return the bare value, others []any.
func (a *Adapter) Read(ctx context.Context, params adapter.ReadParams) (any, error) {
	data, err := encodeRead(params)
	if err != nil {
		return nil, err
	}
	ret, err := a.Call(ctx, adapter.CallParams{To: &params.Address, Data: data, CallOptions: params.CallOptions})
	if err != nil {
		return nil, err
	}
	return decodeRead(params, ret)
}

// Call runs eth_call. EVM reverts are returned as *multicall.CallError.
func (a *Adapter) Call(ctx context.Context, params adapter.CallParams) ([]byte, error) {
	var ret hexutil.Bytes
	err := a.rpc.Call(ctx, &ret, "eth_call", newCallArgs(params.To, params.Data, params.CallOptions), blockArg(params.Block))
	if err != nil {
		if revert := revertError(err); revert != nil {
			return nil, revert
		}
		return nil, fmt.Errorf("eth_call failed: %w", err)
	}
	return ret, nil
}

// Multicall batches calls through Multicall3 aggregate3. The default
// deployment address is used when none is given.
func (a *Adapter) Multicall(ctx context.Context, params adapter.MulticallParams) ([]adapter.MulticallResult, error) {
	address := multicall.Multicall3
	if params.MulticallAddress != nil {
		address = *params.MulticallAddress
	}

	calls := make([]call3, len(params.Calls))
	for i, c := range params.Calls {
		target, data, err := encodeSubCall(c)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		calls[i] = call3{Target: target, AllowFailure: params.AllowFailure, CallData: data}
	}

	input, err := multicall3ABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("failed to encode aggregate3: %w", err)
	}

	ret, err := a.Call(ctx, adapter.CallParams{To: &address, Data: input, CallOptions: params.CallOptions})
	if err != nil {
		return nil, err
	}

	out, err := multicall3ABI.Unpack("aggregate3", ret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode aggregate3 result: %w", err)
	}
	raw := *abi.ConvertType(out[0], new([]call3Result)).(*[]call3Result)
	if len(raw) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(raw), len(calls))
	}

	a.logger.Debug().Int("calls", len(calls)).Str("address", address.Hex()).Msg("multicall executed")

	results := make([]adapter.MulticallResult, len(raw))
	for i, r := range raw {
		results[i] = subCallResult(params.Calls[i], r)
	}
	return results, nil
}

func subCallResult(c adapter.MulticallCall, r call3Result) adapter.MulticallResult {
	result := adapter.MulticallResult{Success: r.Success, ReturnData: r.ReturnData}
	if !r.Success || c.Read == nil {
		return result
	}
	value, err := decodeRead(*c.Read, r.ReturnData)
	if err != nil {
		result.Success = false
		result.Error = err
		return result
	}
	result.Value = value
	return result
}

func encodeSubCall(c adapter.MulticallCall) (common.Address, []byte, error) {
	switch {
	case c.Read != nil:
		data, err := encodeRead(*c.Read)
		return c.Read.Address, data, err
	case c.Call != nil:
		if c.Call.To == nil {
			return common.Address{}, nil, errors.New("raw call without target")
		}
		return *c.Call.To, c.Call.Data, nil
	default:
		return common.Address{}, nil, errors.New("empty call")
	}
}

func encodeRead(params adapter.ReadParams) ([]byte, error) {
	if params.ABI == nil {
		return nil, fmt.Errorf("read %s requires an ABI", params.FunctionName)
	}
	data, err := params.ABI.Pack(params.FunctionName, params.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", params.FunctionName, err)
	}
	return data, nil
}

func decodeRead(params adapter.ReadParams, data []byte) (any, error) {
	out, err := params.ABI.Unpack(params.FunctionName, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", params.FunctionName, err)
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}

// revertError converts an eth_call revert reported by the node into a
// CallError, or returns nil for other failures
func revertError(err error) *multicall.CallError {
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) {
		return nil
	}
	if rpcErr.Code != jsonrpc.CodeExecutionError && !strings.Contains(strings.ToLower(rpcErr.Message), "execution reverted") {
		return nil
	}

	if hexData, ok := rpcErr.DataString(); ok {
		if data, decodeErr := hexutil.Decode(hexData); decodeErr == nil && len(data) > 0 {
			return multicall.DecodeRevert(data)
		}
	}

	reason := rpcErr.Message
	if i := strings.Index(strings.ToLower(reason), "execution reverted"); i >= 0 {
		reason = strings.TrimPrefix(strings.TrimSpace(reason[i+len("execution reverted"):]), ":")
	}
	return &multicall.CallError{Reason: strings.TrimSpace(reason)}
}
