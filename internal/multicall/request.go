package multicall

import (
	"rpcdrift/internal/adapter"
	"rpcdrift/internal/batch"
)

// Request is one batchable call: exactly one of Read or Call is set
type Request struct {
	Read *adapter.ReadParams
	Call *adapter.CallParams
}

// Pending is a queued request as handed to the aggregator.
// Reads resolve with the decoded value, calls with the raw return data.
type Pending = batch.Pending[Request, any]

// ReadRequest wraps read params
func ReadRequest(params adapter.ReadParams) Request {
	return Request{Read: &params}
}

// CallRequest wraps raw call params
func CallRequest(params adapter.CallParams) Request {
	return Request{Call: &params}
}

// Options returns the call options that decide which calls can share a multicall
func (r Request) Options() adapter.CallOptions {
	switch {
	case r.Read != nil:
		return r.Read.CallOptions
	case r.Call != nil:
		return r.Call.CallOptions
	default:
		return adapter.CallOptions{}
	}
}

// Method returns the adapter method name for the request
func (r Request) Method() string {
	if r.Read != nil {
		return "read"
	}
	return "call"
}

func (r Request) multicallCall() adapter.MulticallCall {
	return adapter.MulticallCall{Read: r.Read, Call: r.Call}
}
