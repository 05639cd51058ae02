package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Response represents a JSON-RPC response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

// HasError returns true if the response contains an error
func (r *Response) HasError() bool {
	return r.Error != nil
}

// ResultIsNull returns true if the response result is JSON null
func (r *Response) ResultIsNull() bool {
	if r == nil || len(r.Result) == 0 {
		return true
	}
	return bytes.Equal(r.Result, []byte("null"))
}

// ParseResponse parses a JSON-RPC response from bytes
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Decode unmarshals the result into v. An error response is returned as
// *Error; a nil v discards the result.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if v == nil || r.ResultIsNull() {
		return nil
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// IsRetryable reports whether another upstream might answer the request
// differently. Malformed requests and EVM-level failures are final.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams, CodeExecutionError:
		return false
	}

	msg := strings.ToLower(e.Message)
	for _, final := range []string{
		"execution reverted",
		"insufficient funds",
		"nonce too low",
		"nonce too high",
		"already known",
		"replacement transaction underpriced",
	} {
		if strings.Contains(msg, final) {
			return false
		}
	}
	return true
}
