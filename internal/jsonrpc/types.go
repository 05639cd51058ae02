package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC version
const Version = "2.0"

// Error codes returned by Ethereum nodes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeExecutionError is returned by eth_call and eth_estimateGas when the
	// EVM reverts; Data then carries the revert payload
	CodeExecutionError = 3

	CodeServerError = -32000
)

// ID represents a JSON-RPC request/response ID.
// It can be a string, number, or null.
type ID struct {
	value any
}

// NewIDString creates an ID from a string
func NewIDString(s string) ID {
	return ID{value: s}
}

// NewIDInt creates an ID from an integer
func NewIDInt(n int64) ID {
	return ID{value: n}
}

// IsNull returns true if the ID is null
func (id ID) IsNull() bool {
	return id.value == nil
}

// Int returns the ID as an integer. JSON numbers decode as float64.
func (id ID) Int() (int64, bool) {
	switch v := id.value.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// MarshalJSON implements json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &id.value)
}

// Error is a JSON-RPC error object returned by a node
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// DataString returns Data when it is a JSON string, such as hex revert data
func (e *Error) DataString() (string, bool) {
	if len(e.Data) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", false
	}
	return s, true
}

// NewError creates a new JSON-RPC error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}
