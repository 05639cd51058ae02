package multicall

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallError is a failed sub-call of a multicall
type CallError struct {
	Reason string
	Data   []byte
}

func (e *CallError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// DecodeRevert builds a CallError from raw revert data. Standard Error(string)
// and Panic(uint256) payloads are ABI-decoded; anything else has its 4-byte
// selector stripped and is read as text when printable.
func DecodeRevert(data []byte) *CallError {
	e := &CallError{Data: data}
	if len(data) < 4 {
		return e
	}

	if reason, err := abi.UnpackRevert(data); err == nil {
		e.Reason = reason
		return e
	}

	payload := bytes.TrimRight(data[4:], "\x00")
	if len(payload) > 0 && utf8.Valid(payload) && isPrintable(string(payload)) {
		e.Reason = strings.TrimSpace(string(payload))
		return e
	}

	e.Reason = fmt.Sprintf("custom error %s", hexutil.Encode(data[:4]))
	return e
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			return false
		}
	}
	return true
}
