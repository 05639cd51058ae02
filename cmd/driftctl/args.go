package main

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"rpcdrift/internal/adapter"
)

const erc20JSON = `[
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20JSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// loadABI reads a contract ABI from a JSON file. An empty path selects the
// built-in ERC-20 ABI.
func loadABI(path string) (*abi.ABI, error) {
	if path == "" {
		return &erc20ABI, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ABI file: %w", err)
	}
	defer f.Close()

	parsed, err := abi.JSON(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI file %s: %w", path, err)
	}
	return &parsed, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseBlock accepts a block tag, a decimal or hex number, or a block hash.
// An empty string means latest.
func parseBlock(s string) (*adapter.BlockSpecifier, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, nil
	case strings.HasPrefix(s, "0x") && len(s) == 2+2*common.HashLength:
		h, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid block hash %q: %w", s, err)
		}
		return adapter.AtHash(common.BytesToHash(h)), nil
	case strings.HasPrefix(s, "0x"):
		n, err := hexutil.DecodeUint64(s)
		if err != nil {
			return nil, fmt.Errorf("invalid block number %q: %w", s, err)
		}
		return adapter.AtNumber(n), nil
	}

	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return adapter.AtNumber(n), nil
	}
	switch tag := strings.ToLower(s); tag {
	case adapter.BlockLatest, adapter.BlockPending, adapter.BlockEarliest, adapter.BlockSafe, adapter.BlockFinalized:
		return adapter.AtTag(tag).Normalize(), nil
	}
	return nil, fmt.Errorf("invalid block %q", s)
}

// parseArgs converts command line strings into the Go values the ABI
// encoder expects for each input
func parseArgs(inputs abi.Arguments, args []string) ([]any, error) {
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(args))
	}
	out := make([]any, len(args))
	for i, input := range inputs {
		v, err := parseArg(input.Type, args[i])
		if err != nil {
			name := input.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseArg(t abi.Type, s string) (any, error) {
	switch t.T {
	case abi.AddressTy:
		return parseAddress(s)
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.StringTy:
		return s, nil
	case abi.BytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes %q: %w", s, err)
		}
		return b, nil
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes%d %q: %w", t.Size, s, err)
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		v := reflect.New(t.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(b))
		return v.Interface(), nil
	case abi.UintTy, abi.IntTy:
		return parseInteger(t, s)
	default:
		return nil, fmt.Errorf("unsupported argument type %s", t.String())
	}
}

// parseInteger returns the Go type the ABI encoder expects: the exact sized
// integer for 8, 16, 32 and 64 bits, *big.Int for every other size
func parseInteger(t abi.Type, s string) (any, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if t.T == abi.UintTy && n.Sign() < 0 {
		return nil, errors.New("negative value for unsigned type")
	}

	bits := uint(t.Size)
	if t.T == abi.IntTy {
		bits--
	}
	limit := new(big.Int).Lsh(big.NewInt(1), bits)
	if n.Cmp(limit) >= 0 || (t.T == abi.IntTy && n.Cmp(new(big.Int).Neg(limit)) < 0) {
		return nil, fmt.Errorf("value %s overflows %s", s, t.String())
	}

	typ := t.GetType()
	if typ.Kind() == reflect.Ptr {
		return n, nil
	}
	v := reflect.New(typ).Elem()
	if t.T == abi.UintTy {
		v.SetUint(n.Uint64())
	} else {
		v.SetInt(n.Int64())
	}
	return v.Interface(), nil
}
