package hookscript

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/sha3"
)

// Runtime is a goja VM with the console and utils bindings installed
type Runtime struct {
	vm     *goja.Runtime
	logger zerolog.Logger
}

// NewRuntime creates a runtime. Runtimes are not safe for concurrent use.
func NewRuntime(logger zerolog.Logger) *Runtime {
	r := &Runtime{
		vm:     goja.New(),
		logger: logger,
	}
	r.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	r.setupConsole()
	r.setupUtils()
	return r
}

// VM returns the underlying goja runtime
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

func (r *Runtime) setupConsole() {
	console := r.vm.NewObject()
	levels := map[string]zerolog.Level{
		"log":   zerolog.InfoLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"debug": zerolog.DebugLevel,
	}
	for name, level := range levels {
		console.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			r.logger.WithLevel(level).Msgf("[hookscript] %v", args)
			return goja.Undefined()
		})
	}
	r.vm.Set("console", console)
}

// setupUtils installs helpers for hex and hashing work inside scripts
func (r *Runtime) setupUtils() {
	utils := r.vm.NewObject()

	utils.Set("keccak256", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("keccak256 requires 1 argument"))
		}
		data := r.bytesArg(call.Arguments[0], true)
		hash := sha3.NewLegacyKeccak256()
		hash.Write(data)
		return r.vm.ToValue(hexutil.Encode(hash.Sum(nil)))
	})

	utils.Set("getFunctionSelector", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("getFunctionSelector requires function signature"))
		}
		hash := sha3.NewLegacyKeccak256()
		hash.Write([]byte(call.Arguments[0].String()))
		return r.vm.ToValue(hexutil.Encode(hash.Sum(nil)[:4]))
	})

	utils.Set("hexToBytes", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("hexToBytes requires 1 argument"))
		}
		b, err := hexutil.Decode(call.Arguments[0].String())
		if err != nil {
			panic(r.vm.ToValue(fmt.Sprintf("invalid hex string: %v", err)))
		}
		return r.vm.ToValue(b)
	})

	utils.Set("bytesToHex", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("bytesToHex requires 1 argument"))
		}
		return r.vm.ToValue(hexutil.Encode(r.bytesArg(call.Arguments[0], false)))
	})

	utils.Set("checksumAddress", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("checksumAddress requires address"))
		}
		addr := call.Arguments[0].String()
		if !common.IsHexAddress(addr) {
			panic(r.vm.ToValue(fmt.Sprintf("invalid address: %s", addr)))
		}
		return r.vm.ToValue(common.HexToAddress(addr).Hex())
	})

	utils.Set("encodeAddress", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(r.vm.ToValue("encodeAddress requires address"))
		}
		addr := common.HexToAddress(call.Arguments[0].String())
		return r.vm.ToValue(hexutil.Encode(common.LeftPadBytes(addr.Bytes(), 32)))
	})

	r.vm.Set("utils", utils)
}

// bytesArg reads a byte array, or a string that is hex when 0x-prefixed and
// UTF-8 text otherwise when text is allowed
func (r *Runtime) bytesArg(v goja.Value, text bool) []byte {
	switch val := v.Export().(type) {
	case string:
		if strings.HasPrefix(val, "0x") {
			b, err := hexutil.Decode(val)
			if err != nil {
				panic(r.vm.ToValue(fmt.Sprintf("invalid hex string: %v", err)))
			}
			return b
		}
		if text {
			return []byte(val)
		}
	case []byte:
		return val
	case []any:
		out := make([]byte, len(val))
		for i, b := range val {
			switch n := b.(type) {
			case int64:
				out[i] = byte(n)
			case float64:
				out[i] = byte(n)
			}
		}
		return out
	}
	panic(r.vm.ToValue("expected byte array or hex string"))
}
