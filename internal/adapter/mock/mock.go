// Package mock provides a programmable adapter.Adapter for tests
package mock

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"rpcdrift/internal/adapter"
)

// NotImplementedError is returned by a mock method that has no stub
type NotImplementedError struct {
	Method string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("mock adapter: %s is not stubbed", e.Method)
}

// Method names used for call counting
const (
	MethodGetChainID         = "getChainId"
	MethodGetBlock           = "getBlock"
	MethodGetBalance         = "getBalance"
	MethodGetTransaction     = "getTransaction"
	MethodWaitForTransaction = "waitForTransaction"
	MethodGetEvents          = "getEvents"
	MethodRead               = "read"
	MethodCall               = "call"
	MethodMulticall          = "multicall"
	MethodWrite              = "write"
)

// Adapter is an adapter.Adapter whose behavior is set through the On* fields.
// Unset stubs fail with *NotImplementedError. Stubs may be replaced between calls
// but not concurrently with them.
type Adapter struct {
	OnGetChainID         func(ctx context.Context) (uint64, error)
	OnGetBlock           func(ctx context.Context, block *adapter.BlockSpecifier) (*adapter.Block, error)
	OnGetBalance         func(ctx context.Context, params adapter.BalanceParams) (*big.Int, error)
	OnGetTransaction     func(ctx context.Context, hash common.Hash) (*adapter.Transaction, error)
	OnWaitForTransaction func(ctx context.Context, params adapter.WaitParams) (*adapter.Receipt, error)
	OnGetEvents          func(ctx context.Context, filter adapter.EventFilter) ([]adapter.Log, error)
	OnRead               func(ctx context.Context, params adapter.ReadParams) (any, error)
	OnCall               func(ctx context.Context, params adapter.CallParams) ([]byte, error)
	OnMulticall          func(ctx context.Context, params adapter.MulticallParams) ([]adapter.MulticallResult, error)
	OnWrite              func(ctx context.Context, params adapter.WriteParams) (common.Hash, error)

	mu    sync.Mutex
	calls map[string]int
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an empty mock adapter
func New() *Adapter {
	return &Adapter{calls: make(map[string]int)}
}

// Calls returns how many times a method was invoked
func (m *Adapter) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Reset clears call counts
func (m *Adapter) Reset() {
	m.mu.Lock()
	m.calls = make(map[string]int)
	m.mu.Unlock()
}

func (m *Adapter) record(method string) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
	m.mu.Unlock()
}

func (m *Adapter) GetChainID(ctx context.Context) (uint64, error) {
	m.record(MethodGetChainID)
	if m.OnGetChainID == nil {
		return 0, &NotImplementedError{Method: MethodGetChainID}
	}
	return m.OnGetChainID(ctx)
}

func (m *Adapter) GetBlock(ctx context.Context, block *adapter.BlockSpecifier) (*adapter.Block, error) {
	m.record(MethodGetBlock)
	if m.OnGetBlock == nil {
		return nil, &NotImplementedError{Method: MethodGetBlock}
	}
	return m.OnGetBlock(ctx, block)
}

func (m *Adapter) GetBalance(ctx context.Context, params adapter.BalanceParams) (*big.Int, error) {
	m.record(MethodGetBalance)
	if m.OnGetBalance == nil {
		return nil, &NotImplementedError{Method: MethodGetBalance}
	}
	return m.OnGetBalance(ctx, params)
}

func (m *Adapter) GetTransaction(ctx context.Context, hash common.Hash) (*adapter.Transaction, error) {
	m.record(MethodGetTransaction)
	if m.OnGetTransaction == nil {
		return nil, &NotImplementedError{Method: MethodGetTransaction}
	}
	return m.OnGetTransaction(ctx, hash)
}

func (m *Adapter) WaitForTransaction(ctx context.Context, params adapter.WaitParams) (*adapter.Receipt, error) {
	m.record(MethodWaitForTransaction)
	if m.OnWaitForTransaction == nil {
		return nil, &NotImplementedError{Method: MethodWaitForTransaction}
	}
	return m.OnWaitForTransaction(ctx, params)
}

func (m *Adapter) GetEvents(ctx context.Context, filter adapter.EventFilter) ([]adapter.Log, error) {
	m.record(MethodGetEvents)
	if m.OnGetEvents == nil {
		return nil, &NotImplementedError{Method: MethodGetEvents}
	}
	return m.OnGetEvents(ctx, filter)
}

func (m *Adapter) Read(ctx context.Context, params adapter.ReadParams) (any, error) {
	m.record(MethodRead)
	if m.OnRead == nil {
		return nil, &NotImplementedError{Method: MethodRead}
	}
	return m.OnRead(ctx, params)
}

func (m *Adapter) Call(ctx context.Context, params adapter.CallParams) ([]byte, error) {
	m.record(MethodCall)
	if m.OnCall == nil {
		return nil, &NotImplementedError{Method: MethodCall}
	}
	return m.OnCall(ctx, params)
}

func (m *Adapter) Multicall(ctx context.Context, params adapter.MulticallParams) ([]adapter.MulticallResult, error) {
	m.record(MethodMulticall)
	if m.OnMulticall == nil {
		return nil, &NotImplementedError{Method: MethodMulticall}
	}
	return m.OnMulticall(ctx, params)
}

func (m *Adapter) Write(ctx context.Context, params adapter.WriteParams) (common.Hash, error) {
	m.record(MethodWrite)
	if m.OnWrite == nil {
		return common.Hash{}, &NotImplementedError{Method: MethodWrite}
	}
	return m.OnWrite(ctx, params)
}
