// Package adapter defines the network capability consumed by the client core.
//
// Implementations talk to a node; the core treats every method as a
// black-box call that may fail or be slow and never retries it.
package adapter

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Adapter is the set of network operations a backend provides
type Adapter interface {
	// GetChainID returns the chain id of the connected network
	GetChainID(ctx context.Context) (uint64, error)
	// GetBlock returns a block, or nil when it does not exist
	GetBlock(ctx context.Context, block *BlockSpecifier) (*Block, error)
	// GetBalance returns the wei balance of an account
	GetBalance(ctx context.Context, params BalanceParams) (*big.Int, error)
	// GetTransaction returns a transaction by hash, or nil when unknown
	GetTransaction(ctx context.Context, hash common.Hash) (*Transaction, error)
	// WaitForTransaction blocks until the transaction is mined or the wait times out
	WaitForTransaction(ctx context.Context, params WaitParams) (*Receipt, error)
	// GetEvents returns logs matching the filter
	GetEvents(ctx context.Context, filter EventFilter) ([]Log, error)
	// Read performs a single ABI-decoded contract read
	Read(ctx context.Context, params ReadParams) (any, error)
	// Call performs a raw eth_call
	Call(ctx context.Context, params CallParams) ([]byte, error)
	// Multicall executes calls in one round trip
	Multicall(ctx context.Context, params MulticallParams) ([]MulticallResult, error)
	// Write submits a transaction and returns its hash
	Write(ctx context.Context, params WriteParams) (common.Hash, error)
}
