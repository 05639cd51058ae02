// Package rpcadapter implements adapter.Adapter over Ethereum JSON-RPC.
package rpcadapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"rpcdrift/internal/adapter"
)

// Wait defaults
const (
	DefaultPollInterval = time.Second
	DefaultWaitTimeout  = 2 * time.Minute
)

// Caller sends one JSON-RPC request and decodes its result.
// upstream.Pool implements it.
type Caller interface {
	Call(ctx context.Context, result any, method string, params ...any) error
}

// Options configures an Adapter
type Options struct {
	PollInterval time.Duration
	WaitTimeout  time.Duration
	Logger       zerolog.Logger
}

// Adapter talks to a node through a Caller
type Adapter struct {
	rpc          Caller
	pollInterval time.Duration
	waitTimeout  time.Duration
	logger       zerolog.Logger
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an Adapter
func New(rpc Caller, opts Options) *Adapter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	return &Adapter{
		rpc:          rpc,
		pollInterval: opts.PollInterval,
		waitTimeout:  opts.WaitTimeout,
		logger:       opts.Logger.With().Str("component", "rpcadapter").Logger(),
	}
}

// GetChainID returns eth_chainId
func (a *Adapter) GetChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := a.rpc.Call(ctx, &id, "eth_chainId"); err != nil {
		return 0, fmt.Errorf("failed to get chain id: %w", err)
	}
	return uint64(id), nil
}

// GetBlock returns a block header with transaction hashes, or nil when the
// node does not know the block
func (a *Adapter) GetBlock(ctx context.Context, block *adapter.BlockSpecifier) (*adapter.Block, error) {
	var raw *rpcBlock
	var err error
	if block != nil && block.Hash != nil {
		err = a.rpc.Call(ctx, &raw, "eth_getBlockByHash", *block.Hash, false)
	} else {
		err = a.rpc.Call(ctx, &raw, "eth_getBlockByNumber", blockNumberArg(block), false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", block, err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.toBlock(), nil
}

// GetBalance returns the wei balance of an account
func (a *Adapter) GetBalance(ctx context.Context, params adapter.BalanceParams) (*big.Int, error) {
	var balance hexutil.Big
	if err := a.rpc.Call(ctx, &balance, "eth_getBalance", params.Address, blockArg(params.Block)); err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", params.Address, err)
	}
	return (*big.Int)(&balance), nil
}

// GetTransaction returns a transaction by hash, or nil when unknown
func (a *Adapter) GetTransaction(ctx context.Context, hash common.Hash) (*adapter.Transaction, error) {
	var raw *rpcTransaction
	if err := a.rpc.Call(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.toTransaction(), nil
}

// WaitForTransaction polls eth_getTransactionReceipt until the transaction
// is mined or the wait times out
func (a *Adapter) WaitForTransaction(ctx context.Context, params adapter.WaitParams) (*adapter.Receipt, error) {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = a.waitTimeout
	}
	interval := params.PollInterval
	if interval <= 0 {
		interval = a.pollInterval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var raw *rpcReceipt
		err := a.rpc.Call(ctx, &raw, "eth_getTransactionReceipt", params.Hash)
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("transaction %s not mined: %w", params.Hash, ctx.Err())
		case err != nil:
			return nil, fmt.Errorf("failed to get receipt %s: %w", params.Hash, err)
		case raw != nil:
			return raw.toReceipt(), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s not mined: %w", params.Hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetEvents runs eth_getLogs. When the filter names an ABI event, its
// signature is prepended to the topics and logs are decoded into Args.
func (a *Adapter) GetEvents(ctx context.Context, filter adapter.EventFilter) ([]adapter.Log, error) {
	var event *abi.Event
	topics := filter.Topics
	if filter.Event != "" {
		if filter.ABI == nil {
			return nil, fmt.Errorf("event %s requires an ABI", filter.Event)
		}
		ev, ok := filter.ABI.Events[filter.Event]
		if !ok {
			return nil, fmt.Errorf("event %s not found in ABI", filter.Event)
		}
		event = &ev
		topics = append([][]common.Hash{{ev.ID}}, topics...)
	}

	query := map[string]any{"address": filter.Address}
	if len(topics) > 0 {
		query["topics"] = topics
	}
	if filter.FromBlock != nil && filter.FromBlock.Hash != nil {
		query["blockHash"] = *filter.FromBlock.Hash
	} else {
		query["fromBlock"] = blockNumberArg(filter.FromBlock)
		query["toBlock"] = blockNumberArg(filter.ToBlock)
	}

	var raw []rpcLog
	if err := a.rpc.Call(ctx, &raw, "eth_getLogs", query); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}

	logs := make([]adapter.Log, len(raw))
	for i := range raw {
		logs[i] = raw[i].toLog()
		if event == nil {
			continue
		}
		args, err := decodeLog(event, &logs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s log %d: %w", event.Name, logs[i].LogIndex, err)
		}
		logs[i].EventName = event.Name
		logs[i].Args = args
	}
	return logs, nil
}

// decodeLog unpacks data fields and indexed topics into a map
func decodeLog(event *abi.Event, log *adapter.Log) (map[string]any, error) {
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return nil, errors.New("topic does not match event signature")
	}

	args := make(map[string]any)
	if len(log.Data) > 0 {
		if err := event.Inputs.UnpackIntoMap(args, log.Data); err != nil {
			return nil, err
		}
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return nil, err
	}
	return args, nil
}

// Write ABI-encodes the call and submits it with eth_sendTransaction, which
// requires the node to manage the sender account
func (a *Adapter) Write(ctx context.Context, params adapter.WriteParams) (common.Hash, error) {
	if params.ABI == nil {
		return common.Hash{}, fmt.Errorf("write %s requires an ABI", params.FunctionName)
	}
	data, err := params.ABI.Pack(params.FunctionName, params.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode %s: %w", params.FunctionName, err)
	}

	tx := newCallArgs(&params.Address, data, params.CallOptions)
	tx.Nonce = (*hexutil.Uint64)(params.Nonce)

	var hash common.Hash
	if err := a.rpc.Call(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	a.logger.Debug().Str("hash", hash.Hex()).Str("function", params.FunctionName).Msg("transaction sent")
	return hash, nil
}
