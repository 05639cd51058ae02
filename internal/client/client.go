// Package client is the entry point of the library: an adapter.Adapter that
// adds hooks, caching, request coalescing and multicall aggregation on top of
// another adapter.
package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"rpcdrift/internal/adapter"
	"rpcdrift/internal/batch"
	"rpcdrift/internal/clientcache"
	"rpcdrift/internal/hooks"
	"rpcdrift/internal/metrics"
	"rpcdrift/internal/multicall"
	"rpcdrift/internal/serialkey"
)

// Hookable method names
const (
	MethodRead               = "read"
	MethodCall               = "call"
	MethodMulticall          = "multicall"
	MethodWrite              = "write"
	MethodGetBlock           = "getBlock"
	MethodGetBalance         = "getBalance"
	MethodGetTransaction     = "getTransaction"
	MethodWaitForTransaction = "waitForTransaction"
	MethodGetChainID         = "getChainId"
	MethodGetEvents          = "getEvents"
)

// NoArgs is the argument type of hooks on methods without parameters
type NoArgs struct{}

// Client wraps an adapter with hooks, a cache and a batching queue
type Client struct {
	adapter    adapter.Adapter
	cache      *clientcache.Cache
	hooks      *hooks.Registry
	queue      *batch.Queue[multicall.Request, any]
	aggregator *multicall.Aggregator
	inflight   singleflight.Group
	batching   bool
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

var _ adapter.Adapter = (*Client)(nil)

// New creates a client over a
func New(a adapter.Adapter, opts Options) (*Client, error) {
	s, err := opts.newStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	registry := opts.Hooks
	if registry == nil {
		registry = hooks.NewRegistry()
	}

	c := &Client{
		adapter:  a,
		hooks:    registry,
		batching: !opts.DisableBatching,
		logger:   opts.Logger.With().Str("component", "client").Logger(),
		metrics:  opts.Metrics,
	}
	c.cache = clientcache.New(s, clientcache.Options{
		Namespace: opts.Namespace,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
	})
	c.aggregator = multicall.New(a, multicall.Config{
		Address: opts.MulticallAddress,
		ChainID: c.chainID,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	c.queue = batch.New(c.aggregator.Process, batch.Options{
		MaxBatchSize: opts.MaxBatchSize,
		Window:       opts.BatchWindow,
		Logger:       opts.Logger,
	})

	return c, nil
}

// Cache returns the client cache for preloading and invalidation
func (c *Client) Cache() *clientcache.Cache {
	return c.cache
}

// Hooks returns the hook registry
func (c *Client) Hooks() *hooks.Registry {
	return c.hooks
}

// Adapter returns the wrapped adapter
func (c *Client) Adapter() adapter.Adapter {
	return c.adapter
}

// Flush sends queued calls without waiting for the batch window
func (c *Client) Flush() {
	c.queue.Flush()
}

// Close flushes queued calls and waits for in-flight batches
func (c *Client) Close() {
	c.queue.Close()
}

// GetChainID returns the chain id. It is cached for the life of the store entry.
func (c *Client) GetChainID(ctx context.Context) (uint64, error) {
	return hooks.Intercept(ctx, c.hooks, MethodGetChainID, NoArgs{}, func(ctx context.Context, _ NoArgs) (uint64, error) {
		return c.chainID(ctx)
	})
}

func (c *Client) chainID(ctx context.Context) (uint64, error) {
	if id, ok, err := c.cache.GetChainID(ctx); err != nil || ok {
		return id, err
	}

	v, err, _ := c.inflight.Do("chainId", func() (any, error) {
		done := c.metrics.TimeAdapterCall(MethodGetChainID)
		id, err := c.adapter.GetChainID(ctx)
		done()
		if err != nil {
			return uint64(0), err
		}
		if err := c.cache.PreloadChainID(ctx, id); err != nil {
			return uint64(0), err
		}
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// GetBlock returns a block. Blocks are cached under their number and hash,
// and under the requested specifier when it is stable.
func (c *Client) GetBlock(ctx context.Context, block *adapter.BlockSpecifier) (*adapter.Block, error) {
	return hooks.Intercept(ctx, c.hooks, MethodGetBlock, block, func(ctx context.Context, block *adapter.BlockSpecifier) (*adapter.Block, error) {
		if b, ok, err := c.cache.GetBlock(ctx, block); err != nil || ok {
			return b, err
		}

		done := c.metrics.TimeAdapterCall(MethodGetBlock)
		b, err := c.adapter.GetBlock(ctx, block)
		done()
		if err != nil || b == nil {
			return b, err
		}

		for _, spec := range []*adapter.BlockSpecifier{adapter.AtNumber(b.Number), adapter.AtHash(b.Hash)} {
			if err := c.cache.PreloadBlock(ctx, spec, b); err != nil {
				return nil, err
			}
		}
		return b, nil
	})
}

// GetBalance returns an account balance, cached when the block is stable
func (c *Client) GetBalance(ctx context.Context, params adapter.BalanceParams) (*big.Int, error) {
	return hooks.Intercept(ctx, c.hooks, MethodGetBalance, params, func(ctx context.Context, params adapter.BalanceParams) (*big.Int, error) {
		if bal, ok, err := c.cache.GetBalance(ctx, params); err != nil || ok {
			return bal, err
		}

		done := c.metrics.TimeAdapterCall(MethodGetBalance)
		bal, err := c.adapter.GetBalance(ctx, params)
		done()
		if err != nil {
			return nil, err
		}

		if params.Block.IsStable() {
			if err := c.cache.PreloadBalance(ctx, params, bal); err != nil {
				return nil, err
			}
		}
		return bal, nil
	})
}

// GetTransaction returns a transaction. Mined transactions are cached.
func (c *Client) GetTransaction(ctx context.Context, hash common.Hash) (*adapter.Transaction, error) {
	return hooks.Intercept(ctx, c.hooks, MethodGetTransaction, hash, func(ctx context.Context, hash common.Hash) (*adapter.Transaction, error) {
		if tx, ok, err := c.cache.GetTransaction(ctx, hash); err != nil || ok {
			return tx, err
		}

		done := c.metrics.TimeAdapterCall(MethodGetTransaction)
		tx, err := c.adapter.GetTransaction(ctx, hash)
		done()
		if err != nil {
			return nil, err
		}

		if tx.IsMined() {
			if err := c.cache.PreloadTransaction(ctx, tx); err != nil {
				return nil, err
			}
		}
		return tx, nil
	})
}

// WaitForTransaction waits for a transaction to be mined
func (c *Client) WaitForTransaction(ctx context.Context, params adapter.WaitParams) (*adapter.Receipt, error) {
	return hooks.Intercept(ctx, c.hooks, MethodWaitForTransaction, params, func(ctx context.Context, params adapter.WaitParams) (*adapter.Receipt, error) {
		return c.adapter.WaitForTransaction(ctx, params)
	})
}

// GetEvents returns event logs, cached when both range ends are stable
func (c *Client) GetEvents(ctx context.Context, filter adapter.EventFilter) ([]adapter.Log, error) {
	return hooks.Intercept(ctx, c.hooks, MethodGetEvents, filter, func(ctx context.Context, filter adapter.EventFilter) ([]adapter.Log, error) {
		if logs, ok, err := c.cache.GetEvents(ctx, filter); err != nil || ok {
			return logs, err
		}

		done := c.metrics.TimeAdapterCall(MethodGetEvents)
		logs, err := c.adapter.GetEvents(ctx, filter)
		done()
		if err != nil {
			return nil, err
		}

		if filter.IsStable() {
			if err := c.cache.PreloadEvents(ctx, filter, logs); err != nil {
				return nil, err
			}
		}
		return logs, nil
	})
}

// Read performs a contract read. Cached and preloaded values are returned
// without a round trip; identical reads in flight share one request; the rest
// are coalesced into multicalls.
func (c *Client) Read(ctx context.Context, params adapter.ReadParams) (any, error) {
	return hooks.Intercept(ctx, c.hooks, MethodRead, params, func(ctx context.Context, params adapter.ReadParams) (any, error) {
		if v, ok, err := c.cache.GetRead(ctx, params); err != nil || ok {
			return v, err
		}

		key, err := c.cache.ReadKey(params)
		if err != nil {
			return nil, err
		}
		v, err := c.dedupe(ctx, key, params.CallOptions, multicall.ReadRequest(params))
		if err != nil {
			return nil, err
		}

		if params.Block.IsStable() {
			if err := c.cache.PreloadRead(ctx, params, v); err != nil {
				return nil, err
			}
		}
		return v, nil
	})
}

// Call performs a raw eth_call, coalesced like Read. Deployments (nil To) are
// sent on their own.
func (c *Client) Call(ctx context.Context, params adapter.CallParams) ([]byte, error) {
	return hooks.Intercept(ctx, c.hooks, MethodCall, params, func(ctx context.Context, params adapter.CallParams) ([]byte, error) {
		if data, ok, err := c.cache.GetCall(ctx, params); err != nil || ok {
			return data, err
		}

		var data []byte
		if params.To == nil {
			done := c.metrics.TimeAdapterCall(MethodCall)
			raw, err := c.adapter.Call(ctx, params)
			done()
			if err != nil {
				return nil, err
			}
			data = raw
		} else {
			key, err := c.cache.CallKey(params)
			if err != nil {
				return nil, err
			}
			v, err := c.dedupe(ctx, key, params.CallOptions, multicall.CallRequest(params))
			if err != nil {
				return nil, err
			}
			raw, ok := v.([]byte)
			if !ok && v != nil {
				return nil, fmt.Errorf("unexpected call result %T", v)
			}
			data = raw
		}

		if params.To != nil && params.Block.IsStable() {
			if err := c.cache.PreloadCall(ctx, params, data); err != nil {
				return nil, err
			}
		}
		return data, nil
	})
}

// Multicall sends calls as one aggregated request. Successful reads at a
// stable block are cached.
func (c *Client) Multicall(ctx context.Context, params adapter.MulticallParams) ([]adapter.MulticallResult, error) {
	return hooks.Intercept(ctx, c.hooks, MethodMulticall, params, func(ctx context.Context, params adapter.MulticallParams) ([]adapter.MulticallResult, error) {
		done := c.metrics.TimeAdapterCall(MethodMulticall)
		results, err := c.adapter.Multicall(ctx, params)
		done()
		if err != nil {
			return nil, err
		}

		if !params.Block.IsStable() || len(results) != len(params.Calls) {
			return results, nil
		}
		for i, call := range params.Calls {
			if call.Read == nil || !results[i].Success {
				continue
			}
			read := *call.Read
			read.CallOptions = params.CallOptions
			if err := c.cache.PreloadRead(ctx, read, results[i].Value); err != nil {
				return nil, err
			}
		}
		return results, nil
	})
}

// Write submits a transaction. It does not touch the cache.
func (c *Client) Write(ctx context.Context, params adapter.WriteParams) (common.Hash, error) {
	return hooks.Intercept(ctx, c.hooks, MethodWrite, params, func(ctx context.Context, params adapter.WriteParams) (common.Hash, error) {
		return c.adapter.Write(ctx, params)
	})
}

// dedupe joins an identical request already in flight, or submits req.
// The shared request outlives the cancellation of any single waiter.
func (c *Client) dedupe(ctx context.Context, key serialkey.Key, opts adapter.CallOptions, req multicall.Request) (any, error) {
	optsKey, err := serialkey.Encode(opts)
	if err != nil {
		return nil, err
	}
	flightKey, err := serialkey.Marshal(serialkey.List{key, optsKey})
	if err != nil {
		return nil, err
	}

	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(flightKey, func() (any, error) {
		return c.submit(shared, req)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) submit(ctx context.Context, req multicall.Request) (any, error) {
	if c.batching {
		return c.queue.Submit(ctx, req)
	}

	done := c.metrics.TimeAdapterCall(req.Method())
	defer done()
	if req.Read != nil {
		return c.adapter.Read(ctx, *req.Read)
	}
	return c.adapter.Call(ctx, *req.Call)
}
