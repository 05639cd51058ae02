// Package multicall turns a batch of independent reads and calls into as few
// adapter round trips as possible.
package multicall

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"rpcdrift/internal/adapter"
	"rpcdrift/internal/batch"
	"rpcdrift/internal/metrics"
	"rpcdrift/internal/serialkey"
)

// ChainIDFunc resolves the chain id used to look up the aggregator address
type ChainIDFunc func(ctx context.Context) (uint64, error)

// Config configures an Aggregator
type Config struct {
	// Address overrides the aggregator contract address for every chain
	Address *common.Address
	// ChainID defaults to the adapter's GetChainID
	ChainID ChainIDFunc
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Aggregator processes batches of Requests against an adapter
type Aggregator struct {
	adapter  adapter.Adapter
	override *common.Address
	chainID  ChainIDFunc
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// bucket holds requests sharing identical call options, in submission order
type bucket struct {
	options adapter.CallOptions
	items   []*Pending
}

// New creates an aggregator over a
func New(a adapter.Adapter, cfg Config) *Aggregator {
	chainID := cfg.ChainID
	if chainID == nil {
		chainID = a.GetChainID
	}

	return &Aggregator{
		adapter:  a,
		override: cfg.Address,
		chainID:  chainID,
		logger:   cfg.Logger.With().Str("component", "multicall").Logger(),
		metrics:  cfg.Metrics,
	}
}

// Process settles every request of one batch. It implements batch.ProcessFunc.
func (a *Aggregator) Process(ctx context.Context, items []*Pending) error {
	a.metrics.RecordBatch(len(items))

	if len(items) == 1 {
		a.direct(ctx, items[0])
		return nil
	}

	buckets := a.partition(items)

	var wg sync.WaitGroup
	for _, b := range buckets {
		wg.Add(1)
		go func(b *bucket) {
			defer wg.Done()
			if len(b.items) == 1 {
				a.direct(ctx, b.items[0])
				return
			}
			a.aggregate(ctx, b)
		}(b)
	}
	wg.Wait()

	return nil
}

// partition groups items by the serialized form of their call options.
// Items whose options cannot be encoded are rejected in place.
func (a *Aggregator) partition(items []*Pending) []*bucket {
	var buckets []*bucket
	index := make(map[string]*bucket)

	for _, p := range items {
		opts := p.Request.Options()
		opts.Block = opts.Block.Normalize()
		key, err := serialkey.String(opts)
		if err != nil {
			p.Reject(fmt.Errorf("failed to bucket call options: %w", err))
			continue
		}
		b, ok := index[key]
		if !ok {
			b = &bucket{options: opts}
			index[key] = b
			buckets = append(buckets, b)
		}
		b.items = append(b.items, p)
	}

	return buckets
}

// direct forwards a single request to the adapter
func (a *Aggregator) direct(ctx context.Context, p *Pending) {
	req := p.Request
	method := req.Method()
	a.metrics.RecordDirectCall(method)
	done := a.metrics.TimeAdapterCall(method)
	defer done()

	var (
		value any
		err   error
	)
	switch {
	case req.Read != nil:
		value, err = a.adapter.Read(ctx, *req.Read)
	case req.Call != nil:
		value, err = a.adapter.Call(ctx, *req.Call)
	default:
		err = errors.New("empty multicall request")
	}

	if err != nil {
		a.metrics.RecordCallFailure(method)
		p.Reject(err)
		return
	}
	p.Resolve(value)
}

// aggregate sends one multicall for a bucket and routes results by index
func (a *Aggregator) aggregate(ctx context.Context, b *bucket) {
	address, known := a.resolveAddress(ctx)

	calls := make([]adapter.MulticallCall, len(b.items))
	for i, p := range b.items {
		calls[i] = p.Request.multicallCall()
	}

	params := adapter.MulticallParams{
		Calls:        calls,
		AllowFailure: true,
		CallOptions:  b.options,
	}
	if known {
		params.MulticallAddress = &address
	}

	done := a.metrics.TimeAdapterCall("multicall")
	results, err := a.adapter.Multicall(ctx, params)
	done()

	if err != nil {
		if !known {
			a.logger.Debug().Err(err).Int("calls", len(b.items)).Msg("multicall failed without known address, dispatching calls individually")
			a.metrics.RecordMulticall(metrics.MulticallFallback)
			a.fallback(ctx, b)
			return
		}
		a.metrics.RecordMulticall(metrics.MulticallFailed)
		a.rejectAll(b, err)
		return
	}

	if len(results) != len(b.items) {
		a.metrics.RecordMulticall(metrics.MulticallFailed)
		a.rejectAll(b, fmt.Errorf("multicall result size mismatch: expected %d, got %d", len(b.items), len(results)))
		return
	}

	a.metrics.RecordMulticall(metrics.MulticallOK)
	for i, p := range b.items {
		settle(p, results[i], a.metrics)
	}
}

func settle(p *Pending, result adapter.MulticallResult, m *metrics.Metrics) {
	if !result.Success {
		m.RecordCallFailure(p.Request.Method())
		if result.Error != nil {
			p.Reject(result.Error)
			return
		}
		p.Reject(DecodeRevert(result.ReturnData))
		return
	}

	if p.Request.Call != nil && result.Value == nil {
		p.Resolve(result.ReturnData)
		return
	}
	p.Resolve(result.Value)
}

// fallback forwards every request of the bucket individually
func (a *Aggregator) fallback(ctx context.Context, b *bucket) {
	var wg sync.WaitGroup
	for _, p := range b.items {
		wg.Add(1)
		go func(p *Pending) {
			defer wg.Done()
			a.direct(ctx, p)
		}(p)
	}
	wg.Wait()
}

func (a *Aggregator) rejectAll(b *bucket, err error) {
	a.logger.Warn().Err(err).Int("calls", len(b.items)).Msg("multicall failed")
	bpe := &batch.BatchProcessingError{Size: len(b.items), Err: err}
	for _, p := range b.items {
		p.Reject(bpe)
	}
}

// resolveAddress returns the aggregator address and whether it is a known deployment
func (a *Aggregator) resolveAddress(ctx context.Context) (common.Address, bool) {
	if a.override != nil {
		return *a.override, true
	}

	chainID, err := a.chainID(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to get chain id for multicall address lookup")
		return common.Address{}, false
	}

	addr, ok := LookupAddress(chainID)
	if !ok {
		a.logger.Warn().Uint64("chainId", chainID).Msg("no known multicall address for chain")
	}
	return addr, ok
}
