// Package clientcache derives namespaced cache keys for client operations and
// stores, loads and invalidates their results in a store.Store.
package clientcache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"rpcdrift/internal/adapter"
	"rpcdrift/internal/metrics"
	"rpcdrift/internal/serialkey"
	"rpcdrift/internal/store"
)

// Options configures a Cache
type Options struct {
	// Namespace isolates the keys of one client from others sharing a store
	Namespace string
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// Cache is a namespaced view over a store
type Cache struct {
	store     store.Store
	namespace string
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// New creates a cache over s
func New(s store.Store, opts Options) *Cache {
	return &Cache{
		store:     s,
		namespace: opts.Namespace,
		logger:    opts.Logger.With().Str("component", "clientcache").Logger(),
		metrics:   opts.Metrics,
	}
}

// Namespace returns the namespace of every key this cache derives
func (c *Cache) Namespace() string {
	return c.namespace
}

// Store returns the underlying store
func (c *Cache) Store() store.Store {
	return c.store
}

// Has delegates to the store
func (c *Cache) Has(ctx context.Context, key any) (bool, error) {
	ok, err := c.store.Has(ctx, key)
	if err != nil {
		c.metrics.RecordCacheError("has")
		return false, fmt.Errorf("cache has: %w", err)
	}
	return ok, nil
}

// Get delegates to the store
func (c *Cache) Get(ctx context.Context, key any) (any, bool, error) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.RecordCacheError("get")
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return v, ok, nil
}

// Set delegates to the store
func (c *Cache) Set(ctx context.Context, key, value any) error {
	if err := c.store.Set(ctx, key, value); err != nil {
		c.metrics.RecordCacheError("set")
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete delegates to the store
func (c *Cache) Delete(ctx context.Context, key any) error {
	if err := c.store.Delete(ctx, key); err != nil {
		c.metrics.RecordCacheError("delete")
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Entries delegates to the store
func (c *Cache) Entries(ctx context.Context) ([]store.Entry, error) {
	entries, err := c.store.Entries(ctx)
	if err != nil {
		c.metrics.RecordCacheError("entries")
		return nil, fmt.Errorf("cache entries: %w", err)
	}
	return entries, nil
}

// Find delegates to the store
func (c *Cache) Find(ctx context.Context, pred func(store.Entry) bool) (store.Entry, bool, error) {
	e, ok, err := c.store.Find(ctx, pred)
	if err != nil {
		c.metrics.RecordCacheError("find")
		return store.Entry{}, false, fmt.Errorf("cache find: %w", err)
	}
	return e, ok, nil
}

// Clear removes every entry of this namespace, or the whole store when the
// namespace is empty
func (c *Cache) Clear(ctx context.Context) error {
	if c.namespace == "" {
		if err := c.store.Clear(ctx); err != nil {
			c.metrics.RecordCacheError("clear")
			return fmt.Errorf("cache clear: %w", err)
		}
		return nil
	}

	_, err := c.deleteMatching(ctx, serialkey.List{c.namespace})
	return err
}

// deleteMatching removes every entry whose key matches partial
func (c *Cache) deleteMatching(ctx context.Context, partial serialkey.Key) (int, error) {
	entries, err := c.Entries(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, e := range entries {
		if !serialkey.IsMatch(e.Key, partial) {
			continue
		}
		if err := c.Delete(ctx, e.Key); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// lookup loads a key and records a hit or miss for kind
func (c *Cache) lookup(ctx context.Context, kind string, key serialkey.Key, keyErr error) (any, bool, error) {
	if keyErr != nil {
		return nil, false, keyErr
	}
	v, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		c.metrics.RecordCacheHit(kind)
	} else {
		c.metrics.RecordCacheMiss(kind)
	}
	return v, ok, nil
}

func (c *Cache) put(ctx context.Context, key serialkey.Key, keyErr error, value any) error {
	if keyErr != nil {
		return keyErr
	}
	return c.Set(ctx, key, value)
}

func (c *Cache) invalidate(ctx context.Context, key serialkey.Key, keyErr error) error {
	if keyErr != nil {
		return keyErr
	}
	return c.Delete(ctx, key)
}

// convert returns v as T. Values that went through an external store come back
// JSON-decoded and are converted by re-encoding.
func convert[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var t T
	data, err := json.Marshal(v)
	if err != nil {
		return t, fmt.Errorf("failed to convert cached %T: %w", v, err)
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("failed to convert cached %T to %T: %w", v, t, err)
	}
	return t, nil
}

func typed[T any](v any, ok bool, err error) (T, bool, error) {
	var zero T
	if err != nil || !ok {
		return zero, false, err
	}
	t, err := convert[T](v)
	if err != nil {
		return zero, false, err
	}
	return t, true, nil
}

// GetChainID returns the cached chain id
func (c *Cache) GetChainID(ctx context.Context) (uint64, bool, error) {
	key, err := c.ChainIDKey()
	return typed[uint64](c.lookup(ctx, KindChainID, key, err))
}

// PreloadChainID stores a chain id
func (c *Cache) PreloadChainID(ctx context.Context, chainID uint64) error {
	key, err := c.ChainIDKey()
	return c.put(ctx, key, err, chainID)
}

// InvalidateChainID removes the cached chain id
func (c *Cache) InvalidateChainID(ctx context.Context) error {
	key, err := c.ChainIDKey()
	return c.invalidate(ctx, key, err)
}

// GetBlock returns a cached block
func (c *Cache) GetBlock(ctx context.Context, block *adapter.BlockSpecifier) (*adapter.Block, bool, error) {
	key, err := c.BlockKey(block)
	return typed[*adapter.Block](c.lookup(ctx, KindBlock, key, err))
}

// PreloadBlock stores a block under a specifier
func (c *Cache) PreloadBlock(ctx context.Context, block *adapter.BlockSpecifier, value *adapter.Block) error {
	key, err := c.BlockKey(block)
	return c.put(ctx, key, err, value)
}

// InvalidateBlock removes a cached block
func (c *Cache) InvalidateBlock(ctx context.Context, block *adapter.BlockSpecifier) error {
	key, err := c.BlockKey(block)
	return c.invalidate(ctx, key, err)
}

// GetBalance returns a cached balance
func (c *Cache) GetBalance(ctx context.Context, params adapter.BalanceParams) (*big.Int, bool, error) {
	key, err := c.BalanceKey(params)
	return typed[*big.Int](c.lookup(ctx, KindBalance, key, err))
}

// PreloadBalance stores a balance
func (c *Cache) PreloadBalance(ctx context.Context, params adapter.BalanceParams, value *big.Int) error {
	key, err := c.BalanceKey(params)
	return c.put(ctx, key, err, value)
}

// InvalidateBalance removes a cached balance
func (c *Cache) InvalidateBalance(ctx context.Context, params adapter.BalanceParams) error {
	key, err := c.BalanceKey(params)
	return c.invalidate(ctx, key, err)
}

// GetTransaction returns a cached transaction
func (c *Cache) GetTransaction(ctx context.Context, hash common.Hash) (*adapter.Transaction, bool, error) {
	key, err := c.TransactionKey(hash)
	return typed[*adapter.Transaction](c.lookup(ctx, KindTransaction, key, err))
}

// PreloadTransaction stores a transaction
func (c *Cache) PreloadTransaction(ctx context.Context, value *adapter.Transaction) error {
	key, err := c.TransactionKey(value.Hash)
	return c.put(ctx, key, err, value)
}

// InvalidateTransaction removes a cached transaction
func (c *Cache) InvalidateTransaction(ctx context.Context, hash common.Hash) error {
	key, err := c.TransactionKey(hash)
	return c.invalidate(ctx, key, err)
}

// GetEvents returns cached logs for a filter
func (c *Cache) GetEvents(ctx context.Context, filter adapter.EventFilter) ([]adapter.Log, bool, error) {
	key, err := c.EventsKey(filter)
	return typed[[]adapter.Log](c.lookup(ctx, KindEvents, key, err))
}

// PreloadEvents stores logs for a filter
func (c *Cache) PreloadEvents(ctx context.Context, filter adapter.EventFilter, logs []adapter.Log) error {
	key, err := c.EventsKey(filter)
	return c.put(ctx, key, err, logs)
}

// InvalidateEvents removes cached logs for a filter
func (c *Cache) InvalidateEvents(ctx context.Context, filter adapter.EventFilter) error {
	key, err := c.EventsKey(filter)
	return c.invalidate(ctx, key, err)
}

// GetRead returns a cached read result. When params carries an ABI, values
// that went through an external store are converted back to the types the
// ABI decoder returns.
func (c *Cache) GetRead(ctx context.Context, params adapter.ReadParams) (any, bool, error) {
	key, err := c.ReadKey(params)
	v, ok, err := c.lookup(ctx, KindRead, key, err)
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err = readValue(params, v)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// readValue restores ABI output types: the bare value for single-output
// functions, []any for the rest
func readValue(params adapter.ReadParams, v any) (any, error) {
	if params.ABI == nil || v == nil {
		return v, nil
	}
	method, ok := params.ABI.Methods[params.FunctionName]
	if !ok || len(method.Outputs) == 0 {
		return v, nil
	}
	if len(method.Outputs) == 1 {
		return convertTo(v, method.Outputs[0].Type.GetType())
	}

	values, ok := v.([]any)
	if !ok || len(values) != len(method.Outputs) {
		return nil, fmt.Errorf("cached %s result has %T, want %d outputs", params.FunctionName, v, len(method.Outputs))
	}
	out := make([]any, len(values))
	for i, el := range values {
		conv, err := convertTo(el, method.Outputs[i].Type.GetType())
		if err != nil {
			return nil, err
		}
		out[i] = conv
	}
	return out, nil
}

// convertTo is convert for a type known only at run time
func convertTo(v any, typ reflect.Type) (any, error) {
	if v == nil || reflect.TypeOf(v) == typ {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to convert cached %T: %w", v, err)
	}
	out := reflect.New(typ)
	if err := json.Unmarshal(data, out.Interface()); err != nil {
		return nil, fmt.Errorf("failed to convert cached %T to %s: %w", v, typ, err)
	}
	return out.Elem().Interface(), nil
}

// PreloadRead stores a read result without a network round trip
func (c *Cache) PreloadRead(ctx context.Context, params adapter.ReadParams, value any) error {
	key, err := c.ReadKey(params)
	return c.put(ctx, key, err, value)
}

// InvalidateRead removes one cached read
func (c *Cache) InvalidateRead(ctx context.Context, params adapter.ReadParams) error {
	key, err := c.ReadKey(params)
	return c.invalidate(ctx, key, err)
}

// InvalidateReadsMatching removes every cached read matching filter and
// returns how many were removed. It scans all entries of the store.
func (c *Cache) InvalidateReadsMatching(ctx context.Context, filter ReadFilter) (int, error) {
	partial, err := c.PartialReadKey(filter)
	if err != nil {
		return 0, err
	}
	n, err := c.deleteMatching(ctx, partial)
	if err != nil {
		return n, err
	}
	c.logger.Debug().Int("removed", n).Msg("invalidated matching reads")
	return n, nil
}

// GetCall returns cached raw call data
func (c *Cache) GetCall(ctx context.Context, params adapter.CallParams) ([]byte, bool, error) {
	key, err := c.CallKey(params)
	return typed[[]byte](c.lookup(ctx, KindCall, key, err))
}

// PreloadCall stores raw call data
func (c *Cache) PreloadCall(ctx context.Context, params adapter.CallParams, value []byte) error {
	key, err := c.CallKey(params)
	return c.put(ctx, key, err, value)
}

// InvalidateCall removes cached raw call data
func (c *Cache) InvalidateCall(ctx context.Context, params adapter.CallParams) error {
	key, err := c.CallKey(params)
	return c.invalidate(ctx, key, err)
}
