package clientcache

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"rpcdrift/internal/adapter"
	"rpcdrift/internal/serialkey"
)

// Key kinds, the second element of every key
const (
	KindChainID     = "chainId"
	KindBlock       = "block"
	KindBalance     = "balance"
	KindTransaction = "transaction"
	KindEvents      = "events"
	KindRead        = "read"
	KindCall        = "call"
)

// ReadFilter selects cached reads by any subset of their parameters.
// Args match positionally and may be a prefix of the cached arguments.
type ReadFilter struct {
	Address      *common.Address
	FunctionName string
	Args         []any
	Block        *adapter.BlockSpecifier
}

// key builds [namespace, kind, fields]. Nil fields are dropped by the encoder.
func (c *Cache) key(kind string, fields map[string]any) (serialkey.Key, error) {
	encoded, err := serialkey.Encode(fields)
	if err != nil {
		return nil, err
	}
	return serialkey.List{c.namespace, kind, encoded}, nil
}

// ChainIDKey returns the key of the chain id
func (c *Cache) ChainIDKey() (serialkey.Key, error) {
	return c.key(KindChainID, map[string]any{})
}

// BlockKey returns the key of a block
func (c *Cache) BlockKey(block *adapter.BlockSpecifier) (serialkey.Key, error) {
	return c.key(KindBlock, map[string]any{
		"block": blockField(block),
	})
}

// BalanceKey returns the key of an account balance
func (c *Cache) BalanceKey(params adapter.BalanceParams) (serialkey.Key, error) {
	return c.key(KindBalance, map[string]any{
		"address": params.Address,
		"block":   blockField(params.Block),
	})
}

// TransactionKey returns the key of a transaction
func (c *Cache) TransactionKey(hash common.Hash) (serialkey.Key, error) {
	return c.key(KindTransaction, map[string]any{
		"hash": hash,
	})
}

// EventsKey returns the key of an event log query
func (c *Cache) EventsKey(filter adapter.EventFilter) (serialkey.Key, error) {
	return c.key(KindEvents, map[string]any{
		"address":   filter.Address,
		"event":     nonEmpty(filter.Event),
		"topics":    filter.Topics,
		"fromBlock": blockField(filter.FromBlock),
		"toBlock":   blockField(filter.ToBlock),
	})
}

// ReadKey returns the key of a contract read. The ABI and non-block call
// options are not part of the key.
func (c *Cache) ReadKey(params adapter.ReadParams) (serialkey.Key, error) {
	return c.key(KindRead, map[string]any{
		"address":      params.Address,
		"functionName": params.FunctionName,
		"args":         argsField(params.Args),
		"block":        blockField(params.Block),
	})
}

// PartialReadKey returns a key that matches every read key sharing the set fields
func (c *Cache) PartialReadKey(filter ReadFilter) (serialkey.Key, error) {
	fields := map[string]any{
		"functionName": nonEmpty(filter.FunctionName),
		"block":        blockField(filter.Block),
	}
	if filter.Address != nil {
		fields["address"] = *filter.Address
	}
	if len(filter.Args) > 0 {
		fields["args"] = filter.Args
	}
	return c.key(KindRead, fields)
}

// CallKey returns the key of a raw call
func (c *Cache) CallKey(params adapter.CallParams) (serialkey.Key, error) {
	return c.key(KindCall, map[string]any{
		"to":    params.To,
		"data":  hexutil.Encode(params.Data),
		"block": blockField(params.Block),
	})
}

// blockField spells the specifier out as a map so tags, numbers and hashes
// never collide. Latest is omitted.
func blockField(block *adapter.BlockSpecifier) any {
	b := block.Normalize()
	if b == nil {
		return nil
	}
	return map[string]any{
		"tag":    nonEmpty(b.Tag),
		"number": b.Number,
		"hash":   b.Hash,
	}
}

func argsField(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args
}

func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
