package client

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"rpcdrift/internal/hooks"
	"rpcdrift/internal/metrics"
	"rpcdrift/internal/store"
)

// Options configures a Client
type Options struct {
	// Namespace isolates cache keys of this client in a shared store
	Namespace string
	// MaxBatchSize caps the number of calls per batch. Zero means unlimited.
	MaxBatchSize int
	// BatchWindow is how long concurrent calls are collected before a batch is sent
	BatchWindow time.Duration
	// Store replaces the default in-memory LRU store
	Store store.Store
	// MulticallAddress overrides the aggregator contract for every chain
	MulticallAddress *common.Address
	// CacheSize and CacheTTL configure the default store
	CacheSize int
	CacheTTL  time.Duration
	// DisableBatching sends every read and call to the adapter on its own
	DisableBatching bool
	// Hooks lets several clients share one registry
	Hooks   *hooks.Registry
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func (o *Options) newStore() (store.Store, error) {
	if o.Store != nil {
		return o.Store, nil
	}
	size := o.CacheSize
	if size == 0 {
		size = store.DefaultSize
	}
	return store.NewLRU(store.LRUConfig{
		Size:   size,
		TTL:    o.CacheTTL,
		Logger: o.Logger,
	})
}
