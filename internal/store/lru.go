package store

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"rpcdrift/internal/serialkey"
)

// lruBackend is the subset of golang-lru shared by the plain and expirable caches
type lruBackend interface {
	Add(key string, value lruEntry) bool
	Get(key string) (lruEntry, bool)
	Peek(key string) (lruEntry, bool)
	Contains(key string) bool
	Remove(key string) bool
	Purge()
	Keys() []string
	Len() int
}

// lruEntry keeps the structured key next to the value so Entries never has
// to reparse the string form
type lruEntry struct {
	key   serialkey.Key
	value any
}

// LRUConfig configures an LRU store
type LRUConfig struct {
	Size   int           // max number of entries, DefaultSize when zero
	TTL    time.Duration // entry lifetime, zero disables expiry
	Logger zerolog.Logger
}

// LRU is a bounded in-memory store that evicts the least-recently-accessed
// entry first. Get and Set count as access; Has does not.
type LRU struct {
	cache  lruBackend
	size   int
	ttl    time.Duration
	logger zerolog.Logger
}

// NewLRU creates a new LRU store
func NewLRU(cfg LRUConfig) (*LRU, error) {
	size := cfg.Size
	if size == 0 {
		size = DefaultSize
	}
	if size < 0 {
		return nil, fmt.Errorf("invalid lru size %d", size)
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("invalid lru ttl %s", cfg.TTL)
	}

	var backend lruBackend
	if cfg.TTL > 0 {
		backend = expirable.NewLRU[string, lruEntry](size, nil, cfg.TTL)
	} else {
		c, err := lru.New[string, lruEntry](size)
		if err != nil {
			return nil, fmt.Errorf("failed to create lru: %w", err)
		}
		backend = c
	}

	return &LRU{
		cache:  backend,
		size:   size,
		ttl:    cfg.TTL,
		logger: cfg.Logger.With().Str("component", "store").Logger(),
	}, nil
}

// NewDefault creates an LRU store with the default capacity and no expiry
func NewDefault() *LRU {
	s, err := NewLRU(LRUConfig{Logger: zerolog.Nop()})
	if err != nil {
		// DefaultSize is always valid
		panic(err)
	}
	return s
}

// Size returns the configured capacity
func (s *LRU) Size() int {
	return s.size
}

// Len returns the current number of entries
func (s *LRU) Len() int {
	return s.cache.Len()
}

// Has implements Store
func (s *LRU) Has(_ context.Context, key any) (bool, error) {
	_, ks, err := encodeKey(key)
	if err != nil {
		return false, err
	}
	return s.cache.Contains(ks), nil
}

// Get implements Store
func (s *LRU) Get(_ context.Context, key any) (any, bool, error) {
	_, ks, err := encodeKey(key)
	if err != nil {
		return nil, false, err
	}
	entry, ok := s.cache.Get(ks)
	if !ok {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements Store
func (s *LRU) Set(_ context.Context, key any, value any) error {
	k, ks, err := encodeKey(key)
	if err != nil {
		return err
	}
	if evicted := s.cache.Add(ks, lruEntry{key: k, value: value}); evicted {
		s.logger.Debug().
			Int("size", s.size).
			Msg("evicted least recently used entry")
	}
	return nil
}

// Delete implements Store
func (s *LRU) Delete(_ context.Context, key any) error {
	_, ks, err := encodeKey(key)
	if err != nil {
		return err
	}
	s.cache.Remove(ks)
	return nil
}

// Clear implements Store
func (s *LRU) Clear(_ context.Context) error {
	s.cache.Purge()
	return nil
}

// Entries implements Store. Entries are returned oldest first.
func (s *LRU) Entries(_ context.Context) ([]Entry, error) {
	keys := s.cache.Keys()
	entries := make([]Entry, 0, len(keys))
	for _, ks := range keys {
		entry, ok := s.cache.Peek(ks)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Key: entry.key, Value: entry.value})
	}
	return entries, nil
}

// Find implements Store
func (s *LRU) Find(_ context.Context, pred func(Entry) bool) (Entry, bool, error) {
	for _, ks := range s.cache.Keys() {
		entry, ok := s.cache.Peek(ks)
		if !ok {
			continue
		}
		e := Entry{Key: entry.key, Value: entry.value}
		if pred(e) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}
