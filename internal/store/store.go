package store

import (
	"context"

	"rpcdrift/internal/serialkey"
)

// DefaultSize is the capacity of the default LRU store
const DefaultSize = 500

// Entry is a key/value pair held by a Store. Key is always the structured
// form produced by serialkey, never the internal string representation.
type Entry struct {
	Key   serialkey.Key
	Value any
}

// Store defines the key-value storage used by the client cache.
// Keys are arbitrary structured values canonicalized with serialkey.
// Every method may block on I/O, so all of them take a context and return
// an error; in-memory implementations simply never fail.
type Store interface {
	// Has reports whether key is present without refreshing its recency
	Has(ctx context.Context, key any) (bool, error)

	// Get returns the value for key and whether it was found
	Get(ctx context.Context, key any) (any, bool, error)

	// Set stores value under key
	Set(ctx context.Context, key any, value any) error

	// Delete removes key if present
	Delete(ctx context.Context, key any) error

	// Clear removes every entry
	Clear(ctx context.Context) error

	// Entries returns all entries in the store's native order
	Entries(ctx context.Context) ([]Entry, error)

	// Find returns the first entry matching pred
	Find(ctx context.Context, pred func(Entry) bool) (Entry, bool, error)
}

// encodeKey canonicalizes a raw key into its structured and string forms
func encodeKey(raw any) (serialkey.Key, string, error) {
	k, err := serialkey.Encode(raw)
	if err != nil {
		return nil, "", err
	}
	s, err := serialkey.Marshal(k)
	if err != nil {
		return nil, "", err
	}
	return k, s, nil
}
