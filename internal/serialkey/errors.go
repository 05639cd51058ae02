package serialkey

import "fmt"

// KeyEncodingError is returned when a raw value cannot be canonicalized
type KeyEncodingError struct {
	Value  any
	Reason string
}

// Error implements the error interface
func (e *KeyEncodingError) Error() string {
	return fmt.Sprintf("cannot encode %T as cache key: %s", e.Value, e.Reason)
}
