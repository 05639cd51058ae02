package upstream

import (
	"errors"
	"sync/atomic"

	"rpcdrift/internal/config"
)

// ErrNoUpstream is returned when no upstream is available for a request
var ErrNoUpstream = errors.New("no upstream available")

// Role represents the upstream role
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// RoleFromConfig converts config.Role to upstream.Role
func RoleFromConfig(r config.Role) Role {
	switch r {
	case config.RoleFallback:
		return RoleFallback
	default:
		return RoleMain
	}
}

// Status holds the health state of an upstream
type Status struct {
	healthy      atomic.Bool
	reachable    atomic.Bool
	currentBlock atomic.Uint64
	requests     atomic.Uint64
}

// NewStatus creates a new Status. Upstreams start healthy.
func NewStatus() *Status {
	s := &Status{}
	s.healthy.Store(true)
	s.reachable.Store(true)
	return s
}

// UpdateBlock updates the block if the new value is higher.
// Returns true if the block was updated.
func (s *Status) UpdateBlock(block uint64) bool {
	for {
		current := s.currentBlock.Load()
		if block <= current {
			return false
		}
		if s.currentBlock.CompareAndSwap(current, block) {
			return true
		}
	}
}
