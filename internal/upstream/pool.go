package upstream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rpcdrift/internal/config"
	"rpcdrift/internal/jsonrpc"
)

// DefaultMaxAttempts bounds how many upstreams a request tries
const DefaultMaxAttempts = 3

// PoolConfig configures a Pool
type PoolConfig struct {
	// HealthCheckInterval enables background eth_blockNumber polling when positive
	HealthCheckInterval time.Duration
	BlockLagThreshold   uint64
	// MaxAttempts is the number of distinct upstreams tried per request
	MaxAttempts int
	Logger      zerolog.Logger
}

// Pool is a set of upstreams serving the same chain. Requests go to healthy
// main upstreams by weighted round-robin, falling back to fallback upstreams,
// and fail over to the next upstream on transport errors.
type Pool struct {
	upstreams   []*Upstream
	balancer    *weightedRoundRobin
	monitor     *HealthMonitor
	maxAttempts int
	nextID      atomic.Int64
	logger      zerolog.Logger
}

// NewPool creates a Pool over the given upstreams
func NewPool(upstreams []*Upstream, cfg PoolConfig) *Pool {
	logger := cfg.Logger.With().Str("component", "pool").Logger()

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	p := &Pool{
		upstreams:   upstreams,
		balancer:    newWeightedRoundRobin(),
		maxAttempts: maxAttempts,
		logger:      logger,
	}
	if cfg.HealthCheckInterval > 0 {
		p.monitor = NewHealthMonitor(upstreams, cfg.HealthCheckInterval, cfg.BlockLagThreshold, logger)
	}
	return p
}

// NewPoolFromConfig creates a Pool with an Upstream per configured endpoint
func NewPoolFromConfig(cfg *config.Config, logger zerolog.Logger) *Pool {
	upstreams := make([]*Upstream, 0, len(cfg.Upstreams))
	for _, upCfg := range cfg.Upstreams {
		upstreams = append(upstreams, NewFromConfig(upCfg, cfg, logger))
	}

	return NewPool(upstreams, PoolConfig{
		HealthCheckInterval: cfg.GetHealthCheckIntervalDuration(),
		BlockLagThreshold:   cfg.BlockLagThreshold,
		MaxAttempts:         cfg.RetryMaxAttempts,
		Logger:              logger,
	})
}

// Start connects WebSocket-preferring upstreams and starts health monitoring.
// Connection failures are logged; the upstream reconnects on first use.
func (p *Pool) Start(ctx context.Context) {
	for _, u := range p.upstreams {
		if !u.usesWS() {
			continue
		}
		if err := u.StartWS(ctx); err != nil {
			p.logger.Warn().Err(err).Str("upstream", u.Name()).Msg("failed to start WebSocket")
		}
	}
	if p.monitor != nil {
		p.monitor.Start()
	}
	p.logger.Info().Int("upstreams", len(p.upstreams)).Msg("pool started")
}

// Close stops monitoring and closes all connections
func (p *Pool) Close() {
	if p.monitor != nil {
		p.monitor.Stop()
	}
	for _, u := range p.upstreams {
		u.Close()
	}
}

// Upstreams returns all upstreams
func (p *Pool) Upstreams() []*Upstream {
	return append([]*Upstream(nil), p.upstreams...)
}

// candidates returns healthy main upstreams whose breaker admits a request,
// or the healthy fallback upstreams when no main one qualifies
func (p *Pool) candidates(exclude map[string]bool) []*Upstream {
	var main, fallback []*Upstream
	for _, u := range p.upstreams {
		if exclude[u.Name()] || !u.IsHealthy() {
			continue
		}
		if u.Role() == RoleFallback {
			fallback = append(fallback, u)
		} else {
			main = append(main, u)
		}
	}
	if allowed := allowRequest(main); len(allowed) > 0 {
		return allowed
	}
	return allowRequest(fallback)
}

func allowRequest(upstreams []*Upstream) []*Upstream {
	allowed := upstreams[:0]
	for _, u := range upstreams {
		if u.breaker.AllowRequest() {
			allowed = append(allowed, u)
		}
	}
	return allowed
}

// Call sends method with positional params and decodes the result into
// result. Node errors are returned as *jsonrpc.Error; retryable ones and
// transport failures are retried on another upstream.
func (p *Pool) Call(ctx context.Context, result any, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}
	req, err := jsonrpc.NewRequest(method, params, jsonrpc.NewIDInt(p.nextID.Add(1)))
	if err != nil {
		return err
	}

	resp, err := p.Execute(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(result)
}

// Execute sends a prepared request with failover
func (p *Pool) Execute(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	exclude := make(map[string]bool)
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		u := p.balancer.next(p.candidates(exclude))
		if u == nil {
			break
		}

		resp, err := u.Execute(ctx, req)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			u.breaker.RecordFailure()
			lastErr = err
		case resp.HasError() && resp.Error.IsRetryable():
			u.breaker.RecordFailure()
			lastErr = resp.Error
		default:
			u.breaker.RecordSuccess()
			return resp, nil
		}

		exclude[u.Name()] = true
		p.logger.Warn().
			Err(lastErr).
			Str("upstream", u.Name()).
			Str("method", req.Method).
			Int("attempt", attempt+1).
			Msg("upstream request failed")
	}

	if lastErr == nil {
		return nil, ErrNoUpstream
	}
	var rpcErr *jsonrpc.Error
	if errors.As(lastErr, &rpcErr) {
		return &jsonrpc.Response{JSONRPC: jsonrpc.Version, Error: rpcErr, ID: req.ID}, nil
	}
	return nil, fmt.Errorf("%s failed: %w", req.Method, lastErr)
}
