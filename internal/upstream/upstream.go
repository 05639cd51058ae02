package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rpcdrift/internal/config"
	"rpcdrift/internal/jsonrpc"
)

// Upstream represents a single JSON-RPC endpoint reachable over HTTP,
// WebSocket or both
type Upstream struct {
	name     string
	rpcURL   string
	wsURL    string
	weight   int
	role     Role
	preferWS bool

	messageTimeout    time.Duration
	reconnectInterval time.Duration

	httpClient *http.Client
	status     *Status
	breaker    *CircuitBreaker
	logger     zerolog.Logger

	wsMu     sync.Mutex
	wsClient *wsClient
}

// Config for creating a new Upstream
type Config struct {
	Name              string
	RPCURL            string
	WSURL             string
	Weight            int
	Role              Role
	PreferWS          bool
	RequestTimeout    time.Duration
	MessageTimeout    time.Duration
	ReconnectInterval time.Duration
	CircuitBreaker    CircuitBreakerConfig
	Logger            zerolog.Logger
}

// New creates a new Upstream instance
func New(cfg Config) *Upstream {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	weight := cfg.Weight
	if weight <= 0 {
		weight = 1
	}
	role := cfg.Role
	if role == "" {
		role = RoleMain
	}

	return &Upstream{
		name:              cfg.Name,
		rpcURL:            cfg.RPCURL,
		wsURL:             cfg.WSURL,
		weight:            weight,
		role:              role,
		preferWS:          cfg.PreferWS,
		messageTimeout:    cfg.MessageTimeout,
		reconnectInterval: cfg.ReconnectInterval,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		status:  NewStatus(),
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  cfg.Logger.With().Str("upstream", cfg.Name).Logger(),
	}
}

// NewFromConfig creates an Upstream from config
func NewFromConfig(cfg config.UpstreamConfig, globalCfg *config.Config, logger zerolog.Logger) *Upstream {
	return New(Config{
		Name:              cfg.Name,
		RPCURL:            cfg.RPCURL,
		WSURL:             cfg.WSURL,
		Weight:            cfg.Weight,
		Role:              RoleFromConfig(cfg.Role),
		PreferWS:          cfg.PreferWS,
		RequestTimeout:    globalCfg.GetRequestTimeoutDuration(),
		MessageTimeout:    globalCfg.GetUpstreamMessageTimeoutDuration(),
		ReconnectInterval: globalCfg.GetUpstreamReconnectIntervalDuration(),
		CircuitBreaker:    circuitBreakerFromConfig(globalCfg.CircuitBreaker),
		Logger:            logger,
	})
}

func circuitBreakerFromConfig(cfg *config.CircuitBreakerConfig) CircuitBreakerConfig {
	if cfg == nil {
		return CircuitBreakerConfig{}
	}
	return CircuitBreakerConfig{
		Enabled:             cfg.Enabled,
		FailureThreshold:    cfg.FailureThreshold,
		RecoveryTimeout:     time.Duration(cfg.RecoveryTimeout) * time.Millisecond,
		HalfOpenMaxRequests: cfg.HalfOpenMaxRequests,
	}
}

// Name returns the upstream name
func (u *Upstream) Name() string {
	return u.name
}

// Weight returns the weight for load balancing
func (u *Upstream) Weight() int {
	return u.weight
}

// Role returns the upstream role
func (u *Upstream) Role() Role {
	return u.role
}

// IsHealthy returns the health status
func (u *Upstream) IsHealthy() bool {
	return u.status.healthy.Load()
}

// SetHealthy sets the health status
func (u *Upstream) SetHealthy(healthy bool) {
	u.status.healthy.Store(healthy)
}

// CurrentBlock returns the last block number seen by the health monitor
func (u *Upstream) CurrentBlock() uint64 {
	return u.status.currentBlock.Load()
}

// RequestCount returns the number of requests sent to this upstream
func (u *Upstream) RequestCount() uint64 {
	return u.status.requests.Load()
}

// Breaker returns the upstream circuit breaker
func (u *Upstream) Breaker() *CircuitBreaker {
	return u.breaker
}

// HasRPC returns true if HTTP RPC URL is configured
func (u *Upstream) HasRPC() bool {
	return u.rpcURL != ""
}

// HasWS returns true if WebSocket URL is configured
func (u *Upstream) HasWS() bool {
	return u.wsURL != ""
}

func (u *Upstream) usesWS() bool {
	return u.HasWS() && (u.preferWS || !u.HasRPC())
}

// Execute sends a JSON-RPC request and returns the response.
// WebSocket is used when preferred or when no HTTP URL is configured.
func (u *Upstream) Execute(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	switch {
	case u.usesWS():
		return u.ExecuteWS(ctx, req)
	case u.HasRPC():
		return u.ExecuteHTTP(ctx, req)
	default:
		return nil, fmt.Errorf("no endpoint configured for upstream %s", u.name)
	}
}

// ExecuteHTTP sends a JSON-RPC request via HTTP
func (u *Upstream) ExecuteHTTP(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if u.rpcURL == "" {
		return nil, fmt.Errorf("HTTP RPC URL not configured")
	}

	reqBytes, err := req.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.rpcURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	u.status.requests.Add(1)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	rpcResp, err := jsonrpc.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return rpcResp, nil
}

// ExecuteWS sends a JSON-RPC request via WebSocket, connecting on first use
func (u *Upstream) ExecuteWS(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	client, err := u.ws(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.send(ctx, req)
	if err != nil {
		return nil, err
	}
	u.status.requests.Add(1)
	return resp, nil
}

// StartWS establishes the WebSocket connection ahead of the first request
func (u *Upstream) StartWS(ctx context.Context) error {
	_, err := u.ws(ctx)
	return err
}

func (u *Upstream) ws(ctx context.Context) (*wsClient, error) {
	if u.wsURL == "" {
		return nil, fmt.Errorf("WebSocket URL not configured")
	}

	u.wsMu.Lock()
	defer u.wsMu.Unlock()

	if u.wsClient == nil {
		u.wsClient = newWSClient(u.wsURL, u.messageTimeout, u.reconnectInterval, u.logger)
	}
	if err := u.wsClient.connect(ctx); err != nil {
		return nil, err
	}
	return u.wsClient, nil
}

// Close closes all connections
func (u *Upstream) Close() {
	u.wsMu.Lock()
	if u.wsClient != nil {
		u.wsClient.close()
		u.wsClient = nil
	}
	u.wsMu.Unlock()
	u.httpClient.CloseIdleConnections()
}
