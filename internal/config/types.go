package config

import "time"

// Role defines the upstream role type
type Role string

const (
	RoleMain     Role = "main"
	RoleFallback Role = "fallback"
)

// Config represents the main configuration structure
type Config struct {
	LogLevel                  string                `json:"logLevel" yaml:"logLevel"`
	Namespace                 string                `json:"namespace" yaml:"namespace"`
	RequestTimeout            int                   `json:"requestTimeout" yaml:"requestTimeout"`                       // ms
	HealthCheckInterval       int                   `json:"healthCheckInterval" yaml:"healthCheckInterval"`             // ms, 0 disables polling
	BlockLagThreshold         uint64                `json:"blockLagThreshold" yaml:"blockLagThreshold"`                 // blocks
	UpstreamMessageTimeout    int                   `json:"upstreamMessageTimeout" yaml:"upstreamMessageTimeout"`       // ms
	UpstreamReconnectInterval int                   `json:"upstreamReconnectInterval" yaml:"upstreamReconnectInterval"` // ms
	RetryMaxAttempts          int                   `json:"retryMaxAttempts" yaml:"retryMaxAttempts"`
	CircuitBreaker            *CircuitBreakerConfig `json:"circuitBreaker,omitempty" yaml:"circuitBreaker,omitempty"`
	Batch                     BatchConfig           `json:"batch" yaml:"batch"`
	Cache                     CacheConfig           `json:"cache" yaml:"cache"`
	HookScripts               *HookScriptConfig     `json:"hookScripts,omitempty" yaml:"hookScripts,omitempty"`
	Metrics                   *MetricsConfig        `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Upstreams                 []UpstreamConfig      `json:"upstreams" yaml:"upstreams"`
}

// CircuitBreakerConfig represents per-upstream circuit breaker settings
type CircuitBreakerConfig struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	FailureThreshold    int  `json:"failureThreshold" yaml:"failureThreshold"`
	RecoveryTimeout     int  `json:"recoveryTimeout" yaml:"recoveryTimeout"` // ms
	HalfOpenMaxRequests int  `json:"halfOpenMaxRequests" yaml:"halfOpenMaxRequests"`
}

// BatchConfig controls request coalescing
type BatchConfig struct {
	Disabled         bool   `json:"disabled" yaml:"disabled"`
	MaxSize          int    `json:"maxSize" yaml:"maxSize"`
	Window           int    `json:"window" yaml:"window"` // µs
	MulticallAddress string `json:"multicallAddress" yaml:"multicallAddress"`
}

// CacheConfig represents cache configuration. Redis replaces the in-memory
// LRU when set.
type CacheConfig struct {
	Size  int          `json:"size" yaml:"size"` // number of entries
	TTL   int          `json:"ttl" yaml:"ttl"`   // seconds, 0 keeps entries until evicted
	Redis *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RedisConfig points the cache at a Redis server
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

// HookScriptConfig represents JavaScript hook configuration
type HookScriptConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Directory string `json:"directory" yaml:"directory"`
	Timeout   int    `json:"timeout" yaml:"timeout"` // ms
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// UpstreamConfig represents a single upstream configuration
type UpstreamConfig struct {
	Name     string `json:"name" yaml:"name"`
	RPCURL   string `json:"rpcUrl" yaml:"rpcUrl"`
	WSURL    string `json:"wsUrl" yaml:"wsUrl"`
	Weight   int    `json:"weight" yaml:"weight"`
	Role     Role   `json:"role" yaml:"role"`
	PreferWS bool   `json:"preferWs" yaml:"preferWs"`
}

// Default values
const (
	DefaultLogLevel                  = "info"
	DefaultNamespace                 = ""
	DefaultRequestTimeout            = 10000 // ms
	DefaultUpstreamMessageTimeout    = 60000 // ms
	DefaultUpstreamReconnectInterval = 5000  // ms
	DefaultRetryMaxAttempts          = 3
	DefaultBatchMaxSize              = 100
	DefaultBatchWindow               = 1000 // µs
	DefaultCacheSize                 = 500
	DefaultRedisPrefix               = "rpcdrift:"
	DefaultUpstreamWeight            = 1
	DefaultUpstreamRole              = RoleMain
	DefaultHookScriptDirectory       = "./hooks"
	DefaultHookScriptTimeout         = 5000 // ms
	DefaultMetricsAddr               = ":9090"
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetHealthCheckIntervalDuration returns health check interval as time.Duration
func (c *Config) GetHealthCheckIntervalDuration() time.Duration {
	return time.Duration(c.HealthCheckInterval) * time.Millisecond
}

// GetUpstreamMessageTimeoutDuration returns upstream message timeout as time.Duration
func (c *Config) GetUpstreamMessageTimeoutDuration() time.Duration {
	return time.Duration(c.UpstreamMessageTimeout) * time.Millisecond
}

// GetUpstreamReconnectIntervalDuration returns upstream reconnect interval as time.Duration
func (c *Config) GetUpstreamReconnectIntervalDuration() time.Duration {
	return time.Duration(c.UpstreamReconnectInterval) * time.Millisecond
}

// GetBatchWindowDuration returns the batch window as time.Duration
func (c *Config) GetBatchWindowDuration() time.Duration {
	return time.Duration(c.Batch.Window) * time.Microsecond
}

// GetCacheTTLDuration returns the cache TTL as time.Duration
func (c *Config) GetCacheTTLDuration() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

// IsHookScriptsEnabled returns true if hook scripts are configured and enabled
func (c *Config) IsHookScriptsEnabled() bool {
	return c.HookScripts != nil && c.HookScripts.Enabled
}

// GetHookScriptTimeoutDuration returns the hook script timeout as time.Duration
func (c *Config) GetHookScriptTimeoutDuration() time.Duration {
	if c.HookScripts == nil || c.HookScripts.Timeout == 0 {
		return time.Duration(DefaultHookScriptTimeout) * time.Millisecond
	}
	return time.Duration(c.HookScripts.Timeout) * time.Millisecond
}

// IsMetricsEnabled returns true if the metrics endpoint is enabled
func (c *Config) IsMetricsEnabled() bool {
	return c.Metrics != nil && c.Metrics.Enabled
}
