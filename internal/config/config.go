package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file. Files ending in .yaml or
// .yml are parsed as YAML, anything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return Finalize(cfg)
}

// Finalize applies defaults to cfg and validates it
func Finalize(cfg *Config) (*Config, error) {
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	// HealthCheckInterval default is 0, which disables polling
	if cfg.UpstreamMessageTimeout == 0 {
		cfg.UpstreamMessageTimeout = DefaultUpstreamMessageTimeout
	}
	if cfg.UpstreamReconnectInterval == 0 {
		cfg.UpstreamReconnectInterval = DefaultUpstreamReconnectInterval
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.Batch.MaxSize == 0 {
		cfg.Batch.MaxSize = DefaultBatchMaxSize
	}
	if cfg.Batch.Window == 0 {
		cfg.Batch.Window = DefaultBatchWindow
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = DefaultCacheSize
	}
	if cfg.Cache.Redis != nil && cfg.Cache.Redis.Prefix == "" {
		cfg.Cache.Redis.Prefix = DefaultRedisPrefix
	}
	if cfg.HookScripts != nil && cfg.HookScripts.Directory == "" {
		cfg.HookScripts.Directory = DefaultHookScriptDirectory
	}
	if cfg.Metrics != nil && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}

	for i := range cfg.Upstreams {
		if cfg.Upstreams[i].Weight == 0 {
			cfg.Upstreams[i].Weight = DefaultUpstreamWeight
		}
		if cfg.Upstreams[i].Role == "" {
			cfg.Upstreams[i].Role = DefaultUpstreamRole
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if len(cfg.Upstreams) == 0 {
		return errors.New("at least one upstream is required")
	}

	names := make(map[string]bool)
	for i, upstream := range cfg.Upstreams {
		if upstream.Name == "" {
			return fmt.Errorf("upstream[%d]: name is required", i)
		}
		if names[upstream.Name] {
			return fmt.Errorf("upstream[%d]: duplicate upstream name '%s'", i, upstream.Name)
		}
		names[upstream.Name] = true

		if upstream.RPCURL == "" && upstream.WSURL == "" {
			return fmt.Errorf("upstream '%s': at least one of rpcUrl or wsUrl is required", upstream.Name)
		}
		if upstream.PreferWS && upstream.WSURL == "" {
			return fmt.Errorf("upstream '%s': preferWs requires wsUrl", upstream.Name)
		}
		if upstream.Weight <= 0 {
			return fmt.Errorf("upstream '%s': weight must be positive", upstream.Name)
		}
		if upstream.Role != RoleMain && upstream.Role != RoleFallback {
			return fmt.Errorf("upstream '%s': role must be 'main' or 'fallback'", upstream.Name)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}
	if cfg.HealthCheckInterval < 0 {
		return fmt.Errorf("healthCheckInterval must be non-negative")
	}
	if cfg.RetryMaxAttempts < 0 {
		return fmt.Errorf("retryMaxAttempts must be non-negative")
	}

	if cfg.Batch.MaxSize < 0 {
		return fmt.Errorf("batch.maxSize must be non-negative")
	}
	if cfg.Batch.Window < 0 {
		return fmt.Errorf("batch.window must be non-negative")
	}
	if addr := cfg.Batch.MulticallAddress; addr != "" && !common.IsHexAddress(addr) {
		return fmt.Errorf("batch.multicallAddress is not a valid address: %s", addr)
	}

	if cfg.Cache.Size < 0 {
		return fmt.Errorf("cache.size must be non-negative")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative")
	}
	if cfg.Cache.Redis != nil && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when redis is configured")
	}

	if cfg.CircuitBreaker != nil && cfg.CircuitBreaker.Enabled {
		if cfg.CircuitBreaker.FailureThreshold < 0 || cfg.CircuitBreaker.RecoveryTimeout < 0 || cfg.CircuitBreaker.HalfOpenMaxRequests < 0 {
			return fmt.Errorf("circuitBreaker values must be non-negative")
		}
	}

	if cfg.HookScripts != nil && cfg.HookScripts.Timeout < 0 {
		return fmt.Errorf("hookScripts.timeout must be non-negative")
	}

	return nil
}
