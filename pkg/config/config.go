// Package config provides the unified configuration for nsgateway.
// A single Config structure is built once at startup and passed to every
// component constructor; nothing in the gateway reads process-wide state.
//
// The configuration is organized into logical sections:
//   - Credential: upstream OAuth1 token-based authentication
//   - Upstream: endpoints, timeouts, retry/backoff, pagination bounds
//   - Cache: TTL and capacity for the response cache
//   - RateLimit: outbound and inbound request budgets
//   - Log: logging level and encoding
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Credential Credential      `yaml:"credential" json:"credential"`
	Upstream   UpstreamConfig  `yaml:"upstream" json:"upstream"`
	Cache      CacheConfig     `yaml:"cache" json:"cache"`
	RateLimit  RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Log        LogConfig       `yaml:"log" json:"log"`
}

// Credential holds the OAuth1 token-based credentials for the upstream
// account. Immutable for the process lifetime; a missing field is a fatal
// configuration error at startup, never a per-request error.
type Credential struct {
	// Realm is the upstream account identifier (also the host prefix)
	Realm          string `yaml:"realm" json:"realm"`
	ConsumerKey    string `yaml:"consumer_key" json:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret" json:"consumer_secret"`
	TokenKey       string `yaml:"token_key" json:"token_key"`
	TokenSecret    string `yaml:"token_secret" json:"token_secret"`
}

// Validate checks that every credential field is present.
func (c Credential) Validate() error {
	switch {
	case c.Realm == "":
		return fmt.Errorf("credential: realm is required")
	case c.ConsumerKey == "":
		return fmt.Errorf("credential: consumer_key is required")
	case c.ConsumerSecret == "":
		return fmt.Errorf("credential: consumer_secret is required")
	case c.TokenKey == "":
		return fmt.Errorf("credential: token_key is required")
	case c.TokenSecret == "":
		return fmt.Errorf("credential: token_secret is required")
	}
	return nil
}

// UpstreamConfig controls the upstream HTTP client.
type UpstreamConfig struct {
	// BaseURL overrides the realm-derived endpoint; used in tests
	BaseURL string `yaml:"base_url" json:"base_url"`

	// RequestTimeout bounds a single upstream HTTP call
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// TotalTimeout bounds one inbound request end to end
	TotalTimeout time.Duration `yaml:"total_timeout" json:"total_timeout"`

	// RetryAttempts is the number of retries after the first attempt
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial backoff delay, doubled per attempt
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// MaxRetryDelay caps the backoff delay
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`

	// MaxPageSize is the largest page requested from the upstream and the
	// clamp applied to caller-supplied limits
	MaxPageSize int `yaml:"max_page_size" json:"max_page_size"`
	// DefaultPageSize is used when the caller supplies no limit
	DefaultPageSize int `yaml:"default_page_size" json:"default_page_size"`
	// MaxPages is the pagination safety net against an upstream that
	// never reports completion
	MaxPages int `yaml:"max_pages" json:"max_pages"`

	// MaxConcurrency bounds the report fan-out per request
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`

	// EnableHTTP2 toggles HTTP/2 on the transport
	EnableHTTP2 bool `yaml:"enable_http2" json:"enable_http2"`
}

// CacheConfig controls the in-memory response cache.
type CacheConfig struct {
	// TTL is the bounded freshness window for cached entries
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// MaxEntries caps the number of cached entries (0 = unbounded)
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

// RateLimitConfig bounds request volume to the upstream and from callers.
type RateLimitConfig struct {
	// UpstreamPerSec limits outbound upstream calls per second (0 = off)
	UpstreamPerSec float64 `yaml:"upstream_per_sec" json:"upstream_per_sec"`
	// UpstreamBurst is the outbound token bucket burst size
	UpstreamBurst int `yaml:"upstream_burst" json:"upstream_burst"`
	// InboundPerSec limits accepted inbound requests per second (0 = off)
	InboundPerSec float64 `yaml:"inbound_per_sec" json:"inbound_per_sec"`
	// InboundBurst is the inbound token bucket burst size
	InboundBurst int `yaml:"inbound_burst" json:"inbound_burst"`
	// RejectWhenLimited rejects immediately instead of blocking until
	// capacity frees
	RejectWhenLimited bool `yaml:"reject_when_limited" json:"reject_when_limited"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level       string `yaml:"level" json:"level"`
	Development bool   `yaml:"development" json:"development"`
	Encoding    string `yaml:"encoding" json:"encoding"`
}

// NewConfig returns a Config populated with production defaults. The
// credential is intentionally left empty; Validate rejects a config
// without one.
func NewConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			RequestTimeout:  30 * time.Second,
			TotalTimeout:    5 * time.Minute,
			RetryAttempts:   3,
			RetryDelay:      2 * time.Second,
			MaxRetryDelay:   30 * time.Second,
			MaxPageSize:     1000,
			DefaultPageSize: 1000,
			MaxPages:        100,
			MaxConcurrency:  4,
			EnableHTTP2:     true,
		},
		Cache: CacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 1000,
		},
		RateLimit: RateLimitConfig{
			UpstreamPerSec: 10,
			UpstreamBurst:  5,
			InboundPerSec:  50,
			InboundBurst:   25,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration and applies defaults for zero values.
func (c *Config) Validate() error {
	if err := c.Credential.Validate(); err != nil {
		return err
	}

	d := NewConfig()

	if c.Upstream.RequestTimeout <= 0 {
		c.Upstream.RequestTimeout = d.Upstream.RequestTimeout
	}
	if c.Upstream.TotalTimeout <= 0 {
		c.Upstream.TotalTimeout = d.Upstream.TotalTimeout
	}
	if c.Upstream.RetryAttempts < 0 {
		return fmt.Errorf("upstream: retry_attempts must be >= 0")
	}
	if c.Upstream.RetryDelay <= 0 {
		c.Upstream.RetryDelay = d.Upstream.RetryDelay
	}
	if c.Upstream.MaxRetryDelay <= 0 {
		c.Upstream.MaxRetryDelay = d.Upstream.MaxRetryDelay
	}
	if c.Upstream.MaxPageSize <= 0 {
		c.Upstream.MaxPageSize = d.Upstream.MaxPageSize
	}
	if c.Upstream.DefaultPageSize <= 0 || c.Upstream.DefaultPageSize > c.Upstream.MaxPageSize {
		c.Upstream.DefaultPageSize = c.Upstream.MaxPageSize
	}
	if c.Upstream.MaxPages <= 0 {
		c.Upstream.MaxPages = d.Upstream.MaxPages
	}
	if c.Upstream.MaxConcurrency <= 0 {
		c.Upstream.MaxConcurrency = d.Upstream.MaxConcurrency
	}

	if c.Cache.TTL <= 0 {
		c.Cache.TTL = d.Cache.TTL
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache: max_entries must be >= 0")
	}

	if c.RateLimit.UpstreamPerSec < 0 || c.RateLimit.InboundPerSec < 0 {
		return fmt.Errorf("rate_limit: rates must be >= 0")
	}
	if c.RateLimit.UpstreamPerSec > 0 && c.RateLimit.UpstreamBurst <= 0 {
		c.RateLimit.UpstreamBurst = d.RateLimit.UpstreamBurst
	}
	if c.RateLimit.InboundPerSec > 0 && c.RateLimit.InboundBurst <= 0 {
		c.RateLimit.InboundBurst = d.RateLimit.InboundBurst
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = d.Log.Encoding
	}

	return nil
}

// RecordURL returns the realm-derived REST record endpoint, unless
// overridden by BaseURL.
func (c *Config) RecordURL() string {
	if c.Upstream.BaseURL != "" {
		return c.Upstream.BaseURL + "/services/rest/record/v1"
	}
	return fmt.Sprintf("https://%s.suitetalk.api.netsuite.com/services/rest/record/v1", c.Credential.Realm)
}

// SuiteQLURL returns the realm-derived SuiteQL query endpoint, unless
// overridden by BaseURL.
func (c *Config) SuiteQLURL() string {
	if c.Upstream.BaseURL != "" {
		return c.Upstream.BaseURL + "/services/rest/query/v1/suiteql"
	}
	return fmt.Sprintf("https://%s.suitetalk.api.netsuite.com/services/rest/query/v1/suiteql", c.Credential.Realm)
}
