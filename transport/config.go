package transport

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultScopeHeader is the tenant header sent alongside the scope path segment.
const DefaultScopeHeader = "X-Business-Unit"

// RequestIDHeader carries a per request correlation id.
const RequestIDHeader = "X-Request-ID"

// Config configures the fetch executor.
type Config struct {
	// Timeout is the budget for one request, including reading the body.
	Timeout time.Duration
	// ScopeHeader names the tenant header.
	ScopeHeader string
	// UserAgent is sent on every request.
	UserAgent string
	// RateLimit caps outgoing requests per second. Zero disables limiting.
	RateLimit float64
	// RateBurst is the token bucket size used with RateLimit. Defaults to 1.
	RateBurst int
	// MaxResponseBytes bounds the body read from the backend.
	MaxResponseBytes int64
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		ScopeHeader:      DefaultScopeHeader,
		UserAgent:        "go-resource-cache/1.0",
		MaxResponseBytes: 10 << 20,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ScopeHeader, validation.Required),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.RateBurst, validation.Min(0)),
		validation.Field(&c.MaxResponseBytes, validation.Required, validation.Min(int64(1))),
	)
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.ScopeHeader == "" {
		c.ScopeHeader = def.ScopeHeader
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.MaxResponseBytes == 0 {
		c.MaxResponseBytes = def.MaxResponseBytes
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		c.RateBurst = 1
	}
	return c
}
