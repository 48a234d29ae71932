package config

import "time"

// RetryConfig defines configuration for HTTP request retries against the backend
type RetryConfig struct {
	// Maximum number of retry attempts
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"min=0,max=10"`
	// Base delay in milliseconds for exponential backoff
	BaseDelayMs int `json:"base_delay_ms,omitempty" yaml:"base_delay_ms,omitempty" validate:"omitempty,min=1,max=60000"`
	// Maximum delay in seconds for exponential backoff
	MaxDelaySecs int `json:"max_delay_secs,omitempty" yaml:"max_delay_secs,omitempty" validate:"omitempty,min=1,max=3600"`
	// Enable jitter to randomize delays slightly
	EnableJitter bool `json:"enable_jitter" yaml:"enable_jitter"`
	// HTTP status codes that should trigger retries
	RetryStatusCodes []int `json:"retry_status_codes,omitempty" yaml:"retry_status_codes,omitempty" validate:"dive,min=100,max=599"`
}

// NewDefaultRetryConfig creates default retry configuration
func NewDefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:       DefaultRetryMaxRetries,
		BaseDelayMs:      DefaultRetryBaseDelayMs,
		MaxDelaySecs:     DefaultRetryMaxDelaySecs,
		EnableJitter:     DefaultRetryEnableJitter,
		RetryStatusCodes: []int{429, 502, 503, 504},
	}
}

// BaseDelay returns the base backoff delay
func (rc RetryConfig) BaseDelay() time.Duration {
	return time.Duration(rc.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap
func (rc RetryConfig) MaxDelay() time.Duration {
	return time.Duration(rc.MaxDelaySecs) * time.Second
}
