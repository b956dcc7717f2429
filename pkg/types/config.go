package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout bounds a single HTTP request, body included.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "citation-crawler/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
}

// RetryConfig parameterizes bounded exponential backoff. Delay for attempt n
// (0-based) is min(BaseDelay*2^n, MaxDelay), spread by ±Jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1,lte=20"`

	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay  time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay" validate:"gte=0"`

	// Jitter is the random spread as a fraction of the delay, in [0,1].
	Jitter float64 `json:"jitter" yaml:"jitter" mapstructure:"jitter" validate:"gte=0,lte=1"`
}

// RateConfig selects the outbound request rate for the graph API.
type RateConfig struct {
	// AnonymousRPS applies when no contact identifier is configured (default 1).
	AnonymousRPS float64 `json:"anonymous_rps" yaml:"anonymous_rps" mapstructure:"anonymous_rps" validate:"gt=0"`

	// PoliteRPS applies when a contact identifier unlocks the polite pool (default 10).
	PoliteRPS float64 `json:"polite_rps" yaml:"polite_rps" mapstructure:"polite_rps" validate:"gt=0"`

	// Burst is the bucket capacity (default 1).
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst" validate:"gte=1"`
}

// GraphConfig holds settings for the OpenAlex graph client.
type GraphConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the API root (default https://api.openalex.org).
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// ContactEmail is sent as mailto and unlocks the polite rate tier.
	ContactEmail string `json:"contact_email,omitempty" yaml:"contact_email,omitempty" mapstructure:"contact_email" validate:"omitempty,email"`

	// MaxPerPage is the largest page size the server accepts (default 200).
	MaxPerPage int `json:"max_per_page" yaml:"max_per_page" mapstructure:"max_per_page" validate:"gte=1,lte=200"`

	// CitingLimit caps how many citing works one expansion fetches (default 200).
	CitingLimit int `json:"citing_limit" yaml:"citing_limit" mapstructure:"citing_limit" validate:"gte=0"`

	Rate  RateConfig  `json:"rate" yaml:"rate" mapstructure:"rate"`
	Retry RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`
}

// AcquisitionConfig holds settings for content downloads.
type AcquisitionConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// DownloadRPS paces requests to content hosts (default 5).
	DownloadRPS float64 `json:"download_rps" yaml:"download_rps" mapstructure:"download_rps" validate:"gt=0"`

	Retry RetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`
}

// AIConfig holds shared settings for the capabilities backed by a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5").
	Model string `json:"model" yaml:"model" mapstructure:"model" validate:"required"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the API endpoint, empty for the default.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`

	// MaxTokens bounds each response (default 8192).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=256"`

	// MaxRetries is the number of SDK retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`
}

// CrawlConfig holds the traversal run settings.
type CrawlConfig struct {
	// Workers is the worker-pool width W (default 5).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers" validate:"gte=1,lte=64"`

	// MaxPapers stops the run after this many papers were claimed; 0 means no budget.
	MaxPapers int `json:"max_papers" yaml:"max_papers" mapstructure:"max_papers" validate:"gte=0"`

	// CapabilityTimeout bounds each relevance or extraction call (default 5m).
	CapabilityTimeout time.Duration `json:"capability_timeout" yaml:"capability_timeout" mapstructure:"capability_timeout" validate:"gt=0"`

	// CallTimeout bounds each graph lookup and each content download,
	// retries included (default 2m).
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout" mapstructure:"call_timeout" validate:"gt=0"`
}

// Config groups every component configuration.
type Config struct {
	Graph       GraphConfig       `json:"graph" yaml:"graph" mapstructure:"graph"`
	Acquisition AcquisitionConfig `json:"acquisition" yaml:"acquisition" mapstructure:"acquisition"`
	AI          AIConfig          `json:"ai" yaml:"ai" mapstructure:"ai"`
	Crawl       CrawlConfig       `json:"crawl" yaml:"crawl" mapstructure:"crawl"`
}
