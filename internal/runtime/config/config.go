package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tunes the mediator and its built-in behaviors. The zero value is a
// valid configuration: every zero field falls back to a library default.
type Config struct {
	// ServiceName labels log lines and spans emitted by the mediator.
	ServiceName string `yaml:"service_name"`

	// LogPayloads includes the JSON-encoded request in dispatch debug logs.
	LogPayloads bool `yaml:"log_payloads"`

	// Metrics configuration. When enabled the mediator registers its
	// Prometheus collectors on the default registerer unless
	// MediatorDependencies supplies its own DispatchMetrics.
	MetricsEnabled   bool   `yaml:"metrics_enabled"`
	MetricsNamespace string `yaml:"metrics_namespace"`

	// TracingEnabled adds the OpenTelemetry span behavior to the defaults.
	TracingEnabled bool `yaml:"tracing_enabled"`

	// NotificationConcurrency caps how many handlers of a single
	// notification run at once. Zero means unbounded.
	NotificationConcurrency int `yaml:"notification_concurrency"`

	// Retry behavior tuning. Zero values fall back to library defaults.
	RetryMaxRetries      int           `yaml:"retry_max_retries"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"`

	// Circuit breaker behavior tuning. Zero values fall back to library defaults.
	BreakerMaxRequests      uint32        `yaml:"breaker_max_requests"`
	BreakerInterval         time.Duration `yaml:"breaker_interval"`
	BreakerTimeout          time.Duration `yaml:"breaker_timeout"`
	BreakerFailureThreshold uint32        `yaml:"breaker_failure_threshold"`

	// StatsCORSAllowedOrigins lists origins allowed to read the stats
	// endpoint. Use "*" for development. Empty disables CORS headers.
	StatsCORSAllowedOrigins []string `yaml:"stats_cors_allowed_origins"`
}

func (c Config) String() string {
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

var metricNamespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validateBreaker()...)
	errs = append(errs, c.validateNotifications()...)
	errs = append(errs, c.validateMetrics()...)

	return errors.Join(errs...)
}

func (c *Config) validateRetry() []error {
	var errs []error
	if c.RetryMaxRetries < 0 {
		errs = append(errs, errors.New("retry: max retries cannot be negative"))
	}
	if c.RetryInitialInterval < 0 {
		errs = append(errs, errors.New("retry: initial interval cannot be negative"))
	}
	if c.RetryMaxInterval < 0 {
		errs = append(errs, errors.New("retry: max interval cannot be negative"))
	}
	if c.RetryMaxInterval > 0 && c.RetryInitialInterval > c.RetryMaxInterval {
		errs = append(errs, errors.New("retry: initial interval cannot exceed max interval"))
	}
	return errs
}

func (c *Config) validateBreaker() []error {
	var errs []error
	if c.BreakerInterval < 0 {
		errs = append(errs, errors.New("breaker: interval cannot be negative"))
	}
	if c.BreakerTimeout < 0 {
		errs = append(errs, errors.New("breaker: timeout cannot be negative"))
	}
	return errs
}

func (c *Config) validateNotifications() []error {
	if c.NotificationConcurrency < 0 {
		return []error{fmt.Errorf("notifications: invalid concurrency %d", c.NotificationConcurrency)}
	}
	return nil
}

func (c *Config) validateMetrics() []error {
	if c.MetricsNamespace != "" && !metricNamespacePattern.MatchString(c.MetricsNamespace) {
		return []error{fmt.Errorf("metrics: invalid namespace %q", c.MetricsNamespace)}
	}
	return nil
}

// ValidateConfig validates a config pointer, rejecting nil.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// LoadYAML decodes a configuration document and validates it. Unknown keys
// are rejected. An empty document yields the zero Config.
func LoadYAML(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and validates the YAML configuration stored at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}
