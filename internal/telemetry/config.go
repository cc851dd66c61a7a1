// Package telemetry wires OpenTelemetry for catalog-sync: spans exported over
// OTLP, metrics served on /metrics and optionally pushed over OTLP.
package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Defaults for the telemetry section
const (
	DefaultServiceName = "catalog-sync"
	DefaultEndpoint    = "localhost:4318"

	// DefaultSampling keeps one in twenty sync and API traces
	DefaultSampling = 0.05
)

// Config is the telemetry section of the service config. Nothing is exported
// unless Enabled is set together with a signal's own switch.
type Config struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"serviceName,omitempty"`
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the collector as host:port; the exporters append /v1/traces
	// and /v1/metrics
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure sends OTLP over plain HTTP
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig switches span export
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of root traces kept, in (0, 1]
	Sampling *float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig switches the metrics pipeline. /metrics is served whenever it
// is enabled; OTLP adds a periodic push to Endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	OTLP    bool `yaml:"otlp,omitempty"`
}

// GetServiceName returns ServiceName or DefaultServiceName
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// GetServiceVersion returns ServiceVersion or "unknown"
func (c *Config) GetServiceVersion() string {
	if c.ServiceVersion == "" {
		return "unknown"
	}
	return c.ServiceVersion
}

// GetEndpoint returns Endpoint or DefaultEndpoint
func (c *Config) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *Config) tracingEnabled() bool {
	return c != nil && c.Enabled && c.Tracing != nil && c.Tracing.Enabled
}

func (c *Config) metricsEnabled() bool {
	return c != nil && c.Enabled && c.Metrics != nil && c.Metrics.Enabled
}

// exportsOTLP reports whether any signal is sent to Endpoint
func (c *Config) exportsOTLP() bool {
	return c.tracingEnabled() || (c.metricsEnabled() && c.Metrics.OTLP)
}

// GetSampling returns Sampling or DefaultSampling
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == nil {
		return DefaultSampling
	}
	return *c.Sampling
}

// Validate checks only what an enabled signal will use
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.exportsOTLP() {
		if err := validateEndpoint(c.GetEndpoint()); err != nil {
			errs = append(errs, err)
		}
	}
	if c.tracingEnabled() && c.Tracing.Sampling != nil {
		if s := *c.Tracing.Sampling; s <= 0 || s > 1 {
			errs = append(errs, fmt.Errorf("tracing: sampling must be greater than 0.0 and at most 1.0, got %g", s))
		}
	}
	return errors.Join(errs...)
}

func validateEndpoint(endpoint string) error {
	if strings.Contains(endpoint, "://") {
		return fmt.Errorf("endpoint must be host:port without a scheme (set insecure for plain HTTP), got %q", endpoint)
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil || host == "" || port == "" {
		return fmt.Errorf("endpoint must be host:port, got %q", endpoint)
	}
	return nil
}
