package config

import (
	"fmt"

	pkgconfig "github.com/utafrali/paycheckout/pkg/config"
)

// SandboxPrefix prefixes every sandbox variable so the sandbox and the
// checkout can share one environment.
const SandboxPrefix = "SANDBOX_"

// Sandbox holds configuration for the sandbox order backend. Keys are read
// with SandboxPrefix, e.g. SANDBOX_HTTP_PORT.
type Sandbox struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8888"`

	// Scenario applied to new orders until changed through the admin endpoint.
	Scenario string `env:"SCENARIO" envDefault:"completed"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// LoadSandbox reads sandbox configuration from environment variables.
func LoadSandbox() (*Sandbox, error) {
	cfg := &Sandbox{}
	if err := pkgconfig.LoadPrefixed(SandboxPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load sandbox config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Sandbox) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.Scenario == "" {
		return fmt.Errorf("%sSCENARIO is required", SandboxPrefix)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}
