package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/paycheckout/internal/domain"
	pkgconfig "github.com/utafrali/paycheckout/pkg/config"
)

// Guard backends.
const (
	GuardLocal = "local"
	GuardRedis = "redis"
)

// Config holds all configuration for the checkout.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Order backend
	BackendURL             string `env:"BACKEND_BASE_URL" envDefault:"http://localhost:8888"`
	BackendTimeout         int    `env:"BACKEND_TIMEOUT_SECONDS" envDefault:"10"`
	BackendMaxConnsPerHost int    `env:"BACKEND_MAX_CONNS_PER_HOST" envDefault:"16"`

	// Circuit breaker settings for order backend calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Per-call timeouts (seconds). Each backend call gets its own
	// context.WithTimeout so a slow backend cannot hold the guard forever.
	CreateOrderTimeout  int `env:"CREATE_ORDER_TIMEOUT" envDefault:"5"`
	CaptureOrderTimeout int `env:"CAPTURE_ORDER_TIMEOUT" envDefault:"10"`

	// Single-flight guard
	CheckoutID      string `env:"CHECKOUT_ID" envDefault:"demo-checkout"`
	GuardBackend    string `env:"GUARD_BACKEND" envDefault:"local"`
	RedisURL        string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	GuardTTLSeconds int    `env:"GUARD_TTL_SECONDS" envDefault:"60"`

	// Kafka outcome events
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Cart and wallet sheet
	CartItems         []string `env:"CART_ITEMS" envDefault:"1blwyeo8:2" envSeparator:","`
	WalletTotalLabel  string   `env:"WALLET_TOTAL_LABEL" envDefault:"Demo (Card is not charged)"`
	WalletTotalAmount string   `env:"WALLET_TOTAL_AMOUNT" envDefault:"10.00"`
	WalletTotalType   string   `env:"WALLET_TOTAL_TYPE" envDefault:"final"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load checkout config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if _, err := url.ParseRequestURI(c.BackendURL); err != nil {
		return fmt.Errorf("invalid BACKEND_BASE_URL %q: %w", c.BackendURL, err)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT_SECONDS must be positive, got %d", c.BackendTimeout)
	}
	if c.CreateOrderTimeout <= 0 || c.CaptureOrderTimeout <= 0 {
		return fmt.Errorf("order timeouts must be positive, got create=%d capture=%d",
			c.CreateOrderTimeout, c.CaptureOrderTimeout)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.CBFailureRatio)
	}
	switch c.GuardBackend {
	case GuardLocal:
	case GuardRedis:
		if _, err := url.Parse(c.RedisURL); err != nil || !strings.HasPrefix(c.RedisURL, "redis") {
			return fmt.Errorf("invalid REDIS_URL %q", c.RedisURL)
		}
		if c.GuardTTLSeconds <= 0 {
			return fmt.Errorf("GUARD_TTL_SECONDS must be positive, got %d", c.GuardTTLSeconds)
		}
	default:
		return fmt.Errorf("GUARD_BACKEND must be %q or %q, got %q", GuardLocal, GuardRedis, c.GuardBackend)
	}
	if c.CheckoutID == "" {
		return fmt.Errorf("CHECKOUT_ID is required")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if _, err := c.Cart(); err != nil {
		return fmt.Errorf("invalid CART_ITEMS: %w", err)
	}
	if _, err := c.WalletTotal(); err != nil {
		return fmt.Errorf("invalid wallet total: %w", err)
	}
	return nil
}

// Timeouts returns the per-call backend timeouts.
func (c *Config) Timeouts() (create, capture time.Duration) {
	return time.Duration(c.CreateOrderTimeout) * time.Second,
		time.Duration(c.CaptureOrderTimeout) * time.Second
}

// GuardTTL returns how long a crashed holder can keep the Redis guard.
func (c *Config) GuardTTL() time.Duration {
	return time.Duration(c.GuardTTLSeconds) * time.Second
}

// Cart parses CART_ITEMS entries of the form "sku:quantity".
func (c *Config) Cart() (domain.Cart, error) {
	items := make([]domain.CartItem, 0, len(c.CartItems))
	for _, entry := range c.CartItems {
		sku, qty, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			return domain.Cart{}, fmt.Errorf("cart item %q is not sku:quantity", entry)
		}
		n, err := strconv.Atoi(qty)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("cart item %q: %w", entry, err)
		}
		items = append(items, domain.CartItem{SKU: sku, Quantity: n})
	}
	return domain.NewCart(items...)
}

// WalletTotal returns the total line shown on the wallet sheet.
func (c *Config) WalletTotal() (domain.Total, error) {
	amount, err := decimal.NewFromString(c.WalletTotalAmount)
	if err != nil {
		return domain.Total{}, fmt.Errorf("parse WALLET_TOTAL_AMOUNT %q: %w", c.WalletTotalAmount, err)
	}
	if !amount.IsPositive() {
		return domain.Total{}, fmt.Errorf("WALLET_TOTAL_AMOUNT must be positive, got %s", amount)
	}
	if c.WalletTotalType != "final" && c.WalletTotalType != "pending" {
		return domain.Total{}, fmt.Errorf("WALLET_TOTAL_TYPE must be final or pending, got %q", c.WalletTotalType)
	}
	return domain.Total{Label: c.WalletTotalLabel, Amount: amount, Type: c.WalletTotalType}, nil
}
