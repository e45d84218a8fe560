package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/paycheckout/internal/cardrail"
	"github.com/utafrali/paycheckout/internal/config"
	"github.com/utafrali/paycheckout/internal/domain"
	"github.com/utafrali/paycheckout/internal/event"
	"github.com/utafrali/paycheckout/internal/gateway"
	"github.com/utafrali/paycheckout/internal/guard"
	"github.com/utafrali/paycheckout/internal/metrics"
	"github.com/utafrali/paycheckout/internal/wallet"
	"github.com/utafrali/paycheckout/pkg/database"
	"github.com/utafrali/paycheckout/pkg/health"
	"github.com/utafrali/paycheckout/pkg/httpclient"
	pkgkafka "github.com/utafrali/paycheckout/pkg/kafka"
	"github.com/utafrali/paycheckout/pkg/tracing"
)

// CheckoutServiceName labels the checkout's logs and traces.
const CheckoutServiceName = "paycheckout"

// Checkout wires together everything both payment rails need.
type Checkout struct {
	cfg            *config.Config
	logger         *slog.Logger
	gateway        *gateway.Gateway
	guard          guard.Guard
	redis          *redis.Client
	producer       *pkgkafka.Producer
	recorder       *OutcomeRecorder
	health         *health.Handler
	cart           domain.Cart
	total          domain.Total
	tracerShutdown func(context.Context) error
}

// NewCheckout creates the checkout, initializing all dependencies.
func NewCheckout(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Checkout, error) {
	cart, err := cfg.Cart()
	if err != nil {
		return nil, fmt.Errorf("build cart: %w", err)
	}
	total, err := cfg.WalletTotal()
	if err != nil {
		return nil, fmt.Errorf("build wallet total: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(initCtx, tracing.Config{
		ServiceName:    CheckoutServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &Checkout{
		cfg:            cfg,
		logger:         logger,
		health:         health.NewHandler(),
		cart:           cart,
		total:          total,
		tracerShutdown: tracerShutdown,
	}

	// Order backend client. POSTs are never retried; the breaker fails fast
	// while the backend is down.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         time.Duration(cfg.BackendTimeout) * time.Second,
		MaxRetries:      0,
		MaxConnsPerHost: cfg.BackendMaxConnsPerHost,
	})

	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         "order-backend",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger).
		WithFallback(gateway.CircuitOpenFallback)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
	)

	createTimeout, captureTimeout := cfg.Timeouts()
	a.gateway = gateway.New(cfg.BackendURL, cbClient, gateway.Timeouts{
		CreateOrder:  createTimeout,
		CaptureOrder: captureTimeout,
	}, logger)

	// The readiness probe is an idempotent GET, so it gets the retrying client.
	probe := httpclient.New(httpclient.DefaultConfig())
	readyURL := cfg.BackendURL + "/health/ready"
	a.health.RegisterCritical("order-backend", func(ctx context.Context) error {
		resp, err := probe.Get(ctx, readyURL)
		if err != nil {
			return err
		}
		if !httpclient.IsSuccess(resp.StatusCode) {
			return httpclient.ParseResponseError(resp, "order-backend")
		}
		_, err = httpclient.ReadBody(resp)
		return err
	})

	// Single-flight guard.
	switch cfg.GuardBackend {
	case config.GuardRedis:
		redisCfg, err := database.RedisConfigFromURL(cfg.RedisURL)
		if err != nil {
			a.closeTracer()
			return nil, err
		}
		client, err := database.NewRedisClient(initCtx, redisCfg)
		if err != nil {
			a.closeTracer()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		redisGuard := guard.NewRedis(client, cfg.CheckoutID, cfg.GuardTTL(), logger)
		a.guard = redisGuard
		a.health.RegisterCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.Info("connected to Redis",
			slog.String("addr", redisCfg.Addr()),
			slog.String("guard_key", redisGuard.Key()),
		)
	default:
		a.guard = guard.NewLocal()
	}

	// Outcome events.
	var publisher OutcomePublisher
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		a.health.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	a.recorder = NewOutcomeRecorder(publisher, logger)

	return a, nil
}

// Preflight checks every dependency and fails when a critical one is down.
func (a *Checkout) Preflight(ctx context.Context) (health.Response, error) {
	resp := a.health.Check(ctx)
	for name, check := range resp.Checks {
		if check.Status == health.StatusDown {
			a.logger.WarnContext(ctx, "dependency check failed",
				slog.String("dependency", name),
				slog.Bool("critical", check.Critical),
				slog.String("error", check.Error),
			)
		}
	}
	if resp.Status == health.StatusDown {
		return resp, fmt.Errorf("checkout is not ready: %w", errDependencyDown)
	}
	return resp, nil
}

var errDependencyDown = errors.New("a critical dependency is down")

// Cart returns a copy of the configured cart.
func (a *Checkout) Cart() domain.Cart {
	return a.cart.Clone()
}

// Gateway returns the order backend gateway.
func (a *Checkout) Gateway() *gateway.Gateway {
	return a.gateway
}

// Recorder returns the outcome recorder shared by both rails.
func (a *Checkout) Recorder() *OutcomeRecorder {
	return a.recorder
}

// CardRail creates a card rail controller for the configured cart.
func (a *Checkout) CardRail(fields cardrail.HostedFields, alerter cardrail.Alerter) *cardrail.Controller {
	return cardrail.New(a.cart, a.gateway, fields, a.guard, alerter, a.recorder, a.logger)
}

// WalletRail evaluates the wallet gate for the configured cart. A nil rail
// with ErrWalletUnavailable or ErrWalletIneligible means the button stays hidden.
func (a *Checkout) WalletRail(
	ctx context.Context,
	platform wallet.Platform,
	bridge wallet.Bridge,
	factory wallet.SessionFactory,
	alerter wallet.Alerter,
) (*wallet.Rail, error) {
	rail, err := wallet.NewRail(ctx, platform, bridge, factory, a.gateway, a.cart, alerter, a.recorder,
		wallet.Options{Total: a.total}, a.logger)
	metrics.RecordGate(err)
	return rail, err
}

// Shutdown releases every resource in order:
// 1. Tracer (flush pending spans)
// 2. Kafka producer
// 3. Redis client
func (a *Checkout) Shutdown() error {
	var errs []error

	if err := a.closeTracer(); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (a *Checkout) closeTracer() error {
	if a.tracerShutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := a.tracerShutdown(ctx)
	a.tracerShutdown = nil
	return err
}
