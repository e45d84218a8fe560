package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/paycheckout/internal/domain"
)

const keyPrefix = "paycheckout:inflight:"

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL expired cannot free a lock someone else has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the subset of *redis.Client the guard needs.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Redis is a guard shared by every process serving the same checkout. The
// key expires after ttl so a crashed holder cannot block the checkout forever.
type Redis struct {
	client Client
	key    string
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	token string
}

// NewRedis creates a guard for checkoutID. client is usually a *redis.Client.
func NewRedis(client Client, checkoutID string, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		key:    keyPrefix + checkoutID,
		ttl:    ttl,
		logger: logger,
	}
}

// Key returns the Redis key backing the guard.
func (g *Redis) Key() string {
	return g.key
}

// Acquire sets the key with a fresh token if it is absent.
func (g *Redis) Acquire(ctx context.Context) error {
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire payment guard %s: %w", g.key, err)
	}
	if !ok {
		return domain.ErrAlreadyInFlight
	}

	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
	return nil
}

// Release deletes the key if this guard still owns it. Errors are logged and
// swallowed because the TTL frees the key regardless.
func (g *Redis) Release(ctx context.Context) {
	g.mu.Lock()
	token := g.token
	g.token = ""
	g.mu.Unlock()

	if token == "" {
		return
	}

	// The attempt's context may already be cancelled; release must still run.
	ctx = context.WithoutCancel(ctx)
	if err := releaseScript.Run(ctx, g.client, []string{g.key}, token).Err(); err != nil {
		g.logger.WarnContext(ctx, "failed to release payment guard",
			slog.String("key", g.key),
			slog.String("error", err.Error()),
		)
	}
}

// IsPaying reports whether this guard currently holds the key. A hold taken
// by another process is only observed through Acquire.
func (g *Redis) IsPaying() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token != ""
}
