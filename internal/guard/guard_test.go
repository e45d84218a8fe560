package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/paycheckout/internal/domain"
	apperrors "github.com/utafrali/paycheckout/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// ---------------------------------------------------------------------------
// Local
// ---------------------------------------------------------------------------

func TestLocal_AcquireRelease(t *testing.T) {
	g := NewLocal()
	ctx := context.Background()

	assert.False(t, g.IsPaying())
	require.NoError(t, g.Acquire(ctx))
	assert.True(t, g.IsPaying())

	err := g.Acquire(ctx)
	assert.True(t, errors.Is(err, domain.ErrAlreadyInFlight))
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	g.Release(ctx)
	assert.False(t, g.IsPaying())
	g.Release(ctx)
	assert.False(t, g.IsPaying())

	require.NoError(t, g.Acquire(ctx))
}

func TestLocal_ConcurrentAcquireAdmitsOne(t *testing.T) {
	g := NewLocal()
	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Acquire(context.Background()) == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted.Load())
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

func TestRedis_AcquireSetsKeyWithTTL(t *testing.T) {
	client, mr := setupRedis(t)
	g := NewRedis(client, "checkout-1", time.Minute, testLogger())

	require.NoError(t, g.Acquire(context.Background()))
	assert.True(t, g.IsPaying())
	assert.True(t, mr.Exists("paycheckout:inflight:checkout-1"))
	assert.Equal(t, time.Minute, mr.TTL("paycheckout:inflight:checkout-1"))
}

func TestRedis_SecondHolderRejected(t *testing.T) {
	client, _ := setupRedis(t)
	first := NewRedis(client, "checkout-1", time.Minute, testLogger())
	second := NewRedis(client, "checkout-1", time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, first.Acquire(ctx))
	err := second.Acquire(ctx)
	assert.True(t, errors.Is(err, domain.ErrAlreadyInFlight))
	assert.False(t, second.IsPaying())

	first.Release(ctx)
	require.NoError(t, second.Acquire(ctx))
}

func TestRedis_ReleaseOnlyDeletesOwnToken(t *testing.T) {
	client, mr := setupRedis(t)
	g := NewRedis(client, "checkout-1", time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx))

	// Simulate expiry followed by another process taking the key.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set(g.Key(), "someone-else"))

	g.Release(ctx)
	assert.False(t, g.IsPaying())

	got, err := mr.Get(g.Key())
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedis_ReleaseIsIdempotent(t *testing.T) {
	client, mr := setupRedis(t)
	g := NewRedis(client, "checkout-1", time.Minute, testLogger())
	ctx := context.Background()

	g.Release(ctx)
	require.NoError(t, g.Acquire(ctx))
	g.Release(ctx)
	g.Release(ctx)
	assert.False(t, mr.Exists(g.Key()))
}

func TestRedis_ReleaseWithCancelledContext(t *testing.T) {
	client, mr := setupRedis(t)
	g := NewRedis(client, "checkout-1", time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, g.Acquire(ctx))
	cancel()

	g.Release(ctx)
	assert.False(t, mr.Exists(g.Key()))
}

func TestRedis_AcquireUnavailable(t *testing.T) {
	client, mr := setupRedis(t)
	g := NewRedis(client, "checkout-1", time.Minute, testLogger())
	mr.Close()

	err := g.Acquire(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrAlreadyInFlight))
	assert.Contains(t, err.Error(), "acquire payment guard")
	assert.False(t, g.IsPaying())
}
