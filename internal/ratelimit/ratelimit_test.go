package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payrollengine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPreviewLimiterDisabledWithoutRedis(t *testing.T) {
	l := NewPreviewLimiter(config.Config{PreviewRatePerSecond: 5, PreviewBurst: 10}, nil, zap.NewNop())
	assert.False(t, l.Enabled())

	res, err := l.AllowTenant(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestPreviewLimiterDisabledWithoutRate(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	l := NewPreviewLimiter(config.Config{PreviewBurst: 10}, client, zap.NewNop())
	assert.False(t, l.Enabled())
}

func TestNewBucketRejectsInvalidSettings(t *testing.T) {
	_, err := newBucket(nil, 1, 1)
	assert.ErrorIs(t, err, ErrBucketInvalid)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, err = newBucket(client, 1, 0)
	assert.ErrorIs(t, err, ErrBucketInvalid)

	b, err := newBucket(client, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, b.ttl)
}

func TestIdleTTL(t *testing.T) {
	assert.Equal(t, 4*time.Second, idleTTL(5, 10))
	assert.Equal(t, time.Second, idleTTL(100, 1))
	assert.Equal(t, time.Second, idleTTL(0, 0))
}

func TestScriptValueConversion(t *testing.T) {
	assert.Equal(t, int64(1), asInt(int64(1)))
	assert.Equal(t, int64(250), asInt("250"))
	assert.Equal(t, int64(0), asInt(1.5))
	assert.Equal(t, 2.5, asFloat("2.5"))
	assert.Equal(t, float64(3), asFloat(int64(3)))
	assert.Zero(t, asFloat("x"))
}
