package cyclelock

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyCycleLock = "payroll:cycle:lock:%s"

// compareAndDelete removes the lease key only while it still carries our token,
// so a lease that expired and was taken by another instance is left alone.
const compareAndDelete = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

// remoteLock leases payroll cycles across instances through redis SET NX.
type remoteLock struct {
	client  *redis.Client
	release *redis.Script
}

// lease is a held cycle lock.
type lease struct {
	key   string
	token string
}

func newRemoteLock(client *redis.Client) *remoteLock {
	if client == nil {
		return nil
	}
	return &remoteLock{client: client, release: redis.NewScript(compareAndDelete)}
}

// acquire returns ErrHeld when another instance owns the cycle.
func (r *remoteLock) acquire(ctx context.Context, cycleID snowflake.ID, ttl time.Duration) (*lease, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cycle lock ttl %s: %w", ttl, ErrInvalidTTL)
	}
	l := &lease{key: fmt.Sprintf(keyCycleLock, cycleID.String()), token: uuid.NewString()}
	ok, err := r.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return l, nil
}

func (r *remoteLock) drop(ctx context.Context, l *lease) error {
	if l == nil {
		return nil
	}
	return r.release.Run(ctx, r.client, []string{l.key}, l.token).Err()
}
