package guard

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopAlwaysAcquires(t *testing.T) {
	release, ok, err := Noop{}.Acquire(context.Background(), "process_invoices", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	release(context.Background())
}

func TestLockerValidatesArguments(t *testing.T) {
	var nilLocker *Locker
	_, _, err := nilLocker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, errLockClient)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	l := NewLocker(client)

	_, _, err = l.TryLock(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, errLockKey)
	_, _, err = l.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, errLockTTL)

	assert.NoError(t, l.Release(context.Background(), "k", ""))
	assert.Nil(t, NewLocker(nil))
}

func TestRedisGuardReportsUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	release, ok, err := NewRedis(client).Acquire(context.Background(), "sweep_overdue", time.Minute)
	require.Error(t, err)
	assert.False(t, ok)
	release(context.Background())
}
