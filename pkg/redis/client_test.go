package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mmn-engine/pkg/config"
)

func TestPlanCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := &Client{cmds: fake}

	key := client.PlanKey("tenant-1")
	require.NoError(t, client.Set(ctx, key, `{"name":"default"}`, time.Minute))

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"default"}`, value)
	assert.Equal(t, time.Minute, fake.ttls[key])

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestLockOwnership(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmds: newFakeCommands()}
	key := client.LockKey("close-period", "t1")

	ok, err := client.AcquireLock(ctx, key, "owner-a", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.AcquireLock(ctx, key, "owner-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not acquire a held lock")

	removed, err := client.ReleaseLock(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, removed, "foreign owner must not release")

	removed, err = client.ReleaseLock(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, removed)

	ok, err = client.AcquireLock(ctx, key, "owner-b", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKey(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "mmn:plan:tenant-1", client.PlanKey("tenant-1"))
	assert.Equal(t, "mmn:lock:jobs:close-period", client.LockKey("jobs", "close-period"))
	assert.Equal(t, "mmn:lock:jobs", client.LockKey("jobs", " "))
	assert.Equal(t, "mmn", Key())
}

func TestUnconnectedClient(t *testing.T) {
	var client *Client
	assert.ErrorIs(t, client.Ping(context.Background()), errNotConnected)
	_, err := (&Client{}).ReleaseLock(context.Background(), "k", "o")
	assert.ErrorIs(t, err, errNotConnected)
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:          "redis://localhost:6379/3",
		PoolSize:     7,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	_, err = optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)
}

type fakeCommands struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, held := f.data[key]; held {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			n++
		}
		delete(f.data, key)
	}
	return redis.NewIntResult(n, nil)
}

// compareAndDelete stands in for the release script.
func (f *fakeCommands) compareAndDelete(keys []string, args []any) *redis.Cmd {
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script call"))
	}
	if f.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeCommands) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeCommands) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeCommands) EvalRO(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeCommands) EvalShaRO(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeCommands) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeCommands) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}
