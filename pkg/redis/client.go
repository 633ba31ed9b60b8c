package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
)

const namespace = "mmn"

var errNotConnected = errors.New("redis client not initialized")

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type commands interface {
	redis.Scripter
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Client backs the plan cache and batch locks.
type Client struct {
	cmds commands
	closer func() error
}

// New dials redis and pings it before handing the client out.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("redis connected addr=%s db=%d", opts.Addr, opts.DB))
	}
	return &Client{cmds: conn, closer: conn.Close}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fill := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	fillDur := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	fill(&opts.DB, cfg.DB)
	fill(&opts.PoolSize, cfg.PoolSize)
	fill(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDur(&opts.DialTimeout, cfg.DialTimeout)
	fillDur(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDur(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func (c *Client) conn() (commands, error) {
	if c == nil || c.cmds == nil {
		return nil, errNotConnected
	}
	return c.cmds, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	cmds, err := c.conn()
	if err != nil {
		return err
	}
	return cmds.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil when key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	cmds, err := c.conn()
	if err != nil {
		return "", err
	}
	return cmds.Get(ctx, key).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	cmds, err := c.conn()
	if err != nil {
		return err
	}
	return cmds.Del(ctx, keys...).Err()
}

// AcquireLock claims key for owner until ttl elapses.
func (c *Client) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	cmds, err := c.conn()
	if err != nil {
		return false, err
	}
	return cmds.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseLock drops key if owner still holds it. It reports whether a key was removed.
func (c *Client) ReleaseLock(ctx context.Context, key, owner string) (bool, error) {
	cmds, err := c.conn()
	if err != nil {
		return false, err
	}
	removed, err := releaseScript.Run(ctx, cmds, []string{key}, owner).Int()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return removed > 0, nil
}

func (c *Client) Ping(ctx context.Context) error {
	cmds, err := c.conn()
	if err != nil {
		return err
	}
	return cmds.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// PlanKey is where a tenant's resolved compensation plan is cached.
func (c *Client) PlanKey(tenantID string) string {
	return Key("plan", tenantID)
}

// LockKey names the lock guarding an exclusive job run.
func (c *Client) LockKey(scope ...string) string {
	return Key(append([]string{"lock"}, scope...)...)
}

// Key joins parts under the engine namespace, skipping blanks.
func Key(parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
