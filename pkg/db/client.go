package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
)

const (
	// serializableRetries bounds how often WithTx replays work that lost a
	// serialization race against a concurrent writer.
	serializableRetries = 3
	retryBackoff        = 25 * time.Millisecond
)

// Client owns the pooled connection shared by every repository.
type Client struct {
	conn *gorm.DB
	logg *logger.Logger
}

// New opens the configured database and applies the pool limits.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", dialector.Name(), err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	configurePool(pool, cfg)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("database connected driver=%s max_open=%d", dialector.Name(), cfg.MaxOpenConns))
	}
	return &Client{conn: conn, logg: logg}, nil
}

// Wrap adopts an already opened connection, typically a test database.
func Wrap(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "postgres", "postgresql":
		return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func configurePool(pool *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// SQL exposes the pool for tooling that speaks database/sql, such as goose.
func (c *Client) SQL() (*sql.DB, error) {
	return c.conn.DB()
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction. Work rejected with a serialization or
// deadlock failure is replayed from the start a bounded number of times.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = c.conn.WithContext(ctx).Transaction(fn)
		if err == nil || !IsRetryableTxError(err) || attempt >= serializableRetries {
			return err
		}
		if c.logg != nil {
			c.logg.Warn(ctx, fmt.Sprintf("transaction retry attempt=%d: %v", attempt, err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
}
