package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/mmn-engine/pkg/config"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTxReplaysSerializationFailures(t *testing.T) {
	client := Wrap(newTestDB(t))

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return tx.Create(&testModel{Name: "replayed"}).Error
	})
	if err != nil {
		t.Fatalf("expected replay to succeed, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}

	calls = 0
	err = client.WithTx(context.Background(), func(*gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	if err == nil || calls != serializableRetries {
		t.Fatalf("expected %d attempts and an error, got %d (%v)", serializableRetries, calls, err)
	}

	calls = 0
	_ = client.WithTx(context.Background(), func(*gorm.DB) error {
		calls++
		return errors.New("boom")
	})
	if calls != 1 {
		t.Fatalf("plain errors must not be replayed, got %d attempts", calls)
	}
}

func TestPingAndSQLHandle(t *testing.T) {
	client := Wrap(newTestDB(t))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
	pool, err := client.SQL()
	if err != nil || pool == nil {
		t.Fatalf("expected sql handle, got %v (%v)", pool, err)
	}
}

func TestDialectorForRejectsUnknownDriver(t *testing.T) {
	if d, err := dialectorFor(config.DBConfig{Driver: "PostgreSQL", DSN: "postgres://x"}); err != nil || d.Name() != "postgres" {
		t.Fatalf("expected postgres dialector, got %v (%v)", d, err)
	}
	if _, err := dialectorFor(config.DBConfig{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if d, err := dialectorFor(config.DBConfig{Driver: "sqlite", DSN: "file::memory:"}); err != nil || d.Name() != "sqlite" {
		t.Fatalf("expected sqlite dialector, got %v (%v)", d, err)
	}
}
