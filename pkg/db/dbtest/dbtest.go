// Package dbtest opens throwaway sqlite databases carrying the engine schema.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
)

var counter atomic.Int64

// Open returns an in-memory database private to the calling test with every
// engine table migrated.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, counter.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(models.All()...))
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return conn
}

// Client wraps Open in the transaction runner services expect.
func Client(t *testing.T) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}
