package database

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notistore/internal/policy"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Exec("SELECT 1").Error)
	require.Equal(t, DialectSQLite, Dialect(db))
	require.False(t, SupportsRowLocking(db))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpenMemoryDatabasesAreIsolated(t *testing.T) {
	first := openTestDB(t)
	second := openTestDB(t)

	require.NoError(t, Migrate(first, policy.DefaultRules()))
	require.True(t, first.Migrator().HasTable("notifications"))
	require.False(t, second.Migrator().HasTable("notifications"))
}

func TestBindCallerIsNoopOutsidePostgres(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, BindCaller(db, uuid.NewString()))
}

func TestMigrateRejectsNilHandle(t *testing.T) {
	require.Error(t, Migrate(nil, policy.DefaultRules()))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", Name: "dbtest_" + uuid.NewString()})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
