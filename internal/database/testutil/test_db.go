package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notistore/internal/database"
	"github.com/charlesng35/notistore/internal/models"
	"github.com/charlesng35/notistore/internal/policy"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
	profiles    int
}

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// WithProfiles migrates the schema and seeds count profiles.
func WithProfiles(count int) TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
		cfg.profiles = count
	}
}

// MustOpenTestDB opens an isolated in-memory SQLite database for tests, applying optional
// migrations and seed profiles. The connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := database.Open(database.Config{Driver: "sqlite", Name: "test_" + uuid.NewString()})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if cfg.autoMigrate {
		require.NoError(t, database.Migrate(db, policy.DefaultRules()))
	}
	for i := 0; i < cfg.profiles; i++ {
		MustCreateProfile(t, db)
	}

	return db
}

// MustCreateProfile inserts a profile with default preferences.
func MustCreateProfile(t *testing.T, db *gorm.DB) *models.Profile {
	t.Helper()

	profile := &models.Profile{DisplayName: "user-" + uuid.NewString()[:8]}
	require.NoError(t, db.Create(profile).Error)
	return profile
}

// Profiles returns every seeded profile ordered by creation.
func Profiles(t *testing.T, db *gorm.DB) []models.Profile {
	t.Helper()

	var profiles []models.Profile
	require.NoError(t, db.Order("created_at ASC").Order("id ASC").Find(&profiles).Error)
	return profiles
}
