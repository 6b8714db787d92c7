package testutil

import (
	"path/filepath"
	"testing"

	"progression-engine/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates a file-backed SQLite DB under the test's temp dir
// and runs AutoMigrate. It requires no external services and is safe to
// use in parallel tests (each test gets its own file).
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "SetupTestDB: open")

	// SQLite has no row-level locking; a single connection serializes
	// writers the way Postgres row locks do in production.
	sqlDB, err := db.DB()
	require.NoError(t, err, "SetupTestDB: sql.DB")
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.XPGrant{},
		&models.ProgressionState{},
		&models.DailyQuota{},
		&models.AchievementRule{},
		&models.Achievement{},
		&models.Challenge{},
		&models.ChallengeProgress{},
		&models.CommunityProfile{},
	), "SetupTestDB: AutoMigrate")

	return db
}
