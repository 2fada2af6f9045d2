package testutil

import (
	"testing"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens an in-memory sqlite database with every table the engine touches
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// each :memory: connection is its own database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, storage.AutoMigrate(db))
	require.NoError(t, db.AutoMigrate(&storage.TradeRecord{}, &storage.UserRecord{}))
	return db
}

// SeedUsers inserts users with the given status
func SeedUsers(t *testing.T, db *gorm.DB, status string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, db.Create(&storage.UserRecord{ID: id, Status: status}).Error)
	}
}

// SeedTrades inserts trades into the ledger table
func SeedTrades(t *testing.T, db *gorm.DB, trades ...TradeFixture) {
	t.Helper()
	for _, tr := range trades {
		status := tr.Status
		if status == "" {
			status = "SETTLED"
		}
		rec := storage.TradeRecord{
			ID:            tr.ID,
			UserID:        tr.UserID,
			Side:          tr.Side,
			TotalValueUSD: tr.Value,
			Status:        status,
			CreatedAt:     tr.At,
		}
		require.NoError(t, db.Create(&rec).Error)
	}
}
