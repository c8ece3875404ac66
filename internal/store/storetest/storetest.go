// Package storetest opens throwaway stores for tests in other packages.
package storetest

import (
	"path/filepath"
	"testing"

	"quickping/internal/database"
	"quickping/internal/store"
	"quickping/internal/whatsapp"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const SystemListName = "Unassigned"

// Phones is the numbering plan used by test stores.
func Phones() *whatsapp.Client {
	return &whatsapp.Client{
		CountryCode: "972",
		TrunkPrefix: "0",
		MinDigits:   7,
		Scheme:      "whatsapp",
		WebHost:     "wa.me",
	}
}

// OpenDB returns a migrated sqlite database in t's temp dir. A single
// connection serializes access so background snapshot reads never see
// SQLITE_BUSY.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// New returns a Store closed automatically at test end.
func New(t testing.TB) *store.Store {
	t.Helper()

	s := store.New(OpenDB(t), store.Options{
		Phones:         Phones(),
		SystemListName: SystemListName,
		Logger:         zaptest.NewLogger(t),
	})
	t.Cleanup(s.Close)
	return s
}
