// Command migrate_data copies every contact, list and saved message from the
// sqlite file at DB_PATH into the database selected by the DB_* settings,
// normally postgres. Rows already present at the destination are skipped, so
// the command can be re-run.
package main

import (
	"fmt"
	"log"

	"quickping/internal/config"
	"quickping/internal/database"
	"quickping/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const batchSize = 500

func main() {
	cfg := config.LoadConfig()
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if cfg.DBDriver == "sqlite" {
		logger.Fatal("destination must not be sqlite; set DB_DRIVER=postgres")
	}

	// 1. Connect to SQLite (Source)
	sqliteDB, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{Logger: database.Logger(cfg, logger)})
	if err != nil {
		logger.Fatal("connect to sqlite", zap.Error(err))
	}
	logger.Info("connected to sqlite", zap.String("path", cfg.DBPath))

	// 2. Connect to the destination
	dest, err := database.Open(cfg, logger)
	if err != nil {
		logger.Fatal("connect to destination", zap.Error(err))
	}
	if err := database.Migrate(dest); err != nil {
		logger.Fatal("migrate destination", zap.Error(err))
	}

	logger.Info("starting data migration")

	// Contacts first so list snapshots always point at migrated rows.
	steps := []func() (int, error){
		func() (int, error) { return copyTable[models.Contact](sqliteDB, dest) },
		func() (int, error) { return copyTable[models.ContactList](sqliteDB, dest) },
		func() (int, error) { return copyTable[models.SavedMessage](sqliteDB, dest) },
	}
	tables := []string{"contacts", "contact_lists", "saved_messages"}

	for i, step := range steps {
		n, err := step()
		if err != nil {
			logger.Fatal("migrate table", zap.String("table", tables[i]), zap.Error(err))
		}
		logger.Info("migrated table", zap.String("table", tables[i]), zap.Int("rows", n))
	}

	logger.Info("migration completed")
}

// copyTable streams rows of T from src to dst in batches inside one
// transaction, skipping ids that already exist.
func copyTable[T any](src, dst *gorm.DB) (int, error) {
	total := 0
	err := dst.Transaction(func(tx *gorm.DB) error {
		var batch []T
		return src.FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&batch).Error; err != nil {
				return fmt.Errorf("write batch: %w", err)
			}
			total += len(batch)
			return nil
		}).Error
	})
	return total, err
}
