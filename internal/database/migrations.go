package database

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/paperminder/paperminder/internal/logging"
	"gorm.io/gorm"
)

// RunMigrations runs any pending database migrations using gormigrate,
// followed by GORM auto-migration for the full model set.
func RunMigrations(db *gorm.DB, logPrefix string) error {
	logging.Logf("[%s] Running database migrations...", logPrefix)

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202508050000_initial_schema",
			Migrate: func(tx *gorm.DB) error {
				for _, model := range GetAllModels() {
					if err := tx.AutoMigrate(model); err != nil {
						return fmt.Errorf("failed to migrate %T: %w", model, err)
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return nil
			},
		},
		{
			ID: "202508050001_canonicalize_printer_platforms",
			Migrate: func(tx *gorm.DB) error {
				// Older firmware reported esp32 variants without the dash.
				updates := map[string]string{
					"esp32c3": "esp32-c3", "esp32_c3": "esp32-c3",
					"esp32s2": "esp32-s2", "esp32_s2": "esp32-s2",
					"esp32s3": "esp32-s3", "esp32_s3": "esp32-s3",
					"esp32c6": "esp32-c6", "esp32_c6": "esp32-c6",
				}
				for from, to := range updates {
					if err := tx.Model(&Printer{}).Where("platform = ?", from).Update("platform", to).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return nil
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return err
	}

	// Auto-migration keeps columns added to models in sync.
	for _, model := range GetAllModels() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to auto-migrate %T: %w", model, err)
		}
	}

	logging.Logf("[%s] Database migrations completed", logPrefix)
	return nil
}
