package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/datacloud-project/orchestrator/internal/models"
)

// registerModels lists every table in foreign-key order so AutoMigrate
// creates referenced tables before their dependents.
func registerModels() []any {
	return []any{
		&models.User{},
		&models.Template{},
		&models.Deployment{},
		&models.Resource{},
	}
}

func runMigrations(db *gorm.DB) error {
	if err := runCustomMigrations(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// runCustomMigrations holds raw SQL that AutoMigrate cannot express.
func runCustomMigrations(db *gorm.DB) error {
	// id columns default to gen_random_uuid().
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		return fmt.Errorf("enable pgcrypto: %w", err)
	}
	return nil
}
