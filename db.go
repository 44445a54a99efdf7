package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"slipbook/internal/database"
	"slipbook/models"
)

var seedRoles = []models.Role{
	{Name: models.RoleAdministrator, Description: "full access"},
	{Name: models.RoleUser, Description: "regular user"},
}

func openDB(cfg config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		migrate(db, log)
	}
	if err := seedDB(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

// migrate runs each model separately so one permission error does not
// block the rest. Roles go first so users can reference them.
func migrate(db *gorm.DB, log zerolog.Logger) {
	steps := []struct {
		table string
		model any
	}{
		{"roles", &models.Role{}},
		{"users", &models.User{}},
		{"transactions", &models.Transaction{}},
		{"receipt_uploads", &models.ReceiptUpload{}},
		{"refresh_tokens", &models.RefreshToken{}},
	}
	for _, s := range steps {
		if err := db.AutoMigrate(s.model); err != nil {
			log.Warn().Err(err).Str("table", s.table).Msg("migration warning")
		}
	}
}

func seedDB(db *gorm.DB, log zerolog.Logger) error {
	for _, r := range seedRoles {
		role := r
		if err := db.Where("name = ?", role.Name).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", role.Name, err)
		}
	}

	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count > 0 {
		return nil
	}
	if _, err := database.CreateUser(db, "admin", "admin@example.com", "admin123", models.RoleAdministrator); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Warn().Str("username", "admin").Msg("seeded default admin account; change its password")
	return nil
}
