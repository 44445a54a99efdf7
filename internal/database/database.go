// Package database opens the shared Postgres handle for the server and the
// offline tools.
package database

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"slipbook/models"
)

var ErrNoDSN = errors.New("db-dsn is not set; a Postgres DSN is required")

func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// FindUser loads a user with its role by username.
func FindUser(db *gorm.DB, username string) (models.User, error) {
	var u models.User
	if err := db.Preload("Role").Where("username = ?", username).First(&u).Error; err != nil {
		return u, fmt.Errorf("user %q: %w", username, err)
	}
	return u, nil
}
