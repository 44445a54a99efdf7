package models

import "time"

const (
	RoleAdministrator = "administrator"
	RoleUser          = "user"
)

// Role is looked up by name; ids are assigned by the database.
type Role struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:32;uniqueIndex;not null"`
	Description string `gorm:"size:255"`
}
