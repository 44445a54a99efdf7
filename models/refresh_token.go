package models

import "time"

// RefreshToken holds the sha256 of an issued refresh token. Tokens are single
// use: a successful refresh revokes the row and issues a new one.
type RefreshToken struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	UserID     uint      `gorm:"index;not null"`
	TokenHash  string    `gorm:"size:128;not null;uniqueIndex"`
	ExpiresAt  time.Time `gorm:"index;not null"`
	Revoked    bool      `gorm:"default:false"`
	ReplacedBy *uint
}

func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
