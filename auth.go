package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"slipbook/internal/database"
	"slipbook/models"
)

const (
	loginTokenTTL   = 24 * time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
	rotatedTokenTTL = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRefresh     = errors.New("invalid or expired refresh token")
)

func registerUser(db *gorm.DB, username, email, password string) (models.User, error) {
	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return models.User{}, fmt.Errorf("valid email required")
	}
	return database.CreateUser(db, username, email, password, models.RoleUser)
}

func authenticate(db *gorm.DB, username, password string) (models.User, error) {
	var user models.User
	if err := db.Preload("Role").Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// issueAccessToken signs an HS256 token carrying uid, username and role.
func issueAccessToken(secret []byte, user models.User, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":      user.ID,
		"username": user.Username,
		"role":     user.Role.Name,
		"exp":      time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}

func hashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// createRefreshToken stores the hash and returns the raw token.
func createRefreshToken(db *gorm.DB, userID uint) (string, models.RefreshToken, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", models.RefreshToken{}, err
	}
	raw := hex.EncodeToString(b)
	rt := models.RefreshToken{UserID: userID, TokenHash: hashRefreshToken(raw), ExpiresAt: time.Now().Add(refreshTokenTTL)}
	if err := db.Create(&rt).Error; err != nil {
		return "", models.RefreshToken{}, err
	}
	return raw, rt, nil
}

func findRefreshToken(db *gorm.DB, raw string) (models.RefreshToken, error) {
	var rt models.RefreshToken
	err := db.Where("token_hash = ?", hashRefreshToken(raw)).First(&rt).Error
	return rt, err
}

// rotateRefreshToken revokes raw and issues a replacement in one transaction.
func rotateRefreshToken(db *gorm.DB, raw string) (models.User, string, error) {
	var user models.User
	var next string
	err := db.Transaction(func(tx *gorm.DB) error {
		rt, err := findRefreshToken(tx, raw)
		if err != nil || !rt.Usable(time.Now()) {
			return ErrInvalidRefresh
		}
		if err := tx.Preload("Role").First(&user, rt.UserID).Error; err != nil {
			return ErrInvalidRefresh
		}
		token, created, err := createRefreshToken(tx, user.ID)
		if err != nil {
			return err
		}
		next = token
		return tx.Model(&rt).Updates(map[string]any{"revoked": true, "replaced_by": created.ID}).Error
	})
	return user, next, err
}
