package database

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"slipbook/models"
)

const minPasswordLen = 6

var ErrUserExists = errors.New("user already exists")

func validatePassword(pw string) error {
	if len(pw) < minPasswordLen {
		return fmt.Errorf("password too short (min %d)", minPasswordLen)
	}
	return nil
}

// CreateUser hashes password and inserts a user with roleName, creating the
// role if needed.
func CreateUser(db *gorm.DB, username, email, password, roleName string) (models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return models.User{}, fmt.Errorf("username required")
	}
	if err := validatePassword(password); err != nil {
		return models.User{}, err
	}
	var existing models.User
	q := db.Where("username = ?", username)
	if email != "" {
		q = q.Or("email = ?", email)
	}
	if err := q.First(&existing).Error; err == nil {
		return models.User{}, ErrUserExists
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	role := models.Role{Name: roleName}
	if err := db.Where("name = ?", roleName).FirstOrCreate(&role).Error; err != nil {
		return models.User{}, fmt.Errorf("ensure role %s: %w", roleName, err)
	}
	rid := role.ID
	user := models.User{Username: username, HashedPassword: hashed, RoleID: &rid, Role: role}
	if email != "" {
		user.Email = email
	}
	if err := db.Omit("Role").Create(&user).Error; err != nil {
		if IsUniqueConstraintError(err) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}
	return user, nil
}

// SetPassword replaces the stored hash for username.
func SetPassword(db *gorm.DB, username, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res := db.Model(&models.User{}).Where("username = ?", username).Update("hashed_password", hashed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %q: %w", username, gorm.ErrRecordNotFound)
	}
	return nil
}

func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint")
}
