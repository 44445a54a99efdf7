// Package ledger persists user transactions and computes the dashboard and
// calendar views over them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"slipbook/models"
)

var (
	ErrNotFound  = errors.New("transaction not found")
	ErrForbidden = errors.New("transaction belongs to another user")
)

// ValidationError reports a rejected Input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// Owner identifies who is acting on the ledger.
type Owner struct {
	UserID uint
	Admin  bool
}

// Input is the client-supplied form of a transaction.
type Input struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

// ParseDate accepts RFC3339 or a bare YYYY-MM-DD. Empty means now.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, &ValidationError{Field: "date", Reason: "expected RFC3339 or YYYY-MM-DD"}
}

// Apply validates in and writes it onto tx.
func (in Input) Apply(tx *models.Transaction, now time.Time) error {
	if !models.ValidType(in.Type) {
		return &ValidationError{Field: "type", Reason: "must be income or expense"}
	}
	if in.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	cat := strings.TrimSpace(in.Category)
	if cat == "" {
		return &ValidationError{Field: "category", Reason: "required"}
	}
	date, err := ParseDate(in.Date, now)
	if err != nil {
		return err
	}
	tx.Type = in.Type
	tx.Amount = in.Amount
	tx.Category = cat
	tx.Description = strings.TrimSpace(in.Description)
	tx.Date = date
	return nil
}

// Filter narrows List. Zero times mean unbounded; Limit 0 applies the
// default page size and a negative Limit disables it.
type Filter struct {
	From  time.Time
	To    time.Time
	Limit int
}

const defaultLimit = 500

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// List returns the owner's transactions, newest first. Admins see everyone's.
func (s *Store) List(ctx context.Context, o Owner, f Filter) ([]models.Transaction, error) {
	q := s.db.WithContext(ctx).Model(&models.Transaction{})
	if !o.Admin {
		q = q.Where("user_id = ?", o.UserID)
	}
	if !f.From.IsZero() {
		q = q.Where("date >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("date < ?", f.To)
	}
	if f.Limit == 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var items []models.Transaction
	if err := q.Order("date desc, id desc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return items, nil
}

func (s *Store) Create(ctx context.Context, o Owner, in Input) (models.Transaction, error) {
	tx := models.Transaction{UserID: o.UserID}
	if err := in.Apply(&tx, s.now()); err != nil {
		return models.Transaction{}, err
	}
	if err := s.db.WithContext(ctx).Create(&tx).Error; err != nil {
		return models.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return tx, nil
}

// load fetches id and checks that o owns it.
func (s *Store) load(ctx context.Context, o Owner, id uint) (models.Transaction, error) {
	var tx models.Transaction
	err := s.db.WithContext(ctx).First(&tx, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx, ErrNotFound
	}
	if err != nil {
		return tx, fmt.Errorf("load transaction %d: %w", id, err)
	}
	if tx.UserID != o.UserID {
		return tx, ErrForbidden
	}
	return tx, nil
}

func (s *Store) Update(ctx context.Context, o Owner, id uint, in Input) (models.Transaction, error) {
	tx, err := s.load(ctx, o, id)
	if err != nil {
		return models.Transaction{}, err
	}
	if err := in.Apply(&tx, tx.Date); err != nil {
		return models.Transaction{}, err
	}
	if err := s.db.WithContext(ctx).Save(&tx).Error; err != nil {
		return models.Transaction{}, fmt.Errorf("update transaction %d: %w", id, err)
	}
	return tx, nil
}

func (s *Store) Delete(ctx context.Context, o Owner, id uint) error {
	tx, err := s.load(ctx, o, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&tx).Error; err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	return nil
}
