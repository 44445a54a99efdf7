package models

import "time"

const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// Categories is the fixed category list offered to clients. "สลิป" is
// reserved for transactions created from scanned slips.
var Categories = []string{"Food", "Transport", "Rent", "Salary", "Entertainment", "Utilities", "สลิป", "Other"}

// Transaction is a single income or expense entry owned by a user.
type Transaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	UserID      uint      `gorm:"index;not null" json:"userId"`
	Type        string    `gorm:"size:16;not null;index" json:"type"`
	Amount      float64   `gorm:"not null" json:"amount"`
	Category    string    `gorm:"size:64;not null" json:"category"`
	Description string    `gorm:"size:255" json:"description"`
	Date        time.Time `gorm:"not null;index" json:"date"`
}

func ValidType(t string) bool { return t == TypeIncome || t == TypeExpense }
