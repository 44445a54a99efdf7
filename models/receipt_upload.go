package models

import "time"

// ReceiptUpload records a scanned slip, where it was archived and what the
// scan produced. Failed uploads are kept for review.
type ReceiptUpload struct {
	ID            uint `gorm:"primaryKey"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	UserID        uint   `gorm:"index;not null"`
	User          User   `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	FileName      string `gorm:"size:255;not null"`
	StorePath     string `gorm:"size:512"` // local path or gs:// URL
	ContentType   string `gorm:"size:128"`
	RawText       string `gorm:"type:text"`
	Amount        float64
	RecipientName string `gorm:"size:64"`
	TransactionID *uint  `gorm:"index"`
	Failed        bool   `gorm:"default:false;index"`
	FailedReason  string `gorm:"size:255"`
}
