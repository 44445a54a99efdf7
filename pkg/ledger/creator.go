package ledger

import (
	"context"
	"time"

	"slipbook/pkg/scan"
)

// ScanCreator persists scan drafts for a single user.
type ScanCreator struct {
	store  *Store
	userID uint
}

func (s *Store) ForUser(userID uint) *ScanCreator {
	return &ScanCreator{store: s, userID: userID}
}

func (c *ScanCreator) CreateTransaction(ctx context.Context, d scan.TransactionDraft) (scan.CreatedTransaction, error) {
	tx, err := c.store.Create(ctx, Owner{UserID: c.userID}, Input{
		Type:        d.Type,
		Amount:      d.Amount,
		Category:    d.Category,
		Description: d.Description,
		Date:        d.Date.Format(time.RFC3339),
	})
	if err != nil {
		return scan.CreatedTransaction{}, err
	}
	out := scan.CreatedTransaction{ID: tx.ID, TransactionDraft: d}
	out.Date = tx.Date
	return out, nil
}
