package scan

import (
	"slipbook/models"
	"slipbook/pkg/ocr"
)

// RecordOutcome copies the scan result onto an upload row. A later successful
// rescan clears the failure flag.
func RecordOutcome(u *models.ReceiptUpload, out Outcome) {
	if out.Receipt != nil {
		u.RawText = out.Receipt.Text
		u.Amount = out.Receipt.Amount
		u.RecipientName = out.Receipt.RecipientName
	}
	if out.Transaction != nil {
		id := out.Transaction.ID
		u.TransactionID = &id
	}
	u.Failed = out.Severity != SeveritySuccess
	u.FailedReason = ""
	if u.Failed {
		u.FailedReason = ocr.Snippet(out.Message, 250)
	}
}
