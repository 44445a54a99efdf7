// Package rescan retries OCR for archived slips whose earlier scan failed.
package rescan

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"slipbook/models"
	"slipbook/pkg/ocr"
	"slipbook/pkg/scan"
	"slipbook/pkg/storage"
)

// Deps are the collaborators one rescan needs.
type Deps struct {
	DB         *gorm.DB
	Archive    storage.Archive
	Parser     scan.ReceiptParser
	CreatorFor func(userID uint) scan.TransactionCreator
	Notifier   scan.Notifier
	Log        zerolog.Logger
	// Save persists an updated upload; nil means d.DB.Save.
	Save func(ctx context.Context, up *models.ReceiptUpload) error
}

func (d Deps) save(ctx context.Context, up *models.ReceiptUpload) error {
	if d.Save != nil {
		return d.Save(ctx, up)
	}
	return d.DB.WithContext(ctx).Save(up).Error
}

type Summary struct {
	Candidates int
	Recovered  int
	StillBad   int
	Unreadable int
}

// Pending returns failed uploads that are archived but not linked to a
// transaction, oldest first.
func Pending(ctx context.Context, db *gorm.DB, limit int) ([]models.ReceiptUpload, error) {
	var ups []models.ReceiptUpload
	q := db.WithContext(ctx).
		Where("failed = ? AND transaction_id IS NULL AND store_path <> ''", true).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&ups).Error; err != nil {
		return nil, fmt.Errorf("query failed uploads: %w", err)
	}
	return ups, nil
}

// Run rescans pending uploads. With dry set only the parse result is logged.
func Run(ctx context.Context, d Deps, dry bool, limit int) (Summary, error) {
	ups, err := Pending(ctx, d.DB, limit)
	if err != nil {
		return Summary{}, err
	}
	return Rescan(ctx, d, ups, dry)
}

// Rescan runs each upload through a Bridge bound to its owner and stores the
// new outcome on the row.
func Rescan(ctx context.Context, d Deps, ups []models.ReceiptUpload, dry bool) (Summary, error) {
	sum := Summary{Candidates: len(ups)}
	for i := range ups {
		up := &ups[i]
		data, err := d.Archive.Open(ctx, up.StorePath)
		if err != nil {
			d.Log.Warn().Err(err).Uint("upload", up.ID).Str("ref", up.StorePath).Msg("archived slip unreadable")
			sum.Unreadable++
			continue
		}
		img := ocr.Image{Name: up.FileName, ContentType: up.ContentType, Data: data}

		if dry {
			pr, err := d.Parser.Parse(ctx, img)
			if err != nil {
				sum.StillBad++
				continue
			}
			d.Log.Info().Uint("upload", up.ID).Float64("amount", pr.Amount).Str("recipient", pr.RecipientName).Msg("DRY: would rescan")
			if pr.AmountFound && pr.Amount > 0 {
				sum.Recovered++
			} else {
				sum.StillBad++
			}
			continue
		}

		bridge := scan.NewBridge(d.Parser, d.CreatorFor(up.UserID), d.Notifier, d.Log)
		out := bridge.HandleScan(ctx, img)
		scan.RecordOutcome(up, out)
		if err := d.save(ctx, up); err != nil {
			return sum, fmt.Errorf("update upload %d: %w", up.ID, err)
		}
		if out.Severity == scan.SeveritySuccess {
			sum.Recovered++
		} else {
			sum.StillBad++
		}
	}
	return sum, nil
}
