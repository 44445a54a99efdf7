package main

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"slipbook/internal/logger"
	"slipbook/models"
	"slipbook/pkg/ocr"
	"slipbook/pkg/scan"
	"slipbook/pkg/storage"
)

const maxSlipBytes = 10 << 20

type gormUploads struct {
	db *gorm.DB
}

func (g gormUploads) RecordUpload(ctx context.Context, u *models.ReceiptUpload) error {
	return g.db.WithContext(ctx).Create(u).Error
}

// scanHandler archives the uploaded slip, runs it through a per-request
// Bridge and records the outcome.
func (s *server) scanHandler(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	uid := c.GetUint(ctxUserID)

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image missing"})
		return
	}
	if file.Size > maxSlipBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 10MB)"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read image"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, maxSlipBytes+1))
	f.Close()
	if err != nil || len(data) == 0 || len(data) > maxSlipBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read image"})
		return
	}
	ct := file.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}

	upload := models.ReceiptUpload{UserID: uid, FileName: file.Filename, ContentType: ct}
	if s.archive != nil {
		ref, err := s.archive.Save(ctx, storage.ObjectName(uid, file.Filename), ct, data)
		if err != nil {
			log.Error().Err(err).Str("file", file.Filename).Msg("archive slip failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
			return
		}
		upload.StorePath = ref
	}

	rec := &scan.Recorder{}
	bridge := scan.NewBridge(s.parser, s.creatorFor(uid), scan.Multi{rec, s.notifier}, log)
	out := bridge.HandleScan(ctx, ocr.Image{Name: file.Filename, ContentType: ct, Data: data})

	scan.RecordOutcome(&upload, out)
	if s.uploads != nil {
		if err := s.uploads.RecordUpload(ctx, &upload); err != nil {
			log.Warn().Err(err).Str("file", file.Filename).Msg("record upload failed")
		}
	}

	resp := gin.H{
		"severity":    out.Severity,
		"message":     out.Message,
		"receipt":     out.Receipt,
		"transaction": out.Transaction,
		"upload_id":   upload.ID,
	}
	if n, ok := rec.Last(); ok {
		resp["notification"] = n
	}
	c.JSON(scanStatus(out), resp)
}

func scanStatus(out scan.Outcome) int {
	switch {
	case out.Severity == scan.SeveritySuccess:
		return http.StatusCreated
	case out.Severity == scan.SeverityWarning:
		return http.StatusUnprocessableEntity
	case ocr.IsRecognitionError(out.Err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
