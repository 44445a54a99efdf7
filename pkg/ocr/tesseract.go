package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguages is the combined Thai+English model set; slips mix both scripts.
var DefaultLanguages = []string{"tha", "eng"}

// TesseractConfig tunes the gosseract-backed engine.
type TesseractConfig struct {
	Languages []string
	// Threshold > 0 binarizes the preprocessed image at that gray level.
	Threshold uint8
	PageSeg   gosseract.PageSegMode
	Timeout   time.Duration
}

// Tesseract recognizes text with a local Tesseract install via gosseract.
// A fresh client is created per call; nothing is cached between calls.
type Tesseract struct {
	cfg TesseractConfig
}

func NewTesseract(cfg TesseractConfig) *Tesseract {
	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultLanguages
	}
	if cfg.PageSeg == 0 {
		cfg.PageSeg = gosseract.PSM_AUTO
	}
	return &Tesseract{cfg: cfg}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize decodes and preprocesses img, then runs Tesseract. The engine call
// is not interruptible, so on ctx expiry the call is abandoned and left to
// finish in the background.
func (t *Tesseract) Recognize(ctx context.Context, img Image) (string, error) {
	decoded, err := decodeImage(img.Data, img.ContentType)
	if err != nil {
		return "", recognitionErr(t.Name(), err)
	}
	png, err := prepareForOCR(decoded, t.cfg.Threshold)
	if err != nil {
		return "", recognitionErr(t.Name(), fmt.Errorf("encode preprocessed image: %w", err))
	}

	ctx, cancel := withTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := t.run(png)
		done <- result{text: text, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", recognitionErr(t.Name(), ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", recognitionErr(t.Name(), r.err)
		}
		return r.text, nil
	}
}

func (t *Tesseract) run(png []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.cfg.Languages...); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(t.cfg.PageSeg); err != nil {
		return "", fmt.Errorf("set page seg mode: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr error: %w", err)
	}
	return text, nil
}
