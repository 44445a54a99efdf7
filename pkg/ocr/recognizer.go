package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Image is an in-memory receipt image as handed over by the upload or watcher.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Recognizer turns an image into best-effort text. An empty string with a nil
// error means the engine ran but found nothing.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, img Image) (string, error)
}

// RecognizerFunc adapts a plain function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, img Image) (string, error)

func (f RecognizerFunc) Name() string { return "func" }

func (f RecognizerFunc) Recognize(ctx context.Context, img Image) (string, error) {
	return f(ctx, img)
}

// Options selects and configures an engine for NewRecognizer.
type Options struct {
	Engine    string // "tesseract" (default) or "gemini"
	Timeout   time.Duration
	Languages []string
	// Threshold > 0 binarizes images before Tesseract sees them.
	Threshold   uint8
	GeminiKey   string
	GeminiModel string
}

// NewRecognizer builds the engine named in opts.
func NewRecognizer(ctx context.Context, opts Options) (Recognizer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Engine)) {
	case "", "tesseract":
		return NewTesseract(TesseractConfig{Languages: opts.Languages, Threshold: opts.Threshold, Timeout: opts.Timeout}), nil
	case "gemini":
		return NewGemini(ctx, opts.GeminiKey, opts.GeminiModel, opts.Timeout)
	default:
		return nil, fmt.Errorf("unknown ocr engine %q (want tesseract or gemini)", opts.Engine)
	}
}

// ThresholdFromInt checks a binarization gray level read from a flag.
func ThresholdFromInt(n int) (uint8, error) {
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("ocr threshold %d out of range 0..255", n)
	}
	return uint8(n), nil
}

// withTimeout bounds ctx when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
