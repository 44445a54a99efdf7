package ocr

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Slip screenshots are usually tall and narrow; Tesseract's Thai model does
// noticeably better once the glyph height is above ~20px.
const minOCRHeight = 1300

// prepareForOCR applies grayscale, contrast and sharpening, upscales small
// images and returns PNG bytes for the engine.
func prepareForOCR(img image.Image, threshold uint8) ([]byte, error) {
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 15)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < minOCRHeight {
		gray = imaging.Resize(gray, 0, minOCRHeight, imaging.Lanczos)
	}
	var out image.Image = gray
	if threshold > 0 {
		out = binarize(gray, threshold)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// binarize maps every pixel at or below threshold luma to black and the
// rest to white. Faded slip photos read better this way.
func binarize(img image.Image, threshold uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		luma := (299*uint32(c.R) + 587*uint32(c.G) + 114*uint32(c.B)) / 1000
		if luma <= uint32(threshold) {
			return color.NRGBA{A: 255}
		}
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	})
}
