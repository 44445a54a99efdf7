package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{255, 255, 255, 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeImagePNG(t *testing.T) {
	img, err := decodeImage(pngBytes(t, 40, 20), "image/png")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 20 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	if _, err := decodeImage([]byte("definitely not an image"), "image/jpeg"); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := decodeImage(nil, ""); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}

func TestIsHEICFormat(t *testing.T) {
	hdr := []byte{0, 0, 0, 24, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c'}
	if !isHEICFormat(hdr) {
		t.Fatal("expected heic brand to be detected")
	}
	if isHEICFormat(pngBytes(t, 4, 4)) {
		t.Fatal("png detected as heic")
	}
}

func TestPrepareForOCRUpscalesSmallImages(t *testing.T) {
	src, _ := decodeImage(pngBytes(t, 100, 200), "image/png")
	out, err := prepareForOCR(src, 0)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Height != minOCRHeight {
		t.Fatalf("expected height %d got %d", minOCRHeight, cfg.Height)
	}
}

func TestBinarize(t *testing.T) {
	img := imaging.New(2, 1, color.NRGBA{200, 200, 200, 255})
	img.Set(1, 0, color.NRGBA{10, 10, 10, 255})
	out := binarize(img, 128)
	if r, _, _, _ := out.At(0, 0).RGBA(); r>>8 != 255 {
		t.Fatalf("light pixel should turn white, got %d", r>>8)
	}
	if r, _, _, _ := out.At(1, 0).RGBA(); r != 0 {
		t.Fatalf("dark pixel should turn black, got %d", r)
	}
}

func TestPrepareForOCRWithThreshold(t *testing.T) {
	src := imaging.New(10, 10, color.NRGBA{90, 90, 90, 255})
	out, err := prepareForOCR(src, 128)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	if r, _, _, _ := img.At(b.Dx()/2, b.Dy()/2).RGBA(); r != 0 {
		t.Fatalf("dark gray should binarize to black, got %d", r>>8)
	}
}

func TestTesseractUndecodableImageIsRecognitionError(t *testing.T) {
	_, err := NewTesseract(TesseractConfig{}).Recognize(context.Background(), Image{Name: "x.jpg", Data: []byte("nope")})
	var re *RecognitionError
	if !errors.As(err, &re) {
		t.Fatalf("expected RecognitionError, got %v", err)
	}
	if re.Engine != "tesseract" {
		t.Fatalf("unexpected engine %q", re.Engine)
	}
}

func TestNewRecognizer(t *testing.T) {
	r, err := NewRecognizer(context.Background(), Options{})
	if err != nil || r.Name() != "tesseract" {
		t.Fatalf("expected default tesseract, got %v %v", r, err)
	}
	r, err = NewRecognizer(context.Background(), Options{Engine: "Tesseract", Threshold: 140})
	if err != nil {
		t.Fatal(err)
	}
	if tr, ok := r.(*Tesseract); !ok || tr.cfg.Threshold != 140 {
		t.Fatalf("threshold not passed through: %#v", r)
	}
	if _, err := NewRecognizer(context.Background(), Options{Engine: "abacus"}); err == nil {
		t.Fatal("expected error for unknown engine")
	}
	if _, err := NewRecognizer(context.Background(), Options{Engine: "gemini"}); err == nil {
		t.Fatal("expected error for gemini without key")
	}
}

func TestThresholdFromInt(t *testing.T) {
	if v, err := ThresholdFromInt(160); err != nil || v != 160 {
		t.Fatalf("got %d %v", v, err)
	}
	for _, bad := range []int{-1, 256} {
		if _, err := ThresholdFromInt(bad); err == nil {
			t.Fatalf("expected error for %d", bad)
		}
	}
}

func TestRecognitionErrorUnwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := recognitionErr("tesseract", cause)
	if !errors.Is(err, cause) || !IsRecognitionError(err) {
		t.Fatalf("unwrap chain broken: %v", err)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("ไปยัง\n  นาย สมชาย", 9); got != "ไปยัง นาย…" {
		t.Fatalf("got %q", got)
	}
}
