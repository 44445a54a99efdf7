package main

import (
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// maxArchivedBytes is the size above which processed slips are downscaled.
const maxArchivedBytes = 1_000_000

// moveToProcessed moves src into processedDir/name, downscaling large images.
// It attempts an atomic rename and falls back to copy+remove when necessary.
func moveToProcessed(src, processedDir, name string) error {
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(processedDir, name)

	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.Size() <= maxArchivedBytes {
		return renameOrCopy(src, dst)
	}
	img, err := imaging.Open(src)
	if err != nil {
		// HEIC and PDF slips are archived as-is
		return renameOrCopy(src, dst)
	}
	// file size scales roughly with area
	scale := math.Sqrt(float64(maxArchivedBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	h := int(math.Max(1, math.Round(float64(img.Bounds().Dy())*scale)))
	img = imaging.Resize(img, w, h, imaging.Lanczos)
	if err := imaging.Save(img, dst, imaging.JPEGQuality(85)); err != nil {
		return renameOrCopy(src, dst)
	}
	return os.Remove(src)
}

func renameOrCopy(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
