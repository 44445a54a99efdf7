// Command scan_slip runs OCR and receipt extraction over one slip and prints
// the parsed result as JSON. It never touches the database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"slipbook/internal/logger"
	"slipbook/pkg/ocr"
	"slipbook/pkg/receipt"
)

func main() {
	fs := ff.NewFlagSet("scan_slip")
	var (
		file        = fs.StringLong("file", "", "slip image or PDF to scan")
		text        = fs.StringLong("text", "", "skip OCR and extract from this text")
		engine      = fs.StringLong("ocr-engine", "tesseract", "OCR engine: tesseract or gemini")
		timeout     = fs.DurationLong("ocr-timeout", 60*time.Second, "OCR deadline")
		threshold   = fs.IntLong("ocr-threshold", 0, "binarize gray level 1..255 before Tesseract (0 disables)")
		geminiKey   = fs.StringLong("gemini-key", "", "Gemini API key")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Gemini model name")
		showText    = fs.BoolLong("show-text", "include the raw OCR text in the output")
		level       = fs.StringLong("log-level", "warn", "log level")
		_           = fs.StringLong("config", "", "config file (optional)")
	)
	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SLIPBOOK"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\nerror: %v\n", ffhelp.Flags(fs), err)
		os.Exit(1)
	}
	if *file == "" && *text == "" {
		if args := fs.GetArgs(); len(args) > 0 {
			*file = args[0]
		} else {
			fmt.Fprintf(os.Stderr, "%s\nerror: --file or --text is required\n", ffhelp.Flags(fs))
			os.Exit(2)
		}
	}
	log := logger.WithLevel(logger.New(), *level)

	var pr receipt.ParsedReceipt
	if *text != "" {
		pr = receipt.Extract(*text)
	} else {
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatal().Err(err).Str("file", *file).Msg("read slip")
		}
		th, err := ocr.ThresholdFromInt(*threshold)
		if err != nil {
			log.Fatal().Err(err).Msg("ocr-threshold")
		}
		ctx := context.Background()
		rec, err := ocr.NewRecognizer(ctx, ocr.Options{
			Engine:      *engine,
			Timeout:     *timeout,
			Threshold:   th,
			GeminiKey:   *geminiKey,
			GeminiModel: *geminiModel,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("ocr engine")
		}
		if g, ok := rec.(*ocr.Gemini); ok {
			defer g.Close()
		}
		img := ocr.Image{Name: filepath.Base(*file), ContentType: http.DetectContentType(data), Data: data}
		pr, err = receipt.NewParser(rec, log).Parse(ctx, img)
		if err != nil {
			log.Error().Err(err).Str("file", *file).Msg("scan failed")
			os.Exit(1)
		}
	}

	out := map[string]any{
		"amount":        pr.Amount,
		"amountFound":   pr.AmountFound,
		"recipientName": pr.RecipientName,
	}
	if *showText {
		out["text"] = pr.Text
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("encode")
	}
}
