package main

import (
	"context"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"slipbook/internal/database"
	"slipbook/internal/logger"
	"slipbook/pkg/ledger"
	"slipbook/pkg/ocr"
	"slipbook/pkg/receipt"
	"slipbook/pkg/scan"
	"slipbook/pkg/storage"
	"slipbook/process/rescan"
)

func main() {
	fs := ff.NewFlagSet("rescan")
	var (
		dsn        = fs.StringLong("db-dsn", "", "Postgres DSN")
		dry        = fs.BoolLong("dry-run", "parse only; don't write to DB")
		limit      = fs.IntLong("limit", 100, "max uploads to rescan")
		store      = fs.StringLong("storage", "local", "slip archive: local or gcs")
		uploadBase = fs.StringLong("upload-base", "uploads", "local archive directory")
		bucket     = fs.StringLong("gcs-bucket", "", "GCS bucket")
		engine     = fs.StringLong("ocr-engine", "tesseract", "OCR engine: tesseract or gemini")
		geminiKey  = fs.StringLong("gemini-key", "", "Gemini API key")
		level      = fs.StringLong("log-level", "info", "log level")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("SLIPBOOK")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\nerror: %v\n", ffhelp.Flags(fs), err)
		os.Exit(2)
	}
	log := logger.WithLevel(logger.New(), *level)
	ctx := context.Background()

	db, err := database.Open(*dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	var archive storage.Archive
	if *store == "gcs" {
		g, err := storage.NewGCS(ctx, *bucket, "slips")
		if err != nil {
			log.Fatal().Err(err).Msg("gcs")
		}
		defer g.Close()
		archive = g
	} else {
		l, err := storage.NewLocal(*uploadBase)
		if err != nil {
			log.Fatal().Err(err).Msg("local archive")
		}
		archive = l
	}
	recognizer, err := ocr.NewRecognizer(ctx, ocr.Options{Engine: *engine, GeminiKey: *geminiKey})
	if err != nil {
		log.Fatal().Err(err).Msg("ocr engine")
	}
	ledgerStore := ledger.NewStore(db)

	sum, err := rescan.Run(ctx, rescan.Deps{
		DB:         db,
		Archive:    archive,
		Parser:     receipt.NewParser(recognizer, log),
		CreatorFor: func(uid uint) scan.TransactionCreator { return ledgerStore.ForUser(uid) },
		Notifier:   scan.NewLogNotifier(log),
		Log:        log,
	}, *dry, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("rescan failed")
	}
	log.Info().
		Int("candidates", sum.Candidates).
		Int("recovered", sum.Recovered).
		Int("still_bad", sum.StillBad).
		Int("unreadable", sum.Unreadable).
		Bool("dry_run", *dry).
		Msg("rescan finished")
}
