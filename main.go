package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/rs/zerolog"

	"slipbook/internal/logger"
	"slipbook/pkg/ledger"
	"slipbook/pkg/ocr"
	"slipbook/pkg/receipt"
	"slipbook/pkg/scan"
	"slipbook/pkg/storage"
)

const devSecret = "dev-insecure-secret-change"

func main() {
	// `slipbook migrate` runs AutoMigrate and seeding, then exits.
	args := os.Args[1:]
	migrateOnly := len(args) > 0 && args[0] == "migrate"
	if migrateOnly {
		args = args[1:]
	}

	cfg, fs, err := loadConfig(args)
	if err != nil {
		if errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s\nerror: %v\n", ffhelp.Flags(fs), err)
		os.Exit(1)
	}
	log := logger.WithLevel(logger.New(), cfg.LogLevel)

	if err := run(cfg, migrateOnly, log); err != nil {
		log.Fatal().Err(err).Msg("slipbook stopped")
	}
}

func run(cfg config, migrateOnly bool, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecret == "" {
		log.Warn().Msg("jwt-secret not set; using development secret")
		cfg.JWTSecret = devSecret
	}

	db, err := openDB(cfg, log)
	if err != nil {
		return err
	}
	if migrateOnly {
		log.Info().Msg("migration and seeding completed")
		return nil
	}

	archive, closeArchive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeArchive()

	recognizer, err := ocr.NewRecognizer(ctx, ocr.Options{
		Engine:      cfg.OCREngine,
		Timeout:     cfg.OCRTimeout,
		Threshold:   cfg.OCRThreshold,
		GeminiKey:   cfg.GeminiKey,
		GeminiModel: cfg.GeminiModel,
	})
	if err != nil {
		return err
	}
	if g, ok := recognizer.(*ocr.Gemini); ok {
		defer g.Close()
	}

	var notifier scan.Notifier
	if cfg.TelegramToken != "" {
		tg, err := scan.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, log)
		if err != nil {
			return err
		}
		notifier = tg
	}

	store := ledger.NewStore(db)
	srv := &server{
		db:         db,
		jwtSecret:  []byte(cfg.JWTSecret),
		ledger:     store,
		parser:     receipt.NewParser(recognizer, log),
		creatorFor: func(uid uint) scan.TransactionCreator { return store.ForUser(uid) },
		archive:    archive,
		uploads:    gormUploads{db: db},
		notifier:   notifier,
		loc:        time.Local,
		log:        log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.MaxMultipartMemory = maxSlipBytes
	r.Use(recovery(log), requestLogger(log))
	srv.routes(r)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("ocr", recognizer.Name()).Str("storage", cfg.Storage).Msg("listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openArchive(ctx context.Context, cfg config) (storage.Archive, func(), error) {
	if cfg.Storage == "gcs" {
		g, err := storage.NewGCS(ctx, cfg.GCSBucket, "slips")
		if err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Close() }, nil
	}
	l, err := storage.NewLocal(cfg.UploadBase)
	if err != nil {
		return nil, nil, err
	}
	return l, func() {}, nil
}
