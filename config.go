package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"

	"slipbook/pkg/ocr"
)

const envPrefix = "SLIPBOOK"

type config struct {
	Addr           string
	DBDSN          string
	AutoMigrate    bool
	JWTSecret      string
	UploadBase     string
	Storage        string
	GCSBucket      string
	OCREngine      string
	OCRTimeout     time.Duration
	OCRThreshold   uint8
	GeminiKey      string
	GeminiModel    string
	TelegramToken  string
	TelegramChatID int64
	LogLevel       string
}

// loadConfig reads flags, then SLIPBOOK_* env vars, then an optional plain
// config file ("name value" per line) named by --config.
func loadConfig(args []string) (config, *ff.FlagSet, error) {
	fs := ff.NewFlagSet("slipbook")
	var (
		addr        = fs.StringLong("addr", ":8081", "HTTP listen address")
		dsn         = fs.StringLong("db-dsn", "", "Postgres DSN")
		skipMigrate = fs.BoolLong("skip-auto-migrate", "don't run AutoMigrate on startup")
		secret      = fs.StringLong("jwt-secret", "", "HMAC secret for access tokens")
		uploadBase  = fs.StringLong("upload-base", "uploads", "local directory for archived slips")
		store       = fs.StringLong("storage", "local", "slip archive: local or gcs")
		bucket      = fs.StringLong("gcs-bucket", "", "GCS bucket when --storage=gcs")
		engine      = fs.StringLong("ocr-engine", "tesseract", "OCR engine: tesseract or gemini")
		ocrTimeout  = fs.DurationLong("ocr-timeout", 60*time.Second, "per-image recognition timeout")
		threshold   = fs.IntLong("ocr-threshold", 0, "binarize gray level 1..255 before Tesseract (0 disables)")
		geminiKey   = fs.StringLong("gemini-key", "", "Gemini API key")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Gemini model name")
		tgToken     = fs.StringLong("telegram-token", "", "Telegram bot token for scan notifications")
		tgChat      = fs.StringLong("telegram-chat-id", "", "Telegram chat id for scan notifications")
		level       = fs.StringLong("log-level", "info", "log level")
		_           = fs.StringLong("config", "", "config file (optional)")
	)
	err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix(envPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	)
	if err != nil {
		return config{}, fs, err
	}

	cfg := config{
		Addr:        *addr,
		DBDSN:       *dsn,
		AutoMigrate: !*skipMigrate,
		JWTSecret:   *secret,
		UploadBase:  *uploadBase,
		Storage:     strings.ToLower(strings.TrimSpace(*store)),
		GCSBucket:   *bucket,
		OCREngine:   strings.ToLower(strings.TrimSpace(*engine)),
		OCRTimeout:  *ocrTimeout,
		GeminiKey:   *geminiKey,
		GeminiModel: *geminiModel,
		LogLevel:    *level,
	}
	if cfg.OCRThreshold, err = ocr.ThresholdFromInt(*threshold); err != nil {
		return config{}, fs, err
	}
	cfg.TelegramToken = *tgToken
	if *tgChat != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(*tgChat), 10, 64)
		if err != nil {
			return config{}, fs, fmt.Errorf("telegram-chat-id: %w", err)
		}
		cfg.TelegramChatID = id
	}
	return cfg, fs, cfg.validate()
}

func (c config) validate() error {
	switch c.Storage {
	case "local", "gcs":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage)
	}
	if c.Storage == "gcs" && c.GCSBucket == "" {
		return fmt.Errorf("gcs-bucket is required with --storage=gcs")
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("telegram-chat-id is required with --telegram-token")
	}
	return nil
}
