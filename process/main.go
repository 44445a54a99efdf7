// Command process scans a folder of transfer slips into a user's ledger and
// can keep watching it for new files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/rs/zerolog"

	"slipbook/internal/database"
	"slipbook/internal/logger"
	"slipbook/pkg/journal"
	"slipbook/pkg/ledger"
	"slipbook/pkg/ocr"
	"slipbook/pkg/receipt"
	"slipbook/pkg/scan"
)

type options struct {
	dir, processedDir string
	username, dsn     string
	journalPath       string
	workers           int
	watch, dryRun     bool
	recent            int
	ocr               ocr.Options
	tgToken, tgChat   string
}

func main() {
	fs := ff.NewFlagSet("process")
	var (
		dir         = fs.StringLong("dir", "public/slips", "directory to scan for slip images")
		processed   = fs.StringLong("processed-dir", "", "where handled slips are moved (default <dir>/processed)")
		username    = fs.StringLong("user", "admin", "username that receives the expenses")
		dsn         = fs.StringLong("db-dsn", "", "Postgres DSN")
		journalPath = fs.StringLong("journal", "slips.journal.db", "bbolt journal path")
		workers     = fs.IntLong("workers", 0, "worker pool size (default NumCPU)")
		watch       = fs.BoolLong("watch", "keep watching the directory for new files")
		dryRun      = fs.BoolLong("dry-run", "OCR and parse only; no DB, journal or file moves")
		recent      = fs.IntLong("recent", 0, "print the N newest journal entries and exit")
		engine      = fs.StringLong("ocr-engine", "tesseract", "OCR engine: tesseract or gemini")
		threshold   = fs.IntLong("ocr-threshold", 0, "binarize gray level 1..255 before Tesseract (0 disables)")
		geminiKey   = fs.StringLong("gemini-key", "", "Gemini API key")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Gemini model name")
		tgToken     = fs.StringLong("telegram-token", "", "Telegram bot token")
		tgChat      = fs.StringLong("telegram-chat-id", "", "Telegram chat id")
		level       = fs.StringLong("log-level", "info", "log level")
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
	log := logger.WithLevel(logger.New(), *level)

	th, err := ocr.ThresholdFromInt(*threshold)
	if err != nil {
		log.Fatal().Err(err).Msg("ocr-threshold")
	}
	opts := options{
		dir:          *dir,
		processedDir: *processed,
		username:     *username,
		dsn:          *dsn,
		journalPath:  *journalPath,
		workers:      effectiveWorkers(*workers),
		watch:        *watch,
		dryRun:       *dryRun,
		recent:       *recent,
		ocr:          ocr.Options{Engine: *engine, Threshold: th, GeminiKey: *geminiKey, GeminiModel: *geminiModel},
		tgToken:      *tgToken,
		tgChat:       *tgChat,
	}
	if opts.processedDir == "" {
		opts.processedDir = filepath.Join(opts.dir, "processed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.recent > 0 {
		err = showRecent(os.Stdout, opts.journalPath, opts.recent)
	} else {
		err = run(ctx, opts, log)
	}
	if err != nil {
		stop()
		log.Fatal().Err(err).Msg("process failed")
	}
}

// run owns every resource it opens so deferred closes happen before main exits.
func run(ctx context.Context, opts options, log zerolog.Logger) error {
	recognizer, err := ocr.NewRecognizer(ctx, opts.ocr)
	if err != nil {
		return fmt.Errorf("ocr engine: %w", err)
	}
	if g, ok := recognizer.(*ocr.Gemini); ok {
		defer g.Close()
	}
	parser := receipt.NewParser(recognizer, log)

	notifier := scan.Multi{scan.NewLogNotifier(log)}
	if opts.tgToken != "" {
		chatID, err := strconv.ParseInt(opts.tgChat, 10, 64)
		if err != nil {
			return fmt.Errorf("telegram-chat-id: %w", err)
		}
		tg, err := scan.NewTelegram(opts.tgToken, chatID, log)
		if err != nil {
			return err
		}
		notifier = append(notifier, tg)
	}

	w := &slipWatcher{
		dir:          opts.dir,
		processedDir: opts.processedDir,
		workers:      opts.workers,
		dryRun:       opts.dryRun,
		log:          log,
	}

	var creator scan.TransactionCreator
	if opts.dryRun {
		creator = dryRunCreator(log)
	} else {
		db, err := database.Open(opts.dsn)
		if err != nil {
			return err
		}
		user, err := database.FindUser(db, opts.username)
		if err != nil {
			return fmt.Errorf("resolve user %q: %w", opts.username, err)
		}
		creator = ledger.NewStore(db).ForUser(user.ID)

		j, err := journal.Open(opts.journalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		w.journal = j
	}
	w.bridge = scan.NewBridge(parser, creator, notifier, log)

	results, err := w.sweep(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sweep: %w", err)
	}
	logSummary(log, results)

	if opts.watch {
		if err := w.watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watch: %w", err)
		}
	}
	return nil
}

// showRecent prints the newest journal entries as a table.
func showRecent(out io.Writer, path string, n int) error {
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()
	entries, err := j.Recent(n)
	if err != nil {
		return err
	}
	return printEntries(out, entries)
}

func printEntries(out io.Writer, entries []journal.Entry) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tFILE\tSEVERITY\tAMOUNT\tRECIPIENT\tTX")
	for _, e := range entries {
		tx := "-"
		if e.TransactionID != 0 {
			tx = strconv.FormatUint(uint64(e.TransactionID), 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			e.At.Format("2006-01-02 15:04:05"), e.File, e.Severity, e.Amount, e.Recipient, tx)
	}
	return tw.Flush()
}

func effectiveWorkers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

func dryRunCreator(log zerolog.Logger) scan.TransactionCreator {
	return scan.CreatorFunc(func(_ context.Context, d scan.TransactionDraft) (scan.CreatedTransaction, error) {
		log.Info().Float64("amount", d.Amount).Str("description", d.Description).Msg("dry-run: would create expense")
		return scan.CreatedTransaction{TransactionDraft: d}, nil
	})
}

func logSummary(log zerolog.Logger, results []fileResult) {
	counts := map[string]int{}
	for _, r := range results {
		switch {
		case r.Skipped:
			counts["skipped"]++
		default:
			counts[string(r.Severity)]++
		}
	}
	log.Info().
		Int("total", len(results)).
		Int("success", counts[string(scan.SeveritySuccess)]).
		Int("warning", counts[string(scan.SeverityWarning)]).
		Int("error", counts[string(scan.SeverityError)]).
		Int("skipped", counts["skipped"]).
		Msg("sweep finished")
}
