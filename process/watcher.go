package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"slipbook/pkg/journal"
	"slipbook/pkg/ocr"
	"slipbook/pkg/scan"
)

var extMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".heic": "image/heic",
	".heif": "image/heif",
	".pdf":  "application/pdf",
}

const (
	debounceTick   = 250 * time.Millisecond
	debounceStable = 300 * time.Millisecond
)

type scanner interface {
	HandleScan(ctx context.Context, img ocr.Image) scan.Outcome
}

// slipWatcher feeds slip files from dir through a Bridge. Successful files are
// moved to processedDir; the journal keeps hashes of files that need no retry.
type slipWatcher struct {
	dir          string
	processedDir string
	bridge       scanner
	journal      *journal.Journal
	workers      int
	dryRun       bool
	log          zerolog.Logger
}

type fileResult struct {
	Name     string
	Skipped  bool
	Severity scan.Severity
	Moved    bool
}

func isSupportedExt(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	_, ok := extMime[strings.ToLower(filepath.Ext(name))]
	return ok
}

func listSlipFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// sweep processes every file currently in dir with at most workers in flight.
func (w *slipWatcher) sweep(ctx context.Context) ([]fileResult, error) {
	files, err := listSlipFiles(w.dir)
	if err != nil {
		return nil, err
	}
	w.log.Info().Int("files", len(files)).Int("workers", w.workers).Str("dir", w.dir).Msg("sweeping")

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i, name := range files {
		g.Go(func() error {
			results[i] = w.processFile(gctx, name)
			return nil
		})
	}
	return results, g.Wait()
}

// watch blocks until ctx is done, processing files once they stop changing.
func (w *slipWatcher) watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.Info().Str("dir", w.dir).Msg("watching (debounced)")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers + 1)
	g.Go(func() error {
		pending := map[string]time.Time{}
		ticker := time.NewTicker(debounceTick)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					return nil
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				name := filepath.Base(ev.Name)
				if isSupportedExt(name) {
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > debounceStable {
						delete(pending, name)
						g.Go(func() error {
							w.processFile(gctx, name)
							return nil
						})
					}
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return nil
				}
				w.log.Warn().Err(err).Msg("watch error")
			}
		}
	})
	return g.Wait()
}

func (w *slipWatcher) processFile(ctx context.Context, name string) fileResult {
	res := fileResult{Name: name}
	full := filepath.Join(w.dir, name)
	data, err := os.ReadFile(full)
	if err != nil {
		// moved away by a concurrent sweep
		w.log.Debug().Err(err).Str("file", name).Msg("skip unreadable")
		res.Skipped = true
		return res
	}
	hash := journal.HashBytes(data)
	if w.journal != nil {
		if seen, err := w.journal.Seen(hash); err == nil && seen {
			w.log.Debug().Str("file", name).Msg("skip already journaled")
			res.Skipped = true
			return res
		}
	}

	out := w.bridge.HandleScan(ctx, ocr.Image{Name: name, ContentType: contentTypeFor(name, data), Data: data})
	res.Severity = out.Severity
	if w.dryRun {
		return res
	}

	if w.journal != nil {
		e := journal.Entry{File: name, Hash: hash, Severity: string(out.Severity), Message: out.Message}
		if out.Receipt != nil {
			e.Amount = out.Receipt.Amount
			e.Recipient = out.Receipt.RecipientName
		}
		if out.Transaction != nil {
			e.TransactionID = out.Transaction.ID
		}
		// errors stay retryable; a slip without an amount will not improve on retry
		if _, err := w.journal.Record(e, out.Severity != scan.SeverityError); err != nil {
			w.log.Warn().Err(err).Str("file", name).Msg("journal write failed")
		}
	}

	if out.Severity == scan.SeveritySuccess {
		if err := moveToProcessed(full, w.processedDir, name); err != nil {
			w.log.Warn().Err(err).Str("file", name).Msg("failed to move processed file")
		} else {
			res.Moved = true
		}
	}
	return res
}

func contentTypeFor(name string, data []byte) string {
	if m, ok := extMime[strings.ToLower(filepath.Ext(name))]; ok {
		return m
	}
	return http.DetectContentType(data)
}
