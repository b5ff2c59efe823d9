package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mohammad-safakhou/dealwatch/internal/product"
	"github.com/mohammad-safakhou/dealwatch/internal/registry"
)

// Parser turns one raw captured document into candidate records. The real
// implementation (HTML heuristics, LLM extraction) lives outside this
// module; the loop only needs the contract.
type Parser interface {
	Parse(ctx context.Context, raw []byte, source string) ([]product.Draft, error)
}

// Config carries the ingest loop settings.
type Config struct {
	WatchDir      string
	QuarantineDir string
	SummaryPath   string // optional jsonl log of per-file outcomes
	Interval      time.Duration
}

// Loop polls the watch directory for captured documents, feeds each through
// the parser and merges the results into the registry. One bad input never
// stops the loop: the file is quarantined with an error note and processing
// continues.
type Loop struct {
	cfg    Config
	parser Parser
	store  *registry.Store
	logger *log.Logger
}

// Summary is one line of the jsonl outcome log.
type Summary struct {
	File    string    `json:"file"`
	Parsed  int       `json:"parsed"`
	New     int       `json:"new"`
	Updated int       `json:"updated"`
	TS      time.Time `json:"ts"`
}

func New(cfg Config, parser Parser, store *registry.Store) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Loop{
		cfg:    cfg,
		parser: parser,
		store:  store,
		logger: log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
}

// Run polls until ctx is cancelled. A processed file is followed immediately
// by the next backlog file; the loop sleeps only when the directory is empty.
func (l *Loop) Run(ctx context.Context) error {
	if err := os.MkdirAll(l.cfg.WatchDir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	l.logger.Printf("started, polling %s every %s", l.cfg.WatchDir, l.cfg.Interval)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		worked := l.ProcessNext(ctx)
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.Interval):
		}
	}
}

// Drain processes the backlog until the watch directory is empty. Used by
// the one-shot ingest command.
func (l *Loop) Drain(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil && l.ProcessNext(ctx) {
		n++
	}
	return n
}

// ProcessNext handles the oldest pending document, if any. It reports
// whether a file was picked up; errors are handled internally (quarantine)
// so the loop never dies on a single input.
func (l *Loop) ProcessNext(ctx context.Context) bool {
	path, ok := pickOldest(l.cfg.WatchDir)
	if !ok {
		return false
	}
	l.logger.Printf("processing %s", filepath.Base(path))

	if err := l.processFile(ctx, path); err != nil {
		l.logger.Printf("ERROR parsing %s: %v", filepath.Base(path), err)
		l.quarantine(path, err.Error())
		return true
	}
	if err := os.Remove(path); err != nil {
		l.logger.Printf("WARNING: could not delete %s: %v", filepath.Base(path), err)
	}
	return true
}

func (l *Loop) processFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	drafts, err := l.parser.Parse(ctx, raw, path)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	results, err := l.store.MergeAll(drafts)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	sum := Summary{File: filepath.Base(path), Parsed: len(drafts), TS: time.Now().UTC()}
	for _, r := range results {
		if r.IsNew {
			sum.New++
		} else {
			sum.Updated++
		}
	}
	l.logger.Printf("file=%s parsed=%d new=%d updated=%d", sum.File, sum.Parsed, sum.New, sum.Updated)
	l.appendSummary(sum)
	return nil
}

// quarantine moves a failing input aside with an error note so it is never
// retried automatically but stays inspectable.
func (l *Loop) quarantine(path, reason string) {
	if err := os.MkdirAll(l.cfg.QuarantineDir, 0o755); err != nil {
		l.logger.Printf("WARNING: quarantine dir: %v", err)
		return
	}
	base := filepath.Base(path)
	note := fmt.Sprintf("Source: %s\nTimestamp: %s\nReason:\n%s\n", base, time.Now().UTC().Format(time.RFC3339), reason)
	if err := os.WriteFile(filepath.Join(l.cfg.QuarantineDir, base+".error.txt"), []byte(note), 0o644); err != nil {
		l.logger.Printf("WARNING: write error note for %s: %v", base, err)
	}
	if err := os.Rename(path, filepath.Join(l.cfg.QuarantineDir, base)); err != nil {
		l.logger.Printf("WARNING: move %s to quarantine: %v", base, err)
	}
}

func (l *Loop) appendSummary(sum Summary) {
	if l.cfg.SummaryPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.cfg.SummaryPath), 0o755); err != nil {
		l.logger.Printf("WARNING: summary dir: %v", err)
		return
	}
	f, err := os.OpenFile(l.cfg.SummaryPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.logger.Printf("WARNING: open summary: %v", err)
		return
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(sum); err != nil {
		l.logger.Printf("WARNING: append summary: %v", err)
	}
}

// pickOldest returns the oldest *.html file in dir by modification time.
func pickOldest(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var (
		oldest    string
		oldestMod time.Time
	)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".html" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if oldest == "" || info.ModTime().Before(oldestMod) {
			oldest = filepath.Join(dir, e.Name())
			oldestMod = info.ModTime()
		}
	}
	return oldest, oldest != ""
}
