package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/dealwatch/internal/pricing"
	"github.com/mohammad-safakhou/dealwatch/internal/product"
	"github.com/mohammad-safakhou/dealwatch/internal/registry"
)

type stubParser struct {
	drafts []product.Draft
	err    error
	calls  int
}

func (p *stubParser) Parse(_ context.Context, _ []byte, source string) ([]product.Draft, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := make([]product.Draft, len(p.drafts))
	copy(out, p.drafts)
	for i := range out {
		out[i].SourceFile = source
	}
	return out, nil
}

func newTestLoop(t *testing.T, parser Parser) (*Loop, *registry.Store, string) {
	t.Helper()
	base := t.TempDir()
	watch := filepath.Join(base, "produkt")
	if err := os.MkdirAll(watch, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	store := registry.New(filepath.Join(base, "product_list.json"), product.DefaultHistoryCap)
	loop := New(Config{
		WatchDir:      watch,
		QuarantineDir: filepath.Join(base, "bad"),
		SummaryPath:   filepath.Join(base, "out", "summary.jsonl"),
		Interval:      time.Millisecond,
	}, parser, store)
	return loop, store, watch
}

func dropFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("<html></html>"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func TestProcessNextMergesAndRemoves(t *testing.T) {
	t.Parallel()
	v := 9.99
	parser := &stubParser{drafts: []product.Draft{{
		Name:  "Widget",
		URL:   "https://example.com/w",
		Price: &pricing.PriceFragment{Raw: "9,99 €", Value: &v},
	}}}
	loop, store, watch := newTestLoop(t, parser)

	path := dropFile(t, watch, "capture.html")
	if !loop.ProcessNext(context.Background()) {
		t.Fatalf("nothing processed")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("source file not removed after success")
	}
	recs := store.List()
	if len(recs) != 1 || recs[0].Name != "Widget" {
		t.Fatalf("merge result = %+v", recs)
	}
	if recs[0].SourceFile != path {
		t.Fatalf("source file reference = %q", recs[0].SourceFile)
	}

	raw, err := os.ReadFile(loop.cfg.SummaryPath)
	if err != nil {
		t.Fatalf("summary missing: %v", err)
	}
	if !strings.Contains(string(raw), `"parsed":1`) || !strings.Contains(string(raw), `"new":1`) {
		t.Fatalf("summary line = %s", raw)
	}
}

func TestParseFailureQuarantines(t *testing.T) {
	t.Parallel()
	parser := &stubParser{err: errors.New("boom")}
	loop, store, watch := newTestLoop(t, parser)

	dropFile(t, watch, "broken.html")
	if !loop.ProcessNext(context.Background()) {
		t.Fatalf("nothing processed")
	}

	if _, err := os.Stat(filepath.Join(loop.cfg.QuarantineDir, "broken.html")); err != nil {
		t.Fatalf("file not quarantined: %v", err)
	}
	note, err := os.ReadFile(filepath.Join(loop.cfg.QuarantineDir, "broken.html.error.txt"))
	if err != nil {
		t.Fatalf("error note missing: %v", err)
	}
	if !strings.Contains(string(note), "boom") {
		t.Fatalf("error note lacks reason: %s", note)
	}
	if len(store.List()) != 0 {
		t.Fatalf("failed parse reached the registry")
	}

	// not retried automatically
	if loop.ProcessNext(context.Background()) {
		t.Fatalf("quarantined file was retried")
	}
	if parser.calls != 1 {
		t.Fatalf("parser called %d times, want 1", parser.calls)
	}
}

func TestOldestFirstAndDrain(t *testing.T) {
	t.Parallel()
	parser := &stubParser{drafts: []product.Draft{{Name: "x", URL: "https://example.com/x"}}}
	loop, _, watch := newTestLoop(t, parser)

	older := dropFile(t, watch, "older.html")
	newer := dropFile(t, watch, "newer.html")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if !loop.ProcessNext(context.Background()) {
		t.Fatalf("nothing processed")
	}
	if _, err := os.Stat(older); !os.IsNotExist(err) {
		t.Fatalf("oldest file not processed first")
	}
	if _, err := os.Stat(newer); err != nil {
		t.Fatalf("newer file should still be pending: %v", err)
	}

	if n := loop.Drain(context.Background()); n != 1 {
		t.Fatalf("drain processed %d, want 1", n)
	}
}
