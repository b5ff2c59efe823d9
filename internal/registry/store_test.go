package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohammad-safakhou/dealwatch/internal/pricing"
	"github.com/mohammad-safakhou/dealwatch/internal/product"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "product_list.json"), product.DefaultHistoryCap)
}

func draftWithPrice(url string, v float64) product.Draft {
	return product.Draft{
		Name:  "Widget",
		URL:   url,
		Price: &pricing.PriceFragment{Raw: "x", Value: &v},
	}
}

func TestMergeInsertThenUpdate(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	res, err := st.Merge(draftWithPrice("https://example.com/w", 19.99))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !res.IsNew {
		t.Fatalf("first merge should insert, got %+v", res)
	}

	res2, err := st.Merge(draftWithPrice("https://example.com/w", 17.99))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res2.IsNew || res2.Key != res.Key {
		t.Fatalf("second merge should update same key: %+v vs %+v", res, res2)
	}

	rec, ok := st.Get(res.Key)
	if !ok {
		t.Fatalf("record %s missing after merge", res.Key)
	}
	if rec.Price == nil || *rec.Price.Value != 17.99 {
		t.Fatalf("price not updated: %+v", rec.Price)
	}
	if len(rec.History) != 2 {
		t.Fatalf("history len = %d, want 2", len(rec.History))
	}
}

func TestMergeNonDestructive(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	first, err := st.Merge(draftWithPrice("https://example.com/w", 19.99))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	// a later draft without a price must not erase the stored one
	if _, err := st.Merge(product.Draft{Name: "Widget", URL: "https://example.com/w"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	rec, _ := st.Get(first.Key)
	if rec.Price == nil || *rec.Price.Value != 19.99 {
		t.Fatalf("empty draft erased price: %+v", rec.Price)
	}
	if len(rec.History) != 1 {
		t.Fatalf("untracked merge appended history: %d entries", len(rec.History))
	}
}

func TestMergeSkipsInvisibleDrafts(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	results, err := st.MergeAll([]product.Draft{{}, {SourceFile: "x.html"}})
	if err != nil {
		t.Fatalf("MergeAll: %v", err)
	}
	if results != nil {
		t.Fatalf("invisible drafts merged: %+v", results)
	}
	if _, err := os.Stat(st.Path()); !os.IsNotExist(err) {
		t.Fatalf("registry written for an empty merge")
	}
}

func TestPersistKeepsBackup(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	if _, err := st.Merge(draftWithPrice("https://example.com/a", 1)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	firstVersion, err := os.ReadFile(st.Path())
	if err != nil {
		t.Fatalf("read registry: %v", err)
	}

	if _, err := st.Merge(draftWithPrice("https://example.com/b", 2)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	bak, err := os.ReadFile(st.Path() + ".bak")
	if err != nil {
		t.Fatalf("backup missing after second persist: %v", err)
	}
	if string(bak) != string(firstVersion) {
		t.Fatalf("backup is not the prior version")
	}
}

func TestLoadFallsBackToBackup(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	if _, err := st.Merge(draftWithPrice("https://example.com/a", 1)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := st.Merge(draftWithPrice("https://example.com/b", 2)); err != nil {
		t.Fatalf("merge: %v", err)
	}

	// simulate a torn write of the live file
	if err := os.WriteFile(st.Path(), []byte(`{"truncated`), 0o644); err != nil {
		t.Fatalf("corrupt registry: %v", err)
	}
	m := st.Load()
	if len(m) != 1 {
		t.Fatalf("backup fallback: got %d records, want 1", len(m))
	}

	// corrupt backup too: empty map, never an error
	if err := os.WriteFile(st.Path()+".bak", []byte(`nope`), 0o644); err != nil {
		t.Fatalf("corrupt backup: %v", err)
	}
	if m := st.Load(); len(m) != 0 {
		t.Fatalf("total corruption should yield empty map, got %d", len(m))
	}
}

func TestRegistryFileIsValidJSON(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	if _, err := st.Merge(draftWithPrice("https://example.com/a", 1)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	raw, err := os.ReadFile(st.Path())
	if err != nil {
		t.Fatalf("read registry: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("registry on disk is not a valid JSON object: %v", err)
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	if _, err := st.Merge(draftWithPrice("https://example.com/old", 1)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	// age the record on disk
	m := st.Load()
	for _, rec := range m {
		rec.LastSeen = time.Now().UTC().Add(-48 * time.Hour)
	}
	if err := st.Persist(m); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if _, err := st.Merge(draftWithPrice("https://example.com/fresh", 2)); err != nil {
		t.Fatalf("merge: %v", err)
	}

	removed, err := st.Sweep(24 * time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("sweep removed %d, want 1", removed)
	}
	if left := st.List(); len(left) != 1 || left[0].URL != "https://example.com/fresh" {
		t.Fatalf("wrong survivor after sweep: %+v", left)
	}

	// zero maxAge disables the sweep entirely
	if n, err := st.Sweep(0); err != nil || n != 0 {
		t.Fatalf("disabled sweep ran: n=%d err=%v", n, err)
	}
}
