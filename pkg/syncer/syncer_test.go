package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/dataset-sync/pkg/dataset"
	"github.com/Sternrassler/dataset-sync/pkg/snapshot"
)

type fakeFetcher struct {
	pages []dataset.Page
	err   error
	calls int
}

func (f *fakeFetcher) FetchAll(ctx context.Context) ([]dataset.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

type fakeLock struct {
	acquireErr error
	acquired   bool
	released   bool
}

func (l *fakeLock) Acquire(ctx context.Context) error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired = true
	return nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.released = true
	return nil
}

func testPages(t *testing.T, total, pageSize int) []dataset.Page {
	t.Helper()

	var pages []dataset.Page
	for offset := 0; offset < total; offset += pageSize {
		count := pageSize
		if offset+count > total {
			count = total - offset
		}
		items := make([]dataset.Record, 0, count)
		for i := 0; i < count; i++ {
			var rec dataset.Record
			raw := fmt.Sprintf(`{"id":%d,"name":"record-%d"}`, offset+i+1, offset+i+1)
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				t.Fatal(err)
			}
			items = append(items, rec)
		}
		pages = append(pages, dataset.Page{
			Offset: offset, Items: items, Count: count, TotalCount: total,
		})
	}
	return pages
}

func newTestSyncer(t *testing.T, fetcher Fetcher) (*Syncer, string) {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "version.json"), []byte(`{"version":"1.2.3"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	gate := snapshot.Gate{
		JSONPath: filepath.Join(dir, "data.json"),
		CSVPath:  filepath.Join(dir, "data.csv"),
	}
	publisher := snapshot.NewPublisher(gate.JSONPath, gate.CSVPath, filepath.Join(dir, "version.json"))

	return New(fetcher, gate, publisher), dir
}

func TestRun_FirstRunPublishes(t *testing.T) {
	fetcher := &fakeFetcher{pages: testPages(t, 25, 10)}
	s, dir := newTestSyncer(t, fetcher)

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !summary.Changed {
		t.Error("Changed = false on first run, want true")
	}
	if summary.Version != "1.2.4" {
		t.Errorf("Version = %s, want 1.2.4", summary.Version)
	}
	if summary.Pages != 3 || summary.Records != 25 {
		t.Errorf("summary = %d pages / %d records, want 3 / 25", summary.Pages, summary.Records)
	}
	if summary.CountMismatch {
		t.Error("unexpected count mismatch")
	}

	if _, err := os.Stat(filepath.Join(dir, "data.json")); err != nil {
		t.Errorf("data.json not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "data.csv")); err != nil {
		t.Errorf("data.csv not written: %v", err)
	}
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{pages: testPages(t, 25, 10)}
	s, dir := newTestSyncer(t, fetcher)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if summary.Changed {
		t.Error("Changed = true on unchanged second run, want false")
	}
	if summary.Version != "" {
		t.Errorf("Version = %s on unchanged run, want empty", summary.Version)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "version.json"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "{\"version\":\"1.2.4\"}\n"; string(raw) != want {
		t.Errorf("version.json = %q, want %q (no second bump)", raw, want)
	}
}

func TestRun_FetchFailureAbortsWithoutWrites(t *testing.T) {
	wantErr := errors.New("source down")
	fetcher := &fakeFetcher{err: wantErr}
	s, dir := newTestSyncer(t, fetcher)

	_, err := s.Run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}

	if _, err := os.Stat(filepath.Join(dir, "data.json")); !os.IsNotExist(err) {
		t.Error("data.json written despite fetch failure")
	}
}

func TestRun_CountMismatchIsNotFatal(t *testing.T) {
	pages := testPages(t, 298, 100)
	for i := range pages {
		pages[i].TotalCount = 300
	}
	fetcher := &fakeFetcher{pages: pages}
	s, dir := newTestSyncer(t, fetcher)

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !summary.CountMismatch {
		t.Error("CountMismatch = false, want true")
	}
	if summary.DeclaredTotal != 300 || summary.Records != 298 {
		t.Errorf("summary = %d/%d, want 298 records of declared 300",
			summary.Records, summary.DeclaredTotal)
	}
	if !summary.Changed {
		t.Error("Changed = false, want true (content still written)")
	}
	if _, err := os.Stat(filepath.Join(dir, "data.json")); err != nil {
		t.Errorf("data.json not written: %v", err)
	}
}

func TestRun_MalformedVersionAbortsWithoutSnapshots(t *testing.T) {
	fetcher := &fakeFetcher{pages: testPages(t, 10, 10)}
	s, dir := newTestSyncer(t, fetcher)
	if err := os.WriteFile(filepath.Join(dir, "version.json"), []byte(`{"version":"1.2.x"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Run(context.Background())
	var malformed *snapshot.MalformedVersionError
	if !errors.As(err, &malformed) {
		t.Fatalf("Run() error = %v, want *MalformedVersionError", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "data.json")); !os.IsNotExist(err) {
		t.Error("data.json written despite malformed version record")
	}
}

func TestRun_LockHeldAndReleased(t *testing.T) {
	fetcher := &fakeFetcher{pages: testPages(t, 10, 10)}
	s, _ := newTestSyncer(t, fetcher)

	lock := &fakeLock{}
	s.Lock = lock

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !lock.acquired {
		t.Error("lock never acquired")
	}
	if !lock.released {
		t.Error("lock never released")
	}
}

func TestRun_LockContentionAborts(t *testing.T) {
	fetcher := &fakeFetcher{pages: testPages(t, 10, 10)}
	s, _ := newTestSyncer(t, fetcher)

	wantErr := errors.New("lock held elsewhere")
	s.Lock = &fakeLock{acquireErr: wantErr}

	_, err := s.Run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher called %d times under lock contention, want 0", fetcher.calls)
	}
}
