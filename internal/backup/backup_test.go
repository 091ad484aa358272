package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeExporter struct {
	payload string
	err     error
}

func (f *fakeExporter) ExportModelFile(_ context.Context, path string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(path, []byte(f.payload), 0644)
}

func TestTakeWritesSnapshot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	ex := &fakeExporter{payload: `{"model_version":1}`}

	path, err := Take(context.Background(), ex, dir)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if string(data) != ex.payload {
		t.Errorf("snapshot content = %q, want %q", data, ex.payload)
	}
}

func TestTakeExportError(t *testing.T) {
	ex := &fakeExporter{err: fmt.Errorf("no model")}
	if _, err := Take(context.Background(), ex, t.TempDir()); err == nil {
		t.Fatal("expected error from failing exporter")
	}
}

func TestListMissingDirIsEmpty(t *testing.T) {
	backups, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("got %d backups, want 0", len(backups))
	}
}

func TestListSortsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"model-20260101-000000.json",
		"model-20260301-000000.json",
		"model-20260201-000000.json",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	// Non-snapshot files are ignored.
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

	backups, err := List(dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("got %d backups, want 3", len(backups))
	}
	if got := filepath.Base(backups[0].Path); got != "model-20260301-000000.json" {
		t.Errorf("newest = %s, want model-20260301-000000.json", got)
	}
}

func TestRotateCountPolicy(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("model-2026010%d-000000.json", i+1)
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := Rotate(dir, CountPolicy{MaxCount: 2})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if len(deleted) != 3 {
		t.Errorf("deleted %d, want 3", len(deleted))
	}
	remaining, _ := List(dir)
	if len(remaining) != 2 {
		t.Errorf("%d backups remain, want 2", len(remaining))
	}
	if got := filepath.Base(remaining[0].Path); got != "model-20260105-000000.json" {
		t.Errorf("kept %s, want the newest snapshot", got)
	}
}

func TestCompositePolicyUnion(t *testing.T) {
	now := time.Now()
	backups := []Info{
		{Path: "a", CreatedAt: now},
		{Path: "b", CreatedAt: now.Add(-48 * time.Hour)},
		{Path: "c", CreatedAt: now.Add(-30 * 24 * time.Hour)},
	}
	policy := CompositePolicy{Policies: []RetentionPolicy{
		CountPolicy{MaxCount: 1},
		AgePolicy{MaxAge: 72 * time.Hour},
	}}

	keep := policy.Apply(backups)
	if len(keep) != 2 {
		t.Fatalf("kept %d, want 2", len(keep))
	}
	if keep[0].Path != "a" || keep[1].Path != "b" {
		t.Errorf("kept %v, want a and b", keep)
	}
}
