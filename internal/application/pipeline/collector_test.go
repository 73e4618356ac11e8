package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
)

func TestCollectDispositions(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "report.html")
	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(full, []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	store := &memStore{}
	c := NewCollector(store, "")
	got := c.Collect(context.Background(), "r1", []domain.ArtifactSpec{
		{Name: "report.html", Path: full},
		{Name: "empty.json", Path: empty},
		{Name: "missing.txt", Path: filepath.Join(dir, "missing.txt")},
		{Name: "dir", Path: dir},
	})

	want := []domain.ArtifactStatus{domain.ArtifactCollected, domain.ArtifactCollected, domain.ArtifactAbsent, domain.ArtifactAbsent}
	for i, st := range want {
		if got.Items[i].Status != st {
			t.Errorf("%s: expected %s, got %s", got.Items[i].Name, st, got.Items[i].Status)
		}
	}
	if got.Items[0].Size != 13 || got.Items[0].Location != "mem://r1/report.html" {
		t.Errorf("unexpected item %+v", got.Items[0])
	}
	if got.Items[3].Note == "" {
		t.Error("directory should carry a note")
	}
}

func TestCollectStoreFailure(t *testing.T) {
	f := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(f, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewCollector(&memStore{err: errBoom}, "p")
	got := c.Collect(context.Background(), "r1", []domain.ArtifactSpec{{Name: "a.txt", Path: f}})
	if got.Items[0].Status != domain.ArtifactFailed || got.Items[0].Note != "boom" {
		t.Errorf("unexpected item %+v", got.Items[0])
	}
}

func TestCollectWithoutStore(t *testing.T) {
	f := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(f, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := NewCollector(nil, "").Collect(context.Background(), "r1", []domain.ArtifactSpec{{Name: "a.txt", Path: f}})
	if got.Items[0].Status != domain.ArtifactFailed {
		t.Errorf("unexpected item %+v", got.Items[0])
	}
}
