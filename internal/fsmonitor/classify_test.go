package fsmonitor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestQualifiesFiltersPartialAndNonDownloadExtensions(t *testing.T) {
	cases := []struct {
		path string
		size int64
		want bool
	}{
		{"archive.zip", 1024, true},
		{"movie.mkv", 1024, true},
		{"partial.crdownload", 1024, false},
		{"empty.zip", 0, false},
		{"huge.iso", 51 << 30, false},
		{"notes.txt", 1024, false},
	}
	for _, c := range cases {
		if got := qualifies(c.path, c.size); got != c.want {
			t.Errorf("qualifies(%q, %d) = %v, want %v", c.path, c.size, got, c.want)
		}
	}
}

func TestClassifyFromSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.zip")
	meta := path + ".meta"
	if err := os.WriteFile(meta, []byte(`{"url":"http://example.com/file.zip","origin_pid":42}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got := Classify(path)
	if got.Source != "sidecar" || got.URL != "http://example.com/file.zip" || got.PID != 42 {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestClassifyFallsBackToHeuristic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unmarked.zip")
	got := Classify(path)
	if got.Source != "heuristic" {
		t.Fatalf("expected heuristic fallback, got %+v", got)
	}
}

func TestSHA256HasherComputesHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	h, ok := (sha256Hasher{}).Hash(path)
	if !ok || h == "" {
		t.Fatalf("expected a hash, got %q ok=%v", h, ok)
	}
}
