package transport

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileAdapterProbeAndOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	content := []byte("0123456789")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	a := FileAdapter{}
	ctx := context.Background()

	probe, err := a.Probe(ctx, path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if probe.TotalBytes != int64(len(content)) {
		t.Fatalf("expected size %d, got %d", len(content), probe.TotalBytes)
	}
	if !probe.SupportsRange {
		t.Fatal("expected file adapter to support range")
	}

	src, err := a.Open(ctx, path, &Range{Lo: 2, Hi: 5})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	got, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "2345" {
		t.Fatalf("expected %q, got %q", "2345", got)
	}
}

func TestFileAdapterProbeMissing(t *testing.T) {
	a := FileAdapter{}
	_, err := a.Probe(context.Background(), filepath.Join(t.TempDir(), "missing.bin"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
