package diskwriter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

type nopSyncCloser struct {
	*bytes.Buffer
}

func (nopSyncCloser) Close() error { return nil }
func (nopSyncCloser) Sync() error  { return nil }

func TestCopyFromWritesAllBytes(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 3*MinChunk+17)
	var out bytes.Buffer
	w := New(nopSyncCloser{&out})

	n, err := w.CopyFrom(bytes.NewReader(payload), nil)
	if err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("expected %d bytes written, got %d", len(payload), n)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("output mismatch")
	}
}

func TestClosedWriterRejectsWrites(t *testing.T) {
	var out bytes.Buffer
	w := New(nopSyncCloser{&out})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := w.CopyFrom(bytes.NewReader([]byte("x")), nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSafeWriteAtomicRename(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")

	if err := SafeWrite(dest, []byte("hello"), 3); err != nil {
		t.Fatalf("SafeWrite: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected contents: %q", data)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Fatalf(".part file should not survive a successful SafeWrite")
	}
}

func TestPrefetcherDeliversChunksInOrder(t *testing.T) {
	payload := []byte("0123456789abcdef")
	p := NewPrefetcher(context.Background(), bytes.NewReader(payload), 4)
	defer p.Close()

	var got []byte
	for {
		chunk, err := p.Next()
		if err != nil {
			break
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}
