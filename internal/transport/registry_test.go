package transport

import (
	"testing"

	"github.com/throttlehq/throttle/internal/errors"
)

func TestSchemeOf(t *testing.T) {
	cases := []struct {
		uri  string
		want string
	}{
		{"http://example.com/file.bin", "http"},
		{"HTTPS://example.com/file.bin", "https"},
		{"sftp://user@host/path/file", "sftp"},
		{"smb://host/share/file", "smb"},
		{"s3://bucket/key", "s3"},
		{"ftp://host/file", "ftp"},
		{"data:text/plain,hello", "data"},
		{"/var/tmp/file.bin", "file"},
	}
	for _, c := range cases {
		got, err := SchemeOf(c.uri)
		if err != nil {
			t.Fatalf("SchemeOf(%q): %v", c.uri, err)
		}
		if got != c.want {
			t.Errorf("SchemeOf(%q) = %q, want %q", c.uri, got, c.want)
		}
	}
}

func TestRegistryLookupUnknownScheme(t *testing.T) {
	r := NewRegistry()
	r.Register(FileAdapter{})

	_, err := r.Lookup("gopher://example.com/1/thing")
	if err == nil {
		t.Fatal("expected error for unregistered scheme")
	}
	if errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("expected KindInvalidInput, got %v", errors.KindOf(err))
	}
}

func TestRegistryLookupResolvesAdapter(t *testing.T) {
	r := NewRegistry()
	r.Register(FileAdapter{})

	adapter, err := r.Lookup("/tmp/whatever")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if adapter.Scheme() != "file" {
		t.Fatalf("expected file adapter, got scheme %q", adapter.Scheme())
	}
}

func TestRegistryRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r := NewRegistry()
	r.Register(FileAdapter{})
	r.Register(FileAdapter{})
}
