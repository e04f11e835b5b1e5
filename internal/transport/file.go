package transport

import (
	"context"
	"io"
	"os"

	"github.com/throttlehq/throttle/internal/errors"
)

// FileAdapter serves local filesystem paths and is always registered as
// both "file" and the bare-path fallback scheme. Grounded on
// internal/backend/local/local.go's plain os.* file handling (no backend
// abstraction is needed for a single stat+open, unlike the teacher's
// multi-layout store).
type FileAdapter struct{}

var _ Adapter = FileAdapter{}

func (FileAdapter) Scheme() string { return "file" }

func (FileAdapter) Probe(ctx context.Context, uri string) (ProbeResult, error) {
	path := pathFromURI(uri)
	fi, err := os.Stat(path)
	if err != nil {
		return ProbeResult{}, classifyFileErr(err)
	}
	return ProbeResult{TotalBytes: fi.Size(), SupportsRange: true}, nil
}

func (FileAdapter) Open(ctx context.Context, uri string, rng *Range) (ByteSource, error) {
	path := pathFromURI(uri)
	f, err := os.Open(path)
	if err != nil {
		return nil, classifyFileErr(err)
	}
	if rng != nil {
		if _, err := f.Seek(rng.Lo, io.SeekStart); err != nil {
			f.Close()
			return nil, errors.Classify(errors.KindDisk, errors.Wrap(err, "seek"))
		}
		return &limitedReadCloser{r: io.LimitReader(f, rng.Hi-rng.Lo+1), c: f}, nil
	}
	return f, nil
}

func (FileAdapter) SupportsRange() bool { return true }

func (FileAdapter) FetchRange(ctx context.Context, uri string, lo, hi int64) ([]byte, error) {
	f, err := os.Open(pathFromURI(uri))
	if err != nil {
		return nil, classifyFileErr(err)
	}
	defer f.Close()

	if _, err := f.Seek(lo, io.SeekStart); err != nil {
		return nil, errors.Classify(errors.KindDisk, errors.Wrap(err, "seek"))
	}
	buf := make([]byte, hi-lo+1)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, errors.Classify(errors.KindDisk, errors.Wrap(err, "read range"))
	}
	return buf, nil
}

// limitedReadCloser pairs an io.LimitReader with the underlying file's Close.
type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error                { return l.c.Close() }

func classifyFileErr(err error) error {
	if os.IsNotExist(err) {
		return errors.Classify(errors.KindInvalidInput, errors.Wrap(err, "file not found"))
	}
	if os.IsPermission(err) {
		return errors.Classify(errors.KindAuth, errors.Wrap(err, "permission denied"))
	}
	return errors.Classify(errors.KindDisk, err)
}

// pathFromURI strips a file:// prefix if present, otherwise returns uri
// unchanged (a bare filesystem path).
func pathFromURI(uri string) string {
	const prefix = "file://"
	if len(uri) >= len(prefix) && uri[:len(prefix)] == prefix {
		return uri[len(prefix):]
	}
	return uri
}
