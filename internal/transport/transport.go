// Package transport implements the per-scheme fetchers from spec.md §4.2.
// Every adapter is polymorphic over the same capability set
// {probe_size, open_reader, supports_range}; the scheme-keyed registry that
// picks one is grounded on the teacher's internal/backend/location/
// registry.go generic factory registry.
package transport

import (
	"context"
	"io"
)

// ProbeResult is what an adapter learns about a URI before any bytes flow.
type ProbeResult struct {
	TotalBytes   int64 // -1 if unknown
	SupportsRange bool
	ETag         string
}

// ByteSource is a single, sequential read over (a range of) a URI's bytes.
type ByteSource interface {
	io.ReadCloser
}

// Adapter is the capability set spec.md §4.2 requires of every transport.
type Adapter interface {
	// Scheme is the URI scheme this adapter handles ("http", "sftp", ...).
	Scheme() string

	// Probe learns size/range-support/etag without transferring the body.
	Probe(ctx context.Context, uri string) (ProbeResult, error)

	// Open returns a ByteSource for the given byte range (inclusive), or
	// the whole resource if rng is nil.
	Open(ctx context.Context, uri string, rng *Range) (ByteSource, error)

	// SupportsRange reports whether FetchRange is implemented at all. It is
	// a separate method because some adapters know this statically without
	// a round trip (e.g. file:// always supports it). Probe's SupportsRange
	// can still be false for a particular resource (an HTTP server without
	// Accept-Ranges), and the engine decides from the probe result.
	SupportsRange() bool

	// FetchRange retrieves exactly the bytes in [lo, hi] inclusive. Only
	// called when SupportsRange is true.
	FetchRange(ctx context.Context, uri string, lo, hi int64) ([]byte, error)
}

// Range is an inclusive byte range.
type Range struct {
	Lo, Hi int64
}

// TorrentAdapter is the distinct contract spec.md §4.2 describes for
// torrent sources: no probe, no range support, a progress callback, and a
// working directory. The adapter itself picks the output file per
// SPEC_FULL.md §9.2's resolved policy and returns it to the engine.
type TorrentAdapter interface {
	// Fetch downloads the torrent described by uri into workDir, invoking
	// progress(bytesDone, bytesTotal) periodically, and returns the path
	// to the single largest file produced.
	Fetch(ctx context.Context, uri, workDir string, progress func(done, total int64)) (largestFile string, err error)
}
