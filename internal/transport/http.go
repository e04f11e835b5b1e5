package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/throttlehq/throttle/internal/errors"
)

// HTTPAdapter serves http:// and https:// URIs. Its 30s stuck-request
// watchdog is adapted from internal/backend/watchdog_roundtriper.go: the
// teacher resets a timer on every Read of the request/response body so a
// stalled connection (not just a slow DNS/dial) gets cancelled.
type HTTPAdapter struct {
	client *http.Client
	scheme string
}

var _ Adapter = (*HTTPAdapter)(nil)

// NewHTTPAdapter builds an adapter for scheme ("http" or "https") using a
// client wrapping the watchdog round tripper over http.DefaultTransport.
func NewHTTPAdapter(scheme string) *HTTPAdapter {
	return &HTTPAdapter{
		scheme: scheme,
		client: &http.Client{
			Transport: newWatchdogRoundTripper(http.DefaultTransport, 30*time.Second, 128*1024),
		},
	}
}

// NewHTTPAdapterWithClient builds an adapter around an already-constructed
// client, used by internal/engine's one-fallback-attempt retry (spec.md
// §4.3 step 6) to issue a range fetch over a plain client with no watchdog.
func NewHTTPAdapterWithClient(scheme string, client *http.Client) *HTTPAdapter {
	return &HTTPAdapter{scheme: scheme, client: client}
}

func (a *HTTPAdapter) Scheme() string { return a.scheme }

func (a *HTTPAdapter) Probe(ctx context.Context, uri string) (ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return ProbeResult{}, errors.Classify(errors.KindInvalidInput, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return ProbeResult{}, errors.Classify(errors.KindTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ProbeResult{}, classifyHTTPStatus(resp.StatusCode)
	}

	result := ProbeResult{TotalBytes: -1, ETag: resp.Header.Get("ETag")}
	if resp.Header.Get("Accept-Ranges") == "bytes" {
		result.SupportsRange = true
	}
	if cl := resp.ContentLength; cl >= 0 {
		result.TotalBytes = cl
	}
	return result, nil
}

func (a *HTTPAdapter) Open(ctx context.Context, uri string, rng *Range) (ByteSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.Classify(errors.KindInvalidInput, err)
	}
	if rng != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Lo, rng.Hi))
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Classify(errors.KindTransport, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, classifyHTTPStatus(resp.StatusCode)
	}
	if rng != nil && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, errors.Classify(errors.KindTransport, errors.Errorf("server ignored range request, got status %d", resp.StatusCode))
	}
	return resp.Body, nil
}

func (a *HTTPAdapter) SupportsRange() bool { return true }

func (a *HTTPAdapter) FetchRange(ctx context.Context, uri string, lo, hi int64) ([]byte, error) {
	src, err := a.Open(ctx, uri, &Range{Lo: lo, Hi: hi})
	if err != nil {
		return nil, err
	}
	defer src.Close()
	buf := make([]byte, hi-lo+1)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, errors.Classify(errors.KindTransport, errors.Wrap(err, "read range"))
	}
	return buf, nil
}

func classifyHTTPStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.Classify(errors.KindAuth, errors.Errorf("http status %d", code))
	case code == http.StatusRequestTimeout:
		return errors.Classify(errors.KindTimeout, errors.Errorf("http status %d", code))
	case code == http.StatusNotFound:
		return errors.Classify(errors.KindInvalidInput, errors.Errorf("http status %d", code))
	case code == http.StatusTooManyRequests:
		return errors.Classify(errors.KindResource, errors.Errorf("http status %d", code))
	default:
		return errors.Classify(errors.KindTransport, errors.Errorf("http status %d", code))
	}
}

// watchdogRoundTripper cancels a request whose body stalls for longer than
// timeout between reads, adapted from the teacher's watchdogRoundtripper
// (internal/backend/watchdog_roundtriper.go) with the feature-flag gating
// removed since this repository always wants it on for downloads.
type watchdogRoundTripper struct {
	rt        http.RoundTripper
	timeout   time.Duration
	chunkSize int
}

func newWatchdogRoundTripper(rt http.RoundTripper, timeout time.Duration, chunkSize int) *watchdogRoundTripper {
	return &watchdogRoundTripper{rt: rt, timeout: timeout, chunkSize: chunkSize}
}

func (w *watchdogRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	timer := time.NewTimer(w.timeout)
	ctx, cancel := context.WithCancel(req.Context())

	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-ctx.Done():
		}
	}()

	kick := func() { timer.Reset(w.timeout) }

	req = req.Clone(ctx)
	if req.Body != nil {
		req.Body = &watchdogReadCloser{rc: req.Body, chunkSize: w.chunkSize, kick: kick}
	}

	resp, err := w.rt.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = &watchdogReadCloser{rc: resp.Body, chunkSize: w.chunkSize, kick: kick, close: cancel}
	return resp, nil
}

type watchdogReadCloser struct {
	rc        io.ReadCloser
	chunkSize int
	kick      func()
	close     func()
}

func (w *watchdogReadCloser) Read(p []byte) (int, error) {
	w.kick()
	if len(p) > w.chunkSize {
		p = p[:w.chunkSize]
	}
	n, err := w.rc.Read(p)
	w.kick()
	return n, err
}

func (w *watchdogReadCloser) Close() error {
	if w.close != nil {
		w.close()
	}
	return w.rc.Close()
}
