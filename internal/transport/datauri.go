package transport

import (
	"context"
	"encoding/base64"
	"io"
	"net/url"
	"strings"

	"github.com/throttlehq/throttle/internal/errors"
)

// DataURIAdapter serves data: URIs (RFC 2397) entirely from memory — useful
// for tests and for small inline payloads handed to the engine directly.
// No corpus example needs a data: URI decoder; this is plain encoding/base64
// since there is no meaningful third-party library for such a small, fully
// specified decode.
type DataURIAdapter struct{}

var _ Adapter = DataURIAdapter{}

func (DataURIAdapter) Scheme() string { return "data" }

func (DataURIAdapter) Probe(ctx context.Context, uri string) (ProbeResult, error) {
	data, err := decodeDataURI(uri)
	if err != nil {
		return ProbeResult{}, err
	}
	return ProbeResult{TotalBytes: int64(len(data)), SupportsRange: false}, nil
}

func (DataURIAdapter) Open(ctx context.Context, uri string, rng *Range) (ByteSource, error) {
	data, err := decodeDataURI(uri)
	if err != nil {
		return nil, err
	}
	if rng != nil {
		return nil, errors.Classify(errors.KindInvalidInput, errors.New("data uris do not support range requests"))
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (DataURIAdapter) SupportsRange() bool { return false }

func (DataURIAdapter) FetchRange(ctx context.Context, uri string, lo, hi int64) ([]byte, error) {
	return nil, errors.Classify(errors.KindInvalidInput, errors.New("data uris do not support range requests"))
}

func decodeDataURI(uri string) ([]byte, error) {
	const prefix = "data:"
	if !strings.HasPrefix(uri, prefix) {
		return nil, errors.Classify(errors.KindInvalidInput, errors.New("not a data uri"))
	}
	rest := uri[len(prefix):]
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errors.Classify(errors.KindInvalidInput, errors.New("malformed data uri: missing comma"))
	}

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, errors.Classify(errors.KindInvalidInput, errors.Wrap(err, "decode base64 data uri"))
		}
		return data, nil
	}
	decoded, err := url.QueryUnescape(payload)
	if err != nil {
		return nil, errors.Classify(errors.KindInvalidInput, errors.Wrap(err, "decode percent-escaped data uri"))
	}
	return []byte(decoded), nil
}
