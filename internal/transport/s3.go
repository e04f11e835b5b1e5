package transport

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/throttlehq/throttle/internal/errors"
)

// S3Adapter serves s3://bucket/key URIs via minio-go, the bonus transport
// scheme SPEC_FULL.md §4 adds beyond spec.md's seven required schemes so the
// teacher's S3-compatible client stack (it already depends on minio-go for
// its "s3" and "rest" cloud backends) gets exercised. Credentials come from
// the standard AWS environment variables; the endpoint defaults to AWS S3
// but honors THROTTLE_S3_ENDPOINT for S3-compatible stores (minio, R2, ...).
type S3Adapter struct {
	mu      sync.Mutex
	clients map[string]*minio.Client
}

var _ Adapter = (*S3Adapter)(nil)

func NewS3Adapter() *S3Adapter {
	return &S3Adapter{clients: make(map[string]*minio.Client)}
}

func (a *S3Adapter) Scheme() string { return "s3" }

func (a *S3Adapter) Probe(ctx context.Context, uri string) (ProbeResult, error) {
	client, bucket, key, err := a.resolve(uri)
	if err != nil {
		return ProbeResult{}, err
	}
	info, err := client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ProbeResult{}, errors.Classify(errors.KindTransport, err)
	}
	return ProbeResult{TotalBytes: info.Size, SupportsRange: true, ETag: info.ETag}, nil
}

func (a *S3Adapter) Open(ctx context.Context, uri string, rng *Range) (ByteSource, error) {
	client, bucket, key, err := a.resolve(uri)
	if err != nil {
		return nil, err
	}
	opts := minio.GetObjectOptions{}
	if rng != nil {
		if err := opts.SetRange(rng.Lo, rng.Hi); err != nil {
			return nil, errors.Classify(errors.KindInvalidInput, err)
		}
	}
	obj, err := client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, errors.Classify(errors.KindTransport, err)
	}
	return obj, nil
}

func (a *S3Adapter) SupportsRange() bool { return true }

func (a *S3Adapter) FetchRange(ctx context.Context, uri string, lo, hi int64) ([]byte, error) {
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

// resolve parses s3://bucket/key, returning a cached client for the
// (possibly overridden) endpoint along with bucket and key.
func (a *S3Adapter) resolve(uri string) (*minio.Client, string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", "", errors.Classify(errors.KindInvalidInput, err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, "", "", errors.Classify(errors.KindInvalidInput, errors.New("s3 uri must be s3://bucket/key"))
	}

	endpoint := os.Getenv("THROTTLE_S3_ENDPOINT")
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	useSSL := !strings.HasPrefix(endpoint, "localhost") && !strings.HasPrefix(endpoint, "127.0.0.1")

	a.mu.Lock()
	defer a.mu.Unlock()
	if client, ok := a.clients[endpoint]; ok {
		return client, bucket, key, nil
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewEnvAWS(),
		Secure: useSSL,
	})
	if err != nil {
		return nil, "", "", errors.Classify(errors.KindTransport, errors.Wrap(err, "construct minio client"))
	}
	a.clients[endpoint] = client
	return client, bucket, key, nil
}
