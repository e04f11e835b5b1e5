package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"github.com/throttlehq/throttle/internal/errors"
)

// SFTPAdapter fetches sftp:// URIs by shelling out to the system ssh client
// and speaking the SFTP subsystem protocol over its stdin/stdout, exactly
// the pattern in internal/backend/sftp/sftp.go's startClient: this assumes
// passwordless (key-based) login, never touches a password, and relies on
// ssh_config for host identity.
type SFTPAdapter struct {
	mu      sync.Mutex
	clients map[string]*sftpSession
}

type sftpSession struct {
	client *sftp.Client
	cmd    *exec.Cmd
}

var _ Adapter = (*SFTPAdapter)(nil)

func NewSFTPAdapter() *SFTPAdapter {
	return &SFTPAdapter{clients: make(map[string]*sftpSession)}
}

func (a *SFTPAdapter) Scheme() string { return "sftp" }

func (a *SFTPAdapter) Probe(ctx context.Context, uri string) (ProbeResult, error) {
	sess, path, err := a.session(uri)
	if err != nil {
		return ProbeResult{}, err
	}
	fi, err := sess.client.Stat(path)
	if err != nil {
		return ProbeResult{}, classifySFTPErr(err)
	}
	return ProbeResult{TotalBytes: fi.Size(), SupportsRange: true}, nil
}

func (a *SFTPAdapter) Open(ctx context.Context, uri string, rng *Range) (ByteSource, error) {
	sess, path, err := a.session(uri)
	if err != nil {
		return nil, err
	}
	f, err := sess.client.Open(path)
	if err != nil {
		return nil, classifySFTPErr(err)
	}
	if rng != nil {
		if _, err := f.Seek(rng.Lo, io.SeekStart); err != nil {
			f.Close()
			return nil, errors.Classify(errors.KindTransport, errors.Wrap(err, "seek"))
		}
		return &limitedReadCloser{r: io.LimitReader(f, rng.Hi-rng.Lo+1), c: f}, nil
	}
	return f, nil
}

func (a *SFTPAdapter) SupportsRange() bool { return true }

func (a *SFTPAdapter) FetchRange(ctx context.Context, uri string, lo, hi int64) ([]byte, error) {
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

// session returns (creating if necessary) the cached SFTP session for uri's
// host, and the remote path component of uri. Sessions are cached per
// host:user since starting the ssh subprocess is the expensive part.
func (a *SFTPAdapter) session(uri string) (*sftpSession, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", errors.Classify(errors.KindInvalidInput, err)
	}

	key := u.User.String() + "@" + u.Host
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, ok := a.clients[key]
	if !ok {
		sess, err = startSFTPSession(u)
		if err != nil {
			return nil, "", err
		}
		a.clients[key] = sess
	}
	return sess, strings.TrimPrefix(u.Path, "/"), nil
}

func startSFTPSession(u *url.URL) (*sftpSession, error) {
	args := []string{"-s"}
	if u.Port() != "" {
		args = append(args, "-p", u.Port())
	}
	host := u.Hostname()
	if u.User != nil && u.User.Username() != "" {
		host = u.User.Username() + "@" + host
	}
	args = append(args, host, "sftp")

	cmd := exec.Command("ssh", args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Classify(errors.KindTransport, errors.Wrap(err, "cmd.StderrPipe"))
	}
	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			fmt.Fprintf(os.Stderr, "ssh subprocess: %v\n", sc.Text())
		}
	}()

	wr, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Classify(errors.KindTransport, errors.Wrap(err, "cmd.StdinPipe"))
	}
	rd, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Classify(errors.KindTransport, errors.Wrap(err, "cmd.StdoutPipe"))
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Classify(errors.KindTransport, errors.Wrap(err, "start ssh"))
	}

	client, err := sftp.NewClientPipe(rd, wr)
	if err != nil {
		return nil, errors.Classify(errors.KindTransport, errors.Errorf("unable to start sftp session: %v", err))
	}

	return &sftpSession{client: client, cmd: cmd}, nil
}

func classifySFTPErr(err error) error {
	if os.IsNotExist(err) {
		return errors.Classify(errors.KindInvalidInput, err)
	}
	if os.IsPermission(err) {
		return errors.Classify(errors.KindAuth, err)
	}
	return errors.Classify(errors.KindTransport, err)
}
