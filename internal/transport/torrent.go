package transport

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/throttlehq/throttle/internal/errors"
)

// MagnetAdapter implements TorrentAdapter over anacrolix/torrent. Named
// rather than teacher-grounded per SPEC_FULL.md §4 and DESIGN.md: the
// teacher's go.mod already depends on github.com/anacrolix/fuse for its
// mount command, so anacrolix/torrent is a sibling package from the same
// author and ecosystem rather than an unrelated import.
type MagnetAdapter struct {
	client *torrent.Client
}

var _ TorrentAdapter = (*MagnetAdapter)(nil)

// NewMagnetAdapter starts a torrent client using default config (DHT and
// peer exchange enabled, no seeding beyond the current session).
func NewMagnetAdapter() (*MagnetAdapter, error) {
	cfg := torrent.NewDefaultClientConfig()
	cfg.DisableIPv6 = false
	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, errors.Classify(errors.KindTransport, errors.Wrap(err, "start torrent client"))
	}
	return &MagnetAdapter{client: client}, nil
}

// Fetch downloads uri (a magnet link or .torrent path) into workDir and
// returns the largest file once the torrent completes, per the
// largest-file-only policy SPEC_FULL.md §9.2 resolves.
func (a *MagnetAdapter) Fetch(ctx context.Context, uri, workDir string, progress func(done, total int64)) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", errors.Classify(errors.KindDisk, err)
	}

	var t *torrent.Torrent
	var err error
	if isMagnetURI(uri) {
		t, err = a.client.AddMagnet(uri)
	} else {
		t, err = a.client.AddTorrentFromFile(uri)
	}
	if err != nil {
		return "", errors.Classify(errors.KindTransport, errors.Wrap(err, "add torrent"))
	}

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		return "", errors.Classify(errors.KindTimeout, ctx.Err())
	}

	t.SetDisplayName(t.Name())
	t.DownloadAll()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.Drop()
			return "", errors.Classify(errors.KindTimeout, ctx.Err())
		case <-ticker.C:
			total := t.Length()
			done := total - t.BytesMissing()
			if progress != nil {
				progress(done, total)
			}
			if t.BytesMissing() == 0 {
				return largestFile(t, workDir)
			}
		}
	}
}

// Close shuts down the underlying torrent client.
func (a *MagnetAdapter) Close() error {
	errs := a.client.Close()
	for _, err := range errs {
		if err != nil {
			return errors.Classify(errors.KindTransport, err)
		}
	}
	return nil
}

func isMagnetURI(uri string) bool {
	return len(uri) >= 7 && uri[:7] == "magnet:"
}

// largestFile picks the single largest file from t's file list, per the
// resolved "rename only the largest file" policy (the rename-all variant
// was explicitly rejected, see SPEC_FULL.md §9.2).
func largestFile(t *torrent.Torrent, workDir string) (string, error) {
	files := t.Files()
	if len(files) == 0 {
		return "", errors.Classify(errors.KindIntegrity, errors.New("torrent completed with no files"))
	}
	best := files[0]
	for _, f := range files[1:] {
		if f.Length() > best.Length() {
			best = f
		}
	}
	return filepath.Join(workDir, best.Path()), nil
}
