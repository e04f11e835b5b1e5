package engine

import (
	"context"
	"os"
	"time"

	"github.com/throttlehq/throttle/internal/diskwriter"
	"github.com/throttlehq/throttle/internal/errors"
	"github.com/throttlehq/throttle/internal/model"
	"github.com/throttlehq/throttle/internal/transport"
)

// RateSource supplies the engine's disk writer with the arbiter's current
// assigned rate for a record, read fresh on each chunk boundary (spec.md
// §4.4 step 7, "at most one chunk-time delay").
type RateSource func() int64

// Engine drives one DownloadSpec end-to-end.
type Engine struct {
	registry *transport.Registry
	torrent  transport.TorrentAdapter
	scan     ScanFunc
}

// New builds an Engine over registry (the scheme-keyed transport lookup)
// and an optional torrent adapter and scan hook.
func New(registry *transport.Registry, torrent transport.TorrentAdapter, scan ScanFunc) *Engine {
	return &Engine{registry: registry, torrent: torrent, scan: scan}
}

// Run executes spec to completion, reporting state transitions through
// record and reading the throttle rate from rate. It implements spec.md
// §4.3's full eight-step algorithm.
func (e *Engine) Run(ctx context.Context, record *model.Record, rate RateSource) error {
	spec := record.Spec

	if err := model.WriteSidecar(model.SidecarMetadata{
		URL:       spec.SourceURI,
		Dest:      spec.DestPath,
		CreatedAt: time.Now(),
		OriginPID: os.Getpid(),
		Protocol:  schemeOrTorrent(spec.SourceURI),
	}); err != nil {
		record.SetState(model.StateFailed)
		return err
	}

	if isTorrentURI(spec.SourceURI) {
		return e.runTorrent(ctx, record, spec)
	}

	record.SetState(model.StateProbing)
	adapter, err := e.registry.Lookup(spec.SourceURI)
	if err != nil {
		record.SetState(model.StateFailed)
		_ = model.CleanupTransient(spec.DestPath)
		return err
	}

	probe, err := adapter.Probe(ctx, spec.SourceURI)
	if err != nil {
		record.SetState(model.StateFailed)
		_ = model.CleanupTransient(spec.DestPath)
		return err
	}
	record.SetTotalSize(probe.TotalBytes)

	strategy := chooseStrategy(probe.TotalBytes, probe.SupportsRange, spec.ThreadCountHint, spec.Mode)
	if spec.Mode == model.ModeMaxSpeed {
		// max_speed runs unthrottled (see DownloadSpec.EffectiveRateBps).
		rate = nil
	}

	record.SetState(model.StateRunning)

	var written int64
	if strategy.Parallel {
		written, err = fetchParallel(ctx, adapter, spec.SourceURI, probe.TotalBytes, strategy, spec.DestPath+".part")
	} else {
		written, err = e.fetchSingleStream(ctx, adapter, spec, record, rate)
	}
	if err != nil {
		if ctx.Err() != nil {
			// Pool.Pause cancels the record's context after already setting
			// it to paused; this is that cooperative stop, not a failure, so
			// the .part file and the paused state survive for Resume.
			return err
		}
		record.SetState(model.StateFailed)
		_ = model.CleanupTransient(spec.DestPath)
		return err
	}
	record.AddBytesWritten(written - record.BytesWritten())

	record.SetState(model.StateFinalizing)
	if err := renamePart(spec); err != nil {
		record.SetState(model.StateFailed)
		return err
	}

	if err := runPostHooks(ctx, spec, e.scan); err != nil {
		record.SetState(model.StateFailed)
		return err
	}

	record.SetState(model.StateDone)
	return nil
}

// fetchSingleStream implements spec.md §4.3 step 5: stream the ByteSource
// through the throttled disk writer directly to <dest>.part, then rename.
func (e *Engine) fetchSingleStream(ctx context.Context, adapter transport.Adapter, spec model.DownloadSpec, record *model.Record, rate RateSource) (int64, error) {
	src, err := adapter.Open(ctx, spec.SourceURI, nil)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	partPath := spec.DestPath + ".part"
	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errors.Classify(errors.KindDisk, err)
	}

	opts := []diskwriter.Option{}
	if rate != nil {
		opts = append(opts, diskwriter.WithRate(diskwriter.RateFunc(rate)))
	}
	if spec.ChunkSizeHint > 0 {
		opts = append(opts, diskwriter.WithInitialChunkSize(spec.ChunkSizeHint))
	}
	w := diskwriter.New(f, opts...)

	written, err := w.CopyFrom(src, func(n int64) { record.AddBytesWritten(n) })
	closeErr := w.Close()
	if err != nil {
		return written, errors.Classify(errors.KindTransport, err)
	}
	if closeErr != nil {
		return written, errors.Classify(errors.KindDisk, closeErr)
	}
	return written, nil
}

// renamePart atomically replaces dest with dest+".part" (spec.md §4.3 step
// 6's finalize: "fsync, atomically rename to <dest>").
func renamePart(spec model.DownloadSpec) error {
	if err := os.Rename(spec.DestPath+".part", spec.DestPath); err != nil {
		return errors.Classify(errors.KindDisk, err)
	}
	return nil
}

// runTorrent implements the torrent variant of spec.md §4.3: no probe, no
// range support, progress callback, largest-file selection (resolved
// Open Question, SPEC_FULL.md §9.2), then the same rename/post-hook tail.
func (e *Engine) runTorrent(ctx context.Context, record *model.Record, spec model.DownloadSpec) error {
	if e.torrent == nil {
		record.SetState(model.StateFailed)
		_ = model.CleanupTransient(spec.DestPath)
		return errors.Classify(errors.KindInvalidInput, errors.New("no torrent adapter configured"))
	}

	record.SetState(model.StateRunning)
	workDir := spec.DestPath + ".torrent-work"

	largest, err := e.torrent.Fetch(ctx, spec.SourceURI, workDir, func(done, total int64) {
		record.SetTotalSize(total)
		record.AddBytesWritten(done - record.BytesWritten())
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		record.SetState(model.StateFailed)
		_ = model.CleanupTransient(spec.DestPath)
		return err
	}

	record.SetState(model.StateFinalizing)
	if err := os.Rename(largest, spec.DestPath); err != nil {
		record.SetState(model.StateFailed)
		return errors.Classify(errors.KindDisk, err)
	}

	if err := runPostHooks(ctx, spec, e.scan); err != nil {
		record.SetState(model.StateFailed)
		return err
	}
	record.SetState(model.StateDone)
	return nil
}

func isTorrentURI(uri string) bool {
	scheme, err := transport.SchemeOf(uri)
	if err != nil {
		return false
	}
	return scheme == "magnet" || (len(uri) >= 7 && uri[:7] == "magnet:")
}

func schemeOrTorrent(uri string) string {
	if isTorrentURI(uri) {
		return "torrent"
	}
	scheme, err := transport.SchemeOf(uri)
	if err != nil {
		return "unknown"
	}
	return scheme
}
