package main

import (
	"context"
	"os"

	"github.com/throttlehq/throttle/internal/engine"
	"github.com/throttlehq/throttle/internal/model"
	"github.com/throttlehq/throttle/internal/transport"
)

// runDownload implements spec.md §6's "--download URL DEST" one-shot mode:
// fetch url to dest using the engine directly, with no arbiter or pool
// process involved, at an unthrottled rate (the Open Question resolved in
// SPEC_FULL.md §9.3 only governs the running-under-the-pool case).
func runDownload(ctx context.Context, url, dest string) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	spec, err := model.DownloadSpec{SourceURI: url, DestPath: dest}.Resolve(root)
	if err != nil {
		return err
	}
	record := model.NewRecord(spec, os.Getpid())

	reg := defaultRegistry()
	var torrentAdapter transport.TorrentAdapter
	if adapter, err := transport.NewMagnetAdapter(); err == nil {
		torrentAdapter = adapter
	}
	eng := engine.New(reg, torrentAdapter, nil)

	unthrottled := func() int64 { return 0 }
	if err := eng.Run(ctx, record, unthrottled); err != nil {
		return err
	}

	Verbosef("downloaded %s -> %s\n", url, dest)
	return nil
}
