// Package model holds the value types shared by every role: the arbiter,
// the engine, the pool, the filesystem monitor and the supervisor all pass
// these across IPC and between goroutines, so they stay plain data with no
// behavior beyond small invariant-preserving constructors.
package model

import (
	"path/filepath"

	"github.com/throttlehq/throttle/internal/errors"
)

// Mode selects how aggressively the engine may use parallelism and how the
// arbiter should treat throttling for a given download.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeManual   Mode = "manual"
	ModeMaxSpeed Mode = "max_speed"
)

// DownloadSpec is the immutable request for one download.
type DownloadSpec struct {
	SourceURI         string
	DestPath          string
	SizeHint          int64 // -1 if unknown
	VirusCheck        bool
	ThreadCountHint   int
	BandwidthOverride int64 // bytes/s, 0 means unset
	Mode              Mode
	ChunkSizeHint     int64 // bytes, 0 means unset
}

// Resolve normalizes DestPath against root when DestPath is not already
// absolute, per spec.md §3's invariant that dest_path is absolute or
// resolved relative to a pool-configured root before admission.
func (s DownloadSpec) Resolve(root string) (DownloadSpec, error) {
	if s.SourceURI == "" {
		return s, errors.Classify(errors.KindInvalidInput, errors.New("source_uri must not be empty"))
	}
	if s.DestPath == "" {
		return s, errors.Classify(errors.KindInvalidInput, errors.New("dest_path must not be empty"))
	}
	if !filepath.IsAbs(s.DestPath) {
		s.DestPath = filepath.Join(root, s.DestPath)
	}
	if s.Mode == "" {
		s.Mode = ModeAuto
	}
	if s.SizeHint == 0 {
		s.SizeHint = -1
	}
	return s, nil
}

// EffectiveRateBps resolves the max_speed/bandwidth_override ambiguity flagged
// as an Open Question in spec.md §9 and decided in SPEC_FULL.md §9.3:
// max_speed always wins for throttling purposes.
func (s DownloadSpec) EffectiveRateBps() int64 {
	if s.Mode == ModeMaxSpeed {
		return 0 // unthrottled
	}
	return s.BandwidthOverride
}
