// Package engine drives one DownloadSpec to completion: probe, strategy
// choice, single-stream or parallel-range fetch, finalization, and
// post-hooks (spec.md §4.3).
package engine

import (
	"runtime"

	"github.com/throttlehq/throttle/internal/model"
)

const (
	tierHugeThreshold   = 2 * 1024 * 1024 * 1024 // 2 GiB
	tierLargeThreshold  = 512 * 1024 * 1024       // 512 MiB
	tierHugeMaxThreads  = 32
	tierHugeChunk       = 8 * 1024 * 1024
	tierLargeMaxThreads = 16
	tierLargeChunk      = 4 * 1024 * 1024
	tierSmallMaxThreads = 8
	tierSmallChunk      = 1 * 1024 * 1024

	maxSpeedMinThreads = 16
	maxSpeedMinChunk   = 8 * 1024 * 1024
)

// Strategy is the engine's choice of how to fetch a probed resource.
type Strategy struct {
	Parallel  bool
	Threads   int
	ChunkSize int64
}

// chooseStrategy implements spec.md §4.3 step 4. totalBytes is -1 if
// unknown. supportsRange and threadHint come from the probe result and the
// spec, respectively.
func chooseStrategy(totalBytes int64, supportsRange bool, threadHint int, mode model.Mode) Strategy {
	if totalBytes < 0 || threadHint <= 1 || !supportsRange {
		return Strategy{Parallel: false}
	}

	var maxThreads int
	var chunk int64
	switch {
	case totalBytes >= tierHugeThreshold:
		maxThreads, chunk = tierHugeMaxThreads, tierHugeChunk
	case totalBytes >= tierLargeThreshold:
		maxThreads, chunk = tierLargeMaxThreads, tierLargeChunk
	default:
		maxThreads, chunk = tierSmallMaxThreads, tierSmallChunk
	}

	threads := min(maxThreads, cpuScaled(totalBytes))
	if threadHint > 0 && threadHint < threads {
		threads = threadHint
	}

	if mode == model.ModeMaxSpeed {
		if threads < maxSpeedMinThreads {
			threads = maxSpeedMinThreads
		}
		if chunk < maxSpeedMinChunk {
			chunk = maxSpeedMinChunk
		}
	}

	if threads <= 1 {
		return Strategy{Parallel: false}
	}
	return Strategy{Parallel: true, Threads: threads, ChunkSize: chunk}
}

// cpuScaled caps parallelism to a multiple of available CPUs so a tiny
// machine doesn't spin up 32 range workers for a 3 GiB file.
func cpuScaled(totalBytes int64) int {
	n := runtime.NumCPU() * 4
	if n < 1 {
		n = 1
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
