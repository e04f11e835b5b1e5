package engine

import (
	"testing"

	"github.com/throttlehq/throttle/internal/model"
)

func TestChooseStrategySingleStreamCases(t *testing.T) {
	cases := []struct {
		name          string
		total         int64
		supportsRange bool
		threadHint    int
	}{
		{"unknown size", -1, true, 4},
		{"thread hint 1", 10 << 20, true, 1},
		{"no range support", 10 << 20, false, 4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := chooseStrategy(c.total, c.supportsRange, c.threadHint, model.ModeAuto)
			if s.Parallel {
				t.Fatalf("expected single-stream strategy, got parallel")
			}
		})
	}
}

func TestChooseStrategyMaxSpeedForcesMinimums(t *testing.T) {
	s := chooseStrategy(100<<20, true, 32, model.ModeMaxSpeed)
	if !s.Parallel {
		t.Fatal("expected parallel strategy")
	}
	if s.Threads < maxSpeedMinThreads {
		t.Fatalf("expected at least %d threads, got %d", maxSpeedMinThreads, s.Threads)
	}
	if s.ChunkSize < maxSpeedMinChunk {
		t.Fatalf("expected at least %d chunk size, got %d", maxSpeedMinChunk, s.ChunkSize)
	}
}

func TestPartitionRangesCoversWholeFileInOrder(t *testing.T) {
	total := int64(100 * 1024 * 1024)
	ranges := partitionRanges(total, 4)
	if len(ranges) != 4 {
		t.Fatalf("expected 4 ranges, got %d", len(ranges))
	}
	var covered int64
	for i, r := range ranges {
		if r.index != i {
			t.Fatalf("range %d has index %d", i, r.index)
		}
		if r.lo != covered {
			t.Fatalf("range %d starts at %d, want %d", i, r.lo, covered)
		}
		covered = r.hi + 1
	}
	if covered != total {
		t.Fatalf("ranges cover %d bytes, want %d", covered, total)
	}
	if ranges[3].hi-ranges[3].lo+1 < ranges[0].hi-ranges[0].lo+1 {
		t.Fatalf("last range should absorb the remainder, not be smaller")
	}
}
