package model

// RecordAllocation is one record's slice of an AllocationSnapshot.
type RecordAllocation struct {
	ID             string
	Score          float64
	AssignedBps    int64
	AssignedPct    float64
}

// AllocationSnapshot is the arbiter's published output for one tick
// (spec.md §3, §4.4). It is immutable once constructed; the arbiter
// publishes a fresh value each period rather than mutating one in place,
// so concurrent readers never observe a torn snapshot (spec.md §5).
type AllocationSnapshot struct {
	MeasuredAvailableBps int64
	Records              []RecordAllocation
	SystemLoad           SystemLoad
	PriorityOverrides    map[string]int
	IdleBurstActive      bool
	GamesProtected       bool
}

// SystemLoad is the subset of host state the arbiter samples each tick.
type SystemLoad struct {
	CPUPercent    float64
	NetReadBps    int64
	NetWriteBps   int64
	LatencyMeanMs float64
}

// Sum returns the sum of all assigned rates, for checking the
// "assigned <= available except during idle burst" invariant (spec.md §3).
func (a AllocationSnapshot) Sum() int64 {
	var total int64
	for _, r := range a.Records {
		total += r.AssignedBps
	}
	return total
}
