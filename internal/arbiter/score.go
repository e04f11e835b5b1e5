// Package arbiter implements the periodic bandwidth allocation loop from
// spec.md §4.4: measure available bandwidth, score candidates, allocate,
// apply idle burst and interactive-latency overrides, and publish an
// AllocationSnapshot.
package arbiter

import "math"

// candidateType mirrors spec.md §4.4's three candidate classes.
type candidateType int

const (
	typeSmall candidateType = iota
	typeInstaller
	typeLarge
)

func (t candidateType) weight() float64 {
	switch t {
	case typeLarge:
		return 2.0
	case typeInstaller:
		return 1.5
	default:
		return 1.0
	}
}

func (t candidateType) defaultPriority() float64 {
	switch t {
	case typeLarge:
		return 3
	default:
		return 2
	}
}

// Candidate is one scoring input: a running record, the synthetic
// "installer" candidate, or a classified large/small downloader.
type Candidate struct {
	ID            string
	Type          candidateType
	Priority      float64 // [0,10]
	SizeBytes     int64   // cumulative size for log2 scoring
	ActivityBytes int64   // recent read+write bytes
	// Responsiveness inversely tracks CPU-user saturation: 1.0 is fully
	// responsive, 0.0 is fully saturated.
	Responsiveness float64
}

const (
	weightPriority       = 0.40
	weightSize           = 0.15
	weightType           = 0.15
	weightActivity       = 0.15
	weightResponsiveness = 0.15

	activityCapBytes = 100 * 1024 * 1024 // 100 MiB, spec.md §4.4 step 3
)

// score implements spec.md §4.4 step 3's weighted sum. priority is already
// in [0,10] (spec.md §4.4 step 3: "priority is the override ... range
// [0,10]"), so weightPriority applies to the raw value directly; it is not
// renormalized to [0,1] first.
func score(c Candidate) float64 {
	priorityTerm := weightPriority * c.Priority
	sizeTerm := weightSize * math.Log2(1+float64(c.SizeBytes))
	typeTerm := weightType * c.Type.weight()
	activity := float64(c.ActivityBytes) / activityCapBytes
	if activity > 1 {
		activity = 1
	}
	activityTerm := weightActivity * activity
	responsivenessTerm := weightResponsiveness * c.Responsiveness
	return priorityTerm + sizeTerm + typeTerm + activityTerm + responsivenessTerm
}

const (
	minAssignedBps  = 2 * 1024 * 1024  // spec.md §4.4 step 4, MIN
	idleBurstBps    = 20 * 1024 * 1024 // spec.md §4.4 step 5, BURST
	idleCPUPercent  = 10
	idleNetBytesSec = 5 * 1024 * 1024
)

// allocation is one candidate's computed share before idle-burst/
// interactive overrides are applied.
type allocation struct {
	id    string
	score float64
	bps   int64
}

// allocate implements spec.md §4.4 steps 3-4: score every candidate, then
// split availableBps proportionally to score/Σscore with a floor of
// minAssignedBps.
func allocate(candidates []Candidate, availableBps int64) []allocation {
	scores := make([]float64, len(candidates))
	var total float64
	for i, c := range candidates {
		scores[i] = score(c)
		total += scores[i]
	}

	out := make([]allocation, len(candidates))
	for i, c := range candidates {
		share := 0.0
		if total > 0 {
			share = scores[i] / total
		}
		base := int64(float64(availableBps) * share)
		if base < minAssignedBps {
			base = minAssignedBps
		}
		out[i] = allocation{id: c.ID, score: scores[i], bps: base}
	}
	return out
}

// applyIdleBurst implements spec.md §4.4 step 5: if the system is
// quiescent, clamp every assignment up to at least idleBurstBps. This may
// cause the sum to exceed availableBps, which is intentional.
func applyIdleBurst(allocs []allocation, cpuPercent float64, netBps int64) ([]allocation, bool) {
	if cpuPercent >= idleCPUPercent || netBps >= idleNetBytesSec {
		return allocs, false
	}
	out := make([]allocation, len(allocs))
	for i, a := range allocs {
		if a.bps < idleBurstBps {
			a.bps = idleBurstBps
		}
		out[i] = a
	}
	return out, true
}
