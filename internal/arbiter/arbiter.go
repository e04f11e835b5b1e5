package arbiter

import (
	"context"
	"time"

	"github.com/throttlehq/throttle/internal/debug"
	"github.com/throttlehq/throttle/internal/model"
	"github.com/throttlehq/throttle/internal/sysstats"
	"golang.org/x/time/rate"
)

const (
	tickPeriod          = 2 * time.Second
	measureWindow       = 1 * time.Second
	fallbackAvailableBps int64 = 100 * 1024 * 1024
	minMeasuredBps      int64 = 1 * 1024 * 1024
	gameLatencyThreshold      = 60.0 // ms
	gameLatencySamples        = 5
	gameReservedBps     int64 = 10 * 1024 * 1024
)

// TrackedRecord is what the arbiter needs from a pool-owned Record to score
// and throttle it, decoupling this package from internal/pool.
type TrackedRecord struct {
	ID            string
	ProcessName   string
	Large         bool
	SizeBytes     int64
	ActivityBytes int64
	Limiter       *rate.Limiter // live-updated per spec.md §4.4 step 7
}

// Source supplies the arbiter with the current set of running records each
// tick. The pool implements this.
type Source func() []TrackedRecord

// Push delivers a freshly computed AllocationSnapshot to whatever owns the
// running records. cmd/throttle passes nil: the arbiter and the pool run as
// separate processes and cannot share a *rate.Limiter directly, so the pool
// polls the arbiter's BANDWIDTH_QUERY snapshot instead.
type Push func(model.AllocationSnapshot)

// Arbiter runs the periodic control loop from spec.md §4.4.
type Arbiter struct {
	State       *State
	Sampler     sysstats.Sampler
	Latency     sysstats.LatencyProbe
	GameProcess []string
	Source      Source
	Push        Push

	lastNet     sysstats.NetCounters
	haveLastNet bool
}

// New builds an Arbiter. gameProcesses is the known-game process list used
// by the interactive-latency override (spec.md §4.4 step 6). push may be
// nil, in which case the computed allocation is only published to State.
func New(state *State, sampler sysstats.Sampler, latency sysstats.LatencyProbe, gameProcesses []string, source Source, push Push) *Arbiter {
	return &Arbiter{
		State:       state,
		Sampler:     sampler,
		Latency:     latency,
		GameProcess: gameProcesses,
		Source:      source,
		Push:        push,
	}
}

// Run executes the control loop until ctx is done, ticking every
// tickPeriod (spec.md §4.4, "Periodic control loop, period = 2 s").
func (a *Arbiter) Run(ctx context.Context) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// IdleWait blocks until the next tick that has idle burst active, or
// returns immediately if one is already in progress (SPEC_FULL.md §10's
// IDLE_WAIT command). The channel it waits on lives on State, guarded by
// State's own lock, since tick (a different goroutine) reassigns it every
// tick.
func (a *Arbiter) IdleWait(ctx context.Context) {
	snap := a.State.Snapshot()
	if snap.IdleBurstActive {
		return
	}
	select {
	case <-a.State.IdleWaitChan():
	case <-ctx.Done():
	}
}

func (a *Arbiter) tick(ctx context.Context) {
	prevNet, havePrevNet := a.lastNet, a.haveLastNet
	available, netCounters := a.measureAvailable(ctx)

	records := a.Source()
	candidates := a.classify(records)

	allocs := allocate(candidates, available)

	cpuPct, err := a.Sampler.CPUPercent(ctx)
	if err != nil {
		debug.Log("arbiter: cpu sample failed: %v", err)
		cpuPct = 100 // fail safe: assume busy, don't idle-burst on bad data
	}

	// measureAvailable has already advanced a.lastNet to netCounters, so
	// utilization is taken against the previous tick's sample.
	var netBps int64
	if havePrevNet {
		if elapsed := netCounters.At.Sub(prevNet.At).Seconds(); elapsed > 0 {
			delta := int64(netCounters.BytesSent+netCounters.BytesRecv) - int64(prevNet.BytesSent+prevNet.BytesRecv)
			netBps = int64(float64(delta) / elapsed)
		}
	}

	allocs, idleActive := applyIdleBurst(allocs, cpuPct, netBps)
	if idleActive {
		a.State.MarkIdleActive()
	} else {
		a.State.ResetIdleWait()
	}

	gamesProtected := a.applyInteractiveOverride(ctx, allocs, records)

	a.publish(available, allocs, cpuPct, netBps, idleActive, gamesProtected)
	a.applyRates(records, allocs)
}

// measureAvailable implements spec.md §4.4 step 1.
func (a *Arbiter) measureAvailable(ctx context.Context) (int64, sysstats.NetCounters) {
	sample, err := a.Sampler.NetSample(ctx)
	if err != nil {
		debug.Log("arbiter: net sample failed: %v", err)
		return fallbackAvailableBps, a.lastNet
	}

	if !a.haveLastNet {
		a.lastNet = sample
		a.haveLastNet = true
		return fallbackAvailableBps, sample
	}

	elapsed := sample.At.Sub(a.lastNet.At).Seconds()
	if elapsed <= 0 {
		elapsed = measureWindow.Seconds()
	}
	deltaBytes := (sample.BytesSent + sample.BytesRecv) - (a.lastNet.BytesSent + a.lastNet.BytesRecv)
	bps := int64(float64(deltaBytes) / elapsed)
	a.lastNet = sample

	if bps < minMeasuredBps {
		return fallbackAvailableBps, sample
	}
	return bps, sample
}

// classify implements spec.md §4.4 step 2: large/small classification plus
// the synthetic "installer" candidate.
func (a *Arbiter) classify(records []TrackedRecord) []Candidate {
	candidates := make([]Candidate, 0, len(records)+1)
	for _, r := range records {
		t := typeSmall
		if r.Large || r.SizeBytes >= 1<<30 {
			t = typeLarge
		}
		candidates = append(candidates, Candidate{
			ID:             r.ID,
			Type:           t,
			Priority:       a.State.PriorityFor(r.ProcessName, t.defaultPriority()),
			SizeBytes:      r.SizeBytes,
			ActivityBytes:  r.ActivityBytes,
			Responsiveness: 1.0,
		})
	}
	candidates = append(candidates, Candidate{
		ID:             "installer",
		Type:           typeInstaller,
		Priority:       a.State.PriorityFor("installer", typeInstaller.defaultPriority()),
		Responsiveness: 1.0,
	})
	return candidates
}

// applyInteractiveOverride implements spec.md §4.4 step 6.
func (a *Arbiter) applyInteractiveOverride(ctx context.Context, allocs []allocation, records []TrackedRecord) bool {
	if len(a.GameProcess) == 0 || a.Latency == nil {
		return false
	}
	running, err := a.Sampler.RunningProcessNames(ctx, a.GameProcess)
	if err != nil {
		return false
	}
	anyGame := false
	for _, v := range running {
		if v {
			anyGame = true
			break
		}
	}
	if !anyGame {
		return false
	}

	meanMs, _, _, err := a.Latency.Measure(ctx, "8.8.8.8", gameLatencySamples, 2*time.Second)
	if err != nil || meanMs <= gameLatencyThreshold {
		return false
	}

	var reservePerRecord int64
	nonGame := len(allocs)
	if nonGame > 0 {
		reservePerRecord = gameReservedBps / int64(nonGame)
	}
	for i := range allocs {
		allocs[i].bps -= reservePerRecord
		if allocs[i].bps < minAssignedBps/2 {
			allocs[i].bps = minAssignedBps / 2
		}
	}
	return true
}

func (a *Arbiter) publish(available int64, allocs []allocation, cpuPct float64, netBps int64, idleActive, gamesProtected bool) {
	total := 0.0
	recordAllocs := make([]model.RecordAllocation, 0, len(allocs))
	for _, alloc := range allocs {
		total += alloc.score
	}
	for _, alloc := range allocs {
		pct := 0.0
		if total > 0 {
			pct = alloc.score / total * 100
		}
		recordAllocs = append(recordAllocs, model.RecordAllocation{
			ID:          alloc.id,
			Score:       alloc.score,
			AssignedBps: alloc.bps,
			AssignedPct: pct,
		})
	}

	snap := model.AllocationSnapshot{
		MeasuredAvailableBps: available,
		Records:              recordAllocs,
		SystemLoad: model.SystemLoad{
			CPUPercent:  cpuPct,
			NetReadBps:  netBps / 2,
			NetWriteBps: netBps / 2,
		},
		PriorityOverrides: a.State.Priorities(),
		IdleBurstActive:   idleActive,
		GamesProtected:    gamesProtected,
	}
	a.State.Publish(snap)
	if a.Push != nil {
		a.Push(snap)
	}
}

// applyRates pushes each allocation's bps into its record's live
// rate.Limiter via SetLimit, grounded on internal/backend/limiter's
// staticLimiter construction — but updated every tick instead of built
// once, so a running engine's disk writer observes the new rate within one
// chunk (spec.md §4.4 step 7).
func (a *Arbiter) applyRates(records []TrackedRecord, allocs []allocation) {
	byID := make(map[string]int64, len(allocs))
	for _, alloc := range allocs {
		byID[alloc.id] = alloc.bps
	}
	for _, r := range records {
		if r.Limiter == nil {
			continue
		}
		if bps, ok := byID[r.ID]; ok {
			r.Limiter.SetLimit(rate.Limit(bps))
			r.Limiter.SetBurst(int(bps))
		}
	}
}
