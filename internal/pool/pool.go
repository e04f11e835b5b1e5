// Package pool implements the Download Manager Pool from spec.md §4.5:
// admission, large/small classification, one dedicated worker per large
// record, a single FIFO worker for all small records, and the pool's
// control commands. The worker-queue split is grounded on
// internal/backend/rest's sema.Semaphore-gated concurrency cap, adapted
// from "N concurrent connections" to "1 dedicated goroutine per large
// record, 1 shared goroutine for all small records."
package pool

import (
	"context"
	"sync"

	"github.com/throttlehq/throttle/internal/model"
	"golang.org/x/time/rate"
)

const largeThresholdBytes = 1 << 30 // 1 GiB, spec.md §4.5

// Runner executes one admitted record to completion. internal/engine.Engine
// implements this via a thin adapter in cmd/throttle.
type Runner interface {
	Run(ctx context.Context, record *model.Record, rate func() int64) error
}

// entry pairs a Record with the live rate.Limiter the arbiter updates every
// tick (spec.md §4.4 step 7), the cancelable context its current worker runs
// under, and done, which the worker closes on exit so Resume can wait for it
// before starting a replacement (never two workers on one entry at once).
type entry struct {
	record  *model.Record
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// Pool owns the active-record map and the two worker queues. Per spec.md
// §5's shared-resource policy, the active-record map is mutated only by
// the pool's own goroutine; other roles read snapshots.
type Pool struct {
	mu      sync.Mutex
	records map[string]*entry

	runner Runner

	smallQueue chan *entry
	smallOnce  sync.Once
}

// New builds a Pool that executes admitted records via runner.
func New(runner Runner) *Pool {
	p := &Pool{
		records:    make(map[string]*entry),
		runner:     runner,
		smallQueue: make(chan *entry, 256),
	}
	return p
}

// Start launches the pool's single small-record FIFO worker. Call once.
func (p *Pool) Start(ctx context.Context) {
	p.smallOnce.Do(func() {
		go p.smallWorker(ctx)
	})
}

// Add admits spec as a new record, classifies it large/small (spec.md
// §4.5: size_hint >= 1 GiB -> large, else small), and schedules it.
// Returns the new record's id.
func (p *Pool) Add(ctx context.Context, spec model.DownloadSpec, originPID int) string {
	record := model.NewRecord(spec, originPID)
	limiter := rate.NewLimiter(rate.Inf, 1)

	runCtx, cancel := context.WithCancel(ctx)
	e := &entry{record: record, limiter: limiter, ctx: runCtx, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	p.records[record.ID] = e
	p.mu.Unlock()

	if isLarge(spec) {
		go p.runEntry(runCtx, e, e.done)
	} else {
		p.smallQueue <- e
	}

	return record.ID
}

func isLarge(spec model.DownloadSpec) bool {
	return spec.SizeHint >= largeThresholdBytes
}

func (p *Pool) smallWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.smallQueue:
			// Run under the entry's own cancelable context, not the worker
			// loop's shared one, so Pause can stop this record in isolation
			// without also stopping every other small record sharing this
			// goroutine.
			p.mu.Lock()
			runCtx, done := e.ctx, e.done
			p.mu.Unlock()
			p.runEntry(runCtx, e, done)
		}
	}
}

func (p *Pool) runEntry(ctx context.Context, e *entry, done chan struct{}) {
	defer close(done)
	rateFunc := func() int64 {
		limit := e.limiter.Limit()
		if limit == rate.Inf || limit <= 0 {
			return 0
		}
		return int64(limit)
	}
	_ = p.runner.Run(ctx, e.record, rateFunc)
}

// ApplyAllocation pushes each record's assigned_bps from an arbiter
// snapshot into that record's local rate.Limiter. The arbiter and pool run
// as separate processes (spec.md §4.7's role list), so the shared
// *rate.Limiter an in-process caller might expect does not cross that
// boundary — instead the pool polls the arbiter's published snapshot (the
// GUI/BANDWIDTH_QUERY command) on the same 2s period as the arbiter's own
// tick and applies it locally, one process-boundary hop downstream of
// spec.md §4.4 step 7.
func (p *Pool) ApplyAllocation(snap model.AllocationSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, alloc := range snap.Records {
		if e, ok := p.records[alloc.ID]; ok {
			e.limiter.SetLimit(rate.Limit(alloc.AssignedBps))
			e.limiter.SetBurst(int(alloc.AssignedBps))
			e.record.SetAssignedRateBps(alloc.AssignedBps)
		}
	}
}

// TrackedRecords snapshots the pool's active records for the arbiter's
// Source callback (polled across the process boundary by cmd/throttle's
// arbiter role, not called directly in-process).
func (p *Pool) TrackedRecords() []TrackedRecordView {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TrackedRecordView, 0, len(p.records))
	for _, e := range p.records {
		out = append(out, TrackedRecordView{
			ID:            e.record.ID,
			Large:         isLarge(e.record.Spec),
			SizeBytes:     e.record.TotalSize(),
			ActivityBytes: e.record.BytesWritten(),
		})
	}
	return out
}

// TrackedRecordView is the cross-process projection of an entry the
// arbiter needs for scoring (internal/arbiter.TrackedRecord minus the
// Limiter field, which does not serialize across the IPC boundary).
type TrackedRecordView struct {
	ID            string `json:"id"`
	Large         bool   `json:"large"`
	SizeBytes     int64  `json:"size_bytes"`
	ActivityBytes int64  `json:"activity_bytes"`
}

// Get returns the entry for id, if tracked.
func (p *Pool) Get(id string) (*model.Record, *rate.Limiter, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.records[id]
	if !ok {
		return nil, nil, false
	}
	return e.record, e.limiter, true
}

// ids returns every tracked record id, for PAUSE/RESUME's "all" form.
func (p *Pool) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.records))
	for id := range p.records {
		out = append(out, id)
	}
	return out
}

// All returns a snapshot slice of every tracked entry, for the pool's
// STATUS command.
func (p *Pool) All() []*model.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*model.Record, 0, len(p.records))
	for _, e := range p.records {
		out = append(out, e.record)
	}
	return out
}

// FindByDest returns the tracked record whose DestPath matches dest, if
// any (spec.md §4.6: "if a record for the same dest already exists the URL
// is updated; otherwise a new record is admitted").
func (p *Pool) FindByDest(dest string) (*model.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.records {
		if e.record.Spec.DestPath == dest {
			return e.record, true
		}
	}
	return nil, false
}

// Cancel stops a tracked entry's context, used by Pause to halt its current
// worker (large or small: every entry runs under its own cancelable context,
// see entry.ctx). e.cancel is read under p.mu since Resume replaces it when
// restarting a paused entry.
func (p *Pool) Cancel(id string) {
	p.mu.Lock()
	e, ok := p.records[id]
	var cancel context.CancelFunc
	if ok {
		cancel = e.cancel
	}
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
