package pool

import (
	"context"

	"github.com/throttlehq/throttle/internal/errors"
	"github.com/throttlehq/throttle/internal/model"
)

// AddDownloadRequest is the ADD_DOWNLOAD command payload.
type AddDownloadRequest struct {
	SourceURI         string     `json:"source_uri"`
	DestPath          string     `json:"dest_path"`
	SizeHint          int64      `json:"size_hint"`
	VirusCheck        bool       `json:"virus_check"`
	ThreadCountHint   int        `json:"thread_count_hint"`
	BandwidthOverride int64      `json:"bandwidth_override"`
	Mode              model.Mode `json:"mode"`
	ChunkSizeHint     int64      `json:"chunk_size_hint"`
	Root              string     `json:"root"`
	OriginPID         int        `json:"origin_pid"`
}

// AddDownloadResponse echoes the admitted record's id.
type AddDownloadResponse struct {
	ID string `json:"id"`
}

// StatusResponse is the STATUS command's reply: every tracked record's
// snapshot, for the GUI and the CLI's --status surface.
type StatusResponse struct {
	Records []model.Snapshot `json:"records"`
}

// AddDownload validates and admits req, returning the new record id.
func (p *Pool) AddDownload(ctx context.Context, req AddDownloadRequest) (string, error) {
	spec := model.DownloadSpec{
		SourceURI:         req.SourceURI,
		DestPath:          req.DestPath,
		SizeHint:          req.SizeHint,
		VirusCheck:        req.VirusCheck,
		ThreadCountHint:   req.ThreadCountHint,
		BandwidthOverride: req.BandwidthOverride,
		Mode:              req.Mode,
		ChunkSizeHint:     req.ChunkSizeHint,
	}
	resolved, err := spec.Resolve(req.Root)
	if err != nil {
		return "", err
	}
	id := p.Add(ctx, resolved, req.OriginPID)
	return id, nil
}

// Pause transitions a running record to paused and cancels its worker's
// context, so the engine's in-flight fetch (single-stream or parallel,
// either reading through a context-aware transport.Adapter) stops issuing
// new reads in place of reading State() in the hot loop. An empty id pauses
// every tracked record (spec.md §4.5's "PAUSE {id?}").
func (p *Pool) Pause(id string) error {
	if id == "" {
		for _, rid := range p.ids() {
			_ = p.Pause(rid)
		}
		return nil
	}
	record, _, ok := p.Get(id)
	if !ok {
		return errors.Classify(errors.KindInvalidInput, errors.New("unknown record: "+id))
	}
	if !record.SetState(model.StatePaused) {
		return errors.Classify(errors.KindInvalidInput, errors.New("record not running: "+id))
	}
	p.Cancel(id)
	return nil
}

// Resume re-admits a paused record's remaining work by restarting its
// runner against the same Record and Limiter under a fresh context (the
// spec's resolved Open Question for spin-down has no partial-worker
// backfill, so resume always restarts cleanly rather than trying to
// reattach workers). It first waits for the worker Pause stopped to fully
// exit, so two workers never write the same entry's .part file at once. An
// empty id resumes every tracked record (spec.md §4.5's "RESUME {id?}").
func (p *Pool) Resume(ctx context.Context, id string) error {
	if id == "" {
		for _, rid := range p.ids() {
			_ = p.Resume(ctx, rid)
		}
		return nil
	}
	p.mu.Lock()
	e, ok := p.records[id]
	var prevDone chan struct{}
	if ok {
		prevDone = e.done
	}
	p.mu.Unlock()
	if !ok {
		return errors.Classify(errors.KindInvalidInput, errors.New("unknown record: "+id))
	}
	if !e.record.SetState(model.StateRunning) {
		return errors.Classify(errors.KindInvalidInput, errors.New("record not paused: "+id))
	}

	select {
	case <-prevDone:
	case <-ctx.Done():
		return errors.Classify(errors.KindTimeout, ctx.Err())
	}

	runCtx, cancel := context.WithCancel(ctx)
	newDone := make(chan struct{})
	p.mu.Lock()
	e.ctx = runCtx
	e.cancel = cancel
	e.done = newDone
	p.mu.Unlock()

	if isLarge(e.record.Spec) {
		go p.runEntry(runCtx, e, newDone)
	} else {
		p.smallQueue <- e
	}
	return nil
}

// Takeover implements spec.md §4.6's receiving side: if a record for dest
// already exists its URL is updated in place, otherwise a new record is
// admitted with size_hint unknown (the filesystem monitor observes a file
// already on disk, not a size hint).
func (p *Pool) Takeover(ctx context.Context, req TakeoverRequest) string {
	if existing, ok := p.FindByDest(req.FilePath); ok {
		if req.URL != "" {
			existing.SetSourceURI(req.URL)
		}
		return existing.ID
	}

	// req.FilePath is always absolute (the filesystem monitor reports real
	// paths it observed), and req.URL may be empty (heuristic classification
	// has no URL to offer), so this builds the spec directly rather than
	// going through DownloadSpec.Resolve, which requires a non-empty
	// source_uri.
	spec := model.DownloadSpec{
		SourceURI: req.URL,
		DestPath:  req.FilePath,
		SizeHint:  -1,
		Mode:      model.ModeAuto,
	}
	return p.Add(ctx, spec, req.PID)
}

// TakeoverRequest mirrors fsmonitor.TakeoverRequest without importing that
// package, avoiding an import cycle (fsmonitor depends on ipc, not pool).
type TakeoverRequest struct {
	FilePath string `json:"file_path"`
	URL      string `json:"url,omitempty"`
	PID      int    `json:"pid,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
}

// Status returns a snapshot of every tracked record.
func (p *Pool) Status() StatusResponse {
	records := p.All()
	out := make([]model.Snapshot, 0, len(records))
	for _, r := range records {
		out = append(out, r.Snapshot())
	}
	return StatusResponse{Records: out}
}

// SpinDownThread lowers a record's thread-count hint by count (floored at
// 1, SPEC_FULL.md §9.1's resolution of spec.md's open question). This does
// not touch the record's current run: a parallel fetch already in progress
// chose its strategy from the hint at probe time and its dispatched range
// workers keep running to completion, so the effect is best-effort and only
// shows up the next time the record is probed (i.e. after a Pause/Resume).
func (p *Pool) SpinDownThread(ctx context.Context, id string, count int) error {
	record, _, ok := p.Get(id)
	if !ok {
		return errors.Classify(errors.KindInvalidInput, errors.New("unknown record: "+id))
	}
	record.LowerThreadCountHint(count)
	return nil
}
