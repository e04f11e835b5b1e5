package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a record's position in the state machine from spec.md §4.4:
// queued -> probing -> running <-> paused -> finalizing -> done, with any
// state able to transition to failed.
type State string

const (
	StateQueued     State = "queued"
	StateProbing    State = "probing"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// validTransitions encodes the state machine. failed is reachable from any
// non-terminal state and is checked separately in Record.SetState.
var validTransitions = map[State][]State{
	StateQueued:     {StateProbing},
	StateProbing:    {StateRunning},
	StateRunning:    {StatePaused, StateFinalizing},
	StatePaused:     {StateRunning},
	StateFinalizing: {StateDone},
}

// Record is the mutable state the pool owns for one download. All field
// access beyond construction goes through the locked accessors below: the
// pool's own goroutine is the sole mutator (spec.md §5's "active-record map
// is mutated only by the pool's own task"), but the arbiter and IPC
// handlers read it concurrently, so reads also take the lock.
type Record struct {
	ID         string
	Spec       DownloadSpec
	OriginPID  int
	StartedAt  time.Time

	mu              sync.Mutex
	bytesWritten    int64
	totalSizeKnown  int64 // -1 if unknown
	state           State
	assignedRateBps int64
	workerRef       string
	score           float64
	lastActivityAt  time.Time
}

// NewRecord admits spec as a new record in the queued state.
func NewRecord(spec DownloadSpec, originPID int) *Record {
	now := time.Now()
	return &Record{
		ID:             uuid.NewString(),
		Spec:           spec,
		OriginPID:      originPID,
		StartedAt:      now,
		state:          StateQueued,
		totalSizeKnown: spec.SizeHint,
		lastActivityAt: now,
	}
}

func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetState validates and applies a transition. failed is always accepted
// from a non-terminal state; other transitions must appear in
// validTransitions.
func (r *Record) SetState(next State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return false
	}
	if next == StateFailed {
		r.state = next
		return true
	}
	for _, allowed := range validTransitions[r.state] {
		if allowed == next {
			r.state = next
			return true
		}
	}
	return false
}

// AddBytesWritten advances the monotonic bytes_written counter and touches
// last_activity_at. Negative deltas are rejected to preserve the
// monotonic-progress invariant from spec.md §8.
func (r *Record) AddBytesWritten(delta int64) {
	if delta < 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytesWritten += delta
	r.lastActivityAt = time.Now()
}

func (r *Record) BytesWritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytesWritten
}

func (r *Record) SetAssignedRateBps(bps int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignedRateBps = bps
}

func (r *Record) AssignedRateBps() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignedRateBps
}

func (r *Record) SetScore(score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.score = score
}

func (r *Record) SetWorkerRef(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workerRef = ref
}

func (r *Record) WorkerRef() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workerRef
}

// SetSourceURI updates the record's source URI, used when a filesystem-
// monitor takeover correlates a previously URL-less record with an
// origin URL discovered after admission (spec.md §4.6).
func (r *Record) SetSourceURI(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Spec.SourceURI = uri
}

// LowerThreadCountHint reduces Spec.ThreadCountHint by count, floored at 1,
// under the same lock Snapshot and SetSourceURI use. ThreadCountHint is the
// one Spec field the pool adjusts post-admission (spec.md's "SPIN_DOWN_THREAD"
// command), so it is mutated through this accessor rather than in place.
func (r *Record) LowerThreadCountHint(count int) int {
	if count < 1 {
		count = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Spec.ThreadCountHint -= count
	if r.Spec.ThreadCountHint < 1 {
		r.Spec.ThreadCountHint = 1
	}
	return r.Spec.ThreadCountHint
}

func (r *Record) SetTotalSize(size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalSizeKnown = size
}

func (r *Record) TotalSize() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalSizeKnown
}

func (r *Record) LastActivityAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivityAt
}

// Snapshot is an immutable, lock-free copy of a Record's fields, suitable
// for IPC responses (spec.md's "STATUS" class calls) and arbiter scoring.
type Snapshot struct {
	ID              string
	Spec            DownloadSpec
	State           State
	BytesWritten    int64
	TotalSizeKnown  int64
	AssignedRateBps int64
	Score           float64
	LastActivityAt  time.Time
	StartedAt       time.Time
}

func (r *Record) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		ID:              r.ID,
		Spec:            r.Spec,
		State:           r.state,
		BytesWritten:    r.bytesWritten,
		TotalSizeKnown:  r.totalSizeKnown,
		AssignedRateBps: r.assignedRateBps,
		Score:           r.score,
		LastActivityAt:  r.lastActivityAt,
		StartedAt:       r.StartedAt,
	}
}
