package arbiter

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/throttlehq/throttle/internal/errors"
	"github.com/throttlehq/throttle/internal/model"
)

// State is the arbiter's published state, owned by a single writer (the
// control-loop goroutine) and snapshotted for concurrent IPC readers —
// spec.md's Design Notes §9 calls out "global mutable state" as an
// anti-pattern to remove in favor of exactly this: an explicit value type
// behind one lock, not bare module-level variables.
type State struct {
	mu                sync.RWMutex
	snapshot          model.AllocationSnapshot
	priorityOverrides map[string]int
	overridesPath     string
	idleWaitCh        chan struct{}
}

// NewState builds an empty State, loading any persisted priority overrides
// from overridesPath (SPEC_FULL.md §10, "priority-override persistence" —
// a feature the Python original's system_manager.py has that spec.md's
// distillation dropped).
func NewState(overridesPath string) *State {
	s := &State{
		priorityOverrides: make(map[string]int),
		overridesPath:     overridesPath,
		idleWaitCh:        make(chan struct{}),
	}
	s.loadOverrides()
	return s
}

func (s *State) loadOverrides() {
	buf, err := os.ReadFile(s.overridesPath)
	if err != nil {
		return
	}
	var m map[string]int
	if err := json.Unmarshal(buf, &m); err == nil {
		s.priorityOverrides = m
	}
}

func (s *State) saveOverrides() error {
	buf, err := json.Marshal(s.priorityOverrides)
	if err != nil {
		return errors.Classify(errors.KindInvalidInput, err)
	}
	if err := os.WriteFile(s.overridesPath, buf, 0o644); err != nil {
		return errors.Classify(errors.KindDisk, err)
	}
	return nil
}

// Publish replaces the current snapshot. Called once per tick by the
// control loop (spec.md §5, "Arbiter publishes one snapshot per tick;
// consumers observe consistent snapshots").
func (s *State) Publish(snap model.AllocationSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

// Snapshot returns the most recently published AllocationSnapshot.
func (s *State) Snapshot() model.AllocationSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// SetPriority updates one candidate's priority override and persists the
// whole table, returning any error from writing it.
func (s *State) SetPriority(name string, priority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priorityOverrides[name] = priority
	return s.saveOverrides()
}

// Priorities returns a copy of the current priority-override table.
func (s *State) Priorities() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.priorityOverrides))
	for k, v := range s.priorityOverrides {
		out[k] = v
	}
	return out
}

// PriorityFor returns name's override, or def if none is set.
func (s *State) PriorityFor(name string, def float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.priorityOverrides[name]; ok {
		return float64(p)
	}
	return def
}

// IdleWaitChan returns the channel currently open for IdleWait to block on.
// Reading it under the same lock tick's MarkIdleActive/ResetIdleWait use
// keeps the channel's read and its reassignment from racing.
func (s *State) IdleWaitChan() chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idleWaitCh
}

// MarkIdleActive closes the current idle-wait channel, waking every blocked
// IdleWait call, unless it is already closed from an earlier idle tick.
func (s *State) MarkIdleActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.idleWaitCh:
	default:
		close(s.idleWaitCh)
	}
}

// ResetIdleWait installs a fresh, open idle-wait channel for the next idle
// period to close.
func (s *State) ResetIdleWait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleWaitCh = make(chan struct{})
}
