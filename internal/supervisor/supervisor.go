package supervisor

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Roles is the fixed set of long-lived services the supervisor starts,
// per spec.md §4.7 and SPEC_FULL.md's CLI subcommand surface.
var Roles = []string{"arbiter", "pool", "fsmonitor"}

// Supervisor starts every role under its own Watchdog and writes its own
// heartbeat so a higher-level process manager (or a human) can tell the
// whole fleet is alive.
type Supervisor struct {
	spawner Spawner

	mu   sync.RWMutex
	live map[string]bool
}

// New builds a Supervisor over the default role list.
func New(spawner Spawner) *Supervisor {
	return &Supervisor{spawner: spawner, live: make(map[string]bool)}
}

// Run starts RunHeartbeat("supervisor") plus one Watchdog per role,
// running until ctx is done or a watchdog returns an unrecoverable error.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		RunHeartbeat(ctx, "supervisor")
		return nil
	})

	for _, role := range Roles {
		role := role
		s.setLive(role, true)
		g.Go(func() error {
			defer s.setLive(role, false)
			NewWatchdog(role, s.spawner).Run(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (s *Supervisor) setLive(role string, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[role] = live
}

// RoleStatus reports each role's liveness by heartbeat freshness, suitable
// as a SystemManager's RoleStatus callback.
func (s *Supervisor) RoleStatus() map[string]bool {
	out := make(map[string]bool, len(Roles))
	for _, role := range Roles {
		out[role] = !IsStale(role)
	}
	return out
}
