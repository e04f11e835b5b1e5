package main

import (
	"context"
	"sort"

	"github.com/throttlehq/throttle/internal/supervisor"
)

// statusRoles is the fixed role list status reports liveness for, matching
// supervisor.Roles plus the two roles the supervisor does not itself spawn.
var statusRoles = append(append([]string{}, supervisor.Roles...), "supervisor", "systemmanager")

// runStatus implements spec.md §6's "--status" flag: print a role-running
// and heartbeat-freshness table read directly off the heartbeat files, with
// no IPC round trip required.
func runStatus(ctx context.Context) error {
	roles := append([]string{}, statusRoles...)
	sort.Strings(roles)

	for _, role := range roles {
		state := "down"
		if !supervisor.IsStale(role) {
			state = "up"
		}
		Verbosef("%-14s %s\n", role, state)
	}

	return nil
}
