package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/throttlehq/throttle/internal/supervisor"
)

// roleCmd is the internal "throttle role <name>" subcommand the Supervisor
// spawns via self-exec (SPEC_FULL.md §6). It is not part of spec.md's
// three documented top-level flags.
var roleCmd = &cobra.Command{
	Use:       "role <arbiter|pool|fsmonitor|supervisor|watchdog|systemmanager>",
	Short:     "Run a single role in the foreground (used internally by the supervisor)",
	Hidden:    true,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"arbiter", "pool", "fsmonitor", "supervisor", "watchdog", "systemmanager"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRole(cmd.Context(), args[0])
	},
}

func runRole(ctx context.Context, name string) error {
	switch name {
	case "arbiter":
		return runArbiterRole(ctx)
	case "pool":
		return runPoolRole(ctx)
	case "fsmonitor":
		return runFSMonitorRole(ctx)
	case "supervisor":
		return runSupervisorRole(ctx)
	case "watchdog":
		// A bare watchdog role is only meaningful paired with a target; the
		// supervisor drives Watchdog in-process rather than spawning this
		// subcommand for itself.
		return runSupervisorRole(ctx)
	case "systemmanager":
		return runSystemManagerRole(ctx)
	default:
		return cobra.ErrSubCommandRequired
	}
}

func runSupervisorRole(ctx context.Context) error {
	sup := supervisor.New(supervisor.DefaultSpawner)
	return sup.Run(ctx)
}
