package supervisor

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/throttlehq/throttle/internal/debug"
)

// respawnBackoff returns the fixed 5 s respawn delay spec.md §7.7 assigns
// to a role that exits fatally on a ResourceError (listener bind failure).
func respawnBackoff() backoff.BackOff {
	return backoff.NewConstantBackOff(5 * time.Second)
}

// Spawner starts one role as a subprocess. The default implementation
// self-execs the current binary with "role <name>" (cmd/throttle's
// internal role dispatch), the same self-exec-a-subprocess shape as
// restic's foreground.go starting the ssh subprocess for SFTP, simplified
// here since a background service role needs no TTY process-group
// handoff — it just needs cmd.Start() and a way to wait on exit.
type Spawner func(role string) (*exec.Cmd, error)

// DefaultSpawner re-execs the running binary as "<self> role <name>",
// inheriting stdio so role output reaches the supervisor's own log.
func DefaultSpawner(role string) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}
	cmd := exec.Command(self, "role", role)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Watchdog wraps one role's process, restarting it whenever its heartbeat
// file goes stale (spec.md §4.7: "restarts it if the file is older than
// 15 s") or the process exits on its own.
type Watchdog struct {
	Role    string
	Spawner Spawner

	pollInterval time.Duration
	spawnBackoff backoff.BackOff
}

// NewWatchdog builds a Watchdog for role using spawner (DefaultSpawner if
// nil).
func NewWatchdog(role string, spawner Spawner) *Watchdog {
	if spawner == nil {
		spawner = DefaultSpawner
	}
	return &Watchdog{Role: role, Spawner: spawner, pollInterval: 2 * time.Second, spawnBackoff: respawnBackoff()}
}

// Run spawns the role and supervises it until ctx is done, restarting on
// staleness or unexpected exit.
func (w *Watchdog) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		cmd, err := w.Spawner(w.Role)
		if err != nil {
			delay := w.spawnBackoff.NextBackOff()
			debug.Log("watchdog(%s): spawn failed: %v, retrying in %s", w.Role, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}
		w.spawnBackoff.Reset()

		exited := make(chan error, 1)
		go func() { exited <- cmd.Wait() }()

		w.monitor(ctx, cmd, exited)
	}
}

// monitor blocks until the process exits, goes stale, or ctx is done,
// killing a stale process before returning so the outer loop can respawn.
func (w *Watchdog) monitor(ctx context.Context, cmd *exec.Cmd, exited chan error) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-exited
			return
		case err := <-exited:
			if err != nil {
				debug.Log("watchdog(%s): process exited: %v", w.Role, err)
			} else {
				debug.Log("watchdog(%s): process exited cleanly", w.Role)
			}
			return
		case <-ticker.C:
			if IsStale(w.Role) {
				debug.Log("watchdog(%s): heartbeat stale past %s, restarting", w.Role, WatchdogGrace)
				_ = cmd.Process.Kill()
				<-exited
				return
			}
		}
	}
}
