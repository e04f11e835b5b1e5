// Package supervisor implements the Supervisor/Watchdog/System Manager
// trio from spec.md §4.7: process spawning and respawning, heartbeat-file
// liveness, and the credential-owning TLS diagnostics listener.
package supervisor

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/throttlehq/throttle/internal/config"
	"github.com/throttlehq/throttle/internal/debug"
	"github.com/throttlehq/throttle/internal/errors"
)

const heartbeatPeriod = 2 * time.Second

// WatchdogGrace is spec.md §4.7's staleness threshold: "restarts it if the
// file is older than 15 s."
const WatchdogGrace = 15 * time.Second

// RunHeartbeat writes role's heartbeat file every heartbeatPeriod until ctx
// is done, grounded on cmd/restic/lock.go's refreshLocks ticker loop
// (adapted from repository-lock refresh to a plain liveness timestamp).
func RunHeartbeat(ctx context.Context, role string) {
	if err := writeHeartbeat(role); err != nil {
		debug.Log("supervisor: initial heartbeat for %s failed: %v", role, err)
	}

	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeHeartbeat(role); err != nil {
				debug.Log("supervisor: heartbeat for %s failed: %v", role, err)
			}
		}
	}
}

func writeHeartbeat(role string) error {
	path := config.HeartbeatPath(role)
	buf := []byte(strconv.FormatInt(time.Now().Unix(), 10))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return errors.Classify(errors.KindDisk, err)
	}
	return nil
}

// IsStale reports whether role's heartbeat file is missing or older than
// WatchdogGrace.
func IsStale(role string) bool {
	buf, err := os.ReadFile(config.HeartbeatPath(role))
	if err != nil {
		return true
	}
	ts, err := config.ParseUnixTime(string(buf))
	if err != nil {
		return true
	}
	age := time.Since(time.Unix(ts, 0))
	return age > WatchdogGrace
}
