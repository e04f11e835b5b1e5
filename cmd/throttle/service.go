package main

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/throttlehq/throttle/internal/arbiter"
	"github.com/throttlehq/throttle/internal/config"
	"github.com/throttlehq/throttle/internal/engine"
	"github.com/throttlehq/throttle/internal/fsmonitor"
	"github.com/throttlehq/throttle/internal/ipc"
	"github.com/throttlehq/throttle/internal/model"
	"github.com/throttlehq/throttle/internal/pool"
	"github.com/throttlehq/throttle/internal/supervisor"
	"github.com/throttlehq/throttle/internal/sysstats"
	"github.com/throttlehq/throttle/internal/transport"
)

// pollPeriod is how often the arbiter and pool processes poll each other's
// IPC surface, matching the arbiter's own tick period (spec.md §4.4) since
// polling faster than the data changes buys nothing.
const pollPeriod = 2 * time.Second

// gameProcessList is the known-game process list spec.md §4.4 step 6
// checks before reserving bandwidth for interactive latency.
var gameProcessList = []string{"steam.exe", "steam", "csgo.exe", "dota2.exe"}

// runService implements spec.md §6's --service flag: "run as the bandwidth
// arbiter role."
func runService(ctx context.Context) error {
	return runArbiterRole(ctx)
}

// defaultRegistry builds a transport.Registry with every adapter spec.md
// §4.2 names, reachable from both the one-shot --download path and the
// pool-driven engine role.
func defaultRegistry() *transport.Registry {
	r := transport.NewRegistry()
	r.Register(transport.NewHTTPAdapter("http"))
	r.Register(transport.NewHTTPAdapter("https"))
	r.Register(transport.FileAdapter{})
	r.Register(transport.DataURIAdapter{})
	r.Register(transport.NewFTPAdapter())
	r.Register(transport.NewSFTPAdapter())
	r.Register(transport.NewSMBAdapter())
	r.Register(transport.NewS3Adapter())
	return r
}

// engineRunner adapts *engine.Engine to pool.Runner: the two method
// signatures are structurally identical but Go's interface satisfaction
// requires the named parameter type to match exactly, so pool.go's own
// comment calls for "a thin adapter in cmd/throttle."
type engineRunner struct {
	eng *engine.Engine
}

func (r engineRunner) Run(ctx context.Context, record *model.Record, rate func() int64) error {
	return r.eng.Run(ctx, record, engine.RateSource(rate))
}

// runArbiterRole runs the Bandwidth Arbiter standalone: its own tick loop,
// heartbeat, and the port-54321 GUI/BANDWIDTH_QUERY/GUI_SET_PRIO/
// DOWNLOAD_EVENT/IDLE_WAIT IPC surface (spec.md §4.4, §6). Since the
// arbiter and the pool run as separate processes under the supervisor
// (spec.md §4.7's role list), the arbiter's Source polls the pool's
// TRACKED_RECORDS command rather than reading an in-process map; Push is
// left nil, and the pool's own poll loop (see runPoolRole) fetches the
// arbiter's published snapshot instead (see internal/pool.ApplyAllocation's
// doc comment).
func runArbiterRole(ctx context.Context) error {
	token, err := config.Token()
	if err != nil {
		return err
	}

	state := arbiter.NewState("priority_overrides.json")
	a := arbiter.New(
		state,
		sysstats.NewProcSampler(),
		sysstats.NewTCPLatencyProbe(),
		gameProcessList,
		arbiterSourceOverIPC(token),
		nil,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		supervisor.RunHeartbeat(ctx, "arbiter")
		return nil
	})
	g.Go(func() error {
		a.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return ipc.NewServer(config.PortArbiter, token, a.Handler()).ListenAndServe(ctx)
	})
	return g.Wait()
}

// arbiterSourceOverIPC builds an arbiter.Source that polls the pool's
// TRACKED_RECORDS command each tick. The returned TrackedRecord.Limiter is
// always nil: a *rate.Limiter cannot cross the IPC boundary, so applyRates
// is a no-op here and the pool applies the published allocation itself.
func arbiterSourceOverIPC(token string) arbiter.Source {
	client := ipc.NewClient(config.PortPoolCommands, token)
	return func() []arbiter.TrackedRecord {
		resp, err := client.Command("TRACKED_RECORDS", nil)
		if err != nil || resp.Status != ipc.StatusOK {
			return nil
		}
		var views []pool.TrackedRecordView
		if err := json.Unmarshal(resp.Data, &views); err != nil {
			return nil
		}
		out := make([]arbiter.TrackedRecord, len(views))
		for i, v := range views {
			out[i] = arbiter.TrackedRecord{
				ID:            v.ID,
				Large:         v.Large,
				SizeBytes:     v.SizeBytes,
				ActivityBytes: v.ActivityBytes,
			}
		}
		return out
	}
}

// runPoolRole runs the Download Manager Pool standalone: admission,
// classification, the takeover listener (port 54323) and the command
// listener (port 54506), plus a background loop applying the arbiter's
// published allocation every pollPeriod (spec.md §4.5, §4.4 step 7).
func runPoolRole(ctx context.Context) error {
	token, err := config.Token()
	if err != nil {
		return err
	}

	reg := defaultRegistry()
	var torrentAdapter transport.TorrentAdapter
	if adapter, err := transport.NewMagnetAdapter(); err == nil {
		torrentAdapter = adapter
	} // else torrent support degrades gracefully, leaving torrentAdapter a true nil interface
	eng := engine.New(reg, torrentAdapter, nil)
	p := pool.New(engineRunner{eng: eng})
	p.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		supervisor.RunHeartbeat(ctx, "pool")
		return nil
	})
	g.Go(func() error {
		return ipc.NewServer(config.PortPoolTakeover, token, p.TakeoverHandler()).ListenAndServe(ctx)
	})
	g.Go(func() error {
		return ipc.NewServer(config.PortPoolCommands, token, p.Handler()).ListenAndServe(ctx)
	})
	g.Go(func() error {
		pollArbiterAllocation(ctx, token, p)
		return nil
	})
	return g.Wait()
}

// pollArbiterAllocation fetches the arbiter's BANDWIDTH_QUERY snapshot
// every pollPeriod and applies it to the pool's live rate.Limiters, the
// mirror image of arbiterSourceOverIPC.
func pollArbiterAllocation(ctx context.Context, token string, p *pool.Pool) {
	client := ipc.NewClient(config.PortArbiter, token)
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := client.Command("BANDWIDTH_QUERY", nil)
			if err != nil || resp.Status != ipc.StatusOK {
				continue
			}
			var snap model.AllocationSnapshot
			if err := json.Unmarshal(resp.Data, &snap); err != nil {
				continue
			}
			p.ApplyAllocation(snap)
		}
	}
}

// runFSMonitorRole runs the Filesystem Monitor standalone, emitting
// takeover requests to the pool's port-54323 listener (spec.md §4.6).
func runFSMonitorRole(ctx context.Context) error {
	token, err := config.Token()
	if err != nil {
		return err
	}

	m, err := fsmonitor.New(fsmonitor.DefaultRoots(), fsmonitor.IPCTakeover(token), fsmonitor.DefaultHasher())
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		supervisor.RunHeartbeat(ctx, "fsmonitor")
		return nil
	})
	g.Go(func() error {
		return m.Run(ctx)
	})
	return g.Wait()
}

// runSystemManagerRole runs the System Manager: credential provisioning,
// the TLS diagnostics listener on port 54443, and the arbiter-down-pauses-
// dependents / arbiter-back-up-resumes-dependents ordering rule (spec.md
// §4.7).
func runSystemManagerRole(ctx context.Context) error {
	sup := supervisor.New(supervisor.DefaultSpawner)

	bootToken, err := config.Token()
	if err != nil {
		return err
	}
	poolClient := ipc.NewClient(config.PortPoolCommands, bootToken)

	mgr := supervisor.NewSystemManager(sup.RoleStatus,
		func(ctx context.Context) { _, _ = poolClient.Command("PAUSE", idRequest{}) },
		func(ctx context.Context) { _, _ = poolClient.Command("RESUME", idRequest{}) },
	)
	if _, err := mgr.EnsureCredentials(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(ctx)
	})
	g.Go(func() error {
		return mgr.ListenDiagnostics(ctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(heartbeatPollPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				mgr.EnforceWorkflowOrder(ctx)
			}
		}
	})
	return g.Wait()
}

// heartbeatPollPeriod is how often the System Manager re-checks role
// liveness to decide whether to apply EnforceWorkflowOrder (spec.md §4.7
// ties this to the same cadence as the Supervisor's own heartbeat).
const heartbeatPollPeriod = 2 * time.Second

// idRequest mirrors pool.idRequest (unexported) for PAUSE/RESUME calls
// with no target id, meaning "all" per spec.md §4.5's "PAUSE {id?}".
type idRequest struct {
	ID string `json:"id"`
}
