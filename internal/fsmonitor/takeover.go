package fsmonitor

import (
	"github.com/throttlehq/throttle/internal/config"
	"github.com/throttlehq/throttle/internal/debug"
	"github.com/throttlehq/throttle/internal/ipc"
)

// IPCTakeover builds a Takeover callback that sends each request to the
// pool's takeover port as a TAKEOVER command (spec.md §4.6: "Emit a
// takeover request to the download-manager pool").
func IPCTakeover(token string) Takeover {
	client := ipc.NewClient(config.PortPoolTakeover, token)
	return func(req TakeoverRequest) {
		resp, err := client.Command("TAKEOVER", req)
		if err != nil {
			debug.Log("fsmonitor: takeover request for %s failed: %v", req.FilePath, err)
			return
		}
		if resp.Status != ipc.StatusOK {
			debug.Log("fsmonitor: takeover request for %s rejected: %s %s", req.FilePath, resp.Status, resp.Error)
		}
	}
}
