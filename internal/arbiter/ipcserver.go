package arbiter

import (
	"context"
	"encoding/json"

	"github.com/throttlehq/throttle/internal/ipc"
)

// setPrioRequest is the payload for GUI_SET_PRIO.
type setPrioRequest struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// downloadEventRequest is the payload for DOWNLOAD_EVENT: a lightweight
// notification from the pool/engine. The arbiter checks that it decodes and
// acknowledges it; the event is not stored, logged or added to the snapshot.
type downloadEventRequest struct {
	ID    string `json:"id"`
	Event string `json:"event"`
}

// Handler builds the port-54321 IPC handler for GUI, GUI_SET_CONFIG,
// GUI_SET_PRIO, DOWNLOAD_EVENT, IDLE_WAIT and BANDWIDTH_QUERY (spec.md §6's
// port table).
func (a *Arbiter) Handler() ipc.Handler {
	return func(ctx context.Context, req ipc.Request) ipc.Response {
		switch req.Name() {
		case "GUI", "BANDWIDTH_QUERY":
			return ipc.WithData(a.State.Snapshot())

		case "GUI_SET_CONFIG":
			// Config changes (watch roots, tunables) are acknowledged but not
			// applied: the arbiter does not re-read configuration while it
			// runs.
			return ipc.OK()

		case "GUI_SET_PRIO":
			var body setPrioRequest
			if err := json.Unmarshal(req.Data, &body); err != nil {
				return ipc.Err(err)
			}
			if err := a.State.SetPriority(body.Name, body.Priority); err != nil {
				return ipc.Err(err)
			}
			return ipc.OK()

		case "DOWNLOAD_EVENT":
			var body downloadEventRequest
			if err := json.Unmarshal(req.Data, &body); err != nil {
				return ipc.Err(err)
			}
			// Purely observational: the pool remains the source of truth
			// for record state, and the decoded event is discarded.
			return ipc.OK()

		case "IDLE_WAIT":
			a.IdleWait(ctx)
			return ipc.OK()

		default:
			return ipc.UnknownCommand()
		}
	}
}
