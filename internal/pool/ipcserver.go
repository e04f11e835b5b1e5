package pool

import (
	"context"
	"encoding/json"

	"github.com/throttlehq/throttle/internal/errors"
	"github.com/throttlehq/throttle/internal/ipc"
	"github.com/throttlehq/throttle/internal/model"
)

var errTakeoverRejected = errors.Classify(errors.KindInvalidInput, errors.New("takeover could not be admitted"))

type idRequest struct {
	ID string `json:"id"`
}

// spinDownThreadRequest is SPIN_DOWN_THREAD's payload (spec.md §4.5:
// "SPIN_DOWN_THREAD {id, count}"). It has its own count field since PAUSE
// and RESUME's idRequest has no operand beyond id.
type spinDownThreadRequest struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// TakeoverHandler builds the port-54323 IPC handler dedicated to the
// filesystem monitor's takeover requests (spec.md §4.6, §6's port table).
// It is a separate listener from Handler's port-54506 command surface
// since the two are addressed independently in spec.md.
func (p *Pool) TakeoverHandler() ipc.Handler {
	return func(ctx context.Context, req ipc.Request) ipc.Response {
		if req.Name() != "TAKEOVER" {
			return ipc.UnknownCommand()
		}
		var body TakeoverRequest
		if err := json.Unmarshal(req.Data, &body); err != nil {
			return ipc.Err(err)
		}
		id := p.Takeover(ctx, body)
		if id == "" {
			return ipc.Err(errTakeoverRejected)
		}
		return ipc.WithData(AddDownloadResponse{ID: id})
	}
}

// Handler builds the port-54506 IPC handler for ADD_DOWNLOAD, PAUSE,
// RESUME, SPIN_DOWN_THREAD and STATUS (spec.md §6's port table; command
// names per SPEC_FULL.md §4.5).
func (p *Pool) Handler() ipc.Handler {
	return func(ctx context.Context, req ipc.Request) ipc.Response {
		switch req.Name() {
		case "ADD_DOWNLOAD":
			var body AddDownloadRequest
			if err := json.Unmarshal(req.Data, &body); err != nil {
				return ipc.Err(err)
			}
			id, err := p.AddDownload(ctx, body)
			if err != nil {
				return ipc.Err(err)
			}
			return ipc.WithData(AddDownloadResponse{ID: id})

		case "PAUSE":
			var body idRequest
			if err := json.Unmarshal(req.Data, &body); err != nil {
				return ipc.Err(err)
			}
			if err := p.Pause(body.ID); err != nil {
				return ipc.Err(err)
			}
			return ipc.OK()

		case "RESUME":
			var body idRequest
			if err := json.Unmarshal(req.Data, &body); err != nil {
				return ipc.Err(err)
			}
			if err := p.Resume(ctx, body.ID); err != nil {
				return ipc.Err(err)
			}
			return ipc.OK()

		case "SPIN_DOWN_THREAD":
			var body spinDownThreadRequest
			if err := json.Unmarshal(req.Data, &body); err != nil {
				return ipc.Err(err)
			}
			if err := p.SpinDownThread(ctx, body.ID, body.Count); err != nil {
				return ipc.Err(err)
			}
			return ipc.OK()

		case "STATUS":
			return ipc.WithData(p.Status())

		case "TRACKED_RECORDS":
			return ipc.WithData(p.TrackedRecords())

		case "APPLY_ALLOCATION":
			var body model.AllocationSnapshot
			if err := json.Unmarshal(req.Data, &body); err != nil {
				return ipc.Err(err)
			}
			p.ApplyAllocation(body)
			return ipc.OK()

		default:
			return ipc.UnknownCommand()
		}
	}
}
