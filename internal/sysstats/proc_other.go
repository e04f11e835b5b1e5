//go:build !linux

package sysstats

import (
	"context"

	"github.com/throttlehq/throttle/internal/errors"
)

// ProcSampler is a stub on non-Linux platforms: every call reports a
// measurement failure, which the arbiter's fallback (spec.md §4.4 step 1)
// is explicitly designed to absorb.
type ProcSampler struct{}

func NewProcSampler() *ProcSampler { return &ProcSampler{} }

var errUnsupported = errors.Classify(errors.KindResource, errors.New("sysstats: /proc sampling unsupported on this platform"))

func (ProcSampler) NetSample(ctx context.Context) (NetCounters, error) { return NetCounters{}, errUnsupported }
func (ProcSampler) CPUPercent(ctx context.Context) (float64, error)    { return 0, errUnsupported }
func (ProcSampler) Processes(ctx context.Context) ([]ProcessIO, error) { return nil, errUnsupported }
func (ProcSampler) RunningProcessNames(ctx context.Context, names []string) (map[string]bool, error) {
	return nil, errUnsupported
}
