package sysstats

import (
	"context"
	"time"
)

// Fake is an in-memory Sampler + LatencyProbe for deterministic tests, the
// injection point spec.md's Design Notes §9 calls for.
type Fake struct {
	Net       NetCounters
	NetErr    error
	CPU       float64
	CPUErr    error
	Procs     []ProcessIO
	ProcsErr  error
	Running   map[string]bool
	LatMeanMs float64
	LatStdev  float64
	LatErr    error
}

func (f *Fake) NetSample(ctx context.Context) (NetCounters, error) { return f.Net, f.NetErr }
func (f *Fake) CPUPercent(ctx context.Context) (float64, error)    { return f.CPU, f.CPUErr }
func (f *Fake) Processes(ctx context.Context) ([]ProcessIO, error) { return f.Procs, f.ProcsErr }
func (f *Fake) RunningProcessNames(ctx context.Context, names []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, n := range names {
		if f.Running[n] {
			out[n] = true
		}
	}
	return out, nil
}
func (f *Fake) Measure(ctx context.Context, host string, count int, timeout time.Duration) (float64, float64, []float64, error) {
	return f.LatMeanMs, f.LatStdev, nil, f.LatErr
}
