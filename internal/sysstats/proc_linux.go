//go:build linux

package sysstats

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/throttlehq/throttle/internal/errors"
)

// ProcSampler reads /proc to answer Sampler. It is the default Sampler on
// Linux; spec.md §4.4 step 1's "if the measurement is absent" fallback
// covers every platform this cannot run on.
type ProcSampler struct{}

func NewProcSampler() *ProcSampler { return &ProcSampler{} }

// NetSample sums rx/tx bytes across all non-loopback interfaces listed in
// /proc/net/dev.
func (ProcSampler) NetSample(ctx context.Context) (NetCounters, error) {
	f, err := os.Open("/proc/net/dev")
	if err != nil {
		return NetCounters{}, errors.Classify(errors.KindResource, err)
	}
	defer f.Close()

	var sent, recv uint64
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo <= 2 {
			continue // header lines
		}
		line := scanner.Text()
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		iface := strings.TrimSpace(parts[0])
		if iface == "lo" {
			continue
		}
		fields := strings.Fields(parts[1])
		if len(fields) < 9 {
			continue
		}
		if v, err := strconv.ParseUint(fields[0], 10, 64); err == nil {
			recv += v
		}
		if v, err := strconv.ParseUint(fields[8], 10, 64); err == nil {
			sent += v
		}
	}
	return NetCounters{BytesSent: sent, BytesRecv: recv, At: time.Now()}, nil
}

// CPUPercent samples /proc/stat twice 200ms apart and returns the
// non-idle fraction over that window.
func (p ProcSampler) CPUPercent(ctx context.Context) (float64, error) {
	a, err := readCPUTotals()
	if err != nil {
		return 0, err
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(200 * time.Millisecond):
	}
	b, err := readCPUTotals()
	if err != nil {
		return 0, err
	}

	totalDelta := b.total - a.total
	idleDelta := b.idle - a.idle
	if totalDelta <= 0 {
		return 0, nil
	}
	busy := float64(totalDelta-idleDelta) / float64(totalDelta)
	return busy * 100, nil
}

type cpuTotals struct {
	total uint64
	idle  uint64
}

func readCPUTotals() (cpuTotals, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuTotals{}, errors.Classify(errors.KindResource, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return cpuTotals{}, errors.Classify(errors.KindResource, errors.New("empty /proc/stat"))
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuTotals{}, errors.Classify(errors.KindResource, errors.New("unexpected /proc/stat format"))
	}

	var total uint64
	var idle uint64
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		total += v
		if i == 3 { // idle field
			idle = v
		}
	}
	return cpuTotals{total: total, idle: idle}, nil
}

// Processes is best-effort: it walks /proc/<pid>/{comm,io} and returns
// whatever it can read, skipping processes it lacks permission for.
// spec.md §4.4's failure semantics ("process-enumeration failures exclude
// that candidate for one tick") means partial results here are acceptable.
func (ProcSampler) Processes(ctx context.Context) ([]ProcessIO, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, errors.Classify(errors.KindResource, err)
	}

	var out []ProcessIO
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile("/proc/" + e.Name() + "/comm")
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(comm))

		var rd, wr uint64
		if io, err := os.ReadFile("/proc/" + e.Name() + "/io"); err == nil {
			for _, line := range strings.Split(string(io), "\n") {
				fields := strings.Fields(line)
				if len(fields) != 2 {
					continue
				}
				switch fields[0] {
				case "read_bytes:":
					rd, _ = strconv.ParseUint(fields[1], 10, 64)
				case "write_bytes:":
					wr, _ = strconv.ParseUint(fields[1], 10, 64)
				}
			}
		}

		out = append(out, ProcessIO{Name: name, PID: pid, ReadBytes: rd, WriteBytes: wr})
	}
	return out, nil
}

func (p ProcSampler) RunningProcessNames(ctx context.Context, names []string) (map[string]bool, error) {
	procs, err := p.Processes(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = true
	}
	result := make(map[string]bool, len(names))
	for _, p := range procs {
		if want[strings.ToLower(p.Name)] {
			result[p.Name] = true
		}
	}
	return result, nil
}
