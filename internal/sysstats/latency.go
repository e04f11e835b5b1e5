package sysstats

import (
	"context"
	"math"
	"net"
	"time"
)

// TCPLatencyProbe measures round-trip latency as TCP connect time to
// host:443, falling back to host:80. This avoids needing raw-socket
// privileges for ICMP, which the "ping" tool spec.md's Design Notes §9
// wants replaced would otherwise require.
type TCPLatencyProbe struct{}

func NewTCPLatencyProbe() *TCPLatencyProbe { return &TCPLatencyProbe{} }

func (TCPLatencyProbe) Measure(ctx context.Context, host string, count int, timeout time.Duration) (float64, float64, []float64, error) {
	samples := make([]float64, 0, count)
	dialer := net.Dialer{Timeout: timeout}

	for i := 0; i < count; i++ {
		start := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "443"))
		if err != nil {
			conn, err = dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "80"))
		}
		if err != nil {
			continue
		}
		elapsed := time.Since(start)
		_ = conn.Close()
		samples = append(samples, float64(elapsed.Microseconds())/1000.0)
	}

	if len(samples) == 0 {
		return 0, 0, nil, nil
	}
	mean := meanOf(samples)
	return mean, stdevOf(samples, mean), samples, nil
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}
