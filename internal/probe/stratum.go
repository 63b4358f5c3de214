package probe

import (
	"context"
	"net"
	"strconv"
	"time"
)

type StratumProber struct {
	Timeout time.Duration
}

func NewStratumProber(timeout time.Duration) *StratumProber {
	return &StratumProber{Timeout: timeout}
}

// Probe reports success iff a TCP connection to host:port opens within the timeout.
func (s *StratumProber) Probe(ctx context.Context, host string, port int) Outcome {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	start := time.Now()

	dialer := net.Dialer{Timeout: s.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		return Outcome{Reason: classify(err), Message: err.Error(), LatencyMS: latency}
	}
	_ = conn.Close()

	return Outcome{Success: true, Message: "open", LatencyMS: latency}
}
