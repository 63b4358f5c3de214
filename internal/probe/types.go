package probe

import (
	"context"
	"errors"
	"net"
)

// FailureReason classifies why a single probe attempt failed.
type FailureReason string

const (
	ReasonTimeout    FailureReason = "timeout"
	ReasonConnection FailureReason = "connection_error"
	ReasonParse      FailureReason = "parse_error"
)

// Outcome holds the result of a single probe attempt.
//
// Fields:
//   - Reason: empty on success.
//   - Body, Data: raw and decoded API response; web probes only.
//   - StatusCode: HTTP status when a response was received; 0 otherwise.
type Outcome struct {
	Success    bool          `json:"success"`
	Reason     FailureReason `json:"reason,omitempty"`
	Body       []byte        `json:"-"`
	Data       any           `json:"-"`
	StatusCode int           `json:"status_code,omitempty"`
	LatencyMS  float64       `json:"latency_ms,omitempty"`
	Message    string        `json:"message"`
}

// Func performs one probe attempt against a fixed target.
type Func func(ctx context.Context) Outcome

func classify(err error) FailureReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	return ReasonConnection
}
