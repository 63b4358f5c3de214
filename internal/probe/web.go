package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBodyBytes = 1 << 20

type WebProber struct {
	Client *http.Client
}

// NewWebProber builds a prober whose requests are bounded by timeout.
// insecure disables TLS certificate verification for this client only.
func NewWebProber(timeout time.Duration, insecure bool) *WebProber {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DisableKeepAlives = true
	if insecure {
		tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true} //nolint:gosec
	}
	return &WebProber{
		Client: &http.Client{Timeout: timeout, Transport: tr},
	}
}

// Probe issues one GET against url and decodes the body as JSON.
// The status code does not decide the outcome: an error page that still
// carries the JSON payload is a success, anything else a parse failure.
func (w *WebProber) Probe(ctx context.Context, url string) Outcome {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Outcome{Reason: ReasonConnection, Message: err.Error()}
	}

	resp, err := w.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		return Outcome{Reason: classify(err), Message: err.Error(), LatencyMS: latency}
	}
	defer resp.Body.Close()


	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Outcome{
			Reason:     classify(err),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("read body: %v", err),
			LatencyMS:  latency,
		}
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return Outcome{
			Reason:     ReasonParse,
			Body:       body,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s: decode json: %v", resp.Status, err),
			LatencyMS:  latency,
		}
	}

	return Outcome{
		Success:    true,
		Body:       body,
		Data:       data,
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
		LatencyMS:  latency,
	}
}
