package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hamed0406/poolwatch/internal/domain"
	apimw "github.com/hamed0406/poolwatch/internal/httpapi/middleware"
	"github.com/hamed0406/poolwatch/internal/metrics"
)

func TestHealthzAndMetrics_NoAuth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveCycle(domain.CycleResult{StratumSkipped: true})

	srv := NewServer(zap.NewNop(), &fakeRunner{}, Targets{}, reg)
	ts := httptest.NewServer(srv.Router(apimw.Keys{Admin: []string{"adm"}}, nil, 0, 0))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: want 200 got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "poolwatch_stratum_skipped_total 1") {
		t.Fatalf("metrics missing skip counter:\n%s", body)
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	srv := NewServer(zap.NewNop(), &fakeRunner{}, Targets{}, prometheus.NewRegistry())
	h := srv.Router(apimw.Keys{}, []string{"https://dash.example"}, 0, 0)

	for origin, want := range map[string]string{
		"https://dash.example": "https://dash.example",
		"https://evil.example": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/targets", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Fatalf("origin %s: want allow-origin %q got %q", origin, want, got)
		}
	}
}
