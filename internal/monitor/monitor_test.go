package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/hamed0406/poolwatch/internal/config"
	"github.com/hamed0406/poolwatch/internal/domain"
	"github.com/hamed0406/poolwatch/internal/probe"
)

// --- fakes ---

type fakeWeb struct {
	responses map[string]probe.Outcome // by url; missing means timeout
	calls     []string
	onCall    func()
}

func (f *fakeWeb) Probe(ctx context.Context, url string) probe.Outcome {
	f.calls = append(f.calls, url)
	if f.onCall != nil {
		f.onCall()
	}
	if o, ok := f.responses[url]; ok {
		return o
	}
	return probe.Outcome{Reason: probe.ReasonTimeout, Message: "deadline exceeded"}
}

type fakeStratum struct {
	open  map[string]bool
	calls []string
}

func (f *fakeStratum) Probe(ctx context.Context, host string, port int) probe.Outcome {
	addr := fmt.Sprintf("%s:%d", host, port)
	f.calls = append(f.calls, addr)
	if f.open[addr] {
		return probe.Outcome{Success: true, Message: "open"}
	}
	return probe.Outcome{Reason: probe.ReasonConnection, Message: "connection refused"}
}

type fakeDispatch struct{ actions []domain.RemediationAction }

func (f *fakeDispatch) Dispatch(ctx context.Context, a domain.RemediationAction) {
	f.actions = append(f.actions, a)
}

type fakeNotifier struct {
	titles, texts []string
	ctxErrs       []error
}

func (f *fakeNotifier) Send(ctx context.Context, title, text string) error {
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.titles = append(f.titles, title)
	f.texts = append(f.texts, text)
	return nil
}

type fakeDNS struct{ status probe.DNSStatus }

func (f fakeDNS) Diagnose(ctx context.Context, rawURL string) probe.DNSStatus {
	return f.status
}

// --- helpers ---

func ok(t *testing.T, body string) probe.Outcome {
	t.Helper()
	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return probe.Outcome{Success: true, Body: []byte(body), Data: data, StatusCode: 200}
}

func testConfig() config.Config {
	return config.Config{
		MaxRetry: 3,
		Timezone: "UTC",
		APIPaths: map[string]string{"mpos": "/api"},
		Notify:   config.Notify{Title: "poolwatch"},
		Webs: []domain.WebTarget{{
			ID:            "main",
			Name:          "main",
			URL:           "https://pool.example.com",
			Type:          "mpos",
			RemediationID: "web-api",
			Remediate:     true,
			Pools:         []domain.PoolSpec{{Coin: "btc", Threshold: 100, RemediationID: "btc-worker"}},
		}},
		Stratums: []domain.StratumTarget{{
			ID:            "btc-stratum",
			Name:          "btc-stratum",
			Host:          "pool.example.com",
			Port:          3333,
			RemediationID: "stratum-btc",
		}},
	}
}

type harness struct {
	web      *fakeWeb
	stratum  *fakeStratum
	dispatch *fakeDispatch
	notifier *fakeNotifier
	mon      *Monitor
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	h := &harness{
		web:      &fakeWeb{responses: map[string]probe.Outcome{}},
		stratum:  &fakeStratum{open: map[string]bool{}},
		dispatch: &fakeDispatch{},
		notifier: &fakeNotifier{},
	}
	h.mon = New(cfg, Deps{
		Web:      h.web,
		Stratum:  h.stratum,
		Dispatch: h.dispatch,
		Notifier: h.notifier,
		Logger:   zaptest.NewLogger(t),
	})
	h.mon.now = func() time.Time { return time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC) }
	return h
}

const apiURL = "https://pool.example.com/api"

// --- scenarios ---

func TestRunCycle_ScenarioA_HealthyPool(t *testing.T) {
	h := newHarness(t, testConfig())
	h.web.responses[apiURL] = ok(t, `{"pools":{"btc":{"hashrate":150}}}`)
	h.stratum.open["pool.example.com:3333"] = true

	res := h.mon.RunCycle(context.Background())

	if len(res.Actions) != 0 || len(h.dispatch.actions) != 0 {
		t.Fatalf("want no actions, got %+v", res.Actions)
	}
	if res.Reports[0].Verdict != domain.Healthy || res.Reports[0].Pools[0].Verdict != domain.Healthy {
		t.Fatalf("want healthy web report, got %+v", res.Reports[0])
	}
	if res.StratumSkipped || len(h.stratum.calls) != 1 {
		t.Fatalf("stratum should be checked once, calls=%v", h.stratum.calls)
	}
	if len(h.web.calls) != 1 {
		t.Fatalf("retry should stop at first success, calls=%d", len(h.web.calls))
	}
	if !res.Healthy() {
		t.Fatalf("cycle should be healthy")
	}
}

func TestRunCycle_ScenarioB_APITimesOut(t *testing.T) {
	h := newHarness(t, testConfig())

	res := h.mon.RunCycle(context.Background())

	if len(h.web.calls) != 3 {
		t.Fatalf("want 3 attempts, got %d", len(h.web.calls))
	}
	r := res.Reports[0]
	if r.Verdict != domain.Unreachable || len(r.Pools) != 0 || r.Attempts != 3 {
		t.Fatalf("want unreachable without pools, got %+v", r)
	}
	if len(h.dispatch.actions) != 1 {
		t.Fatalf("want 1 action, got %+v", h.dispatch.actions)
	}
	a := h.dispatch.actions[0]
	if a.RemediationID != "web-api" || a.Reason != domain.Unreachable {
		t.Fatalf("unexpected action %+v", a)
	}
	if !res.StratumSkipped || len(h.stratum.calls) != 0 {
		t.Fatalf("stratum must be skipped, calls=%v", h.stratum.calls)
	}
}

func TestRunCycle_ScenarioC_PoolBelowThreshold(t *testing.T) {
	h := newHarness(t, testConfig())
	h.web.responses[apiURL] = ok(t, `{"pools":{"btc":{"hashrate":50}}}`)

	res := h.mon.RunCycle(context.Background())

	if res.Reports[0].Verdict != domain.BelowThreshold {
		t.Fatalf("want below_threshold, got %s", res.Reports[0].Verdict)
	}
	if len(h.dispatch.actions) != 1 || h.dispatch.actions[0].RemediationID != "btc-worker" ||
		h.dispatch.actions[0].Reason != domain.BelowThreshold {
		t.Fatalf("want one btc-worker action, got %+v", h.dispatch.actions)
	}
	if !res.StratumSkipped || len(h.stratum.calls) != 0 {
		t.Fatalf("stratum must be skipped")
	}
}

func TestRunCycle_ScenarioD_StratumClosed(t *testing.T) {
	h := newHarness(t, testConfig())
	h.web.responses[apiURL] = ok(t, `{"pools":{"btc":{"hashrate":150}}}`)

	res := h.mon.RunCycle(context.Background())

	if len(h.stratum.calls) != 3 {
		t.Fatalf("want 3 stratum attempts, got %d", len(h.stratum.calls))
	}
	last := res.Reports[len(res.Reports)-1]
	if last.Kind != domain.KindStratum || last.Verdict != domain.Unreachable {
		t.Fatalf("want unreachable stratum, got %+v", last)
	}
	if len(h.dispatch.actions) != 1 || h.dispatch.actions[0].RemediationID != "stratum-btc" {
		t.Fatalf("want stratum-btc action, got %+v", h.dispatch.actions)
	}
}

// --- ordering and edge cases ---

func TestRunCycle_WebTargetsInOrderBeforeStratum(t *testing.T) {
	cfg := testConfig()
	second := cfg.Webs[0]
	second.ID, second.Name, second.URL = "backup", "backup", "https://backup.example.com"
	second.Pools = nil
	cfg.Webs = append(cfg.Webs, second)

	h := newHarness(t, cfg)
	h.web.responses[apiURL] = ok(t, `{"pools":{"btc":{"hashrate":150}}}`)
	h.web.responses["https://backup.example.com/api"] = ok(t, `{}`)
	h.stratum.open["pool.example.com:3333"] = true
	var order []string
	h.web.onCall = func() {
		if len(h.stratum.calls) > 0 {
			t.Fatalf("stratum probed before web tier finished")
		}
		order = append(order, h.web.calls[len(h.web.calls)-1])
	}

	res := h.mon.RunCycle(context.Background())

	if len(order) != 2 || order[0] != apiURL || order[1] != "https://backup.example.com/api" {
		t.Fatalf("unexpected web order: %v", order)
	}
	if len(res.Reports) != 3 || res.Reports[2].Kind != domain.KindStratum {
		t.Fatalf("unexpected reports: %+v", res.Reports)
	}
}

func TestRunCycle_LaterWebTargetsStillCheckedAfterAction(t *testing.T) {
	cfg := testConfig()
	second := cfg.Webs[0]
	second.ID, second.Name, second.URL = "backup", "backup", "https://backup.example.com"
	second.RemediationID = "backup-api"
	cfg.Webs = append(cfg.Webs, second)

	h := newHarness(t, cfg)
	// first target down, second target pool low
	h.web.responses["https://backup.example.com/api"] = ok(t, `{"pools":{}}`)

	res := h.mon.RunCycle(context.Background())

	if len(res.Reports) != 2 {
		t.Fatalf("both web targets must be evaluated, got %d reports", len(res.Reports))
	}
	if len(h.dispatch.actions) != 2 || h.dispatch.actions[0].RemediationID != "web-api" ||
		h.dispatch.actions[1].RemediationID != "btc-worker" {
		t.Fatalf("unexpected actions: %+v", h.dispatch.actions)
	}
	if len(h.stratum.calls) != 0 {
		t.Fatalf("stratum must be skipped")
	}
}

func TestRunCycle_IneligibleWebDoesNotSkipStratum(t *testing.T) {
	cfg := testConfig()
	cfg.Webs[0].Remediate = false
	h := newHarness(t, cfg)
	h.stratum.open["pool.example.com:3333"] = true

	res := h.mon.RunCycle(context.Background())

	if res.Reports[0].Verdict != domain.Unreachable {
		t.Fatalf("verdict still reported, got %+v", res.Reports[0])
	}
	if len(h.dispatch.actions) != 0 || res.StratumSkipped || len(h.stratum.calls) != 1 {
		t.Fatalf("no action expected and stratum checked: actions=%v calls=%v", h.dispatch.actions, h.stratum.calls)
	}
}

func TestRunCycle_ParseErrorIsRetriedAndUnreachable(t *testing.T) {
	h := newHarness(t, testConfig())
	h.web.responses[apiURL] = probe.Outcome{Reason: probe.ReasonParse, Message: "decode json: invalid character"}

	res := h.mon.RunCycle(context.Background())

	if len(h.web.calls) != 3 || res.Reports[0].Verdict != domain.Unreachable {
		t.Fatalf("parse errors should exhaust retries and be unreachable: %+v", res.Reports[0])
	}
	if !strings.HasPrefix(res.Reports[0].Reason, "parse_error") {
		t.Fatalf("reason should keep parse_error, got %q", res.Reports[0].Reason)
	}
}

func TestRunCycle_DNSDiagnosisOnUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.DNSDiagnostics = true
	h := newHarness(t, cfg)
	h.mon.deps.DNS = fakeDNS{status: probe.DNSStatus{
		Class:       probe.DNSNoARecord,
		Nameservers: []string{"ns1.example.com", "ns2.example.com"},
	}}

	res := h.mon.RunCycle(context.Background())

	if res.Reports[0].Diagnosis != "dns=NO_A_RECORD ns=ns1.example.com,ns2.example.com" {
		t.Fatalf("want dns diagnosis, got %q", res.Reports[0].Diagnosis)
	}
}

func TestRunCycle_CancelledContextNeverRestarts(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	h.web.onCall = cancel

	res := h.mon.RunCycle(ctx)

	if !res.Aborted {
		t.Fatalf("want aborted cycle")
	}
	if len(h.dispatch.actions) != 0 || len(h.stratum.calls) != 0 {
		t.Fatalf("aborted cycle must not restart or continue: actions=%v", h.dispatch.actions)
	}
}

func TestRunCycle_AbortedCycleStillReportsDispatchedRestarts(t *testing.T) {
	cfg := testConfig()
	second := cfg.Webs[0]
	second.ID, second.Name, second.URL = "backup", "backup", "https://backup.example.com"
	second.RemediationID = "backup-api"
	cfg.Webs = append(cfg.Webs, second)

	h := newHarness(t, cfg)
	h.web.responses[apiURL] = ok(t, `{"pools":{"btc":{"hashrate":50}}}`)
	ctx, cancel := context.WithCancel(context.Background())
	h.web.onCall = func() {
		// shutdown arrives while the second target is being probed
		if len(h.web.calls) == 2 {
			cancel()
		}
	}

	res := h.mon.RunCycle(ctx)

	if !res.Aborted || len(res.Reports) != 1 {
		t.Fatalf("want aborted after first target, got %+v", res)
	}
	if len(h.dispatch.actions) != 1 || h.dispatch.actions[0].RemediationID != "btc-worker" {
		t.Fatalf("only the first target's restart should be dispatched: %+v", h.dispatch.actions)
	}
	if len(h.notifier.texts) != 1 {
		t.Fatalf("want exactly one notification, got %d", len(h.notifier.texts))
	}
	if h.notifier.ctxErrs[0] != nil {
		t.Fatalf("summary must not be sent on the cancelled context: %v", h.notifier.ctxErrs[0])
	}
	if h.notifier.titles[0] != "poolwatch ⚠" {
		t.Fatalf("unexpected title %q", h.notifier.titles[0])
	}
	text := h.notifier.texts[0]
	for _, want := range []string{"-> restart btc-worker", "cycle aborted before every target was checked"} {
		if !strings.Contains(text, want) {
			t.Fatalf("notification missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "backup") {
		t.Fatalf("unchecked target must not appear:\n%s", text)
	}
}

func TestRunCycle_SendsOneNotification(t *testing.T) {
	h := newHarness(t, testConfig())
	h.web.responses[apiURL] = ok(t, `{"pools":{"btc":{"hashrate":50}}}`)

	h.mon.RunCycle(context.Background())

	if len(h.notifier.texts) != 1 {
		t.Fatalf("want exactly one notification, got %d", len(h.notifier.texts))
	}
	if h.notifier.titles[0] != "poolwatch ⚠" {
		t.Fatalf("unexpected title %q", h.notifier.titles[0])
	}
	text := h.notifier.texts[0]
	for _, want := range []string{
		"web main (https://pool.example.com): ⚠ pool below threshold",
		"  btc: ⚠ hashrate 50 <= 100 -> restart btc-worker",
		"stratum: skipped this cycle",
		"(2026/10/19 03:00:00 UTC)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("notification missing %q:\n%s", want, text)
		}
	}
}
