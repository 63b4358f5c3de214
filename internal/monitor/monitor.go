// Package monitor runs one health-check cycle: every web target in order,
// then every stratum port unless a web-tier restart was issued.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/poolwatch/internal/config"
	"github.com/hamed0406/poolwatch/internal/domain"
	"github.com/hamed0406/poolwatch/internal/health"
	"github.com/hamed0406/poolwatch/internal/metrics"
	"github.com/hamed0406/poolwatch/internal/notify"
	"github.com/hamed0406/poolwatch/internal/probe"
)

type WebProber interface {
	Probe(ctx context.Context, url string) probe.Outcome
}

type StratumProber interface {
	Probe(ctx context.Context, host string, port int) probe.Outcome
}

type Diagnoser interface {
	Diagnose(ctx context.Context, rawURL string) probe.DNSStatus
}

type Dispatcher interface {
	Dispatch(ctx context.Context, a domain.RemediationAction)
}

// Deps are the collaborators of a Monitor. DNS is optional.
type Deps struct {
	Web      WebProber
	Stratum  StratumProber
	DNS      Diagnoser
	Dispatch Dispatcher
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type Monitor struct {
	cfg     config.Config
	deps    Deps
	retrier probe.Retrier
	loc     *time.Location
	now     func() time.Time
}

func New(cfg config.Config, deps Deps) *Monitor {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	return &Monitor{
		cfg:     cfg,
		deps:    deps,
		retrier: probe.Retrier{Attempts: cfg.MaxRetry, Backoff: cfg.RetryBackoff},
		loc:     cfg.Location(),
		now:     time.Now,
	}
}

// RunCycle evaluates all targets once. Targets are probed strictly one after
// another; restarts are dispatched as soon as they are decided.
func (m *Monitor) RunCycle(ctx context.Context) domain.CycleResult {
	log := m.deps.Logger
	res := domain.CycleResult{StartedAt: m.now()}
	log.Info("cycle_started",
		zap.Int("webs", len(m.cfg.Webs)),
		zap.Int("stratums", len(m.cfg.Stratums)),
	)

	var webActions []domain.RemediationAction
	for _, w := range m.cfg.Webs {
		if ctx.Err() != nil {
			res.Aborted = true
			break
		}
		report, actions, ok := m.checkWeb(ctx, w)
		if !ok {
			res.Aborted = true
			break
		}
		res.Reports = append(res.Reports, report)
		m.dispatch(ctx, actions)
		webActions = append(webActions, actions...)
	}
	res.Actions = append(res.Actions, webActions...)

	switch {
	case res.Aborted:
	case health.SkipStratum(webActions):
		res.StratumSkipped = true
		log.Info("stratum_skipped", zap.Int("web_actions", len(webActions)))
	default:
		for _, s := range m.cfg.Stratums {
			if ctx.Err() != nil {
				res.Aborted = true
				break
			}
			report, actions, ok := m.checkStratum(ctx, s)
			if !ok {
				res.Aborted = true
				break
			}
			res.Reports = append(res.Reports, report)
			m.dispatch(ctx, actions)
			res.Actions = append(res.Actions, actions...)
		}
	}

	res.FinishedAt = m.now()
	m.deps.Metrics.ObserveCycle(res)

	if res.Aborted {
		log.Warn("cycle_aborted",
			zap.Int("reports", len(res.Reports)),
			zap.Int("actions", len(res.Actions)),
			zap.Error(ctx.Err()),
		)
	} else {
		log.Info("cycle_finished",
			zap.Int("reports", len(res.Reports)),
			zap.Int("actions", len(res.Actions)),
			zap.Bool("stratum_skipped", res.StratumSkipped),
			zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
		)
	}
	// the summary still goes out when ctx ended mid-cycle, so restarts
	// already dispatched are reported
	m.notify(context.WithoutCancel(ctx), res)
	return res
}

// checkWeb returns ok=false when ctx ended during probing; such a probe
// result says nothing about the target and must not trigger a restart.
func (m *Monitor) checkWeb(ctx context.Context, w domain.WebTarget) (domain.TargetReport, []domain.RemediationAction, bool) {
	url := m.cfg.APIURL(w)
	out := m.retrier.Do(ctx, func(ctx context.Context) probe.Outcome {
		o := m.deps.Web.Probe(ctx, url)
		m.observeAttempt(domain.KindWeb, string(w.ID), o)
		return o
	})
	if !out.Succeeded && ctx.Err() != nil {
		return domain.TargetReport{}, nil, false
	}

	v := health.EvaluateWeb(w, out)
	report := domain.TargetReport{
		Kind:     domain.KindWeb,
		ID:       w.ID,
		Name:     w.Name,
		Address:  w.URL,
		Verdict:  v.Verdict,
		Attempts: out.Attempts,
		Pools:    v.Pools,
	}
	if !out.Succeeded {
		report.Reason = failureText(out.Last)
		if m.deps.DNS != nil && m.cfg.DNSDiagnostics {
			report.Diagnosis = m.deps.DNS.Diagnose(ctx, w.URL).Summary()
		}
	}
	m.deps.Metrics.ObserveReport(report)
	m.logReport(report)
	return report, health.DecideWeb(w, v), true
}

func (m *Monitor) checkStratum(ctx context.Context, s domain.StratumTarget) (domain.TargetReport, []domain.RemediationAction, bool) {
	out := m.retrier.Do(ctx, func(ctx context.Context) probe.Outcome {
		o := m.deps.Stratum.Probe(ctx, s.Host, s.Port)
		m.observeAttempt(domain.KindStratum, string(s.ID), o)
		return o
	})
	if !out.Succeeded && ctx.Err() != nil {
		return domain.TargetReport{}, nil, false
	}

	v := health.EvaluateStratum(out)
	report := domain.TargetReport{
		Kind:     domain.KindStratum,
		ID:       s.ID,
		Name:     s.Name,
		Address:  s.Address(),
		Verdict:  v,
		Attempts: out.Attempts,
	}
	if !out.Succeeded {
		report.Reason = failureText(out.Last)
	}
	m.deps.Metrics.ObserveReport(report)
	m.logReport(report)
	return report, health.DecideStratum(s, v), true
}

func (m *Monitor) observeAttempt(kind domain.Kind, id string, o probe.Outcome) {
	m.deps.Metrics.ObserveAttempt(kind, o.Success, string(o.Reason))
	if !o.Success {
		m.deps.Logger.Debug("probe_failed",
			zap.String("kind", string(kind)),
			zap.String("target_id", id),
			zap.String("reason", string(o.Reason)),
			zap.String("message", o.Message),
			zap.Float64("latency_ms", o.LatencyMS),
		)
	}
}

func (m *Monitor) logReport(r domain.TargetReport) {
	fields := []zap.Field{
		zap.String("kind", string(r.Kind)),
		zap.String("target_id", string(r.ID)),
		zap.String("address", r.Address),
		zap.String("verdict", string(r.Verdict)),
		zap.Int("attempts", r.Attempts),
	}
	if r.Reason != "" {
		fields = append(fields, zap.String("reason", r.Reason))
	}
	if r.Diagnosis != "" {
		fields = append(fields, zap.String("diagnosis", r.Diagnosis))
	}
	if r.Verdict == domain.Healthy {
		m.deps.Logger.Info("target_checked", fields...)
		return
	}
	m.deps.Logger.Warn("target_checked", fields...)
}

func (m *Monitor) dispatch(ctx context.Context, actions []domain.RemediationAction) {
	for _, a := range actions {
		m.deps.Logger.Warn("restart_requested",
			zap.String("remediation_id", a.RemediationID),
			zap.String("target_id", string(a.TargetID)),
			zap.String("reason", string(a.Reason)),
			zap.String("coin", a.Coin),
		)
		m.deps.Dispatch.Dispatch(ctx, a)
	}
}

func (m *Monitor) notify(ctx context.Context, res domain.CycleResult) {
	if m.deps.Notifier == nil {
		return
	}
	title := m.cfg.Notify.Title + " ✅"
	if !res.Healthy() {
		title = m.cfg.Notify.Title + " ⚠"
	}
	if err := m.deps.Notifier.Send(ctx, title, FormatReport(res, m.loc)); err != nil {
		m.deps.Logger.Warn("notify_failed", zap.Error(err))
	}
}

func failureText(o probe.Outcome) string {
	if o.Message == "" {
		return string(o.Reason)
	}
	return fmt.Sprintf("%s: %s", o.Reason, o.Message)
}
