package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hamed0406/poolwatch/internal/config"
	"github.com/hamed0406/poolwatch/internal/logging"
	"github.com/hamed0406/poolwatch/internal/metrics"
	"github.com/hamed0406/poolwatch/internal/monitor"
	"github.com/hamed0406/poolwatch/internal/notify"
	"github.com/hamed0406/poolwatch/internal/probe"
	"github.com/hamed0406/poolwatch/internal/remediate"
	"github.com/hamed0406/poolwatch/internal/scheduler"
)

// app holds everything a command needs once the config is loaded.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	dispatch *remediate.Dispatcher
	runner   *scheduler.Runner
}

func newApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logging.Options{
		Dir:    cfg.Log.Dir,
		Level:  cfg.Log.Level,
		Stderr: cfg.Log.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	dispatch := remediate.NewDispatcher(
		remediate.CommandRestarter{Command: cfg.Remediation.Command},
		logger, m, cfg.Timeout.Restart,
	)

	notifiers := notify.Multi{notify.Log{Logger: logger}}
	if slack := notify.NewSlack(cfg.Notify.SlackWebhook); slack != nil {
		notifiers = append(notifiers, slack)
	}

	deps := monitor.Deps{
		Web:      probe.NewWebProber(cfg.Timeout.API, cfg.InsecureSkipVerify),
		Stratum:  probe.NewStratumProber(cfg.Timeout.Stratum),
		Dispatch: dispatch,
		Notifier: notifiers,
		Metrics:  m,
		Logger:   logger,
	}
	if cfg.DNSDiagnostics {
		deps.DNS = probe.NewDNSDiagnoser(cfg.Timeout.API)
	}

	mon := monitor.New(cfg, deps)
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		dispatch: dispatch,
		runner:   scheduler.NewRunner(logger, mon),
	}, nil
}
