// Package remediate executes restart requests against the external process
// manager without blocking the cycle that issued them.
package remediate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/poolwatch/internal/domain"
	"github.com/hamed0406/poolwatch/internal/metrics"
)

type Restarter interface {
	Restart(ctx context.Context, remediationID string) error
}

// CommandRestarter runs Command with the remediation ID appended,
// e.g. `pm2 restart <id>`.
type CommandRestarter struct {
	Command []string
}

func (c CommandRestarter) Restart(ctx context.Context, remediationID string) error {
	if len(c.Command) == 0 {
		return errors.New("no restart command configured")
	}
	args := append(append([]string{}, c.Command[1:]...), remediationID)
	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s",
			c.Command[0], strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return nil
}

// keep at most this many unreported failures between Wait calls
const maxKeptErrors = 32

// Dispatcher starts each restart as its own goroutine. Failures are logged,
// counted and kept for Wait; they never reach the cycle.
type Dispatcher struct {
	restarter Restarter
	logger    *zap.Logger
	metrics   *metrics.Metrics
	timeout   time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
	closed bool
}

var ErrClosed = errors.New("dispatcher closed")

func NewDispatcher(r Restarter, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{restarter: r, logger: logger, metrics: m, timeout: timeout}
}

// Dispatch returns immediately. The restart outlives ctx cancellation but is
// bounded by the dispatcher timeout.
//
// After Close, Dispatch refuses the action and records ErrClosed.
func (d *Dispatcher) Dispatch(ctx context.Context, a domain.RemediationAction) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("restart_refused",
			zap.String("remediation_id", a.RemediationID),
			zap.String("target_id", string(a.TargetID)),
			zap.Error(ErrClosed),
		)
		d.keep(fmt.Errorf("restart %s: %w", a.RemediationID, ErrClosed))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		start := time.Now()
		err := d.restart(rctx, a)
		if d.metrics != nil {
			d.metrics.ObserveRemediation(a.Reason, err)
		}
		fields := []zap.Field{
			zap.String("remediation_id", a.RemediationID),
			zap.String("target_id", string(a.TargetID)),
			zap.String("reason", string(a.Reason)),
			zap.String("coin", a.Coin),
			zap.Duration("took", time.Since(start)),
		}
		if err != nil {
			d.logger.Error("restart_failed", append(fields, zap.Error(err))...)
			d.keep(err)
			return
		}
		d.logger.Info("restart_done", fields...)
	}()
}

func (d *Dispatcher) restart(ctx context.Context, a domain.RemediationAction) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("restart %s panicked: %v", a.RemediationID, p)
		}
	}()
	return d.restarter.Restart(ctx, a.RemediationID)
}

func (d *Dispatcher) keep(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.errs) == maxKeptErrors {
		d.errs = d.errs[1:]
	}
	d.errs = append(d.errs, err)
}

// Wait blocks until in-flight restarts finish and returns the failures
// recorded since the previous Wait.
func (d *Dispatcher) Wait() error {
	d.wg.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	err := multierr.Combine(d.errs...)
	d.errs = nil
	return err
}

// Close stops accepting restarts, then drains the in-flight ones like Wait.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Wait()
}
