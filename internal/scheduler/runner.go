package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/poolwatch/internal/domain"
)

var ErrCycleInProgress = errors.New("cycle already in progress")

type Cycler interface {
	RunCycle(ctx context.Context) domain.CycleResult
}

// Runner guarantees cycles never overlap, whether started by the schedule
// or by a manual trigger.
type Runner struct {
	Logger *zap.Logger
	Cycler Cycler

	running sync.Mutex

	mu   sync.RWMutex
	last *domain.CycleResult
}

func NewRunner(logger *zap.Logger, c Cycler) *Runner {
	return &Runner{Logger: logger, Cycler: c}
}

// TryRun runs one cycle unless one is already in flight.
func (r *Runner) TryRun(ctx context.Context) (domain.CycleResult, error) {
	if !r.running.TryLock() {
		r.Logger.Warn("cycle_skipped_in_progress")
		return domain.CycleResult{}, ErrCycleInProgress
	}
	defer r.running.Unlock()

	res, err := r.run(ctx)
	if err != nil {
		return res, err
	}
	r.mu.Lock()
	r.last = &res
	r.mu.Unlock()
	return res, nil
}

// run turns a panic inside the cycle into an error so the process survives.
func (r *Runner) run(ctx context.Context) (res domain.CycleResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cycle panicked: %v", p)
			r.Logger.Error("cycle_panic", zap.Any("panic", p), zap.Stack("stack"))
		}
	}()
	return r.Cycler.RunCycle(ctx), nil
}

// Last is the most recent completed cycle, for display only.
func (r *Runner) Last() (domain.CycleResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return domain.CycleResult{}, false
	}
	return *r.last, true
}
