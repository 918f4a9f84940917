package runner

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrRunInFlight is returned when a run is requested while another run is
// still executing.
var ErrRunInFlight = errors.New("a streak run is already in progress")

// Trigger serializes run requests: at most one run executes at a time, and
// overlapping requests are rejected rather than queued.
type Trigger struct {
	runner *Runner
	log    *zap.Logger

	mu     sync.Mutex
	active bool

	lastMu sync.Mutex
	last   *Report

	// OnComplete observes each finished run. Set before the first Fire;
	// called from the run goroutine.
	OnComplete func(report *Report, err error)
}

// NewTrigger wraps a Runner with single-flight semantics.
func NewTrigger(runner *Runner, log *zap.Logger) *Trigger {
	return &Trigger{runner: runner, log: log}
}

// Active reports whether a run is currently executing.
func (t *Trigger) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Last returns the report of the most recently completed run, or nil.
func (t *Trigger) Last() *Report {
	t.lastMu.Lock()
	defer t.lastMu.Unlock()
	return t.last
}

// Fire starts a run in the background. It returns ErrRunInFlight when
// another run is still executing; otherwise it returns immediately with the
// run accepted.
func (t *Trigger) Fire(ctx context.Context, opts Options) error {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return ErrRunInFlight
	}
	t.active = true
	t.mu.Unlock()

	go func() {
		defer func() {
			t.mu.Lock()
			t.active = false
			t.mu.Unlock()
		}()
		report, err := t.runner.Run(ctx, opts)
		if err != nil {
			t.log.Error("streak run failed", zap.Error(err))
		}
		t.lastMu.Lock()
		t.last = report
		t.lastMu.Unlock()
		if t.OnComplete != nil {
			t.OnComplete(report, err)
		}
	}()
	return nil
}
